// Package rate provides the admission-control primitives used by the request dispatcher.
//
// # Bucket semantics
//
// Both limiters implement a continuous token bucket: tokens refill at
// maxRequests/window per millisecond, fractional tokens accumulate between calls, and
// only whole tokens are consumable. Admission never blocks; a denied caller gets false
// and decides what to do.
//
//   - [TokenBucket]: in-process bucket guarded by a mutex.
//   - [RedisBucket]: the same arithmetic evaluated atomically in a Lua script so several
//     client processes share one budget. Key prefix: rl:
//
// # What this package must NOT do
//
//   - Queue or delay callers.
//   - Import pveauth or any sibling internal package.
package rate
