// Package transport defines the wire primitive the authenticated-dispatch core sends
// through, and its default HTTPS implementation.
//
// A [Transport] performs exactly one exchange and reports every HTTP status as a
// [Response]; classifying statuses (401 re-authentication, other failures) is the
// dispatcher's job. Only network-level failures are returned as errors, wrapped with
// [ErrTransport].
//
// # What this package must NOT do
//
//   - Retry, authenticate, or rate limit.
//   - Import pveauth or any internal package.
package transport
