// Package audit implements the bounded access log and its event delivery.
//
// # Components
//
//   - [Log]: append-only, insertion-ordered record capped at a maximum size with FIFO
//     eviction. Reads return independent copies.
//   - [Sink]: observer for appended entries (channel, JSON writer, hclog, Redis, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Sanitize]: allow-list filter applied before text reaches a line-oriented sink.
//
// # Architecture boundaries
//
// This package owns storage and delivery. It does NOT decide which requests are audited
// or what their outcome was: that belongs to the dispatch flow.
//
// # What this package must NOT do
//
//   - Mutate an entry after it was appended.
//   - Import pveauth or any sibling internal package.
package audit
