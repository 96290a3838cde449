// Package pveauth provides an authenticated, rate-limited, audited client core for the
// Proxmox VE management API.
//
// Every outbound call goes through [Client.Do]: the token bucket admits or denies it,
// the session manager supplies a ticket or API token, the transport sends it, and the
// outcome of each physical attempt lands in a bounded audit log. A 401 invalidates the
// ticket and triggers up to Retry.MaxRetries re-authentications with a linear backoff.
//
// The client is safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// pveauth is the public surface. It exposes [Client], [Builder], [Config], error types,
// and aliases for audit and metrics values. Dispatch orchestration, the token bucket,
// audit storage, and metric storage live under internal/. Credentials and the session
// manager live in package session; the wire layer in package transport.
//
// # What this package must NOT do
//
//   - Log or return credentials, tickets, or CSRF tokens.
//   - Perform I/O during Build.
//   - Retry anything other than a 401.
//   - Import any sub-package that re-imports pveauth (no import cycles).
package pveauth
