// Package session owns Proxmox VE authentication state: the credential union, the
// ticket exchange, and per-request decoration.
//
// # State machine
//
//	Unauthenticated → Authenticating → Authenticated
//	Authenticated → Unauthenticated   (Invalidate, after a 401)
//
// There is no Expired state. Tickets expire server-side without notice; the dispatcher
// infers expiry from a 401 and invalidates. API-token sessions never expire client-side,
// so Invalidate leaves the token header in place.
//
// # Architecture boundaries
//
// The [Manager] is the only writer of ticket, CSRF token, and authorization header.
// Concurrent [Manager.Authenticate] calls are coalesced into one exchange.
//
// # What this package must NOT do
//
//   - Retry, rate limit, or audit. The dispatch flow owns those.
//   - Log or format secrets: credentials render as user@realm only.
package session
