// Package security derives a posture report from a client's effective configuration:
// authentication method, TLS verification, admission and retry bounds, and audit
// durability.
//
// # What this package must NOT do
//
//   - Read secrets. Reports carry the principal, never a password or token secret.
//   - Change configuration. Reports are informational.
package security
