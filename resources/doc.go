// Package resources builds Proxmox VE request paths and payloads for nodes, virtual
// machines, containers, and storage on top of an authenticated requester such as
// *pveauth.Client.
//
// Every operation validates its parameters before dispatch and consults a [Policy]
// that can deny operations or turn mutating ones into dry runs.
//
// # What this package must NOT do
//
//   - Authenticate, rate limit, retry, or audit: the requester does that.
//   - Send a request whose parameters failed validation.
package resources
