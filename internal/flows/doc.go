// Package flows contains pure-function orchestrators for client operations.
//
// Each flow function (currently [RunDispatch]) accepts a typed dependency struct
// and returns a result value without side-effects beyond those dependencies. The
// root client maps results onto its public errors and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the rate limiter, session manager, transport,
// and audit log. They do NOT own any of these resources; ownership stays with the
// Client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls. Retry state lives for one dispatch.
//   - Import pveauth (to avoid import cycles).
//   - Perform I/O directly: all I/O is mediated through dependency interfaces.
package flows
