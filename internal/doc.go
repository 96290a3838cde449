// Package internal holds the packages private to pveauth.
//
// # Sub-packages
//
//   - audit: bounded in-memory audit log, async observer dispatch, and sinks
//   - cmd: the pvectl command line (mitchellh/cli)
//   - flows: the request dispatch loop (admission, authentication, retry, audit)
//   - metrics: lock-free counters and the request latency histogram
//   - rate: token buckets, in-process and Redis-shared
//   - security: client posture reports
//   - version: build version stamped at link time
//
// # What this package must NOT do
//
//   - Export types that appear in the public pveauth API except through aliases.
//   - Be imported by any package outside the pveauth module.
package internal
