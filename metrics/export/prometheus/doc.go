// Package prometheus renders pveauth client metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [pveauth.Client] and exposes an [http.Handler].
// Finished dispatches are one family, pveauth_requests_total, labelled by outcome.
// The rate limit bucket is published as the pveauth_ratelimit_tokens gauge, read
// under the scrape's context so a shared Redis bucket is queried per scrape.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry: callers mount the Handler.
//   - Mutate client state.
package prometheus
