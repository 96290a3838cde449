// Package internaldefs describes the exported series once so the Prometheus and OTel
// exporters report the same names, labels and bucket bounds.
//
// Dispatch outcomes are a single counter family labelled by outcome. The latency
// histogram and the re-authentications-per-dispatch distribution are published as
// cumulative buckets.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
