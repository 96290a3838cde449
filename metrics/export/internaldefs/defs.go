package internaldefs

import (
	"context"
	"strconv"

	"github.com/MrEthical07/pveauth"
)

// Source is what both exporters read. *pveauth.Client satisfies it.
type Source interface {
	MetricsSnapshot() pveauth.MetricsSnapshot
	AuditDropped() uint64
	RateLimitTokens(ctx context.Context) (int, error)
}

// LabeledCounter is one series of a counter family distinguished by a single label.
type LabeledCounter struct {
	ID    pveauth.MetricID
	Value string
}

// Family groups counters exported under one name.
type Family struct {
	Name  string
	Help  string
	Label string
	// Series is empty for a single unlabeled counter; ID is used then.
	Series []LabeledCounter
	ID     pveauth.MetricID
}

const (
	RequestsName      = "pveauth_requests_total"
	AuthName          = "pveauth_authentications_total"
	InvalidatedName   = "pveauth_session_invalidations_total"
	ReauthRetriesName = "pveauth_reauth_retries_total"
	AuditDroppedName  = "pveauth_audit_dropped_total"
	TokensName        = "pveauth_ratelimit_tokens"
	LatencyName       = "pveauth_request_duration_seconds"
	ReauthsName       = "pveauth_dispatch_reauths"
)

// Requests splits finished dispatches by outcome. The outcomes are disjoint and sum to
// every dispatch.
var Requests = Family{
	Name:  RequestsName,
	Help:  "Finished dispatches by outcome.",
	Label: "outcome",
	Series: []LabeledCounter{
		{ID: pveauth.MetricRequestSuccess, Value: "success"},
		{ID: pveauth.MetricRateLimited, Value: "rate_limited"},
		{ID: pveauth.MetricRequestUnauthenticated, Value: "auth_failed"},
		{ID: pveauth.MetricHTTPError, Value: "http_error"},
		{ID: pveauth.MetricTransportFailure, Value: "transport_error"},
		{ID: pveauth.MetricRetryExhausted, Value: "retry_exhausted"},
		{ID: pveauth.MetricRequestCanceled, Value: "canceled"},
	},
}

// Auth counts credential exchanges, including the synthetic token exchange.
var Auth = Family{
	Name:  AuthName,
	Help:  "Credential exchanges by result.",
	Label: "result",
	Series: []LabeledCounter{
		{ID: pveauth.MetricAuthSuccess, Value: "success"},
		{ID: pveauth.MetricAuthFailure, Value: "failure"},
	},
}

var Invalidated = Family{
	Name: InvalidatedName,
	Help: "Tickets dropped after the server rejected them with 401.",
	ID:   pveauth.MetricSessionInvalidated,
}

var ReauthRetries = Family{
	Name: ReauthRetriesName,
	Help: "Re-authentication retries across all dispatches.",
	ID:   pveauth.MetricReauthRetry,
}

// Families lists every counter family in export order.
var Families = []Family{Requests, Auth, Invalidated, ReauthRetries}

// LatencyBounds renders pveauth.LatencyBounds in seconds, followed by "+Inf".
func LatencyBounds() []string {
	out := make([]string, 0, len(pveauth.LatencyBounds)+1)
	for _, d := range pveauth.LatencyBounds {
		out = append(out, strconv.FormatFloat(d.Seconds(), 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// ReauthBounds renders the re-authentication buckets: "0" through "6", then "+Inf".
func ReauthBounds() []string {
	out := make([]string, 0, pveauth.ReauthBucketCount)
	for i := 0; i < pveauth.ReauthBucketCount-1; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return append(out, "+Inf")
}

// Cumulative turns per-bucket counts into the running totals exporters publish. The
// result always has n entries; missing input buckets count as zero.
func Cumulative(raw []uint64, n int) []uint64 {
	out := make([]uint64, n)
	var running uint64
	for i := 0; i < n; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

// Empty reports a snapshot taken with metrics disabled.
func Empty(s pveauth.MetricsSnapshot) bool {
	return len(s.Counters) == 0 && len(s.Histograms) == 0 && len(s.Reauths) == 0
}
