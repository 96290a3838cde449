package security

import "time"

// Auth method names used in reports.
const (
	AuthTicket   = "ticket"
	AuthAPIToken = "api_token"
)

// Report summarizes the security-relevant posture of a built client.
type Report struct {
	AuthMethod        string
	Principal         string
	TLSVerification   bool
	CustomTransport   bool
	Timeout           time.Duration
	RateLimitPerSec   float64
	SharedRateLimit   bool
	MaxRetries        int
	WorstCaseBackoff  time.Duration
	AuditMaxEntries   int
	AuditObserverLoss bool
	MetricsEnabled    bool
	Warnings          []string
}

type ReportInput struct {
	AuthMethod       string
	Principal        string
	TLSVerification  bool
	CustomTransport  bool
	Timeout          time.Duration
	RateLimitMax     int
	RateLimitWindow  time.Duration
	SharedRateLimit  bool
	MaxRetries       int
	BackoffStep      time.Duration
	AuditMaxEntries  int
	AuditAsync       bool
	AuditDropIfFull  bool
	AuditObservers   int
	MetricsEnabled   bool
}

func BuildReport(input ReportInput) Report {
	var perSec float64
	if input.RateLimitWindow > 0 {
		perSec = float64(input.RateLimitMax) / input.RateLimitWindow.Seconds()
	}

	// Linear backoff waits step, 2*step, ... n*step across n retries.
	n := time.Duration(input.MaxRetries)
	worst := input.BackoffStep * n * (n + 1) / 2

	r := Report{
		AuthMethod:        input.AuthMethod,
		Principal:         input.Principal,
		TLSVerification:   input.TLSVerification,
		CustomTransport:   input.CustomTransport,
		Timeout:           input.Timeout,
		RateLimitPerSec:   perSec,
		SharedRateLimit:   input.SharedRateLimit,
		MaxRetries:        input.MaxRetries,
		WorstCaseBackoff:  worst,
		AuditMaxEntries:   input.AuditMaxEntries,
		AuditObserverLoss: input.AuditObservers > 0 && input.AuditAsync && input.AuditDropIfFull,
		MetricsEnabled:    input.MetricsEnabled,
	}

	if !input.TLSVerification && !input.CustomTransport {
		r.Warnings = append(r.Warnings, "TLS certificate verification is disabled")
	}
	if input.AuthMethod == AuthTicket {
		r.Warnings = append(r.Warnings, "ticket authentication keeps the password in memory for re-authentication; prefer an API token")
	}
	if r.AuditObserverLoss {
		r.Warnings = append(r.Warnings, "audit observers may drop entries under load; the in-memory log is unaffected")
	}
	if input.AuditObservers == 0 {
		r.Warnings = append(r.Warnings, "audit entries are kept in memory only")
	}
	return r
}
