package pveauth

import (
	"github.com/MrEthical07/pveauth/internal/security"
	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

// SecurityReport summarizes the client's security-relevant settings and lists warnings
// such as disabled TLS verification.
type SecurityReport = security.Report

// SecurityReport returns the posture of c as built.
func (c *Client) SecurityReport() SecurityReport {
	if c == nil {
		return SecurityReport{}
	}

	method := security.AuthTicket
	if _, ok := c.session.Credentials().(session.TokenCredential); ok {
		method = security.AuthAPIToken
	}
	_, shared := c.limiter.(sharedLimiter)
	_, stock := c.transport.(*transport.HTTP)

	return security.BuildReport(security.ReportInput{
		AuthMethod:      method,
		Principal:       c.session.Credentials().Principal(),
		TLSVerification: c.config.TLSVerification(),
		CustomTransport: !stock,
		Timeout:         c.config.Timeout,
		RateLimitMax:    c.config.RateLimit.MaxRequests,
		RateLimitWindow: c.config.RateLimit.Window,
		SharedRateLimit: shared,
		MaxRetries:      c.config.Retry.MaxRetries,
		BackoffStep:     c.config.Retry.BackoffStep,
		AuditMaxEntries: c.config.Audit.MaxEntries,
		AuditAsync:      c.config.Audit.Async,
		AuditDropIfFull: c.config.Audit.DropIfFull,
		AuditObservers:  c.auditObservers,
		MetricsEnabled:  c.config.Metrics.Enabled,
	})
}
