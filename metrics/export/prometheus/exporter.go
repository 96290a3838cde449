package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/metrics/export/internaldefs"
)

// PrometheusExporter renders client metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter creates a Prometheus exporter that reads from client.
func NewPrometheusExporter(client *pveauth.Client) *PrometheusExporter {
	if client == nil {
		return &PrometheusExporter{}
	}
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the exposition. The token gauge is read under the request context.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render(r.Context())))
	})
}

// Render returns the current exposition, or "" when metrics are disabled and nothing
// was dropped. The rate limit gauge is omitted when the limiter cannot be read.
func (p *PrometheusExporter) Render(ctx context.Context) string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if internaldefs.Empty(snapshot) && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, f := range internaldefs.Families {
		writeHeader(&b, f.Name, f.Help, "counter")
		if len(f.Series) == 0 {
			writeSample(&b, f.Name, "", "", snapshot.Counters[f.ID])
			continue
		}
		for _, s := range f.Series {
			writeSample(&b, f.Name, f.Label, s.Value, snapshot.Counters[s.ID])
		}
	}

	writeHeader(&b, internaldefs.AuditDroppedName, "Audit entries dropped by the asynchronous sink dispatcher.", "counter")
	writeSample(&b, internaldefs.AuditDroppedName, "", "", dropped)

	if tokens, err := p.source.RateLimitTokens(ctx); err == nil && tokens >= 0 {
		writeHeader(&b, internaldefs.TokensName, "Whole tokens left in the rate limit bucket.", "gauge")
		writeSample(&b, internaldefs.TokensName, "", "", uint64(tokens))
	}

	if latency, ok := snapshot.Histograms[pveauth.MetricRequestLatency]; ok {
		writeHistogram(&b, internaldefs.LatencyName,
			"Dispatch duration including re-authentication backoff.",
			internaldefs.LatencyBounds(), latency)
	}
	if len(snapshot.Reauths) > 0 {
		writeHistogram(&b, internaldefs.ReauthsName,
			"Re-authentications a dispatch needed after 401 answers.",
			internaldefs.ReauthBounds(), snapshot.Reauths)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, label, value string, v uint64) {
	b.WriteString(name)
	if label != "" {
		b.WriteByte('{')
		b.WriteString(label)
		b.WriteString(`="`)
		b.WriteString(value)
		b.WriteString(`"}`)
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}

// Snapshots carry no sum; _sum is omitted.
func writeHistogram(b *strings.Builder, name, help string, bounds []string, raw []uint64) {
	writeHeader(b, name, help, "histogram")
	cumulative := internaldefs.Cumulative(raw, len(bounds))
	for i, le := range bounds {
		writeSample(b, name+"_bucket", "le", le, cumulative[i])
	}
	writeSample(b, name+"_count", "", "", cumulative[len(cumulative)-1])
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
