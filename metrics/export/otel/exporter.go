package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// family is one counter family bound to its instrument, with the attribute set of each
// series computed once.
type family struct {
	def        internaldefs.Family
	instrument metric.Int64ObservableCounter
	attrs      []metric.ObserveOption
}

// distribution publishes cumulative bucket counts as one counter with an "le" attribute.
type distribution struct {
	instrument metric.Int64ObservableCounter
	bounds     []metric.ObserveOption
	raw        func(pveauth.MetricsSnapshot) ([]uint64, bool)
}

// OTelExporter reads a client snapshot on every collection cycle.
type OTelExporter struct {
	source        internaldefs.Source
	registration  metric.Registration
	families      []family
	distributions []distribution
	auditDropped  metric.Int64ObservableCounter
	tokens        metric.Int64ObservableGauge
}

// NewOTelExporter registers observable instruments on meter that read client state on
// every collection.
func NewOTelExporter(meter metric.Meter, client *pveauth.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{def: def, instrument: ins}
		for _, s := range def.Series {
			f.attrs = append(f.attrs, metric.WithAttributes(attribute.String(def.Label, s.Value)))
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	latency, err := newDistribution(meter, internaldefs.LatencyName+"_bucket",
		"Cumulative dispatch duration buckets, backoff included.",
		internaldefs.LatencyBounds(),
		func(s pveauth.MetricsSnapshot) ([]uint64, bool) {
			raw, ok := s.Histograms[pveauth.MetricRequestLatency]
			return raw, ok
		})
	if err != nil {
		return nil, err
	}
	reauths, err := newDistribution(meter, internaldefs.ReauthsName+"_bucket",
		"Cumulative re-authentications per dispatch.",
		internaldefs.ReauthBounds(),
		func(s pveauth.MetricsSnapshot) ([]uint64, bool) {
			return s.Reauths, len(s.Reauths) > 0
		})
	if err != nil {
		return nil, err
	}
	e.distributions = []distribution{latency, reauths}
	observables = append(observables, latency.instrument, reauths.instrument)

	e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit entries dropped by the asynchronous sink dispatcher."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.tokens, err = meter.Int64ObservableGauge(internaldefs.TokensName,
		metric.WithDescription("Whole tokens left in the rate limit bucket."))
	if err != nil {
		return nil, fmt.Errorf("create token gauge: %w", err)
	}
	observables = append(observables, e.auditDropped, e.tokens)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func newDistribution(meter metric.Meter, name, help string, bounds []string,
	raw func(pveauth.MetricsSnapshot) ([]uint64, bool)) (distribution, error) {
	ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
	if err != nil {
		return distribution{}, fmt.Errorf("create distribution %s: %w", name, err)
	}
	d := distribution{instrument: ins, raw: raw}
	for _, le := range bounds {
		d.bounds = append(d.bounds, metric.WithAttributes(attribute.String("le", le)))
	}
	return d, nil
}

func (e *OTelExporter) observe(ctx context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	if !internaldefs.Empty(snapshot) {
		for _, f := range e.families {
			if len(f.def.Series) == 0 {
				o.ObserveInt64(f.instrument, int64(snapshot.Counters[f.def.ID]))
				continue
			}
			for i, s := range f.def.Series {
				o.ObserveInt64(f.instrument, int64(snapshot.Counters[s.ID]), f.attrs[i])
			}
		}
		for _, d := range e.distributions {
			raw, ok := d.raw(snapshot)
			if !ok {
				continue
			}
			cumulative := internaldefs.Cumulative(raw, len(d.bounds))
			for i, opt := range d.bounds {
				o.ObserveInt64(d.instrument, int64(cumulative[i]), opt)
			}
		}
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	if tokens, err := e.source.RateLimitTokens(ctx); err == nil {
		o.ObserveInt64(e.tokens, int64(tokens))
	}
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
