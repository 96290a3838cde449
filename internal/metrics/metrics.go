package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter slot.
type MetricID uint16

const (
	MetricRequestSuccess MetricID = iota
	MetricRequestFailure
	MetricRateLimited
	MetricRequestUnauthenticated
	MetricRequestCanceled
	MetricAuthSuccess
	MetricAuthFailure
	MetricSessionInvalidated
	MetricReauthRetry
	MetricRetryExhausted
	MetricTransportFailure
	MetricHTTPError
	MetricRequestLatency
	MetricIDCount
)

const (
	HistBucketCount = 8
	// ReauthBucketCount buckets re-authentications per dispatch: 0 through 6 exactly,
	// the last bucket holds 7 or more.
	ReauthBucketCount = 8
	cacheLineSize     = 64
)

// LatencyBounds are the inclusive upper bounds of the latency buckets, compared at
// millisecond resolution. The last bucket is unbounded.
var LatencyBounds = [HistBucketCount - 1]time.Duration{
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
}

// Config toggles metric collection.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters, the request latency histogram and the distribution of
// re-authentications per dispatch. A nil or disabled *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	latency       [HistBucketCount]uint64
	reauths       [ReauthBucketCount]uint64
}

// Snapshot is a point-in-time copy of all metrics. Histograms holds the latency
// buckets under MetricRequestLatency when latency collection is on. Reauths is
// indexed by re-authentications per finished dispatch.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Reauths    []uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram of id. Only MetricRequestLatency carries a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	atomic.AddUint64(&m.latency[BucketIndex(d)], 1)
}

// ObserveReauths records how many times one dispatch re-authenticated after a 401.
func (m *Metrics) ObserveReauths(n int) {
	if m == nil || !m.enabled || n < 0 {
		return
	}
	if n >= ReauthBucketCount {
		n = ReauthBucketCount - 1
	}
	atomic.AddUint64(&m.reauths[n], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
		Reauths:    make([]uint64, ReauthBucketCount),
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	for i := range s.Reauths {
		s.Reauths[i] = atomic.LoadUint64(&m.reauths[i])
	}

	if m.enableLatency {
		buckets := make([]uint64, HistBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
	}
	return s
}

// BucketIndex maps d onto LatencyBounds.
func BucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range LatencyBounds {
		if d <= bound {
			return i
		}
	}
	return HistBucketCount - 1
}
