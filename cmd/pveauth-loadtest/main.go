package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/pveauth"
	"github.com/MrEthical07/pveauth/metrics/export/otel"
	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

func main() {
	var (
		clients     = flag.Int("clients", 4, "number of clients sharing one rate limit")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "requests per phase")
		expireEvery = flag.Int("expire-every", 500, "reauth phase: invalidate tickets every N requests")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		key         = flag.String("key", "pveauth-loadtest", "shared rate limit key")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 || *expireEvery <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, ops, and expire-every must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	pve := newFakePVE()
	srv := httptest.NewTLSServer(pve)
	defer srv.Close()

	pool := make([]*pveauth.Client, *clients)
	for i := range pool {
		cfg := pveauth.DefaultConfig()
		cfg.Host = "loadtest"
		cfg.Username = "loadtest"
		cfg.Password = "loadtest"
		cfg.RateLimit.MaxRequests = 4 * *ops
		cfg.RateLimit.Window = time.Minute
		cfg.RateLimit.RedisKey = *key
		cfg.Retry.BackoffStep = time.Millisecond
		cfg.Metrics.Enabled = true

		c, err := pveauth.New().
			WithConfig(cfg).
			WithTransport(transport.NewHTTPWithClient(srv.URL+transport.APIPrefix, srv.Client())).
			WithRedis(rdb).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build client: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		pool[i] = c
	}
	if err := pool[0].ResetRateLimit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reset rate limit: %v\n", err)
		os.Exit(1)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()
	exporter, err := otel.NewOTelExporterFromSource(provider.Meter("pveauth-loadtest"), poolSource(pool))
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel exporter: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = exporter.Close() }()

	steady := runPhase(ctx, pool, *ops, *concurrency)

	pve.expireEvery.Store(int64(*expireEvery))
	reauth := runPhase(ctx, pool, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("steady", steady)
	printStats("reauth", reauth)
	for i, c := range pool {
		s := c.MetricsSnapshot()
		fmt.Printf("client %d: auth_success=%d session_invalidated=%d reauth_retry=%d\n",
			i, s.Counters[pveauth.MetricAuthSuccess], s.Counters[pveauth.MetricSessionInvalidated], s.Counters[pveauth.MetricReauthRetry])
	}
	fmt.Printf("server: tickets=%d rejected=%d\n", pve.tickets.Load(), pve.rejected.Load())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		fmt.Fprintf(os.Stderr, "otel collect: %v\n", err)
		os.Exit(1)
	}
	printOTel(rm)
}

// poolSource aggregates every client for the OTel exporter. The clients share one
// Redis bucket, so the token gauge reads the first client.
type poolSource []*pveauth.Client

func (p poolSource) MetricsSnapshot() pveauth.MetricsSnapshot {
	out := pveauth.MetricsSnapshot{
		Counters:   map[pveauth.MetricID]uint64{},
		Histograms: map[pveauth.MetricID][]uint64{},
	}
	for _, c := range p {
		s := c.MetricsSnapshot()
		for id, v := range s.Counters {
			out.Counters[id] += v
		}
		for id, buckets := range s.Histograms {
			out.Histograms[id] = addBuckets(out.Histograms[id], buckets)
		}
		out.Reauths = addBuckets(out.Reauths, s.Reauths)
	}
	return out
}

func (p poolSource) AuditDropped() uint64 {
	var n uint64
	for _, c := range p {
		n += c.AuditDropped()
	}
	return n
}

func (p poolSource) RateLimitTokens(ctx context.Context) (int, error) {
	return p[0].RateLimitTokens(ctx)
}

func addBuckets(dst, src []uint64) []uint64 {
	if len(dst) < len(src) {
		dst = append(dst, make([]uint64, len(src)-len(dst))...)
	}
	for i, v := range src {
		dst[i] += v
	}
	return dst
}

func printOTel(rm metricdata.ResourceMetrics) {
	fmt.Println("---- otel ----")
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var points []string
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, formatPoint(dp.Attributes.Encoded(attributeEncoder), dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, formatPoint(dp.Attributes.Encoded(attributeEncoder), dp.Value))
				}
			}
			sort.Strings(points)
			fmt.Printf("%s %s\n", m.Name, strings.Join(points, " "))
		}
	}
}

var attributeEncoder = attribute.DefaultEncoder()

func formatPoint(attrs string, v int64) string {
	if attrs == "" {
		return strconv.FormatInt(v, 10)
	}
	return "{" + attrs + "}=" + strconv.FormatInt(v, 10)
}

// fakePVE issues numbered tickets and, once expireEvery is set, rotates the valid
// generation every expireEvery API requests.
type fakePVE struct {
	generation  atomic.Int64
	served      atomic.Int64
	expireEvery atomic.Int64
	tickets     atomic.Int64
	rejected    atomic.Int64
}

func newFakePVE() *fakePVE {
	return &fakePVE{}
}

func (f *fakePVE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == transport.APIPrefix+session.TicketPath {
		f.tickets.Add(1)
		gen := strconv.FormatInt(f.generation.Load(), 10)
		fmt.Fprintf(w, `{"data":{"ticket":"PVE:loadtest@pam:%s","CSRFPreventionToken":"%s:csrf"}}`, gen, gen)
		return
	}

	cookie, err := r.Cookie(session.CookieName)
	if err != nil || !strings.HasSuffix(cookie.Value, ":"+strconv.FormatInt(f.generation.Load(), 10)) {
		f.rejected.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"data":null}`))
		return
	}

	if every := f.expireEvery.Load(); every > 0 && f.served.Add(1)%every == 0 {
		f.generation.Add(1)
	}
	_, _ = w.Write([]byte(`{"data":[{"node":"pve1","status":"online"}]}`))
}

func runPhase(ctx context.Context, pool []*pveauth.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			client := pool[worker%len(pool)]
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := client.Get(ctx, "/nodes", nil)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					if errors.Is(err, pveauth.ErrRateLimitExceeded) {
						time.Sleep(time.Millisecond)
					}
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
