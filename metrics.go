package fibload

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "fibload"

// Metrics counts served requests and consumed body bytes. Counters are plain
// atomics on the hot path; the Prometheus registry reads them on scrape.
type Metrics struct {
	requests     atomic.Int64
	bodyBytes    atomic.Int64
	failures     atomic.Int64
	payloadBytes atomic.Int64

	latency  *LatencyWindow
	registry *prometheus.Registry
}

// NewMetrics creates a metrics set with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		latency:  NewLatencyWindow(defaultLatencyWindow),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Total number of fibonacci requests routed by the server",
		}, func() float64 { return float64(m.requests.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "body_bytes_consumed_total",
			Help:      "Total number of request body bytes consumed and verified",
		}, func() float64 { return float64(m.bodyBytes.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "request_failures_total",
			Help:      "Total number of requests that failed verification or a child call",
		}, func() float64 { return float64(m.failures.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payload_bytes_expected_total",
			Help:      "Total number of body bytes the server expected to verify",
		}, func() float64 { return float64(m.payloadBytes.Load()) }),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the Prometheus registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RequestServed records one routed request.
func (m *Metrics) RequestServed() { m.requests.Add(1) }

// BodyConsumed records n verified body bytes.
func (m *Metrics) BodyConsumed(n int) { m.bodyBytes.Add(int64(n)) }

// RequestFailed records a request that could not be answered.
func (m *Metrics) RequestFailed() { m.failures.Add(1) }

// PayloadExpected records the size of a body about to be verified.
func (m *Metrics) PayloadExpected(n int64) { m.payloadBytes.Add(n) }

// ObserveLatency records how long one request took to answer.
func (m *Metrics) ObserveLatency(d time.Duration) { m.latency.Record(d) }

// Latency returns percentiles over the most recent request latencies.
func (m *Metrics) Latency() LatencyStats { return m.latency.Stats() }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests  int64
	BodyBytes int64
	Failures  int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Requests:  m.requests.Load(),
		BodyBytes: m.bodyBytes.Load(),
		Failures:  m.failures.Load(),
	}
}

// Rates returns per-second rates between two snapshots taken elapsed apart.
func (s Snapshot) Rates(prev Snapshot, elapsed time.Duration) (requests, bodyBytes float64) {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0, 0
	}
	return float64(s.Requests-prev.Requests) / secs, float64(s.BodyBytes-prev.BodyBytes) / secs
}

// Report logs counters and rates every interval until ctx is done.
func (m *Metrics) Report(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev, last := m.Snapshot(), time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cur := m.Snapshot()
			reqRate, byteRate := cur.Rates(prev, now.Sub(last))
			lat := m.Latency()
			logger.Info("metrics",
				"requests", cur.Requests,
				"requests_per_sec", reqRate,
				"body_bytes", cur.BodyBytes,
				"body_consume_rate", byteRate,
				"failures", cur.Failures,
				"p50", lat.P50,
				"p99", lat.P99,
				"tail_ratio", lat.TailRatio)
			prev, last = cur, now
		}
	}
}
