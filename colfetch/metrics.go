package colfetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics recorded by a session.
type Metrics struct {
	Requests        *prometheus.CounterVec
	BytesFetched    prometheus.Counter
	Retries         prometheus.Counter
	RequestDuration prometheus.Histogram
	InFlight        prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colfetch_requests_total",
		Help: "Range requests issued, by outcome kind",
	}, []string{"outcome"})

	bytesFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colfetch_bytes_fetched_total",
		Help: "Total bytes returned by successful range requests",
	})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "colfetch_retries_total",
		Help: "Range requests retried after a retryable failure",
	})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "colfetch_request_duration_seconds",
		Help:    "Latency of individual range requests",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "colfetch_requests_in_flight",
		Help: "Range requests currently in flight",
	})

	reg.MustRegister(requests, bytesFetched, retries, duration, inFlight)

	return &Metrics{
		Requests:        requests,
		BytesFetched:    bytesFetched,
		Retries:         retries,
		RequestDuration: duration,
		InFlight:        inFlight,
	}
}

// The helpers below accept a nil receiver so callers need not check
// whether metrics are configured.

func (m *Metrics) start() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) finish(elapsed time.Duration, n int, err error) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.RequestDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.Requests.WithLabelValues(KindOf(err).String()).Inc()
		return
	}
	m.Requests.WithLabelValues("ok").Inc()
	m.BytesFetched.Add(float64(n))
}

func (m *Metrics) retry() {
	if m != nil {
		m.Retries.Inc()
	}
}
