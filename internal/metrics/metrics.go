// Package metrics defines the Prometheus collectors for ingestion and the
// HTTP transport.
//
// Collectors are registered on the Registerer passed to New, so tests can
// use an isolated prometheus.NewRegistry().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/store"
)

const namespace = "aether"

// Batch outcome label values.
const (
	OutcomeApplied = "applied"
)

// Metrics holds every collector. It implements ingest.Observer.
type Metrics struct {
	// BatchesTotal counts batches by outcome.
	// Labels: outcome (applied, SCHEMA_INVALID, SERVER_RESPONSE_INVALID)
	BatchesTotal *prometheus.CounterVec

	// EventsTotal counts per-event verdicts.
	// Labels: kind, status (ACCEPTED, REJECTED, DUPLICATE)
	EventsTotal *prometheus.CounterVec

	// BatchDurationSeconds measures batch processing time.
	// Labels: outcome
	BatchDurationSeconds *prometheus.HistogramVec

	// BatchSize observes the number of events per applied batch.
	BatchSize prometheus.Histogram

	// HTTPRequestsTotal counts requests by route and status.
	// Labels: method, route, status
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDurationSeconds measures request latency.
	// Labels: method, route
	HTTPRequestDurationSeconds *prometheus.HistogramVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		BatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Event batches by outcome",
		}, []string{"outcome"}),

		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Ingested events by kind and verdict",
		}, []string{"kind", "status"}),

		BatchDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Batch processing time in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"outcome"}),

		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_size_events",
			Help:      "Events per applied batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		HTTPRequestDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// BatchApplied records an applied batch and its per-event verdicts.
func (m *Metrics) BatchApplied(req ir.BatchRequest, resp *ir.BatchResponse, elapsed time.Duration) {
	m.BatchesTotal.WithLabelValues(OutcomeApplied).Inc()
	m.BatchDurationSeconds.WithLabelValues(OutcomeApplied).Observe(elapsed.Seconds())
	m.BatchSize.Observe(float64(len(req.Events)))

	for _, res := range resp.Results {
		kind := ir.EventKind("UNKNOWN")
		if res.EventIndex < len(req.Events) {
			kind = req.Events[res.EventIndex].Kind
		}
		if !kind.Known() {
			// Unknown kinds are caller-controlled; fold them into one label.
			kind = "UNKNOWN"
		}
		m.EventsTotal.WithLabelValues(string(kind), string(res.Status)).Inc()
	}
}

// BatchFailed records a batch rejected as a whole.
func (m *Metrics) BatchFailed(code string, elapsed time.Duration) {
	m.BatchesTotal.WithLabelValues(code).Inc()
	m.BatchDurationSeconds.WithLabelValues(code).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterStoreGauges exposes the store's entry counts as gauges read at
// scrape time.
func RegisterStoreGauges(reg prometheus.Registerer, stats func() store.Stats) {
	f := promauto.With(reg)
	gauge := func(name, help string, read func(store.Stats) int) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}

	gauge("bindings", "Tags currently bound", func(s store.Stats) int { return s.Bindings })
	gauge("placements", "Objects with a known placement", func(s store.Stats) int { return s.Placements })
	gauge("transactions", "Transactions ever opened", func(s store.Stats) int { return s.Transactions })
	gauge("open_transactions", "Objects with an open transaction", func(s store.Stats) int { return s.OpenTransactions })
	gauge("seen_event_keys", "Accepted event keys", func(s store.Stats) int { return s.SeenKeys })
}
