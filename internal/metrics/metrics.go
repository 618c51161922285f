// Package metrics exposes Prometheus collectors for ingestion runs and pricing decisions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nightrate"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ingestRuns      *prometheus.CounterVec
	ingestEvents    *prometheus.CounterVec
	ingestErrors    *prometheus.CounterVec
	ingestDuration  prometheus.Histogram
	ingestLastStamp prometheus.Gauge

	priceDecisions *prometheus.CounterVec
	priceErrors    prometheus.Counter
	priceSuggested prometheus.Histogram
	priceLatency   prometheus.Histogram
}

// New registers all collectors, plus Go runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ingestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome (completed, cancelled, skipped).",
		}, []string{"outcome"}),
		ingestEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "candidates_total",
			Help:      "Ingested candidates by result (stored, duplicate, discarded).",
		}, []string{"result"}),
		ingestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Isolated ingestion failures by kind (feed, store).",
		}, []string{"kind"}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ingestLastStamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished ingestion run.",
		}),

		priceDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "decisions_total",
			Help:      "Pricing decisions by whether an event and market data contributed.",
		}, []string{"event", "market"}),
		priceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "errors_total",
			Help:      "Pricing calls that failed on a store error.",
		}),
		priceSuggested: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "suggested_price",
			Help:      "Distribution of suggested nightly prices.",
			Buckets:   prometheus.LinearBuckets(50, 25, 10),
		}),
		priceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "duration_seconds",
			Help:      "Latency of a single pricing decision.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// IngestRun carries the counts of one finished ingestion run.
type IngestRun struct {
	Stored      int
	Duplicates  int
	Discarded   int
	FeedErrors  int
	StoreErrors int
	Duration    time.Duration
	Cancelled   bool
}

// ObserveIngest records a finished ingestion run.
func (m *Metrics) ObserveIngest(r IngestRun) {
	if m == nil {
		return
	}
	outcome := "completed"
	if r.Cancelled {
		outcome = "cancelled"
	}
	m.ingestRuns.WithLabelValues(outcome).Inc()
	m.ingestEvents.WithLabelValues("stored").Add(float64(r.Stored))
	m.ingestEvents.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	m.ingestEvents.WithLabelValues("discarded").Add(float64(r.Discarded))
	m.ingestErrors.WithLabelValues("feed").Add(float64(r.FeedErrors))
	m.ingestErrors.WithLabelValues("store").Add(float64(r.StoreErrors))
	m.ingestDuration.Observe(r.Duration.Seconds())
	m.ingestLastStamp.SetToCurrentTime()
}

// IngestSkipped records a run that did not start because another held the lock.
func (m *Metrics) IngestSkipped() {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues("skipped").Inc()
}

// ObservePrice records a successful pricing decision.
func (m *Metrics) ObservePrice(suggested float64, hasEvent, hasMarket bool, took time.Duration) {
	if m == nil {
		return
	}
	m.priceDecisions.WithLabelValues(boolLabel(hasEvent), boolLabel(hasMarket)).Inc()
	m.priceSuggested.Observe(suggested)
	m.priceLatency.Observe(took.Seconds())
}

// PriceFailed records a pricing call that failed.
func (m *Metrics) PriceFailed() {
	if m == nil {
		return
	}
	m.priceErrors.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
