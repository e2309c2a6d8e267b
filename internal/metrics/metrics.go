// Package metrics holds the Prometheus collectors for scraping and batch runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors on a dedicated registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	FetchErrors     *prometheus.CounterVec
	URLsProcessed   *prometheus.CounterVec
	BatchRuns       *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	InFlight        prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_monitor_fetches_total",
			Help: "Product page fetches by fetch mode.",
		},
		[]string{"mode"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_monitor_fetch_duration_seconds",
			Help:    "Latency of product page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_monitor_fetch_errors_total",
			Help: "Failed product page fetches by error type.",
		},
		[]string{"error_type"},
	)
	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_monitor_urls_processed_total",
			Help: "URLs processed by batch runs, by resulting status.",
		},
		[]string{"status"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_monitor_batch_runs_total",
			Help: "Completed batch runs by mode.",
		},
		[]string{"mode"},
	)
	batchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_monitor_batch_duration_seconds",
			Help:    "Wall-clock duration of batch runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 540, 900},
		},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_monitor_scrapes_in_flight",
			Help: "Scrape attempts currently running.",
		},
	)
	published := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_monitor_outbox_events_total",
			Help: "Outbox events handled by the relay, by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(fetches, fetchDuration, fetchErrors, processed, runs, batchDuration, inFlight, published)

	return &Metrics{
		Registry:        registry,
		FetchesTotal:    fetches,
		FetchDuration:   fetchDuration,
		FetchErrors:     fetchErrors,
		URLsProcessed:   processed,
		BatchRuns:       runs,
		BatchDuration:   batchDuration,
		InFlight:        inFlight,
		OutboxPublished: published,
	}
}

func (m *Metrics) IncFetch(mode string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncProcessed(status string) {
	if m == nil {
		return
	}
	m.URLsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveBatch(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues(mode).Inc()
	m.BatchDuration.Observe(d.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

func (m *Metrics) IncOutbox(outcome string) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(outcome).Inc()
}
