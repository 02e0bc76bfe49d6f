// Package metrics exposes the engine's Prometheus collectors and the
// core.ObservationHooks adapters that wire them into domain code without
// coupling that code to prometheus directly.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "github.com/candlewarehouse/engine/internal/app/core/service"
)

var (
	// Registry holds the engine's own collectors plus the Go/process
	// collectors, kept separate from the default global registry.
	Registry = prometheus.NewRegistry()

	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlewarehouse",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "Total number of provider fetch attempts.",
		},
		[]string{"source", "success"},
	)

	fetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "candlewarehouse",
			Subsystem: "fetch",
			Name:      "latency_seconds",
			Help:      "Latency of provider fetch attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"source"},
	)

	circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "candlewarehouse",
			Subsystem: "resilience",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per resource (0=closed, 1=half-open, 2=open).",
		},
		[]string{"resource"},
	)

	persistedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "candlewarehouse",
			Subsystem: "persistence",
			Name:      "rows_total",
			Help:      "Total enriched rows persisted, by outcome.",
		},
		[]string{"outcome"}, // inserted, updated, unchanged
	)

	qualityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "candlewarehouse",
			Subsystem: "quality",
			Name:      "score",
			Help:      "Most recent average quality score per symbol.",
		},
		[]string{"symbol", "asset_class"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "candlewarehouse",
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full daily sweep across every active symbol.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		fetchAttempts,
		fetchLatency,
		circuitState,
		persistedRows,
		qualityScore,
		sweepDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFetch records one provider fetch attempt.
func RecordFetch(source string, success bool, latency time.Duration) {
	result := "false"
	if success {
		result = "true"
	}
	fetchAttempts.WithLabelValues(source, result).Inc()
	fetchLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordCircuitState publishes a breaker's current state as a gauge.
func RecordCircuitState(resource string, state int) {
	circuitState.WithLabelValues(resource).Set(float64(state))
}

// RecordPersistence records the outcome counts of one upsert pass.
func RecordPersistence(inserted, updated, unchanged int) {
	persistedRows.WithLabelValues("inserted").Add(float64(inserted))
	persistedRows.WithLabelValues("updated").Add(float64(updated))
	persistedRows.WithLabelValues("unchanged").Add(float64(unchanged))
}

// RecordQualityScore publishes the latest average quality score for a symbol.
func RecordQualityScore(symbol, assetClass string, score float64) {
	qualityScore.WithLabelValues(symbol, assetClass).Set(score)
}

// RecordSweepDuration records one completed daily sweep's wall time.
func RecordSweepDuration(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core.ObservationHooks backed by a lazily
// registered gauge/histogram pair, keyed by namespace/subsystem/name so
// repeated calls for the same concern share one collector.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			collector.gauge.WithLabelValues(metaLabel(meta)).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"symbol"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"symbol", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if v, ok := meta["symbol"]; ok && v != "" {
		return v
	}
	return "unknown"
}

// EnrichmentHooks captures scheduler.Pipeline.Enrich call durations and
// in-flight counts, keyed by symbol.
func EnrichmentHooks() core.ObservationHooks {
	return ObservationHooks("candlewarehouse", "enrichment", "pipeline")
}
