// Package observability holds the Prometheus metrics for sampling and
// assessment.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/cropsense/internal/sample"
)

const namespace = "cropsense"

// Metrics holds the Prometheus counters, histograms, and gauges.
type Metrics struct {
	Samples            *prometheus.CounterVec // labels: layer, status
	Evaluations        *prometheus.CounterVec // labels: outcome={classified,unknown,invalid}
	EvaluationDuration prometheus.Histogram
	LayersLoaded       prometheus.Gauge
	HistoryWrites      *prometheus.CounterVec // labels: result={ok,error}
}

// Outcome label values for Evaluations.
const (
	OutcomeClassified = "classified"
	OutcomeUnknown    = "unknown"
	OutcomeInvalid    = "invalid"
)

func newMetrics() *Metrics {
	return &Metrics{
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Raster point samples by layer and status.",
		}, []string{"layer", "status"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Point assessments by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of a single point assessment.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}),
		LayersLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layers_loaded",
			Help:      "Number of rasters currently loaded.",
		}),
		HistoryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "Outcome history writes by result.",
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Samples,
		m.Evaluations,
		m.EvaluationDuration,
		m.LayersLoaded,
		m.HistoryWrites,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// ObserveSample implements sample.Observer.
func (m *Metrics) ObserveSample(layer string, status sample.Status) {
	m.Samples.WithLabelValues(layer, string(status)).Inc()
}
