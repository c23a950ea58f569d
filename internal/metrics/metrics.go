// Package metrics exposes run counters on a Prometheus registry owned by the
// app. Nothing is registered on the global default registry.
package metrics

import (
	"github.com/nsafar1/vbmgrid/internal/matrix"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vbmgrid"

// Metrics holds the collectors of one app instance.
type Metrics struct {
	Registry *prometheus.Registry

	stageOutcomes    *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	matricesAccepted prometheus.Gauge
	matricesRejected *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		stageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_outcomes_total",
			Help:      "Subject stage outcomes by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of attempted subject stages.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~70m
		}, []string{"stage"}),
		matricesAccepted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matrices_accepted",
			Help:      "Depth of the most recently aggregated tensor.",
		}),
		matricesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matrices_rejected_total",
			Help:      "Matrices excluded from the tensor by failure kind.",
		}, []string{"reason"}),
	}
}

// ObserveOutcome records one stage outcome. Skipped stages were never
// attempted and do not contribute to the duration histogram.
func (m *Metrics) ObserveOutcome(o model.Outcome) {
	m.stageOutcomes.WithLabelValues(o.Stage, o.Status.String()).Inc()
	if o.Status != model.StatusSkippedMissingInput {
		m.stageDuration.WithLabelValues(o.Stage).Observe(o.Duration.Seconds())
	}
}

// ObserveAggregation records the result of one aggregation pass.
func (m *Metrics) ObserveAggregation(accepted int, rejections []matrix.Rejection) {
	m.matricesAccepted.Set(float64(accepted))
	for _, r := range rejections {
		m.matricesRejected.WithLabelValues(string(r.Kind)).Inc()
	}
}
