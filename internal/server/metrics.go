package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess    = "success"
	outcomeInProgress = "in_progress"
	outcomeCapture    = "capture_error"
	outcomeAssembly   = "assembly_error"
)

type Metrics struct {
	Exports  *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "invsnap_exports_total",
			Help: "Export attempts by outcome.",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "invsnap_export_duration_seconds",
			Help:    "Wall time of completed export attempts.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
	}
}
