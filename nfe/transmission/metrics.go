package transmission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the transmission service. A nil registerer keeps the
// collectors unregistered.
type Metrics struct {
	Calls   *prometheus.CounterVec
	Latency *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nfe_transmission_calls_total",
			Help: "Transmission calls by operation and final state",
		}, []string{"operation", "state"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nfe_transmission_latency_seconds",
			Help:    "Time spent waiting for the authority",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}
}
