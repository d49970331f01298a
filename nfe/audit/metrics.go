package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the audit logger. A nil registerer creates unregistered
// collectors, which keeps tests independent.
type Metrics struct {
	Recorded        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	Dropped         prometheus.Counter
	BreakerState    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nfe_audit_records_total",
			Help: "Audit records persisted, by operation and outcome",
		}, []string{"operation", "outcome"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "nfe_audit_persist_failures_total",
			Help: "Audit records lost because the store failed",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "nfe_audit_dropped_total",
			Help: "Audit records skipped while the circuit breaker was open",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "nfe_audit_circuit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) setBreaker(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
