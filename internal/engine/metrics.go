package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts ledger operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	version    prometheus.Gauge
	rollbacks  prometheus.Counter
}

// NewMetrics registers the ledger collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "honest_ledger_operations_total",
			Help: "Ledger operations by name and outcome code.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "honest_ledger_operation_seconds",
			Help:    "Time spent inside the ledger lock per operation.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "honest_ledger_version",
			Help: "Version of the last committed snapshot.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "honest_ledger_rollbacks_total",
			Help: "Operations whose changes were rolled back.",
		}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.duration, m.version, m.rollbacks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) committed(version uint64) {
	if m == nil {
		return
	}
	m.version.Set(float64(version))
}

func (m *Metrics) rolledBack() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}
