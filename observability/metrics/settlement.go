package metrics

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks protocol operations and ledger totals.
type SettlementMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	totals     *prometheus.GaugeVec
	phase      prometheus.Gauge
}

var (
	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// Settlement returns the process-wide registry, registering it with the
// default Prometheus registerer on first use.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = NewSettlementMetrics()
		settlementRegistry.MustRegister(prometheus.DefaultRegisterer)
	})
	return settlementRegistry
}

// NewSettlementMetrics builds an unregistered metric set.
func NewSettlementMetrics() *SettlementMetrics {
	return &SettlementMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dope",
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Settlement operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dope",
			Subsystem: "settlement",
			Name:      "failures_total",
			Help:      "Rejected settlement operations segmented by error code.",
		}, []string{"operation", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dope",
			Subsystem: "settlement",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for settlement operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dope",
			Subsystem: "ledger",
			Name:      "total",
			Help:      "Ledger aggregates such as raised, deposited, borrowed and staked amounts.",
		}, []string{"ledger"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dope",
			Subsystem: "period",
			Name:      "current_phase",
			Help:      "Index of the active phase, or -1 outside every range.",
		}),
	}
}

// MustRegister registers every collector with reg.
func (m *SettlementMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.operations, m.failures, m.latency, m.totals, m.phase)
}

// ObserveOperation records the outcome and latency of an operation. code is
// empty on success.
func (m *SettlementMetrics) ObserveOperation(operation, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	operation = normalizeLabel(operation)
	outcome := "ok"
	if code != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, code).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetTotal publishes a ledger aggregate. Values beyond float64 precision are
// approximated.
func (m *SettlementMetrics) SetTotal(ledger string, amount *big.Int) {
	if m == nil {
		return
	}
	value := 0.0
	if amount != nil {
		value, _ = new(big.Float).SetInt(amount).Float64()
	}
	m.totals.WithLabelValues(normalizeLabel(ledger)).Set(value)
}

// SetPhase publishes the active phase index.
func (m *SettlementMetrics) SetPhase(index int) {
	if m == nil {
		return
	}
	m.phase.Set(float64(index))
}

// OperationCounter exposes the operation counter for tests.
func (m *SettlementMetrics) OperationCounter() *prometheus.CounterVec { return m.operations }

// FailureCounter exposes the failure counter for tests.
func (m *SettlementMetrics) FailureCounter() *prometheus.CounterVec { return m.failures }

// TotalsGauge exposes the ledger totals gauge for tests.
func (m *SettlementMetrics) TotalsGauge() *prometheus.GaugeVec { return m.totals }

// PhaseGauge exposes the phase gauge for tests.
func (m *SettlementMetrics) PhaseGauge() prometheus.Gauge { return m.phase }

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
