// internal/bank/metrics.go

package bank

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome 為一次引擎操作的終止狀態。
type Outcome string

const (
	OutcomeCommitted          Outcome = "committed"
	OutcomeRejected           Outcome = "rejected"
	OutcomeRolledBack         Outcome = "rolled_back"
	OutcomeCompensationFailed Outcome = "compensation_failed"
)

// outcomeOf 依錯誤分類終止狀態；validated 表示驗證已通過（可能已有寫入）。
func outcomeOf(err error, validated bool) Outcome {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, ErrCompensationFailure):
		return OutcomeCompensationFailed
	case !validated:
		return OutcomeRejected
	default:
		return OutcomeRolledBack
	}
}

// Metrics 收集引擎操作次數與耗時。
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics 建立並註冊引擎指標；reg 為 nil 時不註冊。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "operations_total",
			Help:      "Ledger engine operations by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration)
	}
	return m
}

func (m *Metrics) observe(op string, outcome Outcome, start time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, string(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
