package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Ledger procedure calls, labelled by procedure name and outcome
	// (success, rejected, error).
	LedgerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_calls_total",
			Help: "Total number of ledger procedure calls",
		},
		[]string{"procedure", "status"},
	)

	LedgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_duration_seconds",
			Help:    "Duration of ledger procedure calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	GateAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_attempts_total",
			Help: "Total number of step-gate verification attempts",
		},
		[]string{"gate", "result"},
	)

	WithdrawalOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_outcomes_total",
			Help: "Terminal outcomes of withdrawal orchestrations",
		},
		[]string{"outcome"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(
		RepositoryCalls,
		RepositoryDuration,
		LedgerCalls,
		LedgerDuration,
		GateAttempts,
		WithdrawalOutcomes,
	)
}
