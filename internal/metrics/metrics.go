// Package metrics exposes Prometheus instruments for cycle runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed cycles by the action the signal produced.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dca",
		Name:      "cycles_total",
		Help:      "Completed execution cycles by decided action.",
	}, []string{"action"})

	// WalletOutcomesTotal counts per-wallet results within cycles.
	WalletOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dca",
		Name:      "wallet_outcomes_total",
		Help:      "Per-wallet execution outcomes by status.",
	}, []string{"status"})

	// SubmissionRetriesTotal counts retry attempts beyond the first, by
	// classified error kind.
	SubmissionRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dca",
		Name:      "submission_retries_total",
		Help:      "On-chain submission retries by error classification.",
	}, []string{"kind"})

	// PendingFeeReconciliations tracks fee transfers that failed after a
	// successful swap and await retry at the next cycle.
	PendingFeeReconciliations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dca",
		Name:      "pending_fee_reconciliations",
		Help:      "Fee collections pending reconciliation.",
	})

	// SignalValue records the last sentiment reading used for a decision.
	SignalValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dca",
		Name:      "signal_value",
		Help:      "Last sentiment index value by source.",
	}, []string{"source"})

	// CycleDurationSeconds measures wall time of full cycle runs.
	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dca",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of full cycle runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)
