// Package metrics exposes the engine's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementLegs counts completed settlement legs by kind
	// (initial, final, refund).
	SettlementLegs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpay",
		Name:      "settlement_legs_total",
		Help:      "Completed settlement legs by kind.",
	}, []string{"kind"})

	// FallbackPayouts counts legs the system account had to fund because
	// the payer could not cover the amount.
	FallbackPayouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpay",
		Name:      "fallback_payouts_total",
		Help:      "Settlement legs funded by the system account.",
	})

	// FallbackMinted is the total amount (minor units) the system account
	// has paid out under the insufficient-funds fallback.
	FallbackMinted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpay",
		Name:      "fallback_minted_minor_units",
		Help:      "Minor units paid out by the system account fallback.",
	})

	// JobRuns counts scheduled job invocations by job name.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpay",
		Name:      "job_runs_total",
		Help:      "Scheduled settlement job invocations.",
	}, []string{"job"})

	// JobItems counts per-item outcomes inside scheduled jobs.
	JobItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpay",
		Name:      "job_items_total",
		Help:      "Per-item outcomes of scheduled settlement jobs.",
	}, []string{"job", "outcome"})
)
