package escrow

import (
	"context"
	"errors"

	"github.com/appesso/taskpay/internal/metrics"
	"github.com/appesso/taskpay/internal/task"
)

// JobReport summarizes one scan-and-act run.
type JobReport struct {
	Job     string `json:"job"`
	Scanned int    `json:"scanned"`
	Settled int    `json:"settled"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// RunExpireUnclaimedTasks expires and refunds OPEN tasks older than 30 days.
// Each task is its own atomic unit; one failure never blocks the rest, and a
// task claimed since the scan is skipped. Safe to re-run: a second pass finds
// nothing eligible.
func (e *Engine) RunExpireUnclaimedTasks(ctx context.Context) (*JobReport, error) {
	metrics.JobRuns.WithLabelValues("expire_unclaimed_tasks").Inc()
	cutoff := e.now().Add(-task.ExpireAfter)
	ids, err := e.store.OpenTasksBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	report := &JobReport{Job: "expire_unclaimed_tasks", Scanned: len(ids)}
	for _, id := range ids {
		err := e.AutoExpire(ctx, id)
		e.tally(report, id, err)
	}
	e.log.Info().
		Int("scanned", report.Scanned).
		Int("settled", report.Settled).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("expire-unclaimed-tasks run finished")
	return report, nil
}

// RunAutoReleaseCommission releases the final leg of tasks whose completion
// request has sat unanswered past the grace period.
func (e *Engine) RunAutoReleaseCommission(ctx context.Context) (*JobReport, error) {
	metrics.JobRuns.WithLabelValues("auto_release_commission").Inc()
	cutoff := e.now().Add(-task.AutoReleaseAfter)
	ids, err := e.store.CompletionRequestedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	report := &JobReport{Job: "auto_release_commission", Scanned: len(ids)}
	for _, id := range ids {
		err := e.AutoRelease(ctx, id)
		e.tally(report, id, err)
	}
	e.log.Info().
		Int("scanned", report.Scanned).
		Int("settled", report.Settled).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("auto-release-commission run finished")
	return report, nil
}

// RunSettlePendingTransfers completes PENDING deposit/withdraw entries older
// than the settlement delay. The PENDING entry itself is the durable queue: a
// recovery scan after a crash always finds and completes it exactly once.
func (e *Engine) RunSettlePendingTransfers(ctx context.Context) (*JobReport, error) {
	metrics.JobRuns.WithLabelValues("settle_pending_transfers").Inc()
	cutoff := e.now().Add(-e.settleDelay)
	ids, err := e.store.PendingEntriesBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	report := &JobReport{Job: "settle_pending_transfers", Scanned: len(ids)}
	for _, id := range ids {
		err := e.SettlePendingEntry(ctx, id)
		e.tally(report, id, err)
	}
	e.log.Info().
		Int("scanned", report.Scanned).
		Int("settled", report.Settled).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("settle-pending-transfers run finished")
	return report, nil
}

// tally folds one item result into the report. InvalidState means a
// concurrent actor got there first; an underfunded withdrawal waits for the
// next scan. Both are skips, not failures.
func (e *Engine) tally(report *JobReport, id string, err error) {
	switch {
	case err == nil:
		report.Settled++
		metrics.JobItems.WithLabelValues(report.Job, "settled").Inc()
	case errors.Is(err, task.ErrInvalidState), errors.Is(err, ErrInsufficientFunds):
		report.Skipped++
		metrics.JobItems.WithLabelValues(report.Job, "skipped").Inc()
	default:
		report.Failed++
		metrics.JobItems.WithLabelValues(report.Job, "failed").Inc()
		e.log.Error().Err(err).Str("id", id).Str("job", report.Job).Msg("job item failed")
	}
}
