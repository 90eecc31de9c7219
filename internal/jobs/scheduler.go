package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/appesso/taskpay/internal/escrow"
)

// DefaultSchedule runs the settlement sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Scheduler drives the three settlement jobs on a cron schedule. The same
// jobs are also reachable through the /cron endpoints; both paths are safe
// to overlap because every job re-checks eligibility under a row lock.
type Scheduler struct {
	cron   *cron.Cron
	engine *escrow.Engine
}

func NewScheduler(engine *escrow.Engine) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		engine: engine,
	}
}

// Start registers the jobs under the given cron expression and begins
// running them. An empty schedule uses DefaultSchedule.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	runs := []struct {
		name string
		fn   func(context.Context) (*escrow.JobReport, error)
	}{
		{"expire_unclaimed_tasks", s.engine.RunExpireUnclaimedTasks},
		{"auto_release_commission", s.engine.RunAutoReleaseCommission},
		{"settle_pending_transfers", s.engine.RunSettlePendingTransfers},
	}
	for _, job := range runs {
		job := job
		if _, err := s.cron.AddFunc(schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := job.fn(ctx); err != nil {
				log.Error().Err(err).Str("job", job.name).Msg("scheduled job failed")
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Info().Str("schedule", schedule).Msg("settlement scheduler started")
	return nil
}

// Stop halts scheduling and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
