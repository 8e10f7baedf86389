package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the pending-deal sweep on a cron schedule.
type Scheduler struct {
	spec   string
	worker *SyncWorker
}

func NewScheduler(spec string, w *SyncWorker) *Scheduler {
	return &Scheduler{spec: spec, worker: w}
}

// Run blocks until ctx is done, then waits for a running sweep to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.spec, func() {
		if err := s.worker.ProcessPendingDeals(ctx); err != nil {
			slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sync sweep %q: %w", s.spec, err)
	}

	c.Start()
	slog.InfoContext(ctx, "Sync sweep scheduled", "schedule", s.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.InfoContext(ctx, "Sync sweep stopped")
	return nil
}
