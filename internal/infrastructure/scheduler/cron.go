package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"newsdigest/internal/ports"
)

// CronScheduler drives recurring pipeline jobs via cron expressions.
type CronScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// New builds a scheduler bound to the configured timezone.
func New(loc *time.Location, logger *slog.Logger) *CronScheduler {
	return &CronScheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger,
	}
}

// Add registers a named job. Each run gets its own bounded context; a run
// that overlaps the next tick is the job's problem, not the scheduler's.
func (c *CronScheduler) Add(name, spec string, job func(ctx context.Context) error) error {
	_, err := c.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			c.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		c.logger.Info("scheduled job completed", "job", name, "took", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	c.logger.Info("scheduled job registered", "job", name, "spec", spec)
	return nil
}

// Start begins firing registered jobs.
func (c *CronScheduler) Start() {
	c.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs or context expiry.
func (c *CronScheduler) Stop(ctx context.Context) error {
	done := c.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
