package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"StoryIndexer/internal/ports"
)

// CronScheduler fires a job on a standard five-field cron expression.
type CronScheduler struct {
	spec     string
	schedule cron.Schedule
	location *time.Location
	clock    clockwork.Clock
	logger   *slog.Logger
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Option customizes a CronScheduler.
type Option func(*CronScheduler)

// WithClock replaces the real clock. Tests pass a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *CronScheduler) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLocation evaluates the expression in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(c *CronScheduler) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithLogger reports every computed fire time to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CronScheduler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCronScheduler parses spec. A CRON_TZ= prefix overrides the location.
func NewCronScheduler(spec string, opts ...Option) (*CronScheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	c := &CronScheduler{
		spec:     spec,
		schedule: schedule,
		location: time.Local,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Next returns the first fire time strictly after now.
func (c *CronScheduler) Next(now time.Time) time.Time {
	return c.schedule.Next(now.In(c.location))
}

// Run waits for each fire time and calls job until ctx is cancelled.
// Jobs run on the calling goroutine, so runs never overlap.
func (c *CronScheduler) Run(ctx context.Context, job func(ctx context.Context, fire time.Time)) error {
	if job == nil {
		return nil
	}

	for {
		now := c.clock.Now()
		next := c.Next(now)
		if next.IsZero() {
			return fmt.Errorf("schedule %q has no future fire time", c.spec)
		}
		c.logger.Info("next run", "schedule", c.spec, "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(next.Sub(now)):
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		job(ctx, next)
	}
}
