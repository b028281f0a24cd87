package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/ports"
)

// DriverFactory builds the recurring driver for a scheduled configuration.
type DriverFactory func(cfg config.Config) (ports.Scheduler, error)

// Executor runs the pipeline once.
type Executor interface {
	Execute(ctx context.Context, cfg config.Config) (Report, error)
}

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	runner    Executor
	newDriver DriverFactory
	logger    *slog.Logger
}

// NewScheduler returns a helper that runs the pipeline once or on a schedule.
func NewScheduler(runner Executor, newDriver DriverFactory, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, newDriver: newDriver, logger: logger}
}

// Run executes cfg once when no schedule is set. Otherwise it blocks,
// running the pipeline at every fire time until ctx is cancelled; a
// failed run is logged and the loop waits for the next fire time.
func (s *Scheduler) Run(ctx context.Context, cfg config.Config) error {
	if s.runner == nil {
		return errors.New("scheduler: no runner")
	}

	if !cfg.Scheduled() {
		_, err := s.runner.Execute(ctx, cfg)
		return err
	}

	if s.newDriver == nil {
		return fmt.Errorf("scheduler: no driver for schedule %q", cfg.Schedule)
	}
	driver, err := s.newDriver(cfg)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.logger.Info("schedule enabled", "name", cfg.Name, "schedule", cfg.Schedule)

	return driver.Run(ctx, func(ctx context.Context, fire time.Time) {
		if _, err := s.runner.Execute(ctx, cfg); err != nil {
			s.logger.Error("scheduled run failed", "name", cfg.Name, "fire", fire, "error", err)
		}
	})
}
