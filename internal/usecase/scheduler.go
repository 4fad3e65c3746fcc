package usecase

import (
	"context"
	"log/slog"
	"time"

	"ScourtNewsBot/internal/ports"
)

// Scheduler wires the recurring trigger with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	opts     RunOptions
	logger   *slog.Logger
}

// NewScheduler binds the trigger driver to a fixed set of run options.
// Scheduled runs are never forced.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, opts RunOptions, logger *slog.Logger) *Scheduler {
	opts.Force = false
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		stats, err := s.pipeline.RunOnce(ctx, s.opts)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("scheduled run aborted", "error", err)
			}
			return
		}
		if s.logger != nil {
			s.logger.Info("scheduled run finished",
				"scanned", stats.Scanned,
				"processed", stats.Processed,
				"sent", stats.Sent,
				"skipped", stats.Skipped,
				"failed", stats.Failed)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
