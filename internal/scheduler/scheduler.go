// Package scheduler triggers automatic batch runs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/price-monitor/internal/batch"
	"github.com/maltedev/price-monitor/internal/models"
)

type Runner interface {
	RunBatch(ctx context.Context, mode models.Mode, limit int) (models.Summary, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs an auto batch every interval until ctx is cancelled. A tick that
// lands while a manual run is active is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	summary, err := s.runner.RunBatch(ctx, models.ModeAuto, 0)
	switch {
	case errors.Is(err, batch.ErrRunInProgress):
		s.logger.Info("skipping auto run, another run is active")
	case err != nil:
		s.logger.Error("auto run failed", "error", err)
	case summary.Processed > 0:
		s.logger.Info("auto run finished",
			"processed", summary.Processed,
			"errors", summary.Errors,
			"remaining", summary.Remaining)
	}
}
