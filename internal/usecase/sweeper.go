package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/aineus/aineus/internal/ports"
)

// Sweeper periodically walks every prompt and refreshes the stale ones.
// The coordinator's own staleness check makes the sweep idempotent, so a
// tick that races a manual refresh does no duplicate work.
type Sweeper struct {
	driver      ports.Scheduler
	coordinator *Coordinator
	store       ports.NewsStore
	logger      *slog.Logger
}

// NewSweeper wires the scheduler driver with the refresh coordinator.
func NewSweeper(driver ports.Scheduler, coordinator *Coordinator, store ports.NewsStore, logger *slog.Logger) *Sweeper {
	return &Sweeper{driver: driver, coordinator: coordinator, store: store, logger: logger}
}

// Start registers the sweep with the provided scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.driver == nil || s.coordinator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.sweep(ctx, trigger)
	}
	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}

func (s *Sweeper) sweep(ctx context.Context, trigger time.Time) {
	prompts, err := s.store.Prompts(ctx)
	if err != nil {
		s.logger.Error("sweep: list prompts", "error", err)
		return
	}

	refreshed := 0
	for _, prompt := range prompts {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.coordinator.RefreshNewsForPrompt(ctx, prompt.ID); err != nil {
			s.logger.Warn("sweep: refresh failed", "prompt_id", prompt.ID, "error", err)
			continue
		}
		refreshed++
	}
	s.logger.Info("sweep finished", "trigger", trigger.Format(time.RFC3339), "prompts", refreshed)
}
