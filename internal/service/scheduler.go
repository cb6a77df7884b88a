package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/store"
)

// Scheduler fires time-of-day coil writes. Matching is minute-granular:
// a task with hour=6 minute=30 fires once in the 06:30 local minute,
// regardless of how many ticks land inside it.
type Scheduler struct {
	store  store.Store
	writer WriteRequester
	logger zerolog.Logger

	// lastFired guards against double-firing when several ticks fall in
	// the same wall-clock minute.
	lastFired time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(st store.Store, writer WriteRequester, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:  st,
		writer: writer,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run drives Tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick fires every active task whose hour and minute match now's local
// wall-clock time. Seconds are ignored.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)
	if minute.Equal(s.lastFired) {
		return
	}

	tasks, err := s.store.DueScheduledTasks(ctx, now.Hour(), now.Minute())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load scheduled tasks")
		return
	}

	s.lastFired = minute

	for _, task := range tasks {
		if task.Register != nil && !task.Register.IsWritableCoil() {
			s.logger.Warn().
				Uint("task_id", task.ID).
				Uint("register_id", task.RegisterID).
				Msg("Scheduled task targets a non-writable register, skipping")
			continue
		}
		if err := s.writer.Enqueue(task.RegisterID, task.Action); err != nil {
			s.logger.Error().
				Err(err).
				Uint("task_id", task.ID).
				Uint("register_id", task.RegisterID).
				Msg("Failed to enqueue scheduled write")
			continue
		}
		s.logger.Info().
			Uint("task_id", task.ID).
			Uint("register_id", task.RegisterID).
			Bool("action", task.Action).
			Msg("Scheduled task fired")
	}
}
