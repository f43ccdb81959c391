package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/period"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// Reset triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// ResetResult reports a reset attempt.
type ResetResult struct {
	Window  model.Window
	Trigger string
	Applied bool
	At      time.Time
}

// ResetWindow zeroes w on every entry now. Repeating it is harmless: the
// window is set to zero, not decremented.
func (s *Service) ResetWindow(ctx context.Context, w model.Window) (ResetResult, error) {
	return s.reset(ctx, w, TriggerManual, time.Time{}, time.Time{})
}

// ScheduledReset clears the totals w carried over from the previous period.
// Points earned since the current period began are kept, and the marker is
// set to the period start so late events of this period still count. It is
// skipped when a reset already happened in the current period.
func (s *Service) ScheduledReset(ctx context.Context, w model.Window) (ResetResult, error) {
	start := period.Start(w, s.now().UTC())
	return s.reset(ctx, w, TriggerScheduled, start, start)
}

func (s *Service) reset(ctx context.Context, w model.Window, trigger string, marker, onlyIfBefore time.Time) (ResetResult, error) {
	if !w.Resettable() {
		return ResetResult{}, invalid(fmt.Errorf("%w: %s", model.ErrUnknownWindow, w))
	}

	at := s.now().UTC()
	if marker.IsZero() {
		marker = at
	}
	applied, err := s.store.ResetWindow(ctx, w, marker, onlyIfBefore)
	if err != nil {
		metrics.RecordErrorByComponent("reset", "store")
		return ResetResult{}, fmt.Errorf("reset %s: %w", w, err)
	}
	if applied {
		s.invalidateStats()
	}

	metrics.RecordReset(string(w), trigger, applied, at)
	s.logger.Info(ctx, "leaderboard window reset",
		logger.String("window", string(w)),
		logger.String("trigger", trigger),
		logger.Bool("applied", applied),
		logger.Any("at", at),
	)
	return ResetResult{Window: w, Trigger: trigger, Applied: applied, At: at}, nil
}
