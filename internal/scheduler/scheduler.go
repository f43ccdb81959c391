// Package scheduler runs the periodic leaderboard window resets.
package scheduler

import (
	"context"
	"sync"
	"time"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
)

const defaultCheckInterval = time.Minute

// Resetter performs a guarded reset of one window.
type Resetter interface {
	ScheduledReset(ctx context.Context, w model.Window) (service.ResetResult, error)
}

// Scheduler checks every interval whether a resettable window entered a new
// period and resets it. Checks are idempotent, so a missed tick or a restart
// only delays a reset.
type Scheduler struct {
	resetter Resetter
	windows  []model.Window
	interval time.Duration
	logger   logger.Logger

	stopChan  chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets how often periods are checked.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWindows restricts the windows that are checked.
func WithWindows(ws ...model.Window) Option {
	return func(s *Scheduler) {
		s.windows = nil
		for _, w := range ws {
			if w.Resettable() {
				s.windows = append(s.windows, w)
			}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scheduler for the weekly and monthly windows.
func New(r Resetter, opts ...Option) *Scheduler {
	s := &Scheduler{
		resetter: r,
		windows:  []model.Window{model.WindowWeekly, model.WindowMonthly},
		interval: defaultCheckInterval,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	return s
}

// Start runs one check immediately and then one per interval until ctx is
// done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop(ctx)
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "reset scheduler started", logger.Duration("interval", s.interval))
	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check resets every window whose current period has not been reset yet.
func (s *Scheduler) Check(ctx context.Context) {
	for _, w := range s.windows {
		res, err := s.resetter.ScheduledReset(ctx, w)
		if err != nil {
			s.logger.Error(ctx, "scheduled reset failed",
				logger.String("window", string(w)),
				logger.Error(err),
			)
			continue
		}
		if res.Applied {
			s.logger.Info(ctx, "scheduled reset applied",
				logger.String("window", string(w)),
				logger.Any("at", res.At),
			)
		}
	}
}

// Stop ends the loop and waits for an in-flight check to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
