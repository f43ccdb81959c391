package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/scoring"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// IngestRequest carries a progress event and, optionally, the profile of its
// player when the producer knows it.
//
// An inline profile registers a player seen for the first time. It changes an
// existing directory profile only when ProfileAuthority is set, and then goes
// through UpdateProfile so the entry is refreshed with it.
type IngestRequest struct {
	Event            model.ProgressEvent
	Player           *model.Player
	ProfileAuthority bool
}

// IngestResult reports what ApplyEvent did with an event.
type IngestResult struct {
	Applied   bool
	Duplicate bool
	Ignored   bool
	Points    int64
	Entry     model.Entry
}

// ApplyEvent folds a progress event into its player's leaderboard entry.
// Redelivered events are reported as duplicates and change nothing.
func (s *Service) ApplyEvent(ctx context.Context, req IngestRequest) (res IngestResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordApplyLatency(metrics.Since(start))
		metrics.RecordEventIngested(ingestResultLabel(res, err))
	}()

	ev := req.Event
	if err := ev.Validate(); err != nil {
		return IngestResult{}, invalid(err)
	}

	player, err := s.resolvePlayer(ctx, ev.PlayerID, req.Player, req.ProfileAuthority)
	if err != nil {
		return IngestResult{}, err
	}
	if !player.Role.Ranked() {
		return IngestResult{Ignored: true}, nil
	}

	seen, err := s.store.Applied(ctx, ev.EventID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("check ledger: %w", err)
	}
	if seen {
		return s.duplicate(ctx, ev.PlayerID)
	}

	var points int64
	committed, err := s.update(ctx, ev.PlayerID, ev.EventID, func(cur model.Entry, exists bool) (model.Entry, error) {
		if !exists {
			cur = model.NewEntry(player)
		}
		floors, err := s.floors(ctx)
		if err != nil {
			return model.Entry{}, err
		}
		now := s.now().UTC()
		d := s.calc.Calculate(&ev, &cur, now, floors)
		points = d.Points
		return scoring.Apply(cur, &ev, d, now), nil
	})
	switch {
	case errors.Is(err, repository.ErrDuplicateEvent):
		return s.duplicate(ctx, ev.PlayerID)
	case err != nil:
		return IngestResult{}, err
	}

	metrics.RecordPointsAwarded(points)
	s.invalidateStats()
	s.enqueueEvaluation(ctx, model.EvaluationJob{PlayerID: ev.PlayerID, EventID: ev.EventID, EnqueuedAt: s.now()})

	s.logger.Debug(ctx, "event applied",
		logger.String("event_id", ev.EventID),
		logger.String("player_id", ev.PlayerID),
		logger.Int64("points", points),
		logger.Int64("version", committed.Version),
	)
	return IngestResult{Applied: true, Points: points, Entry: committed}, nil
}

func (s *Service) duplicate(ctx context.Context, playerID string) (IngestResult, error) {
	e, err := s.store.Get(ctx, playerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return IngestResult{}, err
	}
	return IngestResult{Duplicate: true, Entry: e}, nil
}

func ingestResultLabel(res IngestResult, err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownPlayer):
		return metrics.ResultRejected
	case err != nil:
		return metrics.ResultFailed
	case res.Duplicate:
		return metrics.ResultDuplicate
	case res.Ignored:
		return metrics.ResultIgnored
	default:
		return metrics.ResultApplied
	}
}

// resolvePlayer returns the profile for playerID, applying an inline profile
// first when it registers a new player or authority allows the change.
func (s *Service) resolvePlayer(ctx context.Context, playerID string, inline *model.Player, authority bool) (model.Player, error) {
	cur, err := s.store.GetPlayer(ctx, playerID)
	known := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	if inline == nil {
		if !known {
			return model.Player{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		return cur, nil
	}

	p := *inline
	if p.ID == "" {
		p.ID = playerID
	}
	if p.ID != playerID {
		return model.Player{}, invalid(fmt.Errorf("profile id %q does not match event player %q", p.ID, playerID))
	}
	if err := p.Validate(); err != nil {
		return model.Player{}, invalid(err)
	}
	if known && (cur == p || !authority) {
		return cur, nil
	}
	if _, err := s.UpdateProfile(ctx, model.ProfileUpdate{Player: p}); err != nil {
		return model.Player{}, err
	}
	return p, nil
}

// floors returns the earliest instants that still count toward the weekly
// and monthly windows.
func (s *Service) floors(ctx context.Context) (scoring.Floors, error) {
	weekly, err := s.store.LastReset(ctx, model.WindowWeekly)
	if err != nil {
		return scoring.Floors{}, fmt.Errorf("weekly marker: %w", err)
	}
	monthly, err := s.store.LastReset(ctx, model.WindowMonthly)
	if err != nil {
		return scoring.Floors{}, fmt.Errorf("monthly marker: %w", err)
	}
	return scoring.FloorsAt(s.now().UTC(), weekly, monthly), nil
}

type mutation func(cur model.Entry, exists bool) (model.Entry, error)

// update runs a read-modify-write of one entry under optimistic concurrency.
// A version conflict re-reads and recomputes; after maxRetries attempts the
// write gives up with ErrConcurrentUpdateExhausted.
func (s *Service) update(ctx context.Context, playerID, eventID string, mutate mutation) (model.Entry, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.Entry{}, err
		}

		cur, err := s.store.Get(ctx, playerID)
		exists := err == nil
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return model.Entry{}, fmt.Errorf("read entry: %w", err)
		}

		next, err := mutate(cur, exists)
		if err != nil {
			return model.Entry{}, err
		}

		var expected int64
		if exists {
			expected = cur.Version
		}
		committed, err := s.store.CompareAndSwap(ctx, next, expected, eventID)
		if err == nil {
			return committed, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return model.Entry{}, err
		}

		metrics.RecordVersionConflict()
		s.logger.Debug(ctx, "version conflict, retrying",
			logger.String("player_id", playerID),
			logger.Int("attempt", attempt),
		)
	}

	metrics.RecordRetriesExhausted()
	s.logger.Warn(ctx, "concurrent update retries exhausted",
		logger.String("player_id", playerID),
		logger.String("event_id", eventID),
		logger.Int("retries", s.maxRetries),
	)
	return model.Entry{}, fmt.Errorf("%w: player %s", ErrConcurrentUpdateExhausted, playerID)
}

// UpdateProfile refreshes the player directory and the denormalized profile
// fields of the player's entry, if one exists.
func (s *Service) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (model.Entry, error) {
	p := upd.Player
	if err := p.Validate(); err != nil {
		return model.Entry{}, invalid(err)
	}
	if err := s.store.UpsertPlayer(ctx, p); err != nil {
		return model.Entry{}, fmt.Errorf("upsert player: %w", err)
	}
	metrics.RecordProfileUpdate()

	errNoEntry := errors.New("no entry")
	committed, err := s.update(ctx, p.ID, "", func(cur model.Entry, exists bool) (model.Entry, error) {
		if !exists {
			return model.Entry{}, errNoEntry
		}
		next := cur.Clone()
		next.ApplyProfile(p)
		next.UpdatedAt = s.now().UTC()
		return next, nil
	})
	switch {
	case errors.Is(err, errNoEntry):
		return model.Entry{}, nil
	case err != nil:
		return model.Entry{}, err
	}

	s.invalidateStats()
	s.logger.Info(ctx, "profile updated",
		logger.String("player_id", p.ID),
		logger.String("role", string(p.Role)),
		logger.Bool("active", committed.Active),
	)
	return committed, nil
}
