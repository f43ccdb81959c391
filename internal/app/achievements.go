package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventqueue "github.com/okian/courtside/internal/adapters/mq/queue"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/achievement"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/ranking"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// RecomputeResult summarizes a full ranking recompute.
type RecomputeResult struct {
	Players             int
	AchievementsAwarded int
	Duration            time.Duration
}

// enqueueEvaluation hands job to the worker pool. Without a running pool, or
// when the queue is full, the evaluation runs inline so it is never lost.
func (s *Service) enqueueEvaluation(ctx context.Context, job model.EvaluationJob) {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()

	if q != nil && q.Enqueue(ctx, eventqueue.Job(job)) {
		return
	}
	if err := s.EvaluateAchievements(ctx, job); err != nil {
		s.logger.Error(ctx, "inline achievement evaluation failed",
			logger.String("player_id", job.PlayerID),
			logger.Error(err),
		)
	}
}

// EvaluateAchievements awards every badge job's player newly qualifies for.
func (s *Service) EvaluateAchievements(ctx context.Context, job eventqueue.Job) error {
	e, err := s.store.Get(ctx, job.PlayerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read entry: %w", err)
	}

	rank := 0
	if s.evaluator.NeedsRank(&e) {
		snap, err := s.store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		rank = globalRank(snap, &e)
	}
	_, err = s.award(ctx, &e, rank)
	return err
}

func globalRank(snap []model.Entry, e *model.Entry) int {
	if !e.Active {
		return 0
	}
	rank, _ := ranking.Position(snap, model.GlobalScope(), model.WindowAllTime, e)
	return rank
}

// award stores every satisfied badge e does not hold yet.
func (s *Service) award(ctx context.Context, e *model.Entry, rank int) (int, error) {
	types := s.evaluator.Evaluate(e, achievement.RuleContext{GlobalRank: rank})
	awarded := 0
	for _, t := range types {
		added, err := s.store.AddAchievement(ctx, e.PlayerID, model.Achievement{Type: t, AwardedAt: s.now().UTC()})
		if err != nil {
			return awarded, fmt.Errorf("add achievement %s: %w", t, err)
		}
		if !added {
			continue
		}
		awarded++
		metrics.RecordAchievementAwarded(string(t))
		s.logger.Info(ctx, "achievement awarded",
			logger.String("player_id", e.PlayerID),
			logger.String("type", string(t)),
		)
	}
	if awarded > 0 {
		s.invalidateStats()
	}
	return awarded, nil
}

// AwardAchievement grants typ to playerID manually. It reports false when the
// player already holds it.
func (s *Service) AwardAchievement(ctx context.Context, playerID, typ string) (bool, error) {
	t, err := s.evaluator.Parse(typ)
	if err != nil {
		return false, invalid(err)
	}
	added, err := s.store.AddAchievement(ctx, playerID, model.Achievement{Type: t, AwardedAt: s.now().UTC()})
	if errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, playerID)
	}
	if err != nil {
		return false, err
	}
	if added {
		metrics.RecordAchievementAwarded(string(t))
		s.invalidateStats()
		s.logger.Info(ctx, "achievement granted",
			logger.String("player_id", playerID),
			logger.String("type", string(t)),
		)
	}
	return added, nil
}

// RecomputeRankings sorts the global all-time board once and re-evaluates
// every entry's badges against its fresh rank.
func (s *Service) RecomputeRankings(ctx context.Context) (RecomputeResult, error) {
	start := time.Now()
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("snapshot: %w", err)
	}

	ranked := ranking.Filter(snap, model.GlobalScope())
	ranking.Sort(ranked, model.WindowAllTime)
	ranks := make(map[string]int, len(ranked))
	for i := range ranked {
		ranks[ranked[i].PlayerID] = i + 1
	}

	res := RecomputeResult{Players: len(snap)}
	for i := range snap {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := s.award(ctx, &snap[i], ranks[snap[i].PlayerID])
		res.AchievementsAwarded += n
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return res, err
		}
	}
	res.Duration = time.Since(start)

	metrics.RecordRecomputeLatency(metrics.Since(start))
	metrics.UpdateTotalPlayers(len(ranked))
	s.logger.Info(ctx, "rankings recomputed",
		logger.Int("players", res.Players),
		logger.Int("awarded", res.AchievementsAwarded),
		logger.Duration("duration", res.Duration),
	)
	return res, nil
}
