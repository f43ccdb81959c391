package service

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/ranking"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

var statsKey = []byte("leaderboard:stats")

const statsTopN = 3

// StatsLeader is one of the top players in Stats.
type StatsLeader struct {
	Rank     int    `msgpack:"rank"`
	PlayerID string `msgpack:"player_id"`
	Name     string `msgpack:"name"`
	Points   int64  `msgpack:"points"`
}

// Stats aggregates the global all-time leaderboard.
type Stats struct {
	TotalPlayers  int           `msgpack:"total_players"`
	TotalPoints   int64         `msgpack:"total_points"`
	AveragePoints float64       `msgpack:"average_points"`
	TopPlayers    []StatsLeader `msgpack:"top_players"`
}

// Stats returns aggregate figures over active players, served from a short
// lived cache when enabled.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if st, ok := s.cachedStats(ctx); ok {
		return st, nil
	}

	gen := s.statsGeneration()
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot: %w", err)
	}
	active := ranking.Filter(snap, model.GlobalScope())
	ranking.Sort(active, model.WindowAllTime)

	st := Stats{TotalPlayers: len(active), TopPlayers: make([]StatsLeader, 0, statsTopN)}
	for i := range active {
		st.TotalPoints += active[i].Points
		if i < statsTopN {
			st.TopPlayers = append(st.TopPlayers, StatsLeader{
				Rank:     i + 1,
				PlayerID: active[i].PlayerID,
				Name:     active[i].Name,
				Points:   active[i].Points,
			})
		}
	}
	if st.TotalPlayers > 0 {
		st.AveragePoints = float64(st.TotalPoints) / float64(st.TotalPlayers)
	}

	s.storeStats(ctx, st, gen)
	return st, nil
}

func (s *Service) cachedStats(ctx context.Context) (Stats, bool) {
	if s.statsCache == nil {
		return Stats{}, false
	}
	raw, err := s.statsCache.Get(statsKey)
	if err != nil {
		metrics.RecordStatsCache(false)
		return Stats{}, false
	}
	var st Stats
	if err := msgpack.Unmarshal(raw, &st); err != nil {
		s.logger.Warn(ctx, "dropping undecodable stats cache entry", logger.Error(err))
		s.statsCache.Del(statsKey)
		metrics.RecordStatsCache(false)
		return Stats{}, false
	}
	metrics.RecordStatsCache(true)
	return st, true
}

func (s *Service) statsGeneration() uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.statsGen
}

// storeStats caches st unless an invalidation happened since gen was read,
// in which case st may predate the commit that caused it.
func (s *Service) storeStats(ctx context.Context, st Stats, gen uint64) {
	if s.statsCache == nil {
		return
	}
	raw, err := msgpack.Marshal(st)
	if err != nil {
		s.logger.Warn(ctx, "encode stats", logger.Error(err))
		return
	}
	ttl := int(s.statsTTL.Seconds())
	if ttl < 1 {
		ttl = 1
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsGen != gen {
		return
	}
	if err := s.statsCache.Set(statsKey, raw, ttl); err != nil {
		s.logger.Warn(ctx, "cache stats", logger.Error(err))
	}
}

func (s *Service) invalidateStats() {
	if s.statsCache == nil {
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	s.statsCache.Del(statsKey)
}
