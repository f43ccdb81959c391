package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/period"
	"github.com/okian/courtside/internal/domain/ranking"
	"github.com/okian/courtside/pkg/metrics"
)

// RankResult is a player's position within a scope and window.
type RankResult struct {
	IsNonPlayer  bool
	Rank         int // 0 when the player is not ranked
	TotalInScope int
	Scope        model.Scope
	Window       model.Window
	Entry        model.Entry
}

// RankedEntry is one leaderboard row.
type RankedEntry struct {
	Rank  int
	Entry model.Entry
}

// Page is one page of a leaderboard.
type Page struct {
	Scope    model.Scope
	Window   model.Window
	Entries  []RankedEntry
	Page     int
	PageSize int
	Total    int
}

// Comparison is the difference A minus B between two players.
type Comparison struct {
	PlayerA      RankResult
	PlayerB      RankResult
	PointsDiff   int64
	WeeklyDiff   int64
	MonthlyDiff  int64
	AccuracyDiff float64
	WorkoutsDiff int64
}

// subject is a player together with its entry as read from one snapshot.
type subject struct {
	player model.Player
	entry  model.Entry
}

// ScopeFor builds the scope of kind for player, using the player's own team
// or skill level.
func ScopeFor(kind model.ScopeKind, e *model.Entry) model.Scope {
	switch kind {
	case model.ScopeTeam:
		return model.TeamScope(e.TeamID)
	case model.ScopeSkill:
		return model.SkillScope(e.SkillLevel)
	default:
		return model.GlobalScope()
	}
}

// GetRank resolves playerID's rank within the scope of kind built from the
// player's own profile.
func (s *Service) GetRank(ctx context.Context, playerID string, kind model.ScopeKind, w model.Window) (RankResult, error) {
	defer func(start time.Time) { metrics.RecordRankQueryLatency("rank", metrics.Since(start)) }(time.Now())

	if playerID == "" {
		return RankResult{}, invalid(model.ErrMissingPlayerID)
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return RankResult{}, err
	}
	sub, err := s.subject(ctx, snap, playerID, true)
	if err != nil {
		return RankResult{}, err
	}
	return s.rankIn(snap, sub, kind, w)
}

func (s *Service) rankIn(snap []model.Entry, sub subject, kind model.ScopeKind, w model.Window) (RankResult, error) {
	res := RankResult{Window: w, Entry: sub.entry}
	if !sub.player.Role.Ranked() {
		res.IsNonPlayer = true
		return res, nil
	}

	res.Scope = ScopeFor(kind, &sub.entry)
	if err := res.Scope.Validate(); err != nil {
		return RankResult{}, invalid(err)
	}

	if !sub.entry.Active {
		res.TotalInScope = len(ranking.Filter(snap, res.Scope))
		return res, nil
	}
	res.Rank, res.TotalInScope = ranking.Position(snap, res.Scope, w, &sub.entry)
	return res, nil
}

// snapshot reads every entry with windowed totals of past periods cleared,
// so weekly and monthly ranks never count points a pending reset would drop.
func (s *Service) snapshot(ctx context.Context) ([]model.Entry, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	week, month := s.periodStarts()
	for i := range snap {
		snap[i].RollWindows(week, month)
	}
	return snap, nil
}

func (s *Service) periodStarts() (week, month time.Time) {
	now := s.now().UTC()
	return period.StartOfWeek(now), period.StartOfMonth(now)
}

// subject finds playerID's entry in snap, falling back to the implicit zero
// entry of a known player with no history. With implicit set, an id missing
// from the directory too is treated as a player with no history.
func (s *Service) subject(ctx context.Context, snap []model.Entry, playerID string, implicit bool) (subject, error) {
	p, err := s.store.GetPlayer(ctx, playerID)
	known := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return subject{}, fmt.Errorf("get player: %w", err)
	}

	for i := range snap {
		if snap[i].PlayerID == playerID {
			e := snap[i]
			if !known {
				p = model.Player{ID: playerID, Name: e.Name, SkillLevel: e.SkillLevel, TeamID: e.TeamID, Role: model.RolePlayer, Active: e.Active}
			}
			return subject{player: p, entry: e}, nil
		}
	}
	if !known {
		if !implicit {
			return subject{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		p = model.Player{ID: playerID, Role: model.RolePlayer, Active: true}
	}

	zero := model.NewEntry(p)
	return subject{player: p, entry: zero}, nil
}

// ListLeaderboard returns one page of scope ordered by w. size 0 means the
// default page size; sizes above the maximum are rejected.
func (s *Service) ListLeaderboard(ctx context.Context, scope model.Scope, w model.Window, page, size int) (Page, error) {
	defer func(start time.Time) { metrics.RecordRankQueryLatency("list", metrics.Since(start)) }(time.Now())

	if err := scope.Validate(); err != nil {
		return Page{}, invalid(err)
	}
	def, maxSize := s.pageSizes()
	if size == 0 {
		size = def
	}
	if page == 0 {
		page = 1
	}
	req, err := ranking.NewPageRequest(page, size, maxSize)
	if err != nil {
		return Page{}, invalid(err)
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return Page{}, err
	}
	rows, total := ranking.Standings(snap, scope, w, req)

	out := Page{Scope: scope, Window: w, Page: req.Page, PageSize: req.Size, Total: total, Entries: make([]RankedEntry, 0, len(rows))}
	for _, r := range rows {
		out.Entries = append(out.Entries, RankedEntry{Rank: r.Rank, Entry: r.Entry})
	}
	return out, nil
}

// Compare reports a minus b for both players' entries, read from the same
// snapshot. Ranks are global for w.
func (s *Service) Compare(ctx context.Context, a, b string, w model.Window) (Comparison, error) {
	defer func(start time.Time) { metrics.RecordRankQueryLatency("compare", metrics.Since(start)) }(time.Now())

	if a == "" || b == "" {
		return Comparison{}, invalid(model.ErrMissingPlayerID)
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return Comparison{}, err
	}

	subA, err := s.subject(ctx, snap, a, false)
	if err != nil {
		return Comparison{}, err
	}
	subB, err := s.subject(ctx, snap, b, false)
	if err != nil {
		return Comparison{}, err
	}
	if !subA.player.Role.Ranked() || !subB.player.Role.Ranked() {
		return Comparison{}, ErrNonPlayer
	}

	rankA, err := s.rankIn(snap, subA, model.ScopeGlobal, w)
	if err != nil {
		return Comparison{}, err
	}
	rankB, err := s.rankIn(snap, subB, model.ScopeGlobal, w)
	if err != nil {
		return Comparison{}, err
	}

	ea, eb := subA.entry, subB.entry
	return Comparison{
		PlayerA:      rankA,
		PlayerB:      rankB,
		PointsDiff:   ea.Points - eb.Points,
		WeeklyDiff:   ea.WeeklyPoints - eb.WeeklyPoints,
		MonthlyDiff:  ea.MonthlyPoints - eb.MonthlyPoints,
		AccuracyDiff: ea.AvgAccuracy - eb.AvgAccuracy,
		WorkoutsDiff: ea.TotalWorkoutsCompleted - eb.TotalWorkoutsCompleted,
	}, nil
}

// GetEntry returns the stored entry of playerID.
func (s *Service) GetEntry(ctx context.Context, playerID string) (model.Entry, error) {
	e, err := s.store.Get(ctx, playerID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, playerID)
	}
	if err != nil {
		return model.Entry{}, err
	}
	e.RollWindows(s.periodStarts())
	return e, nil
}
