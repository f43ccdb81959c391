package model

import (
	"strings"
	"time"
)

// AchievementType names a badge.
type AchievementType string

// Achievement is one awarded badge.
type Achievement struct {
	Type      AchievementType
	AwardedAt time.Time
}

// Entry is the per-player leaderboard aggregate.
//
// Points fields never go negative. Weekly and monthly totals change only by
// event increments, by a window reset, or by rolling into a new period. Version increases on every committed
// write and is the optimistic concurrency token.
type Entry struct {
	PlayerID   string
	Name       string
	SkillLevel SkillLevel
	TeamID     string
	Active     bool

	Points        int64
	WeeklyPoints  int64
	MonthlyPoints int64

	// Start of the week and month the windowed totals were earned in. Zero
	// until the first event.
	WeeklyPeriod  time.Time
	MonthlyPeriod time.Time

	TotalWorkoutsCompleted int64
	TotalDuration          float64
	TotalCalories          float64
	AvgAccuracy            float64
	AccuracySamples        int64

	CurrentStreak    int
	LongestStreak    int
	LastActivityDate time.Time // UTC day of the last completed workout

	Achievements []Achievement

	// Seq is the creation order assigned by the store; earlier ranks first on ties.
	Seq       int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// NewEntry returns the zero-valued entry for a player who has no history.
func NewEntry(p Player) Entry {
	e := Entry{PlayerID: p.ID, Active: true}
	e.ApplyProfile(p)
	return e
}

// ApplyProfile refreshes the denormalized profile fields.
func (e *Entry) ApplyProfile(p Player) {
	e.Name = p.Name
	e.SkillLevel = p.SkillLevel
	e.TeamID = p.TeamID
	e.Active = p.Active && p.Role.Ranked()
}

// PointsFor returns the point total that ranks the entry in window w.
func (e *Entry) PointsFor(w Window) int64 {
	switch w {
	case WindowWeekly:
		return e.WeeklyPoints
	case WindowMonthly:
		return e.MonthlyPoints
	default:
		return e.Points
	}
}

// RollWindows zeroes windowed totals earned before the given period starts
// and stamps the entry with the current periods.
func (e *Entry) RollWindows(weekStart, monthStart time.Time) {
	if e.WeeklyPeriod.Before(weekStart) {
		e.WeeklyPoints = 0
		e.WeeklyPeriod = weekStart
	}
	if e.MonthlyPeriod.Before(monthStart) {
		e.MonthlyPoints = 0
		e.MonthlyPeriod = monthStart
	}
}

// HasAchievement reports whether t was already awarded.
func (e *Entry) HasAchievement(t AchievementType) bool {
	for _, a := range e.Achievements {
		if a.Type == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share the achievements slice.
func (e Entry) Clone() Entry {
	if e.Achievements != nil {
		e.Achievements = append([]Achievement(nil), e.Achievements...)
	}
	return e
}

// Window selects the point bucket a query ranks by.
type Window string

// Windows.
const (
	WindowAllTime Window = "allTime"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// ParseWindow accepts the query-string spellings of a window; empty means all-time.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "alltime", "all-time", "all_time":
		return WindowAllTime, nil
	case "weekly", "week":
		return WindowWeekly, nil
	case "monthly", "month":
		return WindowMonthly, nil
	default:
		return "", ErrUnknownWindow
	}
}

// Resettable reports whether w has a periodic reset.
func (w Window) Resettable() bool {
	return w == WindowWeekly || w == WindowMonthly
}

// ScopeKind is the population a query ranks over.
type ScopeKind string

// Scope kinds.
const (
	ScopeGlobal ScopeKind = "global"
	ScopeTeam   ScopeKind = "team"
	ScopeSkill  ScopeKind = "skill"
)

// Scope restricts a rank query to global, one team, or one skill level.
type Scope struct {
	Kind   ScopeKind
	TeamID string
	Skill  SkillLevel
}

// GlobalScope ranks everyone.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// TeamScope ranks members of one team.
func TeamScope(teamID string) Scope { return Scope{Kind: ScopeTeam, TeamID: teamID} }

// SkillScope ranks players of one skill level.
func SkillScope(level SkillLevel) Scope { return Scope{Kind: ScopeSkill, Skill: level} }

// Validate checks the scope parameters.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		return nil
	case ScopeTeam:
		if strings.TrimSpace(s.TeamID) == "" {
			return ErrInvalidScope
		}
		return nil
	case ScopeSkill:
		_, err := ParseSkillLevel(string(s.Skill))
		return err
	default:
		return ErrInvalidScope
	}
}

// Matches reports whether e belongs to the scope. Inactive entries never match.
func (s Scope) Matches(e *Entry) bool {
	if !e.Active {
		return false
	}
	switch s.Kind {
	case ScopeTeam:
		return e.TeamID == s.TeamID
	case ScopeSkill:
		return e.SkillLevel == s.Skill
	default:
		return true
	}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeTeam:
		return "team:" + s.TeamID
	case ScopeSkill:
		return "skill:" + string(s.Skill)
	default:
		return string(ScopeGlobal)
	}
}
