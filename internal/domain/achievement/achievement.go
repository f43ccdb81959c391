// Package achievement evaluates badge rules against a leaderboard entry.
package achievement

import (
	"errors"
	"strings"

	"github.com/okian/courtside/internal/domain/model"
)

// Badge types.
const (
	FirstWorkout model.AchievementType = "first_workout"
	WeekStreak   model.AchievementType = "week_streak"
	Top10        model.AchievementType = "top_10"
	MonthStreak  model.AchievementType = "month_streak"
	Century      model.AchievementType = "century"
	Sharpshooter model.AchievementType = "sharpshooter"
	Points1000   model.AchievementType = "points_1000"
)

// ErrUnknownType is returned for a badge name no rule defines.
var ErrUnknownType = errors.New("unknown achievement type")

// RuleContext carries facts that are not part of the entry itself.
type RuleContext struct {
	// GlobalRank is the all-time global rank; 0 when unknown or unranked.
	GlobalRank int
}

// Rule pairs a badge with its predicate.
type Rule struct {
	Type      model.AchievementType
	Satisfied func(e *model.Entry, rc RuleContext) bool
}

// Thresholds parametrize the default rule table.
type Thresholds struct {
	WeekStreakDays      int
	MonthStreakDays     int
	TopRank             int
	CenturyWorkouts     int64
	SharpshooterAvg     float64
	SharpshooterSamples int64
	PointsMilestone     int64
}

// DefaultThresholds returns the stock badge thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WeekStreakDays:      7,
		MonthStreakDays:     30,
		TopRank:             10,
		CenturyWorkouts:     100,
		SharpshooterAvg:     90,
		SharpshooterSamples: 10,
		PointsMilestone:     1000,
	}
}

// DefaultRules builds the rule table for th.
func DefaultRules(th Thresholds) []Rule {
	return []Rule{
		{FirstWorkout, func(e *model.Entry, _ RuleContext) bool { return e.TotalWorkoutsCompleted >= 1 }},
		{WeekStreak, func(e *model.Entry, _ RuleContext) bool { return e.CurrentStreak >= th.WeekStreakDays }},
		{Top10, func(_ *model.Entry, rc RuleContext) bool { return rc.GlobalRank > 0 && rc.GlobalRank <= th.TopRank }},
		{MonthStreak, func(e *model.Entry, _ RuleContext) bool { return e.CurrentStreak >= th.MonthStreakDays }},
		{Century, func(e *model.Entry, _ RuleContext) bool { return e.TotalWorkoutsCompleted >= th.CenturyWorkouts }},
		{Sharpshooter, func(e *model.Entry, _ RuleContext) bool {
			return e.AccuracySamples >= th.SharpshooterSamples && e.AvgAccuracy >= th.SharpshooterAvg
		}},
		{Points1000, func(e *model.Entry, _ RuleContext) bool { return e.Points >= th.PointsMilestone }},
	}
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithThresholds replaces the default thresholds.
func WithThresholds(th Thresholds) Option {
	return func(ev *Evaluator) {
		ev.rules = DefaultRules(th)
	}
}

// WithRules replaces the whole rule table.
func WithRules(rules []Rule) Option {
	return func(ev *Evaluator) {
		if len(rules) > 0 {
			ev.rules = rules
		}
	}
}

// Evaluator decides which badges an entry newly qualifies for.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an evaluator with the default rule table.
func NewEvaluator(opts ...Option) *Evaluator {
	ev := &Evaluator{rules: DefaultRules(DefaultThresholds())}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Evaluate returns the satisfied badges e does not hold yet, in rule order.
func (ev *Evaluator) Evaluate(e *model.Entry, rc RuleContext) []model.AchievementType {
	var out []model.AchievementType
	for _, r := range ev.rules {
		if e.HasAchievement(r.Type) {
			continue
		}
		if r.Satisfied(e, rc) {
			out = append(out, r.Type)
		}
	}
	return out
}

// NeedsRank reports whether any pending rule depends on the global rank, so
// callers can skip the rank lookup otherwise.
func (ev *Evaluator) NeedsRank(e *model.Entry) bool {
	for _, r := range ev.rules {
		if r.Type == Top10 && !e.HasAchievement(Top10) {
			return true
		}
	}
	return false
}

// Parse validates a badge name against the rule table.
func (ev *Evaluator) Parse(s string) (model.AchievementType, error) {
	t := model.AchievementType(strings.ToLower(strings.TrimSpace(s)))
	for _, r := range ev.rules {
		if r.Type == t {
			return t, nil
		}
	}
	return "", ErrUnknownType
}

// Types lists the badge names the evaluator knows.
func (ev *Evaluator) Types() []model.AchievementType {
	out := make([]model.AchievementType, 0, len(ev.rules))
	for _, r := range ev.rules {
		out = append(out, r.Type)
	}
	return out
}
