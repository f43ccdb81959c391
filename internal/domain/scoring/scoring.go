// Package scoring converts progress events into point deltas and streak effects.
//
// Calculate is pure: it reads the event, the player's current entry and the
// window floors, and returns a Delta. Apply folds a Delta into the next entry
// value. Neither touches storage.
package scoring

import (
	"math"
	"time"

	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/period"
)

// Default policy constants.
const (
	DefaultBasePoints       = 10
	DefaultAccuracyDivisor  = 10
	DefaultDurationStepMin  = 10
	DefaultDurationBonusCap = 5
)

// StreakEffect describes how an event moves the streak.
type StreakEffect int

// Streak effects.
const (
	// StreakNone leaves streak state untouched (incomplete or out-of-order event).
	StreakNone StreakEffect = iota
	// StreakSameDay is a second completed workout on the last active day.
	StreakSameDay
	// StreakExtend is a completed workout on the day after the last active day.
	StreakExtend
	// StreakRestart starts a new streak of one.
	StreakRestart
)

func (e StreakEffect) String() string {
	switch e {
	case StreakSameDay:
		return "same_day"
	case StreakExtend:
		return "extend"
	case StreakRestart:
		return "restart"
	default:
		return "none"
	}
}

// Delta is the effect of one event on a leaderboard entry.
type Delta struct {
	Points    int64
	Weekly    int64
	Monthly   int64
	Completed bool
	Streak    StreakEffect
}

// Floors bound which events still count toward the windowed totals: an event
// counts when it is not earlier than the floor and not later than the end of
// the current period.
type Floors struct {
	Weekly  time.Time
	Monthly time.Time
}

// FloorsAt combines the current period starts with the last-reset markers.
func FloorsAt(now, lastWeeklyReset, lastMonthlyReset time.Time) Floors {
	return Floors{
		Weekly:  latest(period.StartOfWeek(now), lastWeeklyReset),
		Monthly: latest(period.StartOfMonth(now), lastMonthlyReset),
	}
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithBasePoints sets the points for a completed workout.
func WithBasePoints(points int64) Option {
	return func(c *Calculator) {
		if points >= 0 {
			c.basePoints = points
		}
	}
}

// WithAccuracyDivisor sets the divisor of the accuracy bonus.
func WithAccuracyDivisor(divisor int64) Option {
	return func(c *Calculator) {
		if divisor > 0 {
			c.accuracyDivisor = divisor
		}
	}
}

// WithDurationBonus sets the minutes per bonus point and the bonus cap.
func WithDurationBonus(stepMin, capPoints int64) Option {
	return func(c *Calculator) {
		if stepMin > 0 {
			c.durationStepMin = stepMin
		}
		if capPoints >= 0 {
			c.durationBonusCap = capPoints
		}
	}
}

// WithBonusOnIncomplete controls whether accuracy and duration bonuses are
// paid for sessions that were not completed.
func WithBonusOnIncomplete(enabled bool) Option {
	return func(c *Calculator) {
		c.bonusOnIncomplete = enabled
	}
}

// Calculator implements the points policy.
type Calculator struct {
	basePoints        int64
	accuracyDivisor   int64
	durationStepMin   int64
	durationBonusCap  int64
	bonusOnIncomplete bool
}

// NewCalculator creates a calculator with the default policy.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		basePoints:        DefaultBasePoints,
		accuracyDivisor:   DefaultAccuracyDivisor,
		durationStepMin:   DefaultDurationStepMin,
		durationBonusCap:  DefaultDurationBonusCap,
		bonusOnIncomplete: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Points returns the all-time points an event is worth.
func (c *Calculator) Points(ev *model.ProgressEvent) int64 {
	var pts int64
	if ev.Completed {
		pts += c.basePoints
	} else if !c.bonusOnIncomplete {
		return 0
	}
	if ev.AccuracyPct != nil {
		pts += int64(math.Round(*ev.AccuracyPct / float64(c.accuracyDivisor)))
	}
	bonus := int64(math.Floor(ev.DurationMin / float64(c.durationStepMin)))
	if bonus > c.durationBonusCap {
		bonus = c.durationBonusCap
	}
	if bonus > 0 {
		pts += bonus
	}
	return pts
}

// Calculate returns the delta of ev against entry.
func (c *Calculator) Calculate(ev *model.ProgressEvent, entry *model.Entry, now time.Time, floors Floors) Delta {
	pts := c.Points(ev)
	d := Delta{Points: pts, Completed: ev.Completed}

	at := ev.OccurredAt.UTC()
	if inWindow(at, floors.Weekly, period.NextWeek(now)) {
		d.Weekly = pts
	}
	if inWindow(at, floors.Monthly, period.NextMonth(now)) {
		d.Monthly = pts
	}

	d.Streak = streakEffect(ev, entry)
	return d
}

func inWindow(at, floor, end time.Time) bool {
	return !at.Before(floor) && at.Before(end)
}

func streakEffect(ev *model.ProgressEvent, entry *model.Entry) StreakEffect {
	if !ev.Completed {
		return StreakNone
	}
	if entry.LastActivityDate.IsZero() || entry.CurrentStreak == 0 {
		return StreakRestart
	}
	switch days := period.DaysBetween(entry.LastActivityDate, ev.OccurredAt); {
	case days < 0:
		return StreakNone
	case days == 0:
		return StreakSameDay
	case days == 1:
		return StreakExtend
	default:
		return StreakRestart
	}
}

// Apply returns the entry after folding d and ev into it. The input entry is
// not modified.
func Apply(entry model.Entry, ev *model.ProgressEvent, d Delta, now time.Time) model.Entry {
	next := entry.Clone()
	next.RollWindows(period.StartOfWeek(now), period.StartOfMonth(now))

	next.Points += d.Points
	next.WeeklyPoints += d.Weekly
	next.MonthlyPoints += d.Monthly
	next.TotalDuration += ev.DurationMin
	next.TotalCalories += ev.CaloriesBurned

	if d.Completed {
		next.TotalWorkoutsCompleted++
		if ev.AccuracyPct != nil {
			next.AccuracySamples++
			next.AvgAccuracy += (*ev.AccuracyPct - next.AvgAccuracy) / float64(next.AccuracySamples)
		}
	}

	day := period.StartOfDay(ev.OccurredAt)
	switch d.Streak {
	case StreakExtend:
		next.CurrentStreak++
		next.LastActivityDate = day
	case StreakRestart:
		next.CurrentStreak = 1
		next.LastActivityDate = day
	case StreakSameDay, StreakNone:
	}
	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}

	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	return next
}
