// Package period computes the UTC calendar boundaries of leaderboard windows.
// Weeks are ISO weeks starting Monday 00:00 UTC; months are calendar months.
package period

import (
	"time"

	"github.com/okian/courtside/internal/domain/model"
)

const hoursPerDay = 24

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns Monday 00:00 UTC of t's ISO week.
func StartOfWeek(t time.Time) time.Time {
	d := StartOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}

// StartOfMonth returns the first day of t's month at 00:00 UTC.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextWeek returns the start of the ISO week after t's.
func NextWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 7)
}

// NextMonth returns the start of the month after t's.
func NextMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0)
}

// Start returns the start of the current period of w at t. All-time has no
// period and returns the zero time.
func Start(w model.Window, t time.Time) time.Time {
	switch w {
	case model.WindowWeekly:
		return StartOfWeek(t)
	case model.WindowMonthly:
		return StartOfMonth(t)
	default:
		return time.Time{}
	}
}

// Next returns the start of the period of w following t's.
func Next(w model.Window, t time.Time) time.Time {
	switch w {
	case model.WindowWeekly:
		return NextWeek(t)
	case model.WindowMonthly:
		return NextMonth(t)
	default:
		return time.Time{}
	}
}

// DaysBetween returns the number of UTC calendar days from a to b; negative
// when b is earlier.
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / hoursPerDay)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}
