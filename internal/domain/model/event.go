package model

import (
	"math"
	"strings"
	"time"
)

// ProgressEvent is one completed or attempted workout session.
type ProgressEvent struct {
	EventID        string   // unique id for idempotency
	PlayerID       string   // subject player
	Completed      bool     // whether the workout was finished
	AccuracyPct    *float64 // optional shooting accuracy, 0..100
	DurationMin    float64  // session length in minutes
	CaloriesBurned float64
	OccurredAt     time.Time
}

// Validate rejects malformed events before they reach storage.
func (e ProgressEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return ErrMissingEventID
	case strings.TrimSpace(e.PlayerID) == "":
		return ErrMissingPlayerID
	case e.OccurredAt.IsZero():
		return ErrMissingOccurredAt
	case e.AccuracyPct != nil && !finite(*e.AccuracyPct),
		!finite(e.DurationMin), !finite(e.CaloriesBurned):
		return ErrNonFiniteMetric
	case e.AccuracyPct != nil && (*e.AccuracyPct < 0 || *e.AccuracyPct > 100):
		return ErrInvalidAccuracy
	case e.DurationMin < 0 || e.CaloriesBurned < 0:
		return ErrNegativeMetric
	}
	return nil
}

// finite is false for NaN and the infinities, which every range check lets through.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// EvaluationJob asks the achievement workers to re-check a player.
type EvaluationJob struct {
	PlayerID   string
	EventID    string // triggering event, empty for manual jobs
	EnqueuedAt time.Time
}
