package loadgen

import (
	"fmt"
	"math"
)

const durationTolerance = 1e-6

// verifyOrder checks that rows follow the tie-break order and carry
// consecutive ranks starting at first.
func verifyOrder(rows []Entry, first int) []string {
	var out []string
	for i, e := range rows {
		if want := first + i; e.Rank != want {
			out = append(out, fmt.Sprintf("row %d (%s): rank %d, want %d", i, e.PlayerID, e.Rank, want))
		}
		if i == 0 {
			continue
		}
		prev := rows[i-1]
		switch {
		case e.Points > prev.Points:
			out = append(out, fmt.Sprintf("row %d (%s): %d points above %d", i, e.PlayerID, e.Points, prev.Points))
		case e.Points == prev.Points && e.AvgAccuracy > prev.AvgAccuracy:
			out = append(out, fmt.Sprintf("row %d (%s): tie on %d points but accuracy %.2f above %.2f",
				i, e.PlayerID, e.Points, e.AvgAccuracy, prev.AvgAccuracy))
		}
	}
	return out
}

// verifyRank checks a my-rank answer against the listed row and the
// generated events.
func verifyRank(listed Entry, got Rank, want expectation) []string {
	var out []string
	switch {
	case got.IsNonPlayer:
		return []string{fmt.Sprintf("%s: reported as non-player", listed.PlayerID)}
	case got.Rank != listed.Rank:
		out = append(out, fmt.Sprintf("%s: my-rank %d, list rank %d", listed.PlayerID, got.Rank, listed.Rank))
	}
	if listed.TotalWorkoutsCompleted != want.Workouts {
		out = append(out, fmt.Sprintf("%s: %d workouts, want %d", listed.PlayerID, listed.TotalWorkoutsCompleted, want.Workouts))
	}
	if math.Abs(listed.TotalDuration-want.Duration) > durationTolerance*math.Max(1, want.Duration) {
		out = append(out, fmt.Sprintf("%s: duration %.1f, want %.1f", listed.PlayerID, listed.TotalDuration, want.Duration))
	}
	return out
}
