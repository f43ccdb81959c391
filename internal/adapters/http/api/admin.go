package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/courtside/internal/domain/model"
)

// handleRecompute handles POST /leaderboard/update-rankings.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.RecomputeRankings(r.Context())
	if err != nil {
		s.fail(w, r, "api.update_rankings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"players":             res.Players,
		"achievementsAwarded": res.AchievementsAwarded,
		"durationMs":          res.Duration.Milliseconds(),
	})
}

// resetHandler handles POST /leaderboard/reset-weekly and reset-monthly.
func (s *Server) resetHandler(win model.Window) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.deps.ResetWindow(r.Context(), win)
		if err != nil {
			s.fail(w, r, "api.reset", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"period":  string(res.Window),
			"applied": res.Applied,
			"resetAt": res.At.Format(time.RFC3339),
		})
	}
}

// handleAward handles POST /leaderboard/achievement/{playerId}.
func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	const op = "api.achievement"
	var body awardRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	playerID := mux.Vars(r)["playerId"]
	added, err := s.deps.AwardAchievement(r.Context(), playerID, body.Type)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playerId": playerID, "type": body.Type, "added": added})
}
