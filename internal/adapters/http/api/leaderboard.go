package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/model"
)

// listQuery holds the validated paging and period parameters. Zero values
// select the service defaults.
type listQuery struct {
	window model.Window
	page   int
	limit  int
}

func parseListQuery(r *http.Request) (listQuery, error) {
	q := r.URL.Query()
	w, err := model.ParseWindow(q.Get("period"))
	if err != nil {
		return listQuery{}, err
	}
	out := listQuery{window: w}
	if out.limit, err = positiveParam(q.Get("limit"), "limit"); err != nil {
		return listQuery{}, err
	}
	if out.page, err = positiveParam(q.Get("page"), "page"); err != nil {
		return listQuery{}, err
	}
	return out, nil
}

func positiveParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, op string, scope model.Scope) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	page, err := s.deps.ListLeaderboard(r.Context(), scope, q.window, q.page, q.limit)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page))
}

// handleGlobal handles GET /leaderboard.
func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, "api.leaderboard", model.GlobalScope())
}

// handleTeam handles GET /leaderboard/team/{teamId}.
func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, "api.leaderboard_team", model.TeamScope(mux.Vars(r)["teamId"]))
}

// handleSkill handles GET /leaderboard/skill/{level}.
func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard_skill"
	level, err := model.ParseSkillLevel(mux.Vars(r)["level"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	s.list(w, r, op, model.SkillScope(level))
}

// handleMyRank handles GET /leaderboard/my-rank for the caller.
func (s *Server) handleMyRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.my_rank"
	caller, _ := CallerFrom(r.Context())
	win, err := model.ParseWindow(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	kind, err := parseScopeKind(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if !caller.Role.Ranked() {
		writeJSON(w, http.StatusOK, rankResponse{IsNonPlayer: true, Period: string(win)})
		return
	}

	res, err := s.deps.GetRank(r.Context(), caller.ID, kind, win)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toRank(res))
}

func parseScopeKind(raw string) (model.ScopeKind, error) {
	switch k := model.ScopeKind(raw); k {
	case "", model.ScopeGlobal:
		return model.ScopeGlobal, nil
	case model.ScopeTeam, model.ScopeSkill:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrInvalidScope, raw)
	}
}

// handleCompare handles GET /leaderboard/compare/{playerId}: caller minus
// the other player.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare"
	caller, _ := CallerFrom(r.Context())
	win, err := model.ParseWindow(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if !caller.Role.Ranked() {
		s.fail(w, r, op, service.ErrNonPlayer)
		return
	}

	cmp, err := s.deps.Compare(r.Context(), caller.ID, mux.Vars(r)["playerId"], win)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{
		PlayerA:      toRank(cmp.PlayerA),
		PlayerB:      toRank(cmp.PlayerB),
		PointsDiff:   cmp.PointsDiff,
		WeeklyDiff:   cmp.WeeklyDiff,
		MonthlyDiff:  cmp.MonthlyDiff,
		AccuracyDiff: cmp.AccuracyDiff,
		WorkoutsDiff: cmp.WorkoutsDiff,
	})
}

// handleStats handles GET /leaderboard/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "api.stats", err)
		return
	}
	out := statsResponse{
		TotalPlayers:  st.TotalPlayers,
		TotalPoints:   st.TotalPoints,
		AveragePoints: st.AveragePoints,
		TopPlayers:    make([]leaderResponse, 0, len(st.TopPlayers)),
	}
	for _, l := range st.TopPlayers {
		out.TopPlayers = append(out.TopPlayers, leaderResponse{Rank: l.Rank, PlayerID: l.PlayerID, Name: l.Name, Points: l.Points})
	}
	writeJSON(w, http.StatusOK, out)
}
