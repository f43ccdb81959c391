// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/ranking"
	"github.com/okian/courtside/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	ApplyEvent(ctx context.Context, req service.IngestRequest) (service.IngestResult, error)
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (model.Entry, error)

	GetRank(ctx context.Context, playerID string, kind model.ScopeKind, w model.Window) (service.RankResult, error)
	ListLeaderboard(ctx context.Context, scope model.Scope, w model.Window, page, size int) (service.Page, error)
	Compare(ctx context.Context, a, b string, w model.Window) (service.Comparison, error)
	Stats(ctx context.Context) (service.Stats, error)

	RecomputeRankings(ctx context.Context) (service.RecomputeResult, error)
	ResetWindow(ctx context.Context, w model.Window) (service.ResetResult, error)
	AwardAchievement(ctx context.Context, playerID, typ string) (bool, error)

	Healthy(ctx context.Context) error
	Status(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps   Dependencies
	logger logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies) *Server {
	return &Server{deps: deps, logger: logger.Get().Named("api")}
}

// Register attaches all HTTP routes to router.
func (s *Server) Register(router *mux.Router) {
	router.Use(RequestIDMiddleware, s.RecoverMiddleware)

	router.HandleFunc("/healthz", MetricsMiddleware(s.handleHealth, "healthz")).Methods(http.MethodGet)
	router.Handle("/metrics", MetricsHandler()).Methods(http.MethodGet)

	authed := router.NewRoute().Subrouter()
	authed.Use(IdentityMiddleware)

	authed.HandleFunc("/events", MetricsMiddleware(s.handlePostEvent, "events")).Methods(http.MethodPost)
	authed.HandleFunc("/players/profile", MetricsMiddleware(RequireAdmin(s.handlePostProfile), "profile")).Methods(http.MethodPost)

	authed.HandleFunc("/leaderboard", MetricsMiddleware(s.handleGlobal, "leaderboard")).Methods(http.MethodGet)
	authed.HandleFunc("/leaderboard/team/{teamId}", MetricsMiddleware(s.handleTeam, "leaderboard_team")).Methods(http.MethodGet)
	authed.HandleFunc("/leaderboard/skill/{level}", MetricsMiddleware(s.handleSkill, "leaderboard_skill")).Methods(http.MethodGet)
	authed.HandleFunc("/leaderboard/my-rank", MetricsMiddleware(s.handleMyRank, "my_rank")).Methods(http.MethodGet)
	authed.HandleFunc("/leaderboard/stats", MetricsMiddleware(s.handleStats, "stats")).Methods(http.MethodGet)
	authed.HandleFunc("/leaderboard/compare/{playerId}", MetricsMiddleware(s.handleCompare, "compare")).Methods(http.MethodGet)

	authed.HandleFunc("/leaderboard/update-rankings", MetricsMiddleware(RequireAdmin(s.handleRecompute), "update_rankings")).Methods(http.MethodPost)
	authed.HandleFunc("/leaderboard/reset-weekly", MetricsMiddleware(RequireAdmin(s.resetHandler(model.WindowWeekly)), "reset_weekly")).Methods(http.MethodPost)
	authed.HandleFunc("/leaderboard/reset-monthly", MetricsMiddleware(RequireAdmin(s.resetHandler(model.WindowMonthly)), "reset_monthly")).Methods(http.MethodPost)
	authed.HandleFunc("/leaderboard/achievement/{playerId}", MetricsMiddleware(RequireAdmin(s.handleAward), "achievement")).Methods(http.MethodPost)
}

// Router returns a new router with every route registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps a service error to its status and code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", logger.Error(Wrap(op, err)))
	}
	writeError(w, status, code, err)
}

func classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, ranking.ErrPageSizeExceeds):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, service.ErrNonPlayer):
		return http.StatusBadRequest, "non_player"
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnknownPlayer), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConcurrentUpdateExhausted):
		return http.StatusConflict, "concurrent_update_exhausted"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads exactly one JSON object into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}
