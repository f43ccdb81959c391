package api

import (
	"net/http"

	"github.com/okian/courtside/internal/domain/model"
)

// handlePostEvent handles POST /events requests. The event is applied
// synchronously; redelivery answers 200 with duplicate=true.
//
// Only admins may change a profile through the inline player. Other callers
// may send one for themselves, which registers them on first contact.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var body eventRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req, err := body.toIngest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	caller, _ := CallerFrom(r.Context())
	req.ProfileAuthority = caller.Role == model.RoleAdmin
	if req.Player != nil && !req.ProfileAuthority && req.Player.ID != caller.ID {
		writeError(w, http.StatusForbidden, "forbidden", NewKind(op, ErrForbidden))
		return
	}

	res, err := s.deps.ApplyEvent(r.Context(), req)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	switch {
	case res.Ignored:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "ignored"})
	case res.Duplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	default:
		e := toEntry(res.Entry, 0)
		writeJSON(w, http.StatusOK, ackResponse{Status: "applied", Points: res.Points, Entry: &e})
	}
}

// handlePostProfile handles POST /players/profile requests.
func (s *Server) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_profile"
	var body playerRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := body.toPlayer()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	e, err := s.deps.UpdateProfile(r.Context(), model.ProfileUpdate{Player: p})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	resp := map[string]any{"status": "updated", "playerId": p.ID}
	if e.PlayerID != "" {
		resp["entry"] = toEntry(e, 0)
	}
	writeJSON(w, http.StatusOK, resp)
}
