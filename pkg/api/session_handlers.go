package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/contextkeys"
	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/session"
)

// SessionResponse is the client's view of its session
type SessionResponse struct {
	session.State
	CanAdminister bool `json:"canAdminister"`
}

func sessionResponse(state session.State) SessionResponse {
	return SessionResponse{State: state, CanAdminister: editor.CanAdminister(state)}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login handles POST /api/session/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") || !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	gs, ok := s.current(r)
	if !ok {
		httputil.WriteServiceUnavailable(w, "session unavailable")
		return
	}
	// close whatever the previous user had open
	gs.editor.Cancel()

	state, err := gs.manager.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrUnauthorized):
			httputil.WriteUnauthorized(w, "invalid credentials")
		case errors.Is(err, session.ErrIncompleteLogin):
			httputil.WriteUnauthorized(w, "login response incomplete")
		case errors.Is(err, session.ErrInvalidTransition):
			httputil.WriteConflict(w, "login already in progress")
		default:
			s.writeError(w, r, nil, err)
		}
		return
	}
	_ = httputil.WriteSuccess(w, sessionResponse(state))
}

// logout handles POST /api/session/logout. The gateway session is dropped
// and the cookie expired.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if gs, ok := s.current(r); ok {
		gs.editor.Cancel()
		if err := gs.manager.Logout(r.Context()); err != nil {
			s.writeError(w, r, gs, err)
			return
		}
	}
	s.sessions.Remove(contextkeys.GetSessionID(r.Context()))
	s.cookie.Expire(w)
	httputil.WriteNoContent(w)
}

// getSession handles GET /api/session. Anonymous sessions are reported,
// not rejected.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.current(r)
	if !ok {
		_ = httputil.WriteSuccess(w, sessionResponse(session.State{}))
		return
	}
	if gs.manager.State().IsAuthenticated() {
		// Token logs an expired session out before it is reported
		_, _ = gs.manager.Token(r.Context())
	}
	_ = httputil.WriteSuccess(w, sessionResponse(gs.manager.State()))
}

type selectFundRequest struct {
	Fund  string `json:"fund"`
	Class string `json:"class,omitempty"`
}

// selectFund handles PUT /api/session/fund. An empty fund clears the
// selection.
func (s *Server) selectFund(w http.ResponseWriter, r *http.Request) {
	var req selectFundRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Fund == "" && req.Class != "" {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeValidation, "class requires a fund")
		return
	}

	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	state, err := gs.manager.SelectFund(req.Fund, req.Class)
	if err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	_ = httputil.WriteSuccess(w, sessionResponse(state))
}
