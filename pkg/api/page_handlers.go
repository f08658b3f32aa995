package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/routes"
)

// getNavigation handles GET /api/navigation. The table is generated from
// the user's own permission tree, never from the tree open in the editor.
func (s *Server) getNavigation(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	table := s.nav.Load().cache.Get(gs.manager.State().FullPermissions)
	if s.metrics != nil {
		s.metrics.RouteTableSize.Observe(float64(len(table.Routes)))
	}
	_ = httputil.WriteSuccess(w, table)
}

func (s *Server) countPage(outcome string) {
	if s.metrics != nil {
		s.metrics.PageRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) denyPage(w http.ResponseWriter, r *http.Request, path, reason, message string) {
	if s.metrics != nil {
		s.metrics.PageDenials.WithLabelValues(reason).Inc()
	}
	s.countPage("denied")
	audit.FromContext(r.Context()).LogAuthorization(r.Context(), audit.EventTypeAccessDenied,
		audit.ResourceTypePage, path, audit.EventStatusDenied, message)
	httputil.WriteForbidden(w, message)
}

// getPage handles GET /api/pages/{path}: the data of one page, fetched
// from its endpoint with the session's token. A path missing from the
// user's route table is refused whatever the client claims.
func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	state := gs.manager.State()
	path := "/" + mux.Vars(r)["path"]

	route, ok := s.nav.Load().cache.Get(state.FullPermissions).Lookup(path)
	if !ok {
		s.denyPage(w, r, path, "no_route", "page not accessible")
		return
	}

	comp := route.Component
	if msg := comp.MissingSelection(state.SelectedFund, state.SelectedClass); msg != "" {
		s.countPage("fund_required")
		httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeFundRequired, msg)
		return
	}
	if comp.Scope != routes.ScopeNone {
		// access may have changed since the fund was selected
		if !state.FundAccess.Accessible(state.SelectedFund) ||
			(comp.Scope == routes.ScopeFundClass && !state.FundAccess.ClassAccessible(state.SelectedFund, state.SelectedClass)) {
			s.denyPage(w, r, route.Path, "fund", "fund not accessible")
			return
		}
	}
	if comp.DataEndpoint == "" {
		s.countPage("no_data")
		httputil.WriteNotFoundError(w, "page has no data endpoint")
		return
	}

	token, err := gs.manager.Token(r.Context())
	if err != nil {
		s.countPage("unauthorized")
		s.writeError(w, r, gs, err)
		return
	}

	payload, err := s.backend.WithToken(token).Fetch(r.Context(), comp.DataEndpoint, comp.Query(r.URL.Query(), state.SelectedFund, state.SelectedClass))
	if err != nil {
		if gs.manager.HandleUnauthorized(r.Context(), err) {
			s.countPage("unauthorized")
			gs.editor.Cancel()
			httputil.WriteUnauthorized(w, "session expired")
			return
		}
		s.countPage("backend_error")
		s.writeError(w, r, gs, err)
		return
	}

	s.countPage("ok")
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(payload.StatusCode)
	_, _ = w.Write(payload.Body)
}
