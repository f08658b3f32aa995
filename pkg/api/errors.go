package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/session"
	"github.com/platinummonkey/backoffice/pkg/users"
)

// writeError maps package errors onto HTTP replies. A backend 401 logs
// the session out before replying.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, gs *gatewaySession, err error) {
	var validation *users.ValidationError
	var apiErr *backend.APIError
	var urlErr *url.Error

	switch {
	case errors.As(err, &validation):
		httputil.WriteDetailedError(w, http.StatusUnprocessableEntity, httputil.CodeValidation, err, validation.Fields)
	case errors.Is(err, backend.ErrUnauthorized):
		if gs != nil {
			gs.manager.HandleUnauthorized(r.Context(), err)
			gs.editor.Cancel()
		}
		httputil.WriteUnauthorized(w, "session expired")
	case errors.Is(err, session.ErrSessionExpired):
		httputil.WriteUnauthorized(w, "session expired")
	case errors.Is(err, session.ErrNotAuthenticated):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, editor.ErrForbidden), errors.Is(err, session.ErrFundNotAccessible):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, editor.ErrNotLoaded), errors.Is(err, editor.ErrNothingToUndo), errors.Is(err, editor.ErrSuperseded):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, permissions.ErrPathNotFound), errors.Is(err, funds.ErrFundNotFound),
		errors.Is(err, funds.ErrClassNotFound), errors.Is(err, backend.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, permissions.ErrEmptyPath):
		httputil.WriteBadRequest(w, err.Error())
	case errors.As(err, &apiErr):
		httputil.WriteBadGateway(w, err.Error())
	case errors.As(err, &urlErr):
		httputil.WriteBadGateway(w, "backend unavailable")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
