package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/contextkeys"
	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/session"
)

// SessionResolver finds the session for a cookie value, creating one when
// the value is unknown. sessionID differs from id when a new one was issued.
type SessionResolver func(ctx context.Context, id string) (sessionID string, mgr *session.Manager, created bool)

// CookieConfig describes the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
	// MaxAge should match the registry idle TTL
	MaxAge time.Duration
}

func (c CookieConfig) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expire writes a cookie that removes the session cookie from the browser
func (c CookieConfig) Expire(w http.ResponseWriter) {
	cookie := c.cookie("")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

// SessionMiddleware attaches the caller's session manager to the request.
// A session created for an unknown id first tries to restore a persisted
// token, so sessions survive gateway restarts when tokens live in Redis.
func SessionMiddleware(cookie CookieConfig, resolve SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(cookie.Name); err == nil {
				id = c.Value
			}

			ctx := r.Context()
			sessionID, mgr, created := resolve(ctx, id)
			ctx = contextkeys.WithSessionID(ctx, sessionID)
			ctx = audit.WithRequest(ctx, r)

			if created {
				if _, err := mgr.Restore(ctx); err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
					observability.FromContext(ctx).WithError(err).Debug("session not restored")
				}
			}
			if sessionID != id || created {
				http.SetCookie(w, cookie.cookie(sessionID))
			}

			if state := mgr.State(); state.IsAuthenticated() {
				ctx = contextkeys.WithUserID(ctx, state.User.Email)
			}
			ctx = contextkeys.WithSession(ctx, mgr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the manager attached by SessionMiddleware
func SessionFromContext(ctx context.Context) (*session.Manager, bool) {
	mgr, ok := ctx.Value(contextkeys.SessionKey).(*session.Manager)
	return mgr, ok && mgr != nil
}

// RequireAuthenticated rejects requests whose session is not logged in or
// whose token has expired. Expiry logs the session out.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := SessionFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if _, err := mgr.Token(r.Context()); err != nil {
			if errors.Is(err, session.ErrSessionExpired) {
				httputil.WriteUnauthorized(w, "session expired")
				return
			}
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects sessions without edit rights on the user
// administration page
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := SessionFromContext(r.Context())
		if !ok || !mgr.State().IsAuthenticated() {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !editor.CanAdminister(mgr.State()) {
			audit.FromContext(r.Context()).LogAuthorization(r.Context(), audit.EventTypeAccessDenied,
				audit.ResourceTypePage, "/"+strings.Join(editor.AdminPage, "/"), audit.EventStatusDenied, "user administration not allowed")
			httputil.WriteForbidden(w, "user administration not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}
