// Package middleware binds browser sessions to requests and guards the
// gateway's routes.
//
// SessionMiddleware reads the session cookie, resolves it to a
// session.Manager (restoring a persisted token for sessions the gateway
// has not seen since it started) and stores the manager on the request
// context. RequireAuthenticated and RequireAdmin then gate route groups:
//
//	api := router.PathPrefix("/api").Subrouter()
//	api.Use(middleware.SessionMiddleware(cookie, resolve))
//	admin := api.PathPrefix("/admin").Subrouter()
//	admin.Use(middleware.RequireAdmin)
//
// Login attempts are throttled per client IP with RateLimit, backed by an
// in-process token bucket or, when Redis is configured, a shared
// fixed-window counter.
package middleware
