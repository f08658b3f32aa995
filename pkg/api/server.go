package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/contextkeys"
	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/middleware"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/routes"
	"github.com/platinummonkey/backoffice/pkg/session"
)

// Options configures a Server. Backend and Catalog are required.
type Options struct {
	Backend    *backend.Client
	Catalog    *catalog.Catalog
	Components routes.Registry

	Audit       *audit.Recorder
	AuditSearch AuditSearcher
	Metrics     *observability.Metrics
	Logger      *observability.Logger

	// Redis holds bearer tokens so sessions survive restarts. Nil keeps
	// tokens in memory.
	Redis   *redis.Client
	Limiter middleware.Limiter
	Cookie  middleware.CookieConfig

	MaxSessions    int
	IdleTTL        time.Duration
	RouteCacheSize int
	RouteCacheTTL  time.Duration

	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// navigation is the catalog and its route cache, swapped together on reload
type navigation struct {
	catalog *catalog.Catalog
	cache   *routes.Cache
}

// gatewaySession is what the gateway keeps per browser session
type gatewaySession struct {
	manager *session.Manager
	editor  *editor.UserEditor
	tokens  session.TokenStore
}

// Server is the dashboard gateway: it owns one session per browser and
// serves navigation, page data and user administration on its behalf.
type Server struct {
	router     *mux.Router
	backend    *backend.Client
	components routes.Registry
	nav        atomic.Pointer[navigation]
	sessions   *session.Registry[*gatewaySession]

	audit       *audit.Recorder
	auditSearch AuditSearcher
	metrics     *observability.Metrics
	logger      *observability.Logger
	redis       *redis.Client
	limiter     middleware.Limiter
	cookie      middleware.CookieConfig
	opts        Options
}

// NewServer validates the catalog against the component registry and
// builds the router
func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("backend client is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Components == nil {
		opts.Components = routes.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	if opts.RouteCacheSize <= 0 {
		opts.RouteCacheSize = 256
	}
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = "backoffice_session"
	}
	if opts.Cookie.MaxAge <= 0 {
		opts.Cookie.MaxAge = opts.IdleTTL
	}

	s := &Server{
		router:      mux.NewRouter(),
		backend:     opts.Backend,
		components:  opts.Components,
		audit:       opts.Audit,
		auditSearch: opts.AuditSearch,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		redis:       opts.Redis,
		limiter:     opts.Limiter,
		cookie:      opts.Cookie,
		opts:        opts,
	}
	if s.audit == nil {
		s.audit = audit.NewRecorder(audit.NoOp(), opts.Metrics, opts.Logger)
	}

	if err := routes.Validate(opts.Catalog, s.components); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	s.swap(opts.Catalog)
	if s.metrics != nil {
		s.metrics.RegisterRouteCache(func() routes.CacheStats {
			return s.nav.Load().cache.Stats()
		})
	}

	s.sessions = session.NewRegistry(opts.MaxSessions, opts.IdleTTL, s.newSession, opts.Metrics)
	s.setupRoutes()
	return s, nil
}

func (s *Server) swap(cat *catalog.Catalog) {
	s.nav.Store(&navigation{
		catalog: cat,
		cache:   routes.NewCache(cat, s.components, s.opts.RouteCacheSize, s.opts.RouteCacheTTL),
	})
}

// SetCatalog replaces the navigation catalog. An invalid catalog is
// rejected and the current one stays in service.
func (s *Server) SetCatalog(cat *catalog.Catalog) error {
	if err := routes.Validate(cat, s.components); err != nil {
		s.countReload("error")
		return fmt.Errorf("invalid catalog: %w", err)
	}
	s.swap(cat)
	s.countReload("success")
	s.logger.WithField("pages", len(cat.Leaves())).Info("navigation catalog reloaded")
	return nil
}

func (s *Server) countReload(status string) {
	if s.metrics != nil {
		s.metrics.CatalogReloadsTotal.WithLabelValues(status).Inc()
	}
}

// Catalog returns the catalog currently served
func (s *Server) Catalog() *catalog.Catalog {
	return s.nav.Load().catalog
}

func (s *Server) newSession(id string) *gatewaySession {
	var tokens session.TokenStore
	if s.redis != nil {
		tokens = session.NewRedisTokenStore(s.redis, id, s.opts.IdleTTL, s.metrics)
	} else {
		tokens = session.NewMemoryTokenStore()
	}

	mgr := session.NewManager(s.backend, tokens,
		session.WithAudit(s.audit),
		session.WithMetrics(s.metrics),
		session.WithLogger(s.logger.WithField("session_id", id)),
	)
	source := func(ctx context.Context) (editor.Backend, error) {
		token, err := mgr.Token(ctx)
		if err != nil {
			return nil, err
		}
		return s.backend.WithToken(token), nil
	}
	ed := editor.New(source, mgr.Store(), s.Catalog,
		editor.WithAudit(s.audit),
		editor.WithMetrics(s.metrics),
		editor.WithLogger(s.logger.WithField("session_id", id)),
	)
	return &gatewaySession{manager: mgr, editor: ed, tokens: tokens}
}

func (s *Server) resolve(_ context.Context, id string) (string, *session.Manager, bool) {
	sessionID, gs, created := s.sessions.GetOrCreate(id)
	return sessionID, gs.manager, created
}

// current returns the gateway session attached to the request
func (s *Server) current(r *http.Request) (*gatewaySession, bool) {
	return s.sessions.Get(contextkeys.GetSessionID(r.Context()))
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "no such endpoint")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.withAudit, middleware.SessionMiddleware(s.cookie, s.resolve), s.keepAlive)

	login := http.Handler(http.HandlerFunc(s.login))
	if s.limiter != nil {
		login = middleware.RateLimit(s.limiter, s.metrics)(login)
	}
	api.Handle("/session/login", login).Methods("POST")
	api.HandleFunc("/session/logout", s.logout).Methods("POST")
	api.HandleFunc("/session", s.getSession).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.RequireAuthenticated)
	authed.HandleFunc("/session/fund", s.selectFund).Methods("PUT")
	authed.HandleFunc("/navigation", s.getNavigation).Methods("GET")
	authed.HandleFunc("/pages/{path:.*}", s.getPage).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAuthenticated, middleware.RequireAdmin)
	s.registerEditorRoutes(admin)
	if s.auditSearch != nil {
		s.registerAuditRoutes(admin)
	}
}

// Handler returns the router wrapped in the gateway middleware chain
func (s *Server) Handler() http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(s.opts.AllowedOrigins),
		httputil.ContentTypeMiddleware,
	}
	if s.opts.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes))
	}
	if s.opts.RequestTimeout > 0 {
		chain = append(chain, httputil.TimeoutMiddleware(s.opts.RequestTimeout))
	}
	return otelhttp.NewHandler(httputil.Chain(chain...)(s.router), "backoffice-gateway")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// withAudit puts the audit recorder on the request context
func (s *Server) withAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), s.audit)))
	})
}

type toucher interface {
	Touch(ctx context.Context) error
}

// keepAlive refreshes the persisted token's TTL for active sessions
func (s *Server) keepAlive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gs, ok := s.current(r); ok && gs.manager.State().IsAuthenticated() {
			if t, ok := gs.tokens.(toucher); ok {
				if err := t.Touch(r.Context()); err != nil {
					observability.FromContext(r.Context()).WithError(err).Warn("failed to refresh session token ttl")
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Sessions reports how many browser sessions are held
func (s *Server) Sessions() int {
	return s.sessions.Len()
}
