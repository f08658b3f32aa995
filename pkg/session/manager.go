package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/users"
)

// ErrSessionExpired is returned when the bearer token's exp has passed.
// The session has been logged out by the time it is returned.
var ErrSessionExpired = errors.New("session expired")

// Authenticator is the backend surface the manager needs
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, *users.Record, error)
	CurrentUser(ctx context.Context, token string) (*users.Record, error)
}

// Manager drives one session through login, restore and logout
type Manager struct {
	store   *Store
	auth    Authenticator
	tokens  TokenStore
	audit   *audit.Recorder
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithAudit records lifecycle events
func WithAudit(rec *audit.Recorder) Option {
	return func(m *Manager) { m.audit = rec }
}

// WithMetrics counts logins and logouts
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the manager's logger
func WithLogger(logger *observability.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides time.Now for expiry checks
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with an anonymous store
func NewManager(auth Authenticator, tokens TokenStore, opts ...Option) *Manager {
	m := &Manager{
		store:  NewStore(),
		auth:   auth,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tokens == nil {
		m.tokens = NewMemoryTokenStore()
	}
	if m.logger == nil {
		m.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return m
}

// Store exposes the underlying store for dispatching chosen-tree actions
func (m *Manager) Store() *Store {
	return m.store
}

// State returns a snapshot of the session
func (m *Manager) State() State {
	return m.store.State()
}

func userFromRecord(rec *users.Record) User {
	return User{ID: rec.ID, Name: rec.Name, Surname: rec.Surname, Email: rec.Email}
}

func (m *Manager) countLogin(outcome string) {
	if m.metrics != nil {
		m.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

// Login authenticates against the backend and populates the session in one
// step. A session that is already logged in is logged out first.
func (m *Manager) Login(ctx context.Context, username, password string) (State, error) {
	ctx, span := observability.StartSpan(ctx, "session.Login", attribute.String("user", username))
	defer span.End()

	if m.store.State().Status == StatusAuthenticated {
		m.end(ctx, "relogin", audit.EventTypeLogout)
	}
	if _, err := m.store.Dispatch(LoginStarted{}); err != nil {
		return m.store.State(), err
	}

	token, rec, err := m.auth.Authenticate(ctx, username, password)
	if err == nil && rec == nil {
		err = ErrIncompleteLogin
	}
	if err != nil {
		state, _ := m.store.Dispatch(LoginFailed{Reason: err.Error()})
		m.countLogin("failure")
		m.audit.LogAuthentication(ctx, audit.EventTypeLoginFailed, nil, username, audit.EventStatusFailure, err.Error())
		span.SetStatus(codes.Error, err.Error())
		return state, fmt.Errorf("login failed: %w", err)
	}

	state, err := m.store.Dispatch(LoginSucceeded{
		Token:       token,
		User:        userFromRecord(rec),
		Permissions: rec.Permissions,
		Funds:       rec.FundAccess,
	})
	if err != nil {
		m.countLogin("incomplete")
		m.audit.LogAuthentication(ctx, audit.EventTypeLoginFailed, &rec.ID, username, audit.EventStatusFailure, err.Error())
		span.SetStatus(codes.Error, err.Error())
		return state, fmt.Errorf("login failed: %w", err)
	}

	if err := m.tokens.Save(ctx, token); err != nil {
		m.logger.WithError(err).Warn("failed to persist token")
	}
	m.countLogin("success")
	m.audit.LogAuthentication(ctx, audit.EventTypeLogin, &rec.ID, rec.Email, audit.EventStatusSuccess, "login")
	m.logger.WithFields(map[string]interface{}{
		"user_id": rec.ID,
		"email":   rec.Email,
	}).Info("login succeeded")
	return state, nil
}

// Restore reloads a persisted token. On any failure the token is cleared
// and the session stays anonymous.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	if state := m.store.State(); state.IsAuthenticated() {
		return state, nil
	}

	token, err := m.tokens.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return m.store.State(), fmt.Errorf("restore: %w", ErrNotAuthenticated)
		}
		return m.store.State(), fmt.Errorf("restore: %w", err)
	}
	if m.expired(token) {
		m.clearToken(ctx)
		return m.store.State(), fmt.Errorf("restore: %w", ErrSessionExpired)
	}

	if _, err := m.store.Dispatch(LoginStarted{}); err != nil {
		return m.store.State(), err
	}

	rec, err := m.auth.CurrentUser(ctx, token)
	if err == nil && rec == nil {
		err = ErrIncompleteLogin
	}
	if err != nil {
		state, _ := m.store.Dispatch(LoginFailed{Reason: err.Error()})
		m.clearToken(ctx)
		return state, fmt.Errorf("restore: %w", err)
	}

	state, err := m.store.Dispatch(LoginSucceeded{
		Token:       token,
		User:        userFromRecord(rec),
		Permissions: rec.Permissions,
		Funds:       rec.FundAccess,
	})
	if err != nil {
		m.clearToken(ctx)
		return state, fmt.Errorf("restore: %w", err)
	}

	m.audit.LogAuthentication(ctx, audit.EventTypeSessionRestore, &rec.ID, rec.Email, audit.EventStatusSuccess, "session restored")
	return state, nil
}

// Logout clears the session and the persisted token
func (m *Manager) Logout(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "session.Logout")
	defer span.End()

	if !m.store.State().IsAuthenticated() {
		m.clearToken(ctx)
		_, _ = m.store.Dispatch(LoggedOut{})
		return nil
	}
	m.end(ctx, "user", audit.EventTypeLogout)
	return nil
}

// Token returns the bearer token, logging the session out when its exp has
// passed
func (m *Manager) Token(ctx context.Context) (string, error) {
	state := m.store.State()
	if !state.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}
	if m.expired(state.Token) {
		m.end(ctx, "expired", audit.EventTypeSessionExpired)
		return "", ErrSessionExpired
	}
	return state.Token, nil
}

// HandleUnauthorized logs the session out after the backend rejected its
// token. It reports whether err was an authorization failure.
func (m *Manager) HandleUnauthorized(ctx context.Context, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	if m.store.State().IsAuthenticated() {
		m.end(ctx, "unauthorized", audit.EventTypeSessionExpired)
	}
	return true
}

// SelectFund records the fund and class being browsed
func (m *Manager) SelectFund(fund, class string) (State, error) {
	return m.store.Dispatch(FundSelected{Fund: fund, Class: class})
}

func (m *Manager) end(ctx context.Context, reason string, eventType audit.EventType) {
	state := m.store.State()
	m.clearToken(ctx)
	_, _ = m.store.Dispatch(LoggedOut{})

	if m.metrics != nil {
		m.metrics.LogoutsTotal.WithLabelValues(reason).Inc()
	}
	id := state.User.ID
	m.audit.LogAuthentication(ctx, eventType, &id, state.User.Email, audit.EventStatusSuccess, reason)
	m.logger.WithFields(map[string]interface{}{
		"user_id": state.User.ID,
		"email":   state.User.Email,
		"reason":  reason,
	}).Info("session ended")
}

func (m *Manager) clearToken(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.WithError(err).Warn("failed to clear persisted token")
	}
}

func (m *Manager) expired(token string) bool {
	exp, ok := TokenExpiry(token)
	return ok && !m.now().Before(exp)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature;
// the backend remains the verifier. ok is false for opaque tokens and JWTs
// without exp.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
