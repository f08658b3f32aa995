package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/contextkeys"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/session"
	"github.com/platinummonkey/backoffice/pkg/users"
)

type stubAuth struct {
	record *users.Record
	token  string
}

func (s *stubAuth) Authenticate(context.Context, string, string) (string, *users.Record, error) {
	return s.token, s.record.Clone(), nil
}

func (s *stubAuth) CurrentUser(_ context.Context, token string) (*users.Record, error) {
	if token != s.token {
		return nil, errors.New("unknown token")
	}
	return s.record.Clone(), nil
}

func record(admin bool) *users.Record {
	return &users.Record{
		Profile:     users.Profile{ID: 3, Name: "Bia", Surname: "Lima", Email: "bia@example.com"},
		Permissions: permissions.Skeleton(catalog.Default(), true, admin),
		FundAccess:  funds.Tree{"Alpha": {Access: true}},
	}
}

// testResolver keeps managers in a map and shares one token store per id so
// a "restart" can be simulated by forgetting the managers.
type testResolver struct {
	auth     *stubAuth
	tokens   map[string]*session.MemoryTokenStore
	managers map[string]*session.Manager
}

func newTestResolver(auth *stubAuth) *testResolver {
	return &testResolver{
		auth:     auth,
		tokens:   make(map[string]*session.MemoryTokenStore),
		managers: make(map[string]*session.Manager),
	}
}

func (r *testResolver) resolve(_ context.Context, id string) (string, *session.Manager, bool) {
	if id == "" {
		id = "11111111-1111-1111-1111-111111111111"
	}
	if mgr, ok := r.managers[id]; ok {
		return id, mgr, false
	}
	if r.tokens[id] == nil {
		r.tokens[id] = session.NewMemoryTokenStore()
	}
	mgr := session.NewManager(r.auth, r.tokens[id])
	r.managers[id] = mgr
	return id, mgr, true
}

var cookieCfg = CookieConfig{Name: "backoffice_session", MaxAge: 30 * time.Minute}

func serve(h http.Handler, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieCfg.Name, Value: cookie})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSessionMiddleware_IssuesCookie(t *testing.T) {
	resolver := newTestResolver(&stubAuth{token: "tok", record: record(false)})

	var seenID string
	var seen *session.Manager
	h := SessionMiddleware(cookieCfg, resolver.resolve)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = contextkeys.GetSessionID(r.Context())
		seen, _ = SessionFromContext(r.Context())
	}))

	w := serve(h, "")
	require.NotNil(t, seen)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", seenID)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, seenID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 1800, cookies[0].MaxAge)

	w = serve(h, seenID)
	assert.Empty(t, w.Result().Cookies(), "known sessions keep their cookie")
}

func TestSessionMiddleware_RestoresPersistedToken(t *testing.T) {
	auth := &stubAuth{token: "tok", record: record(false)}
	resolver := newTestResolver(auth)
	const id = "22222222-2222-2222-2222-222222222222"

	_, mgr, _ := resolver.resolve(context.Background(), id)
	_, err := mgr.Login(context.Background(), "bia@example.com", "secret")
	require.NoError(t, err)

	// forget the in-memory manager; the token store survives
	resolver.managers = make(map[string]*session.Manager)

	var user string
	h := SessionMiddleware(cookieCfg, resolver.resolve)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = contextkeys.GetUserID(r.Context())
	}))
	serve(h, id)

	assert.Equal(t, "bia@example.com", user)
	assert.True(t, resolver.managers[id].State().IsAuthenticated())
}

func TestRequireAuthenticated(t *testing.T) {
	resolver := newTestResolver(&stubAuth{token: "tok", record: record(false)})
	h := SessionMiddleware(cookieCfg, resolver.resolve)(RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	w := serve(h, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authentication required")

	id := w.Result().Cookies()[0].Value
	_, err := resolver.managers[id].Login(context.Background(), "bia@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(h, id).Code)
}

func TestRequireAuthenticated_ExpiredToken(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("test"))
	require.NoError(t, err)

	resolver := newTestResolver(&stubAuth{token: expired, record: record(false)})
	const id = "33333333-3333-3333-3333-333333333333"
	_, mgr, _ := resolver.resolve(context.Background(), id)
	_, err = mgr.Login(context.Background(), "bia@example.com", "secret")
	require.NoError(t, err)

	h := SessionMiddleware(cookieCfg, resolver.resolve)(RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	w := serve(h, id)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session expired")
	assert.False(t, mgr.State().IsAuthenticated())
}

func TestRequireAuthenticated_NoSession(t *testing.T) {
	w := httptest.NewRecorder()
	RequireAuthenticated(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name  string
		admin bool
		want  int
	}{
		{name: "administrator", admin: true, want: http.StatusOK},
		{name: "read-only user", admin: false, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newTestResolver(&stubAuth{token: "tok", record: record(tt.admin)})
			const id = "44444444-4444-4444-4444-444444444444"
			_, mgr, _ := resolver.resolve(context.Background(), id)
			_, err := mgr.Login(context.Background(), "bia@example.com", "secret")
			require.NoError(t, err)

			h := SessionMiddleware(cookieCfg, resolver.resolve)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))
			assert.Equal(t, tt.want, serve(h, id).Code)
		})
	}
}

func TestRequireAdmin_Anonymous(t *testing.T) {
	resolver := newTestResolver(&stubAuth{token: "tok", record: record(true)})
	h := SessionMiddleware(cookieCfg, resolver.resolve)(RequireAdmin(http.NotFoundHandler()))
	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
}

func TestCookieConfig_Expire(t *testing.T) {
	w := httptest.NewRecorder()
	cookieCfg.Expire(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieCfg.Name, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
