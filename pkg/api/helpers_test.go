package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/middleware"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/users"
)

const (
	adminEmail  = "admin@fund.example"
	viewerEmail = "viewer@fund.example"
	lateEmail   = "late@fund.example"
	password    = "secret"
	createdID   = 42
)

type account struct {
	token  string
	record *users.Record
}

type fetchCall struct {
	path  string
	query url.Values
	auth  string
}

// fakeBackend is the back-office REST API as the gateway sees it
type fakeBackend struct {
	*httptest.Server

	mu          sync.Mutex
	accounts    map[string]account
	targets     map[int64]*users.Record
	listing     funds.Listing
	updated     []*users.Record
	created     []*users.Record
	deleted     []int64
	fetches     []fetchCall
	rejectFetch bool
}

func sessionFunds() funds.Tree {
	return funds.Tree{
		"FIDC A": {Access: true, Classes: map[string]*funds.ClassAccess{
			"senior":   {Access: true},
			"mezanino": {Access: false},
		}},
		"FIDC B": {Access: false, Classes: map[string]*funds.ClassAccess{
			"unica": {Access: true},
		}},
	}
}

func viewerPermissions(cat *catalog.Catalog) permissions.Tree {
	perms := permissions.Skeleton(cat, false, false)
	for _, path := range [][]string{
		{"fundo"}, {"fundo", "fundo"}, {"fundo", "classes"},
		{"cotas"}, {"cotas", "cotas"},
	} {
		perms = permissions.MustToggle(perms, path, permissions.Access)
	}
	return perms
}

func expiredToken(t *testing.T) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return token
}

func newFakeBackend(t *testing.T) *fakeBackend {
	cat := catalog.Default()
	f := &fakeBackend{
		accounts: map[string]account{
			adminEmail: {token: "tok-admin", record: &users.Record{
				Profile:     users.Profile{ID: 1, Name: "Ada", Surname: "Admin", Email: adminEmail},
				Permissions: permissions.Skeleton(cat, true, true),
				FundAccess:  sessionFunds(),
			}},
			viewerEmail: {token: "tok-viewer", record: &users.Record{
				Profile:     users.Profile{ID: 2, Name: "Vera", Surname: "Viewer", Email: viewerEmail},
				Permissions: viewerPermissions(cat),
				FundAccess:  sessionFunds(),
			}},
			lateEmail: {token: expiredToken(t), record: &users.Record{
				Profile:     users.Profile{ID: 3, Name: "Lia", Surname: "Late", Email: lateEmail},
				Permissions: viewerPermissions(cat),
				FundAccess:  sessionFunds(),
			}},
		},
		targets: map[int64]*users.Record{
			7: {
				Profile:     users.Profile{ID: 7, Name: "Ana", Surname: "Lima", Email: "ana@fund.example"},
				Permissions: permissions.Skeleton(cat, false, false),
				FundAccess: funds.Tree{"FIDC A": {Access: true, Classes: map[string]*funds.ClassAccess{
					"senior": {Access: false},
				}}},
			},
		},
		listing: funds.Listing{"FIDC A": {"senior", "mezanino"}, "FIDC B": {"unica"}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", f.login)
	mux.HandleFunc("GET /users/me", f.me)
	mux.HandleFunc("GET /users/{id}", f.getUser)
	mux.HandleFunc("PUT /users/{id}", f.updateUser)
	mux.HandleFunc("DELETE /users/{id}", f.deleteUser)
	mux.HandleFunc("POST /users", f.createUser)
	mux.HandleFunc("POST /users/check", f.checkUser)
	mux.HandleFunc("GET /funds-with-classes", func(w http.ResponseWriter, r *http.Request) {
		writeBackendJSON(w, http.StatusOK, f.listing)
	})
	mux.HandleFunc("GET /api/", f.fetch)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func writeBackendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	acct, ok := f.accounts[body.Username]
	f.mu.Unlock()
	if !ok || body.Password != password {
		writeBackendJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}
	writeBackendJSON(w, http.StatusOK, map[string]interface{}{"access_token": acct.token, "user": acct.record})
}

func (f *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.accounts {
		if acct.token == bearer(r) {
			writeBackendJSON(w, http.StatusOK, acct.record)
			return
		}
	}
	writeBackendJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unknown token"})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func (f *fakeBackend) getUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	rec, ok := f.targets[pathID(r)]
	f.mu.Unlock()
	if !ok {
		writeBackendJSON(w, http.StatusNotFound, map[string]string{"detail": "user not found"})
		return
	}
	writeBackendJSON(w, http.StatusOK, rec)
}

func (f *fakeBackend) updateUser(w http.ResponseWriter, r *http.Request) {
	var rec users.Record
	_ = json.NewDecoder(r.Body).Decode(&rec)
	f.mu.Lock()
	f.updated = append(f.updated, &rec)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeBackend) createUser(w http.ResponseWriter, r *http.Request) {
	var rec users.Record
	_ = json.NewDecoder(r.Body).Decode(&rec)
	f.mu.Lock()
	f.created = append(f.created, &rec)
	f.mu.Unlock()
	out := rec.Clone()
	out.ID = createdID
	out.Password = ""
	writeBackendJSON(w, http.StatusCreated, out)
}

func (f *fakeBackend) deleteUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.deleted = append(f.deleted, pathID(r))
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeBackend) checkUser(w http.ResponseWriter, r *http.Request) {
	var q backend.CheckQuery
	_ = json.NewDecoder(r.Body).Decode(&q)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.targets {
		if q.Email != "" && rec.Email == q.Email {
			writeBackendJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeBackendJSON(w, http.StatusNotFound, map[string]string{"detail": "user not found"})
}

func (f *fakeBackend) fetch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.fetches = append(f.fetches, fetchCall{path: r.URL.Path, query: r.URL.Query(), auth: bearer(r)})
	reject := f.rejectFetch
	f.mu.Unlock()
	if reject {
		writeBackendJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token revoked"})
		return
	}
	writeBackendJSON(w, http.StatusOK, map[string]interface{}{"endpoint": r.URL.Path, "rows": []int{1, 2, 3}})
}

func (f *fakeBackend) fetchCalls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.fetches...)
}

// captureSink collects audit events
type captureSink struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (c *captureSink) Log(_ context.Context, event *audit.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) byType(eventType audit.EventType) []*audit.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.AuditEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type gateway struct {
	backend *fakeBackend
	server  *Server
	http    *httptest.Server
	metrics *observability.Metrics
	audit   *captureSink
}

func newGateway(t *testing.T, configure ...func(*Options)) *gateway {
	t.Helper()
	fake := newFakeBackend(t)
	return newGatewayWithBackend(t, fake, configure...)
}

func newGatewayWithBackend(t *testing.T, fake *fakeBackend, configure ...func(*Options)) *gateway {
	t.Helper()
	client, err := backend.New(backend.Config{BaseURL: fake.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sink := &captureSink{}
	opts := Options{
		Backend: client,
		Catalog: catalog.Default(),
		Audit:   audit.NewRecorder(sink, metrics, logger),
		Metrics: metrics,
		Logger:  logger,
		Cookie:  middleware.CookieConfig{Name: "backoffice_session"},
		IdleTTL: time.Minute,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	srv, err := NewServer(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &gateway{backend: fake, server: srv, http: ts, metrics: metrics, audit: sink}
}

// browser is an HTTP client keeping the session cookie
type browser struct {
	base   string
	client *http.Client
}

func (g *gateway) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{base: g.http.URL, client: &http.Client{Jar: jar}}
}

// sessionCookie returns the gateway session cookie the browser holds
func (b *browser) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	u, err := url.Parse(b.base)
	require.NoError(t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == "backoffice_session" {
			return c
		}
	}
	return nil
}

func (b *browser) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, b.base+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *browser) login(t *testing.T, email string) *http.Response {
	t.Helper()
	return b.do(t, http.MethodPost, "/api/session/login", loginRequest{Username: email, Password: password})
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details"`
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	decode(t, resp, &body)
	return body
}
