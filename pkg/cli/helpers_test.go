package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/users"
)

const (
	adminEmail  = "admin@fund.example"
	viewerEmail = "viewer@fund.example"
	password    = "secret"
)

type account struct {
	token  string
	record *users.Record
}

type fakeBackend struct {
	*httptest.Server

	mu          sync.Mutex
	accounts    map[string]account
	targets     map[int64]*users.Record
	updated     []*users.Record
	created     []*users.Record
	deleted     []int64
	queries     []url.Values
	rejectFetch bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	cat := catalog.Default()
	access := funds.Tree{
		"FIDC A": {Access: true, Classes: map[string]*funds.ClassAccess{
			"senior":   {Access: true},
			"mezanino": {Access: false},
		}},
		"FIDC B": {Access: false, Classes: map[string]*funds.ClassAccess{
			"unica": {Access: true},
		}},
	}
	viewer := permissions.Skeleton(cat, false, false)
	for _, path := range [][]string{{"fundo"}, {"fundo", "fundo"}, {"cotas"}, {"cotas", "cotas"}} {
		viewer = permissions.MustToggle(viewer, path, permissions.Access)
	}

	f := &fakeBackend{
		accounts: map[string]account{
			adminEmail: {token: "tok-admin", record: &users.Record{
				Profile:     users.Profile{ID: 1, Name: "Ada", Surname: "Admin", Email: adminEmail},
				Permissions: permissions.Skeleton(cat, true, true),
				FundAccess:  access,
			}},
			viewerEmail: {token: "tok-viewer", record: &users.Record{
				Profile:     users.Profile{ID: 2, Name: "Vera", Surname: "Viewer", Email: viewerEmail},
				Permissions: viewer,
				FundAccess:  access,
			}},
		},
		targets: map[int64]*users.Record{
			7: {
				Profile:     users.Profile{ID: 7, Name: "Ana", Surname: "Lima", Email: "ana@fund.example", CPF: "12345678901"},
				Permissions: permissions.Skeleton(cat, false, false),
				FundAccess: funds.Tree{"FIDC A": {Access: true, Classes: map[string]*funds.ClassAccess{
					"senior": {Access: false},
				}}},
			},
		},
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
		writeJSONResponse(w, http.StatusOK, funds.Listing{"FIDC A": {"senior", "mezanino"}, "FIDC B": {"unica"}})
	})
	mux.HandleFunc("GET /api/", f.fetch)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
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
		writeJSONResponse(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"access_token": acct.token, "user": acct.record})
}

func (f *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.accounts {
		if acct.token == token {
			writeJSONResponse(w, http.StatusOK, acct.record)
			return
		}
	}
	writeJSONResponse(w, http.StatusUnauthorized, map[string]string{"detail": "unknown token"})
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
		writeJSONResponse(w, http.StatusNotFound, map[string]string{"detail": "user not found"})
		return
	}
	writeJSONResponse(w, http.StatusOK, rec)
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
	out.ID = 42
	out.Password = ""
	writeJSONResponse(w, http.StatusCreated, out)
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
		if (q.Email != "" && rec.Email == q.Email) || (q.CPF != "" && rec.CPF == q.CPF) {
			writeJSONResponse(w, http.StatusOK, rec)
			return
		}
	}
	writeJSONResponse(w, http.StatusNotFound, map[string]string{"detail": "user not found"})
}

func (f *fakeBackend) fetch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query())
	reject := f.rejectFetch
	f.mu.Unlock()
	if reject {
		writeJSONResponse(w, http.StatusUnauthorized, map[string]string{"detail": "token revoked"})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"endpoint": r.URL.Path, "rows": []int{1, 2, 3}})
}

// cliEnv runs commands against a fake backend with a private token dir
type cliEnv struct {
	backend  *fakeBackend
	tokenDir string
	env      map[string]string
	stdin    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	return &cliEnv{backend: newFakeBackend(t), tokenDir: t.TempDir(), env: map[string]string{}}
}

// run executes one CLI invocation the way main does: a fresh App and root
// command every time
func (e *cliEnv) run(args ...string) (string, error) {
	var out bytes.Buffer
	app := &App{
		Out:    &out,
		Err:    io.Discard,
		In:     strings.NewReader(e.stdin),
		Getenv: func(key string) string { return e.env[key] },
	}
	full := append([]string{"--backend", e.backend.URL, "--token-dir", e.tokenDir}, args...)
	err := NewRootCommand(app).Execute(context.Background(), &out, full)
	return out.String(), err
}

func (e *cliEnv) login(t *testing.T, email string) {
	t.Helper()
	if _, err := e.run("login", "-u", email, "-p", password); err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
}
