package api

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/users"
)

func adminBrowser(t *testing.T, g *gateway) *browser {
	t.Helper()
	b := g.browser(t)
	require.Equal(t, http.StatusOK, b.login(t, adminEmail).StatusCode)
	return b
}

func readView(t *testing.T, resp *http.Response, status int) EditorView {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	var v EditorView
	decode(t, resp, &v)
	return v
}

func TestAdminRoutes_RequireAdministrator(t *testing.T) {
	g := newGateway(t)

	anon := g.browser(t)
	assert.Equal(t, http.StatusUnauthorized, anon.do(t, http.MethodGet, "/api/admin/users/7/editor", nil).StatusCode)

	viewer := g.browser(t)
	require.Equal(t, http.StatusOK, viewer.login(t, viewerEmail).StatusCode)
	resp := viewer.do(t, http.MethodGet, "/api/admin/users/7/editor", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, httputil.CodeForbidden, decodeError(t, resp).Code)

	denied := g.audit.byType(audit.EventTypeAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "/cadastros/usuarios/usuariospage", denied[0].ResourceID)
	assert.Equal(t, viewerEmail, denied[0].Username)
}

func TestEditor_EditAndSubmit(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)

	v := readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)
	assert.Equal(t, int64(7), v.Profile.ID)
	assert.Equal(t, "Ana", v.Profile.Name)
	assert.False(t, v.Creating)
	assert.False(t, v.Dirty)
	assert.False(t, v.Permissions["cotas"].Access)

	v = readView(t, b.do(t, http.MethodPost, "/api/admin/users/7/editor/permissions/toggle",
		togglePermissionRequest{Path: []string{"cotas"}, Field: "access"}), http.StatusOK)
	assert.True(t, v.Permissions["cotas"].Access)
	assert.True(t, v.Dirty)

	v = readView(t, b.do(t, http.MethodPost, "/api/admin/users/7/editor/funds/toggle",
		toggleFundRequest{Fund: "FIDC A", Class: "senior"}), http.StatusOK)
	assert.True(t, v.Funds["FIDC A"].Classes["senior"].Access)

	v = readView(t, b.do(t, http.MethodPost, "/api/admin/users/7/editor/undo", nil), http.StatusOK)
	assert.False(t, v.Funds["FIDC A"].Classes["senior"].Access)
	assert.True(t, v.Permissions["cotas"].Access)

	v = readView(t, b.do(t, http.MethodPut, "/api/admin/users/7/editor", nil), http.StatusOK)
	assert.False(t, v.Dirty)

	g.backend.mu.Lock()
	updated := g.backend.updated
	g.backend.mu.Unlock()
	require.Len(t, updated, 1)
	assert.Equal(t, int64(7), updated[0].ID)
	assert.True(t, updated[0].Permissions["cotas"].Access)
	assert.False(t, updated[0].FundAccess["FIDC A"].Classes["senior"].Access)
	assert.Empty(t, updated[0].Password)

	changes := g.audit.byType(audit.EventTypePermissionChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "7", changes[0].ResourceID)
	assert.Empty(t, g.audit.byType(audit.EventTypeFundAccessChange))
	assert.Equal(t, float64(1), testutil.ToFloat64(g.metrics.EditorSubmissionsTotal.WithLabelValues("update", "success")))

	// the admin's own session is untouched by the edit
	var state sessionBody
	decode(t, b.do(t, http.MethodGet, "/api/session", nil), &state)
	assert.True(t, state.CanAdminister)
}

func TestEditor_PathMustMatchOpenUser(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)

	resp := b.do(t, http.MethodPost, "/api/admin/users/7/editor/undo", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)

	resp = b.do(t, http.MethodPut, "/api/admin/users/8/editor", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, httputil.CodeConflict, decodeError(t, resp).Code)

	assert.Equal(t, http.StatusConflict, b.do(t, http.MethodGet, "/api/admin/users/new/editor", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodPost, "/api/admin/users/abc/editor/undo", nil).StatusCode)

	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()
	assert.Empty(t, g.backend.updated)
}

func TestEditor_LoadUnknownUser(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)

	resp := b.do(t, http.MethodGet, "/api/admin/users/99/editor", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, httputil.CodeNotFound, decodeError(t, resp).Code)
}

func TestEditor_Errors(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)
	readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "nothing to undo",
			method: http.MethodPost,
			path:   "/api/admin/users/7/editor/undo",
			status: http.StatusConflict,
			code:   httputil.CodeConflict,
		},
		{
			name:   "unknown permission path",
			method: http.MethodPost,
			path:   "/api/admin/users/7/editor/permissions/toggle",
			body:   togglePermissionRequest{Path: []string{"nope"}, Field: "access"},
			status: http.StatusNotFound,
			code:   httputil.CodeNotFound,
		},
		{
			name:   "empty permission path",
			method: http.MethodPost,
			path:   "/api/admin/users/7/editor/permissions/toggle",
			body:   togglePermissionRequest{Field: "access"},
			status: http.StatusBadRequest,
			code:   httputil.CodeValidation,
		},
		{
			name:   "unknown permission field",
			method: http.MethodPost,
			path:   "/api/admin/users/7/editor/permissions/toggle",
			body:   togglePermissionRequest{Path: []string{"cotas"}, Field: "delete"},
			status: http.StatusBadRequest,
			code:   httputil.CodeValidation,
		},
		{
			name:   "unknown fund",
			method: http.MethodPost,
			path:   "/api/admin/users/7/editor/funds/toggle",
			body:   toggleFundRequest{Fund: "FIDC Z"},
			status: http.StatusNotFound,
			code:   httputil.CodeNotFound,
		},
		{
			name:   "fund required",
			method: http.MethodPost,
			path:   "/api/admin/users/7/editor/funds/toggle",
			body:   toggleFundRequest{Class: "senior"},
			status: http.StatusBadRequest,
			code:   httputil.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := b.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp).Code)
		})
	}
}

func TestEditor_InvalidProfile(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)
	v := readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)

	profile := v.Profile
	profile.Email = "not-an-address"
	profile.CPF = "123"
	v = readView(t, b.do(t, http.MethodPut, "/api/admin/users/7/editor/profile", profileRequest{Profile: &profile}), http.StatusOK)
	assert.Equal(t, "not-an-address", v.Profile.Email)
	assert.True(t, v.Dirty)

	resp := b.do(t, http.MethodPut, "/api/admin/users/7/editor", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, httputil.CodeValidation, body.Code)
	assert.Equal(t, "invalid address", body.Details["email"])
	assert.Contains(t, body.Details, "cpf")

	// a failed save keeps the form
	v = readView(t, b.do(t, http.MethodPut, "/api/admin/users/7/editor/profile", profileRequest{}), http.StatusOK)
	assert.Equal(t, "not-an-address", v.Profile.Email)
	assert.True(t, v.Dirty)

	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()
	assert.Empty(t, g.backend.updated)
}

func TestEditor_CreateUser(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)

	v := readView(t, b.do(t, http.MethodPost, "/api/admin/users",
		users.Profile{Name: "Nina", Surname: "Nova", Email: "nina@fund.example"}), http.StatusCreated)
	assert.True(t, v.Creating)
	assert.Zero(t, v.Profile.ID)
	require.Contains(t, v.Funds, "FIDC A")
	assert.False(t, v.Funds["FIDC A"].Access)
	assert.Contains(t, v.Funds["FIDC A"].Classes, "mezanino")
	assert.False(t, v.Permissions["cotas"].Access)

	readView(t, b.do(t, http.MethodPost, "/api/admin/users/new/editor/funds/toggle",
		toggleFundRequest{Fund: "FIDC B"}), http.StatusOK)

	resp := b.do(t, http.MethodPut, "/api/admin/users/new/editor", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "required", decodeError(t, resp).Details["password"])

	pw := "s3nha"
	v = readView(t, b.do(t, http.MethodPut, "/api/admin/users/new/editor", profileRequest{Password: &pw}), http.StatusCreated)
	assert.False(t, v.Creating)
	assert.Equal(t, int64(createdID), v.Profile.ID)

	g.backend.mu.Lock()
	created := g.backend.created
	g.backend.mu.Unlock()
	require.Len(t, created, 1)
	assert.Equal(t, "nina@fund.example", created[0].Email)
	assert.Equal(t, pw, created[0].Password)
	assert.True(t, created[0].FundAccess["FIDC B"].Access)

	creates := g.audit.byType(audit.EventTypeUserCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, "42", creates[0].ResourceID)

	// the created user is now addressed by its id
	assert.Equal(t, http.StatusConflict, b.do(t, http.MethodGet, "/api/admin/users/new/editor", nil).StatusCode)
	v = readView(t, b.do(t, http.MethodPost, "/api/admin/users/42/editor/funds/toggle",
		toggleFundRequest{Fund: "FIDC A"}), http.StatusOK)
	assert.True(t, v.Dirty)
}

func TestEditor_NewUserFollowsCatalogReload(t *testing.T) {
	g := newGateway(t)
	// the session and its editor exist before the reload
	b := adminBrowser(t, g)

	sections := append([]*catalog.Node{}, catalog.Default().Sections...)
	next := catalog.New(append(sections, &catalog.Node{Key: "extra", Label: "Extra", Children: []*catalog.Node{
		{Key: "extra_relatorio", Label: "Relatório extra"},
	}})...)
	require.NoError(t, g.server.SetCatalog(next))

	v := readView(t, b.do(t, http.MethodPost, "/api/admin/users",
		users.Profile{Name: "Nina", Surname: "Nova", Email: "nina@fund.example"}), http.StatusCreated)
	require.Contains(t, v.Permissions, "extra")
	assert.False(t, v.Permissions["extra"].Access)
	assert.Contains(t, v.Permissions["extra"].Children, "extra_relatorio")
}

func TestEditor_CancelAndDelete(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)

	readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)
	assert.Equal(t, http.StatusNoContent, b.do(t, http.MethodDelete, "/api/admin/users/7/editor", nil).StatusCode)
	assert.Equal(t, http.StatusConflict, b.do(t, http.MethodDelete, "/api/admin/users/7", nil).StatusCode)

	readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)
	assert.Equal(t, http.StatusNoContent, b.do(t, http.MethodDelete, "/api/admin/users/7", nil).StatusCode)

	g.backend.mu.Lock()
	deleted := append([]int64(nil), g.backend.deleted...)
	g.backend.mu.Unlock()
	assert.Equal(t, []int64{7}, deleted)

	deletes := g.audit.byType(audit.EventTypeUserDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, "7", deletes[0].ResourceID)
	assert.Equal(t, adminEmail, deletes[0].Username)

	// the editor is closed after a delete
	assert.Equal(t, http.StatusConflict, b.do(t, http.MethodPost, "/api/admin/users/7/editor/undo", nil).StatusCode)
}

func TestFindUser(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)

	resp := b.do(t, http.MethodPost, "/api/admin/users/check", findUserRequest{Email: "ana@fund.example"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile users.Profile
	decode(t, resp, &profile)
	assert.Equal(t, int64(7), profile.ID)
	assert.Equal(t, "Lima", profile.Surname)

	resp = b.do(t, http.MethodPost, "/api/admin/users/check", findUserRequest{Email: "nobody@fund.example"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = b.do(t, http.MethodPost, "/api/admin/users/check", findUserRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, httputil.CodeValidation, decodeError(t, resp).Code)
}

func TestLogin_ClosesOpenEditor(t *testing.T) {
	g := newGateway(t)
	b := adminBrowser(t, g)
	readView(t, b.do(t, http.MethodGet, "/api/admin/users/7/editor", nil), http.StatusOK)

	require.Equal(t, http.StatusOK, b.login(t, adminEmail).StatusCode)
	assert.Equal(t, http.StatusConflict, b.do(t, http.MethodPut, "/api/admin/users/7/editor", nil).StatusCode)
}
