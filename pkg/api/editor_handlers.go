package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/httputil"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/users"
)

// newUserID addresses the user being created in editor routes
const newUserID = "new"

// EditorView is the state of the session's user editor
type EditorView struct {
	Profile     users.Profile    `json:"profile"`
	Creating    bool             `json:"creating"`
	Dirty       bool             `json:"dirty"`
	Permissions permissions.Tree `json:"permissions"`
	Funds       funds.Tree       `json:"funds"`
}

type profileRequest struct {
	Profile  *users.Profile `json:"profile,omitempty"`
	Password *string        `json:"password,omitempty"`
}

type togglePermissionRequest struct {
	Path  []string `json:"path"`
	Field string   `json:"field"`
}

type toggleFundRequest struct {
	Fund  string `json:"fund"`
	Class string `json:"class,omitempty"`
}

type findUserRequest struct {
	Email string `json:"email,omitempty"`
	CPF   string `json:"cpf,omitempty"`
}

// registerEditorRoutes registers the user administration routes
func (s *Server) registerEditorRoutes(router *mux.Router) {
	router.HandleFunc("/users", s.newUser).Methods("POST")
	router.HandleFunc("/users/check", s.findUser).Methods("POST")
	router.HandleFunc("/users/{id:[0-9]+}", s.deleteUser).Methods("DELETE")

	router.HandleFunc("/users/{id}/editor", s.loadEditor).Methods("GET")
	router.HandleFunc("/users/{id}/editor", s.submitEditor).Methods("PUT")
	router.HandleFunc("/users/{id}/editor", s.cancelEditor).Methods("DELETE")
	router.HandleFunc("/users/{id}/editor/profile", s.setProfile).Methods("PUT")
	router.HandleFunc("/users/{id}/editor/permissions/toggle", s.togglePermission).Methods("POST")
	router.HandleFunc("/users/{id}/editor/funds/toggle", s.toggleFund).Methods("POST")
	router.HandleFunc("/users/{id}/editor/undo", s.undo).Methods("POST")
}

func (s *Server) view(gs *gatewaySession) (EditorView, error) {
	profile, err := gs.editor.Profile()
	if err != nil {
		return EditorView{}, err
	}
	_, creating := gs.editor.Loaded()
	state := gs.manager.State()
	return EditorView{
		Profile:     profile,
		Creating:    creating,
		Dirty:       gs.editor.Dirty(),
		Permissions: state.ChosenPermissions,
		Funds:       state.ChosenFunds,
	}, nil
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, gs *gatewaySession, status int) {
	v, err := s.view(gs)
	if err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	_ = httputil.WriteJSON(w, status, v)
}

// editorFor returns the session's editor after checking that the user in
// the path is the one open in it
func (s *Server) editorFor(w http.ResponseWriter, r *http.Request) (*gatewaySession, bool) {
	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}

	id := mux.Vars(r)["id"]
	loaded, creating := gs.editor.Loaded()
	if !loaded {
		s.writeError(w, r, gs, editor.ErrNotLoaded)
		return nil, false
	}
	if id == newUserID {
		if !creating {
			httputil.WriteConflict(w, "no new user is open in the editor")
			return nil, false
		}
		return gs, true
	}

	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("invalid user id: %s", id))
		return nil, false
	}
	profile, err := gs.editor.Profile()
	if err != nil {
		s.writeError(w, r, gs, err)
		return nil, false
	}
	if creating || profile.ID != userID {
		httputil.WriteConflict(w, fmt.Sprintf("user %d is not open in the editor", userID))
		return nil, false
	}
	return gs, true
}

// loadEditor handles GET /api/admin/users/{id}/editor. A numeric id loads
// the user from the backend, discarding whatever was open.
func (s *Server) loadEditor(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["id"] == newUserID {
		if gs, ok := s.editorFor(w, r); ok {
			s.writeView(w, r, gs, http.StatusOK)
		}
		return
	}

	userID, ok := httputil.ParseIDOrError(w, r, "id")
	if !ok {
		return
	}
	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if _, err := gs.editor.Load(r.Context(), userID); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	s.writeView(w, r, gs, http.StatusOK)
}

// newUser handles POST /api/admin/users: it opens a blank user whose trees
// cover the catalog and every fund, all denied
func (s *Server) newUser(w http.ResponseWriter, r *http.Request) {
	var profile users.Profile
	if !httputil.ParseJSONOrError(w, r, &profile) {
		return
	}
	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := gs.editor.NewUser(r.Context(), profile); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	s.writeView(w, r, gs, http.StatusCreated)
}

// setProfile handles PUT /api/admin/users/{id}/editor/profile
func (s *Server) setProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := applyProfile(gs.editor, req); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	s.writeView(w, r, gs, http.StatusOK)
}

func applyProfile(ed *editor.UserEditor, req profileRequest) error {
	if req.Profile != nil {
		if err := ed.SetProfile(*req.Profile); err != nil {
			return err
		}
	}
	if req.Password != nil {
		if err := ed.SetPassword(*req.Password); err != nil {
			return err
		}
	}
	return nil
}

// togglePermission handles POST /api/admin/users/{id}/editor/permissions/toggle
func (s *Server) togglePermission(w http.ResponseWriter, r *http.Request) {
	var req togglePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Path) == 0 {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeValidation, "path is required")
		return
	}
	field, err := permissions.ParseField(req.Field)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if _, err := gs.editor.TogglePermission(req.Path, field); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	s.writeView(w, r, gs, http.StatusOK)
}

// toggleFund handles POST /api/admin/users/{id}/editor/funds/toggle. With
// a class only that class flips; without one the whole fund does.
func (s *Server) toggleFund(w http.ResponseWriter, r *http.Request) {
	var req toggleFundRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Fund, "fund") {
		return
	}

	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	var err error
	if req.Class != "" {
		_, err = gs.editor.ToggleClass(req.Fund, req.Class)
	} else {
		_, err = gs.editor.ToggleFund(req.Fund)
	}
	if err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	s.writeView(w, r, gs, http.StatusOK)
}

// undo handles POST /api/admin/users/{id}/editor/undo
func (s *Server) undo(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if _, err := gs.editor.Undo(); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	s.writeView(w, r, gs, http.StatusOK)
}

// submitEditor handles PUT /api/admin/users/{id}/editor. The body may
// carry last-moment profile or password changes. Both trees are sent in
// full; a failed save keeps the editor as it was.
func (s *Server) submitEditor(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if r.ContentLength != 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	}
	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := applyProfile(gs.editor, req); err != nil {
		s.writeError(w, r, gs, err)
		return
	}

	_, creating := gs.editor.Loaded()
	if _, err := gs.editor.Submit(r.Context()); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	status := http.StatusOK
	if creating {
		status = http.StatusCreated
	}
	s.writeView(w, r, gs, status)
}

// cancelEditor handles DELETE /api/admin/users/{id}/editor
func (s *Server) cancelEditor(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	gs.editor.Cancel()
	httputil.WriteNoContent(w)
}

// deleteUser handles DELETE /api/admin/users/{id}. The user must be open
// in the editor so the deletion is made against what the admin saw.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := gs.editor.Delete(r.Context()); err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	httputil.WriteNoContent(w)
}

// findUser handles POST /api/admin/users/check
func (s *Server) findUser(w http.ResponseWriter, r *http.Request) {
	var req findUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" && req.CPF == "" {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeValidation, "email or cpf is required")
		return
	}
	gs, ok := s.current(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	rec, err := gs.editor.FindUser(r.Context(), req.Email, req.CPF)
	if err != nil {
		s.writeError(w, r, gs, err)
		return
	}
	_ = httputil.WriteSuccess(w, rec.Profile)
}
