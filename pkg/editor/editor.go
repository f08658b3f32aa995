package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/session"
	"github.com/platinummonkey/backoffice/pkg/users"
)

// AdminPage is the catalog path whose Edit flag allows managing users
var AdminPage = []string{"cadastros", "usuarios", "usuariospage"}

var (
	// ErrNotLoaded is returned when no user is open in the editor
	ErrNotLoaded = errors.New("no user loaded in editor")

	// ErrForbidden is returned when the acting user may not edit users
	ErrForbidden = errors.New("user administration not allowed")

	// ErrNothingToUndo is returned by Undo with an empty history
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrSuperseded is returned when the editor was reopened or cancelled
	// while a backend call was in flight
	ErrSuperseded = errors.New("editor changed during request")
)

// Backend is the part of the REST API the editor uses
type Backend interface {
	GetUser(ctx context.Context, id int64) (*users.Record, error)
	UpdateUser(ctx context.Context, rec *users.Record) error
	CreateUser(ctx context.Context, rec *users.Record) (*users.Record, error)
	DeleteUser(ctx context.Context, id int64) error
	CheckUser(ctx context.Context, q backend.CheckQuery) (*users.Record, error)
	FundsWithClasses(ctx context.Context) (funds.Listing, error)
}

// BackendSource returns a Backend authorized as the acting user
type BackendSource func(ctx context.Context) (Backend, error)

// CatalogSource returns the catalog currently served. It is called on
// every use so a reloaded catalog takes effect in open editors.
type CatalogSource func() *catalog.Catalog

// StaticCatalog returns a CatalogSource that always yields cat
func StaticCatalog(cat *catalog.Catalog) CatalogSource {
	return func() *catalog.Catalog { return cat }
}

// CanAdminister reports whether a session may edit other users
func CanAdminister(state session.State) bool {
	return state.IsAuthenticated() && state.FullPermissions.CanEdit(AdminPage)
}

type snapshot struct {
	permissions permissions.Tree
	funds       funds.Tree
}

// UserEditor edits one user at a time on behalf of a logged-in session.
// The trees being edited live in the session's chosen state; the editor
// keeps the stored original, the profile form and the undo history.
//
// mu guards the editor fields only. Backend calls run unlocked; gen
// changes whenever a user is opened or closed, and a call whose gen no
// longer matches does not touch the editor when it returns.
type UserEditor struct {
	mu      sync.Mutex
	source  BackendSource
	store   *session.Store
	catalog CatalogSource
	audit   *audit.Recorder
	metrics *observability.Metrics
	logger  *observability.Logger

	original *users.Record
	profile  users.Profile
	password string
	creating bool
	history  []snapshot
	gen      uint64
}

// Option configures a UserEditor
type Option func(*UserEditor)

// WithAudit records submissions and deletions
func WithAudit(rec *audit.Recorder) Option {
	return func(e *UserEditor) { e.audit = rec }
}

// WithMetrics counts toggles and submissions
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *UserEditor) { e.metrics = metrics }
}

// WithLogger sets the editor's logger
func WithLogger(logger *observability.Logger) Option {
	return func(e *UserEditor) { e.logger = logger }
}

// New creates an editor for the session held by store
func New(source BackendSource, store *session.Store, cat CatalogSource, opts ...Option) *UserEditor {
	e := &UserEditor{source: source, store: store, catalog: cat}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return e
}

func (e *UserEditor) authorize() error {
	state := e.store.State()
	if !state.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}
	if !state.FullPermissions.CanEdit(AdminPage) {
		return ErrForbidden
	}
	return nil
}

func (e *UserEditor) backend(ctx context.Context) (Backend, error) {
	if err := e.authorize(); err != nil {
		return nil, err
	}
	return e.source(ctx)
}

// Load opens a user: the stored trees are copied into the session's chosen
// state and the history is reset
func (e *UserEditor) Load(ctx context.Context, userID int64) (*users.Record, error) {
	gen := e.generation()

	b, err := e.backend(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := b.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	if drift := permissions.Conform(rec.Permissions, e.catalog()); !drift.Empty() {
		e.logger.WithFields(map[string]interface{}{
			"target_user": userID,
			"missing":     drift.Missing,
			"extra":       drift.Extra,
		}).Warn("permission tree does not match the catalog")
	}

	if err := e.commitOpen(gen, rec, false); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// NewUser starts a creation flow. The trees cover the whole catalog and
// every fund and class the backend knows, all denied.
func (e *UserEditor) NewUser(ctx context.Context, profile users.Profile) error {
	gen := e.generation()

	b, err := e.backend(ctx)
	if err != nil {
		return err
	}
	listing, err := b.FundsWithClasses(ctx)
	if err != nil {
		return fmt.Errorf("list funds: %w", err)
	}

	profile.ID = 0
	rec := &users.Record{
		Profile:     profile,
		Permissions: permissions.Skeleton(e.catalog(), false, false),
		FundAccess:  funds.FromListing(listing, false),
	}
	return e.commitOpen(gen, rec, true)
}

func (e *UserEditor) generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// commitOpen loads rec into the chosen state unless another open or
// cancel happened since gen was read
func (e *UserEditor) commitOpen(gen uint64, rec *users.Record, creating bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return ErrSuperseded
	}
	if _, err := e.store.Dispatch(session.ChosenLoaded{Permissions: rec.Permissions, Funds: rec.FundAccess}); err != nil {
		return err
	}
	e.open(rec, creating)
	return nil
}

func (e *UserEditor) open(rec *users.Record, creating bool) {
	e.original = rec.Clone()
	e.original.Password = ""
	e.profile = rec.Profile
	e.password = ""
	e.creating = creating
	e.history = nil
	e.gen++
}

func (e *UserEditor) close() {
	e.original = nil
	e.profile = users.Profile{}
	e.password = ""
	e.creating = false
	e.history = nil
	e.gen++
}

// Loaded reports whether a user is open and whether it is a new one
func (e *UserEditor) Loaded() (loaded, creating bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.original != nil, e.creating
}

// Profile returns the profile being edited
func (e *UserEditor) Profile() (users.Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return users.Profile{}, ErrNotLoaded
	}
	return e.profile, nil
}

// SetProfile replaces the profile fields. The user id cannot change.
func (e *UserEditor) SetProfile(p users.Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return ErrNotLoaded
	}
	p.ID = e.original.ID
	e.profile = p
	return nil
}

// SetPassword sets the password sent with the next submission
func (e *UserEditor) SetPassword(password string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return ErrNotLoaded
	}
	e.password = password
	return nil
}

func (e *UserEditor) countToggle(tree string, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.EditorTogglesTotal.WithLabelValues(tree, status).Inc()
}

// apply runs one toggle against the chosen state. The editor lock keeps the
// read and the dispatch together so toggles apply in call order.
func (e *UserEditor) apply(tree string, next func(session.State) (session.Action, error)) (session.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.original == nil {
		e.countToggle(tree, ErrNotLoaded)
		return session.State{}, ErrNotLoaded
	}
	state := e.store.State()
	action, err := next(state)
	if err != nil {
		e.countToggle(tree, err)
		return state, err
	}

	committed, err := e.store.Dispatch(action)
	e.countToggle(tree, err)
	if err != nil {
		return committed, err
	}
	e.history = append(e.history, snapshot{permissions: state.ChosenPermissions, funds: state.ChosenFunds})
	return committed, nil
}

// TogglePermission flips field on the permission node at path
func (e *UserEditor) TogglePermission(path []string, field permissions.Field) (permissions.Tree, error) {
	state, err := e.apply("permissions", func(s session.State) (session.Action, error) {
		next, err := permissions.Toggle(s.ChosenPermissions, path, field)
		if err != nil {
			return nil, err
		}
		return session.ChosenPermissionsSet{Permissions: next}, nil
	})
	if err != nil {
		return nil, err
	}
	return state.ChosenPermissions, nil
}

// ToggleFund flips access to a whole fund. Its classes keep their flags.
func (e *UserEditor) ToggleFund(fund string) (funds.Tree, error) {
	state, err := e.apply("funds", func(s session.State) (session.Action, error) {
		next, err := funds.ToggleFund(s.ChosenFunds, fund)
		if err != nil {
			return nil, err
		}
		return session.ChosenFundsSet{Funds: next}, nil
	})
	if err != nil {
		return nil, err
	}
	return state.ChosenFunds, nil
}

// ToggleClass flips access to one class of a fund
func (e *UserEditor) ToggleClass(fund, class string) (funds.Tree, error) {
	state, err := e.apply("classes", func(s session.State) (session.Action, error) {
		next, err := funds.ToggleClass(s.ChosenFunds, fund, class)
		if err != nil {
			return nil, err
		}
		return session.ChosenFundsSet{Funds: next}, nil
	})
	if err != nil {
		return nil, err
	}
	return state.ChosenFunds, nil
}

// Undo reverts the most recent toggle
func (e *UserEditor) Undo() (session.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.original == nil {
		return session.State{}, ErrNotLoaded
	}
	if len(e.history) == 0 {
		return e.store.State(), ErrNothingToUndo
	}
	last := e.history[len(e.history)-1]
	state, err := e.store.Dispatch(session.ChosenLoaded{Permissions: last.permissions, Funds: last.funds})
	if err != nil {
		return state, err
	}
	e.history = e.history[:len(e.history)-1]
	return state, nil
}

// Dirty reports whether the open user has unsaved changes
func (e *UserEditor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return false
	}
	return e.dirty(e.store.State())
}

func (e *UserEditor) dirty(state session.State) bool {
	return e.creating ||
		e.password != "" ||
		e.profile != e.original.Profile ||
		!permissions.Equal(state.ChosenPermissions, e.original.Permissions) ||
		!funds.Equal(state.ChosenFunds, e.original.FundAccess)
}

// Payload returns the complete record the next submission will send
func (e *UserEditor) Payload() (*users.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.original == nil {
		return nil, ErrNotLoaded
	}
	return e.payload(e.store.State()), nil
}

func (e *UserEditor) payload(state session.State) *users.Record {
	return &users.Record{
		Profile:     e.profile.Normalized(),
		Password:    e.password,
		Permissions: state.ChosenPermissions.Clone(),
		FundAccess:  state.ChosenFunds.Clone(),
	}
}

func (e *UserEditor) countSubmission(kind, outcome string) {
	if e.metrics != nil {
		e.metrics.EditorSubmissionsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// pending is what a submission captured from the editor before calling the
// backend
type pending struct {
	gen      uint64
	original *users.Record
	profile  users.Profile
	password string
	creating bool
	record   *users.Record
}

func (p pending) kind() string {
	if p.creating {
		return "create"
	}
	return "update"
}

// prepare validates the open user and captures the submission under the
// lock
func (e *UserEditor) prepare() (pending, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.original == nil {
		return pending{}, ErrNotLoaded
	}
	p := pending{
		gen:      e.gen,
		original: e.original.Clone(),
		profile:  e.profile,
		password: e.password,
		creating: e.creating,
		record:   e.payload(e.store.State()),
	}
	if err := p.record.Validate(); err != nil {
		e.countSubmission(p.kind(), "invalid")
		return p, err
	}
	if p.creating && p.record.Password == "" {
		e.countSubmission(p.kind(), "invalid")
		return p, &users.ValidationError{Fields: map[string]string{"password": "required"}}
	}
	return p, nil
}

// Submit sends the open user with both trees in full: an update for a
// loaded user, a creation for a new one. On failure the chosen state and
// the form are kept so the caller can retry. Toggles made while the
// request is in flight stay pending against the submitted record.
func (e *UserEditor) Submit(ctx context.Context) (*users.Record, error) {
	ctx, span := observability.StartSpan(ctx, "editor.Submit")
	defer span.End()

	p, err := e.prepare()
	if err != nil {
		return nil, err
	}
	kind := p.kind()
	span.SetAttributes(attribute.String("kind", kind), attribute.Int64("target_user", p.original.ID))

	b, err := e.backend(ctx)
	if err != nil {
		e.countSubmission(kind, "denied")
		return nil, err
	}

	rec := p.record
	resourceID := strconv.FormatInt(rec.ID, 10)
	if p.creating {
		created, err := b.CreateUser(ctx, rec)
		if err != nil {
			return nil, e.submitFailed(ctx, span, kind, audit.EventTypeUserCreate, resourceID, err)
		}
		if created != nil {
			rec.ID = created.ID
			resourceID = strconv.FormatInt(created.ID, 10)
		}
	} else if err := b.UpdateUser(ctx, rec); err != nil {
		return nil, e.submitFailed(ctx, span, kind, audit.EventTypeUserUpdate, resourceID, err)
	}

	e.recordSubmission(ctx, p, resourceID)
	e.countSubmission(kind, "success")
	e.logger.WithFields(map[string]interface{}{
		"target_user": rec.ID,
		"kind":        kind,
	}).Info("user submitted")

	rec.Password = ""
	e.committed(p, rec)
	return rec.Clone(), nil
}

// committed makes rec the stored original when the same user is still
// open. Edits made during the request are kept.
func (e *UserEditor) committed(p pending, rec *users.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != p.gen {
		return
	}
	e.original = rec.Clone()
	e.creating = false
	if e.password == p.password {
		e.password = ""
	}
	if e.profile == p.profile {
		e.profile = rec.Profile
	} else {
		e.profile.ID = rec.ID
	}
	if len(e.history) == 0 || (permissions.Equal(e.store.State().ChosenPermissions, rec.Permissions) &&
		funds.Equal(e.store.State().ChosenFunds, rec.FundAccess)) {
		e.history = nil
	}
	e.gen++
}

func (e *UserEditor) submitFailed(ctx context.Context, span trace.Span, kind string, eventType audit.EventType, resourceID string, err error) error {
	e.countSubmission(kind, "failure")
	e.audit.LogFailure(ctx, eventType, audit.ResourceTypeUser, resourceID, err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("submit user: %w", err)
}

func (e *UserEditor) recordSubmission(ctx context.Context, p pending, resourceID string) {
	rec := p.record
	if p.creating {
		e.audit.LogDataMutation(ctx, audit.EventTypeUserCreate, audit.ResourceTypeUser, resourceID, nil, "user created")
	} else if p.profile != p.original.Profile || p.password != "" {
		e.audit.LogDataMutation(ctx, audit.EventTypeUserUpdate, audit.ResourceTypeUser, resourceID, nil, "profile updated")
	}
	if changes := PermissionChanges(p.original.Permissions, rec.Permissions); changes != nil {
		e.audit.LogDataMutation(ctx, audit.EventTypePermissionChange, audit.ResourceTypePermission, resourceID, changes, "permissions updated")
	}
	if changes := FundAccessChanges(p.original.FundAccess, rec.FundAccess); changes != nil {
		e.audit.LogDataMutation(ctx, audit.EventTypeFundAccessChange, audit.ResourceTypeFund, resourceID, changes, "fund access updated")
	}
}

// Cancel discards the open user and resets the chosen state to the acting
// user's own trees
func (e *UserEditor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *UserEditor) reset() {
	e.close()
	state := e.store.State()
	if state.IsAuthenticated() {
		_, _ = e.store.Dispatch(session.ChosenLoaded{Permissions: state.FullPermissions, Funds: state.FundAccess})
	}
}

// Delete removes the open user from the backend and closes the editor
func (e *UserEditor) Delete(ctx context.Context) error {
	e.mu.Lock()
	if e.original == nil || e.creating {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	gen, userID := e.gen, e.original.ID
	e.mu.Unlock()

	b, err := e.backend(ctx)
	if err != nil {
		return err
	}

	resourceID := strconv.FormatInt(userID, 10)
	if err := b.DeleteUser(ctx, userID); err != nil {
		e.audit.LogFailure(ctx, audit.EventTypeUserDelete, audit.ResourceTypeUser, resourceID, err)
		return fmt.Errorf("delete user %d: %w", userID, err)
	}
	e.audit.LogDataMutation(ctx, audit.EventTypeUserDelete, audit.ResourceTypeUser, resourceID, nil, "user deleted")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen {
		e.reset()
	}
	return nil
}

// FindUser looks a user up by email or CPF. A missing user unwraps to
// backend.ErrNotFound.
func (e *UserEditor) FindUser(ctx context.Context, email, cpf string) (*users.Record, error) {
	q := backend.CheckQuery{Email: email, CPF: users.Digits(cpf)}
	if q.Email == "" && q.CPF == "" {
		return nil, fmt.Errorf("find user: email or cpf is required")
	}
	b, err := e.backend(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := b.CheckUser(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return rec, nil
}
