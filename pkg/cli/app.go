package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/backend"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/observability"
	"github.com/platinummonkey/backoffice/pkg/session"
)

// ErrNotLoggedIn is returned by commands that need a saved login
var ErrNotLoggedIn = errors.New("not logged in, run 'backoffice-cli login' first")

// App holds what every command shares: output streams, global flags and
// the lazily built client stack
type App struct {
	Out io.Writer
	Err io.Writer
	In  io.Reader

	BackendURL  string
	TokenDir    string
	CatalogPath string
	LogLevel    string

	// Getenv defaults to os.Getenv
	Getenv func(string) string

	logger  *observability.Logger
	client  *backend.Client
	catalog *catalog.Catalog
	manager *session.Manager
	audit   *audit.Recorder
}

// NewApp creates an App bound to the process streams and environment
func NewApp() *App {
	return &App{Out: os.Stdout, Err: os.Stderr, In: os.Stdin, Getenv: os.Getenv}
}

func (a *App) getenv(key string) string {
	if a.Getenv == nil {
		return os.Getenv(key)
	}
	return a.Getenv(key)
}

func (a *App) bindGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.BackendURL, "backend", a.getenv("BACKOFFICE_BACKEND_URL"), "back-office API base URL")
	fs.StringVar(&a.TokenDir, "token-dir", a.getenv("BACKOFFICE_TOKEN_DIR"), "directory holding the saved token (default: user config dir)")
	fs.StringVar(&a.CatalogPath, "catalog", a.getenv("BACKOFFICE_CATALOG_PATH"), "navigation catalog YAML (default: built-in)")
	fs.StringVar(&a.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func (a *App) log() *observability.Logger {
	if a.logger == nil {
		errOut := a.Err
		if errOut == nil {
			errOut = os.Stderr
		}
		a.logger = observability.NewLogger(observability.ParseLogLevel(a.LogLevel), errOut)
	}
	return a.logger
}

// Catalog loads the navigation catalog once
func (a *App) Catalog() (*catalog.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	if a.CatalogPath == "" {
		a.catalog = catalog.Default()
		return a.catalog, nil
	}
	cat, err := catalog.LoadFile(a.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.catalog = cat
	return cat, nil
}

// Manager builds the session manager over the saved token file
func (a *App) Manager() (*session.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}
	if a.BackendURL == "" {
		return nil, fmt.Errorf("backend URL is required (--backend or BACKOFFICE_BACKEND_URL): %w", ErrUsage)
	}
	client, err := backend.New(backend.Config{BaseURL: a.BackendURL})
	if err != nil {
		return nil, err
	}

	dir := a.TokenDir
	if dir == "" {
		if dir, err = session.DefaultTokenDir(); err != nil {
			return nil, err
		}
	}

	a.client = client
	a.audit = audit.NewRecorder(audit.NewLogSink(a.log()), nil, a.log())
	a.manager = session.NewManager(client, session.NewFileTokenStore(dir),
		session.WithAudit(a.audit),
		session.WithLogger(a.log()),
	)
	return a.manager, nil
}

// restore loads the saved login. A missing or expired token is reported as
// ErrNotLoggedIn.
func (a *App) restore(ctx context.Context) (*session.Manager, session.State, error) {
	mgr, err := a.Manager()
	if err != nil {
		return nil, session.State{}, err
	}
	state, err := mgr.Restore(ctx)
	switch {
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, backend.ErrUnauthorized):
		return nil, state, ErrNotLoggedIn
	case err != nil:
		return nil, state, err
	}
	return mgr, state, nil
}

// authorized returns a backend client carrying the session's token
func (a *App) authorized(ctx context.Context, mgr *session.Manager) (*backend.Client, error) {
	token, err := mgr.Token(ctx)
	if err != nil {
		return nil, ErrNotLoggedIn
	}
	return a.client.WithToken(token), nil
}

// Editor restores the login and opens a user editor on it
func (a *App) Editor(ctx context.Context) (*editor.UserEditor, *session.Manager, error) {
	mgr, _, err := a.restore(ctx)
	if err != nil {
		return nil, nil, err
	}
	cat, err := a.Catalog()
	if err != nil {
		return nil, nil, err
	}
	source := func(ctx context.Context) (editor.Backend, error) {
		return a.authorized(ctx, mgr)
	}
	ed := editor.New(source, mgr.Store(), editor.StaticCatalog(cat),
		editor.WithAudit(a.audit),
		editor.WithLogger(a.log()),
	)
	return ed, mgr, nil
}

// expired logs the session out after the backend rejected the token and
// translates the error for the user
func expired(ctx context.Context, mgr *session.Manager, err error) error {
	if mgr.HandleUnauthorized(ctx, err) {
		return fmt.Errorf("session expired, log in again: %w", ErrNotLoggedIn)
	}
	return err
}
