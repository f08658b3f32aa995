package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/session"
)

func newLoginCommand(app *App) *Command {
	cmd := newCommand("login", "Log in and save the session token", "backoffice-cli login -u <email> [-p <password>]")
	username := cmd.Flags.StringP("username", "u", "", "account email")
	password := cmd.Flags.StringP("password", "p", "", "password (default: $BACKOFFICE_PASSWORD or read from stdin)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 0); err != nil {
			return err
		}
		if *username == "" {
			return fmt.Errorf("--username is required: %w", ErrUsage)
		}
		pass := *password
		if pass == "" {
			pass = app.getenv("BACKOFFICE_PASSWORD")
		}
		if pass == "" {
			var err error
			if pass, err = readLine(app); err != nil {
				return err
			}
		}

		mgr, err := app.Manager()
		if err != nil {
			return err
		}
		state, err := mgr.Login(ctx, *username, pass)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Logged in as %s <%s>\n", fullName(state.User), state.User.Email)
		return nil
	}
	return cmd
}

func readLine(app *App) (string, error) {
	if app.In == nil {
		return "", fmt.Errorf("password is required: %w", ErrUsage)
	}
	fmt.Fprint(app.errOut(), "Password: ")
	line, err := bufio.NewReader(app.In).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password is required: %w", ErrUsage)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return line, nil
}

func newLogoutCommand(app *App) *Command {
	cmd := newCommand("logout", "Log out and remove the saved token", "backoffice-cli logout")
	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 0); err != nil {
			return err
		}
		mgr, err := app.Manager()
		if err != nil {
			return err
		}
		// restore first so the logout is recorded against the user
		if _, err := mgr.Restore(ctx); err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
			app.log().WithError(err).Debug("saved session not restored")
		}
		if err := mgr.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(app.Out, "Logged out")
		return nil
	}
	return cmd
}

func newWhoamiCommand(app *App) *Command {
	cmd := newCommand("whoami", "Show the logged-in user and their fund access", "backoffice-cli whoami [--json]")
	asJSON := cmd.Flags.Bool("json", false, "print the session state as JSON")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 0); err != nil {
			return err
		}
		_, state, err := app.restore(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(app, state)
		}

		fmt.Fprintf(app.Out, "User:   %s <%s> (id %d)\n", fullName(state.User), state.User.Email, state.User.ID)
		fmt.Fprintf(app.Out, "Admin:  %t\n", editor.CanAdminister(state))
		fmt.Fprintln(app.Out, "Funds:")
		visible := state.FundAccess.Visible()
		if len(visible) == 0 {
			fmt.Fprintln(app.Out, "  (none)")
		}
		for _, name := range visible.Names() {
			classes := visible[name].ClassNames()
			if len(classes) == 0 {
				fmt.Fprintf(app.Out, "  %s\n", name)
				continue
			}
			fmt.Fprintf(app.Out, "  %s: %s\n", name, strings.Join(classes, ", "))
		}
		return nil
	}
	return cmd
}

func fullName(u session.User) string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

func (a *App) errOut() io.Writer {
	if a.Err == nil {
		return a.Out
	}
	return a.Err
}

func writeJSON(app *App, v interface{}) error {
	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
