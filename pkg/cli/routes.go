package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/backoffice/pkg/routes"
	"github.com/platinummonkey/backoffice/pkg/session"
)

// ErrPageDenied is returned for pages outside the user's route table
var ErrPageDenied = errors.New("page not available to this user")

func (a *App) routeTable(state session.State) (*routes.Table, error) {
	cat, err := a.Catalog()
	if err != nil {
		return nil, err
	}
	return routes.Generate(cat, state.FullPermissions, routes.DefaultRegistry()), nil
}

func newRoutesCommand(app *App) *Command {
	cmd := newCommand("routes", "List the pages the logged-in user can open", "backoffice-cli routes [--json | --menu]")
	asJSON := cmd.Flags.Bool("json", false, "print the route table as JSON")
	menu := cmd.Flags.Bool("menu", false, "print the menu tree instead of the flat list")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 0); err != nil {
			return err
		}
		_, state, err := app.restore(ctx)
		if err != nil {
			return err
		}
		table, err := app.routeTable(state)
		if err != nil {
			return err
		}

		switch {
		case *asJSON:
			return writeJSON(app, table)
		case *menu:
			printMenu(app, table.Menu, 0)
			return nil
		}

		tw := tabwriter.NewWriter(app.Out, 2, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "PATH\tLABEL\tCOMPONENT\tSCOPE\tEDIT")
		for _, r := range table.Routes {
			scope := string(r.Component.Scope)
			if scope == "" {
				scope = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.Path, r.Label, r.Component.Name, scope, r.CanEdit)
		}
		return tw.Flush()
	}
	return cmd
}

func printMenu(app *App, items []*routes.MenuItem, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		if item.Path != "" {
			fmt.Fprintf(app.Out, "%s%s  %s\n", indent, item.Label, item.Path)
			continue
		}
		fmt.Fprintf(app.Out, "%s%s\n", indent, item.Label)
		printMenu(app, item.Children, depth+1)
	}
}

func newPageCommand(app *App) *Command {
	cmd := newCommand("page", "Fetch the data behind a page", "backoffice-cli page <path> [--fund F [--class C]] [--param k=v ...]")
	fund := cmd.Flags.String("fund", "", "fund to browse")
	class := cmd.Flags.String("class", "", "share class to browse")
	params := cmd.Flags.StringArray("param", nil, "extra query parameter as key=value (repeatable)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 1); err != nil {
			return err
		}
		query := url.Values{}
		for _, p := range *params {
			k, v, ok := strings.Cut(p, "=")
			if !ok || k == "" {
				return fmt.Errorf("--param %q: expected key=value: %w", p, ErrUsage)
			}
			query.Add(k, v)
		}

		mgr, state, err := app.restore(ctx)
		if err != nil {
			return err
		}
		table, err := app.routeTable(state)
		if err != nil {
			return err
		}
		route, ok := table.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%s: %w", args[0], ErrPageDenied)
		}
		comp := route.Component
		if comp.DataEndpoint == "" {
			return fmt.Errorf("%s has no data endpoint", route.Path)
		}

		if *fund != "" || *class != "" {
			if state, err = mgr.SelectFund(*fund, *class); err != nil {
				return err
			}
		}
		if msg := comp.MissingSelection(state.SelectedFund, state.SelectedClass); msg != "" {
			return fmt.Errorf("%s: %s (--fund/--class): %w", route.Path, msg, ErrUsage)
		}

		client, err := app.authorized(ctx, mgr)
		if err != nil {
			return err
		}
		payload, err := client.Fetch(ctx, comp.DataEndpoint, comp.Query(query, state.SelectedFund, state.SelectedClass))
		if err != nil {
			return expired(ctx, mgr, err)
		}

		if _, err := app.Out.Write(payload.Body); err != nil {
			return err
		}
		if len(payload.Body) > 0 && payload.Body[len(payload.Body)-1] != '\n' {
			fmt.Fprintln(app.Out)
		}
		return nil
	}
	return cmd
}
