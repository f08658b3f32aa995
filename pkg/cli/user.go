package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/editor"
	"github.com/platinummonkey/backoffice/pkg/permissions"
	"github.com/platinummonkey/backoffice/pkg/users"
)

func newUserCommand(app *App) *Command {
	cmd := newCommand("user", "Manage dashboard users (administrators only)", "backoffice-cli user <command> [args]")
	cmd.Flags.SetInterspersed(false)
	cmd.Subcommands = make(map[string]*Command)
	for _, sub := range []*Command{
		newUserShowCommand(app),
		newUserEditCommand(app),
		newUserCreateCommand(app),
		newUserFindCommand(app),
		newUserDeleteCommand(app),
	} {
		cmd.Subcommands[sub.Name] = sub
	}
	return cmd
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q: %w", arg, ErrUsage)
	}
	return id, nil
}

func newUserShowCommand(app *App) *Command {
	cmd := newCommand("show", "Show a user with both access trees", "backoffice-cli user show <id> [--json]")
	asJSON := cmd.Flags.Bool("json", false, "print the record as JSON")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 1); err != nil {
			return err
		}
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		ed, mgr, err := app.Editor(ctx)
		if err != nil {
			return err
		}
		rec, err := ed.Load(ctx, id)
		if err != nil {
			return expired(ctx, mgr, err)
		}
		if *asJSON {
			return writeJSON(app, rec)
		}
		printRecord(app.Out, rec)
		return nil
	}
	return cmd
}

func printRecord(w io.Writer, rec *users.Record) {
	fmt.Fprintf(w, "ID:       %d\n", rec.ID)
	fmt.Fprintf(w, "Name:     %s\n", rec.FullName())
	fmt.Fprintf(w, "Email:    %s\n", rec.Email)
	if rec.CPF != "" {
		fmt.Fprintf(w, "CPF:      %s\n", users.FormatCPF(rec.CPF))
	}
	if rec.Company != "" {
		fmt.Fprintf(w, "Company:  %s\n", rec.Company)
	}
	if rec.CNPJ != "" {
		fmt.Fprintf(w, "CNPJ:     %s\n", users.FormatCNPJ(rec.CNPJ))
	}

	fmt.Fprintln(w, "Permissions:")
	for _, path := range rec.Permissions.Paths() {
		node, _ := rec.Permissions.Lookup(path)
		fmt.Fprintf(w, "  %-50s %s\n", catalog.RoutePath(path), permFlags(node))
	}

	fmt.Fprintln(w, "Funds:")
	for _, name := range rec.FundAccess.Names() {
		entry := rec.FundAccess[name]
		if entry == nil {
			continue
		}
		fmt.Fprintf(w, "  %-50s %s\n", name, mark(entry.Access))
		for _, class := range entry.ClassNames() {
			fmt.Fprintf(w, "  %-50s %s\n", name+"/"+class, mark(entry.Classes[class].Access))
		}
	}
}

func permFlags(n *permissions.Node) string {
	if n == nil {
		return "-"
	}
	flags := []string{}
	if n.Access {
		flags = append(flags, "access")
	}
	if n.Edit {
		flags = append(flags, "edit")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func mark(granted bool) string {
	if granted {
		return "access"
	}
	return "-"
}

// editFlags are the flags shared by edit and create
type editFlags struct {
	toggles  *[]string
	funds    *[]string
	classes  *[]string
	password *string
	dryRun   *bool

	name, surname, email, cpf, company, cnpj *string
}

func bindEditFlags(fs *pflag.FlagSet) *editFlags {
	return &editFlags{
		toggles:  fs.StringArray("toggle", nil, "flip a permission: /section/.../page[:access|edit] (repeatable)"),
		funds:    fs.StringArray("fund", nil, "flip access to a fund (repeatable)"),
		classes:  fs.StringArray("class", nil, "flip access to a class as FUND/CLASS (repeatable)"),
		password: fs.String("password", "", "set the password"),
		dryRun:   fs.Bool("dry-run", false, "print the changes without submitting"),
		name:     fs.String("name", "", "first name"),
		surname:  fs.String("surname", "", "surname"),
		email:    fs.String("email", "", "email"),
		cpf:      fs.String("cpf", "", "CPF"),
		company:  fs.String("company", "", "company"),
		cnpj:     fs.String("cnpj", "", "CNPJ"),
	}
}

// profile overlays the profile flags that were set on p
func (f *editFlags) profile(fs *pflag.FlagSet, p users.Profile) users.Profile {
	for _, field := range []struct {
		flag string
		dst  *string
		src  *string
	}{
		{"name", &p.Name, f.name},
		{"surname", &p.Surname, f.surname},
		{"email", &p.Email, f.email},
		{"cpf", &p.CPF, f.cpf},
		{"company", &p.Company, f.company},
		{"cnpj", &p.CNPJ, f.cnpj},
	} {
		if fs.Changed(field.flag) {
			*field.dst = *field.src
		}
	}
	return p
}

// apply runs the toggles, profile changes and password against the open
// editor in flag order: permissions, funds, classes
func (f *editFlags) apply(fs *pflag.FlagSet, ed *editor.UserEditor) error {
	for _, t := range *f.toggles {
		path, field, err := parseToggle(t)
		if err != nil {
			return err
		}
		if _, err := ed.TogglePermission(path, field); err != nil {
			return fmt.Errorf("--toggle %s: %w", t, err)
		}
	}
	for _, fund := range *f.funds {
		if _, err := ed.ToggleFund(fund); err != nil {
			return fmt.Errorf("--fund %s: %w", fund, err)
		}
	}
	for _, c := range *f.classes {
		fund, class, ok := strings.Cut(c, "/")
		if !ok || fund == "" || class == "" {
			return fmt.Errorf("--class %q: expected FUND/CLASS: %w", c, ErrUsage)
		}
		if _, err := ed.ToggleClass(fund, class); err != nil {
			return fmt.Errorf("--class %s: %w", c, err)
		}
	}

	current, err := ed.Profile()
	if err != nil {
		return err
	}
	if err := ed.SetProfile(f.profile(fs, current)); err != nil {
		return err
	}
	if *f.password != "" {
		return ed.SetPassword(*f.password)
	}
	return nil
}

// parseToggle splits "/cotas/cotas:edit" into a key path and a field.
// The field defaults to access.
func parseToggle(s string) ([]string, permissions.Field, error) {
	route, name, hasField := strings.Cut(s, ":")
	field := permissions.Access
	if hasField {
		var err error
		if field, err = permissions.ParseField(name); err != nil {
			return nil, 0, fmt.Errorf("--toggle %q: %v: %w", s, err, ErrUsage)
		}
	}
	path := catalog.SplitPath(route)
	if len(path) == 0 {
		return nil, 0, fmt.Errorf("--toggle %q: empty path: %w", s, ErrUsage)
	}
	return path, field, nil
}

// printChanges writes the pending tree changes of the open user
func printChanges(w io.Writer, before, after *users.Record) {
	perm := editor.PermissionChanges(before.Permissions, after.Permissions)
	fund := editor.FundAccessChanges(before.FundAccess, after.FundAccess)
	profileChanged := before.Profile.Normalized() != after.Profile
	if perm == nil && fund == nil && !profileChanged {
		fmt.Fprintln(w, "No changes")
		return
	}
	if profileChanged {
		fmt.Fprintf(w, "profile: %s <%s> -> %s <%s>\n", before.FullName(), before.Email, after.FullName(), after.Email)
	}
	printDetails(w, "permission", perm)
	printDetails(w, "fund", fund)
}

func printDetails(w io.Writer, kind string, changes *audit.ChangeDetails) {
	if changes == nil {
		return
	}
	keys := make(map[string]bool)
	for k := range changes.Before {
		keys[k] = true
	}
	for k := range changes.After {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		fmt.Fprintf(w, "%s %s: %s -> %s\n", kind, k, describe(changes.Before[k]), describe(changes.After[k]))
	}
}

func describe(v interface{}) string {
	if v == nil {
		return "absent"
	}
	return fmt.Sprintf("%+v", v)
}

func newUserEditCommand(app *App) *Command {
	cmd := newCommand("edit", "Change a user's profile, permissions or fund access", "backoffice-cli user edit <id> [--toggle P[:field]] [--fund F] [--class F/C] [profile flags]")
	ef := bindEditFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 1); err != nil {
			return err
		}
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		ed, mgr, err := app.Editor(ctx)
		if err != nil {
			return err
		}
		before, err := ed.Load(ctx, id)
		if err != nil {
			return expired(ctx, mgr, err)
		}
		if err := ef.apply(cmd.Flags, ed); err != nil {
			return err
		}

		after, err := ed.Payload()
		if err != nil {
			return err
		}
		printChanges(app.Out, before, after)
		if *ef.dryRun || !ed.Dirty() {
			ed.Cancel()
			return nil
		}

		if _, err := ed.Submit(ctx); err != nil {
			return expired(ctx, mgr, err)
		}
		fmt.Fprintf(app.Out, "Updated user %d\n", id)
		return nil
	}
	return cmd
}

func newUserCreateCommand(app *App) *Command {
	cmd := newCommand("create", "Create a user; every page and fund starts denied", "backoffice-cli user create --name N --surname S --email E --password P [--toggle P[:field]] [--fund F] [--class F/C]")
	ef := bindEditFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 0); err != nil {
			return err
		}
		ed, mgr, err := app.Editor(ctx)
		if err != nil {
			return err
		}
		if err := ed.NewUser(ctx, ef.profile(cmd.Flags, users.Profile{})); err != nil {
			return expired(ctx, mgr, err)
		}
		if err := ef.apply(cmd.Flags, ed); err != nil {
			return err
		}

		if *ef.dryRun {
			rec, err := ed.Payload()
			if err != nil {
				return err
			}
			rec.Password = ""
			ed.Cancel()
			return writeJSON(app, rec)
		}

		created, err := ed.Submit(ctx)
		if err != nil {
			return expired(ctx, mgr, err)
		}
		fmt.Fprintf(app.Out, "Created user %d <%s>\n", created.ID, created.Email)
		return nil
	}
	return cmd
}

func newUserFindCommand(app *App) *Command {
	cmd := newCommand("find", "Look a user up by email or CPF", "backoffice-cli user find (--email E | --cpf C)")
	email := cmd.Flags.String("email", "", "email to look up")
	cpf := cmd.Flags.String("cpf", "", "CPF to look up")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 0); err != nil {
			return err
		}
		if *email == "" && *cpf == "" {
			return fmt.Errorf("--email or --cpf is required: %w", ErrUsage)
		}
		ed, mgr, err := app.Editor(ctx)
		if err != nil {
			return err
		}
		rec, err := ed.FindUser(ctx, *email, *cpf)
		if err != nil {
			return expired(ctx, mgr, err)
		}
		fmt.Fprintf(app.Out, "%d\t%s\t%s\n", rec.ID, rec.FullName(), rec.Email)
		return nil
	}
	return cmd
}

func newUserDeleteCommand(app *App) *Command {
	cmd := newCommand("delete", "Delete a user", "backoffice-cli user delete <id> --yes")
	yes := cmd.Flags.Bool("yes", false, "confirm the deletion")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := requireArgs(cmd, args, 1); err != nil {
			return err
		}
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		if !*yes {
			return fmt.Errorf("refusing to delete user %d without --yes: %w", id, ErrUsage)
		}
		ed, mgr, err := app.Editor(ctx)
		if err != nil {
			return err
		}
		if _, err := ed.Load(ctx, id); err != nil {
			return expired(ctx, mgr, err)
		}
		if err := ed.Delete(ctx); err != nil {
			return expired(ctx, mgr, err)
		}
		fmt.Fprintf(app.Out, "Deleted user %d\n", id)
		return nil
	}
	return cmd
}
