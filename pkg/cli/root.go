package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// ErrUsage is returned when the command line cannot be parsed
var ErrUsage = errors.New("usage error")

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *pflag.FlagSet
}

func newCommand(name, description, usage string) *Command {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &Command{
		Name:        name,
		Description: description,
		Usage:       usage,
		Flags:       fs,
	}
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	root := newCommand("backoffice-cli", "Fund back-office command line client", "backoffice-cli [global flags] <command> [args]")
	root.Subcommands = make(map[string]*Command)
	root.Flags.SetInterspersed(false)
	app.bindGlobalFlags(root.Flags)

	for _, cmd := range []*Command{
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoamiCommand(app),
		newRoutesCommand(app),
		newPageCommand(app),
		newUserCommand(app),
	} {
		root.Subcommands[cmd.Name] = cmd
	}
	return root
}

// Execute parses flags and dispatches to the matching subcommand
func (c *Command) Execute(ctx context.Context, w io.Writer, args []string) error {
	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.PrintUsage(w)
			return nil
		}
		return fmt.Errorf("%s: %v: %w", c.Name, err, ErrUsage)
	}
	args = c.Flags.Args()

	if len(c.Subcommands) > 0 {
		if len(args) == 0 || args[0] == "help" {
			c.PrintUsage(w)
			return nil
		}
		sub, ok := c.Subcommands[args[0]]
		if !ok {
			return fmt.Errorf("unknown command: %s: %w", args[0], ErrUsage)
		}
		return sub.Execute(ctx, w, args[1:])
	}
	return c.Run(ctx, args)
}

// PrintUsage prints the command usage
func (c *Command) PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "%s\n\nUsage: %s\n", c.Description, c.Usage)

	if len(c.Subcommands) > 0 {
		names := make([]string, 0, len(c.Subcommands))
		for name := range c.Subcommands {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, name := range names {
			fmt.Fprintf(tw, "  %s\t%s\n", name, c.Subcommands[name].Description)
		}
		tw.Flush()
	}

	if defaults := c.Flags.FlagUsages(); strings.TrimSpace(defaults) != "" {
		fmt.Fprintf(w, "\nFlags:\n%s", defaults)
	}
}

func requireArgs(cmd *Command, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s expects %d argument(s), got %d (usage: %s): %w", cmd.Name, n, len(args), cmd.Usage, ErrUsage)
	}
	return nil
}
