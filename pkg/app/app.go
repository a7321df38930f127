// Package app builds the command line skeleton shared by fleetsink
// binaries: cobra command setup, grouped flags, configuration file and
// environment merging, and signal aware execution.
package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"

	"github.com/fleetsink-io/fleetsink/pkg/log"
)

// RunFunc is the application entry point, invoked after flags, the
// configuration file and the options have been processed.
type RunFunc func() error

// logOptionsProvider is implemented by options that carry logger
// configuration the app installs before running.
type logOptionsProvider interface {
	LogOptions() *log.Options
}

// App is a command line application.
type App struct {
	basename    string
	brief       string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	noConfig    bool

	v       *viper.Viper
	cfgFile string
	cmd     *cobra.Command
}

// Option configures an App while it is being built.
type Option func(*App)

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions binds the application's option groups.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the entry point.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithPositionalArgs sets the validator for positional arguments.
func WithPositionalArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) { a.args = cobra.NoArgs }
}

// WithNoConfig drops the --config flag and configuration file support.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// NewApp builds an application from its basename, a one line summary
// and the given options.
func NewApp(basename, brief string, opts ...Option) *App {
	a := &App{
		basename: basename,
		brief:    brief,
		v:        viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the underlying cobra command, for attaching
// subcommands.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application. Errors have already been printed by
// cobra; the process exits non-zero.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:   a.basename,
		Short: a.brief,
		Long:  a.description,
		Args:  a.args,
		RunE:  a.runCommand,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = false

	var fss NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
		for _, name := range fss.Order {
			cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
	}
	if !a.noConfig {
		a.addConfigFlag(fss.FlagSet("global"))
		cmd.Flags().AddFlagSet(fss.FlagSets["global"])
	}

	setSectionedUsage(cmd, fss)
	a.cmd = cmd
}

// runCommand is the shared RunE: merge configuration, complete and
// validate the options, then hand over to the run function.
func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	// Arguments were validated by now; failures past this point are
	// runtime failures, not usage mistakes.
	cmd.SilenceUsage = true

	if !a.noConfig {
		if err := a.loadConfig(); err != nil {
			return err
		}
		if err := a.v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if a.options != nil {
			if err := a.v.Unmarshal(a.options); err != nil {
				return fmt.Errorf("failed to apply configuration: %w", err)
			}
		}
	}

	if a.options != nil {
		if err := a.options.Complete(args); err != nil {
			return err
		}
	}

	if p, ok := a.options.(logOptionsProvider); ok && p.LogOptions() != nil {
		log.Init(p.LogOptions())
		defer func() { _ = log.Sync() }()
	}

	if a.options != nil {
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

// setSectionedUsage replaces the flat flag listing in usage and help
// output with one section per flag group.
func setSectionedUsage(cmd *cobra.Command, fss NamedFlagSets) {
	root := cmd
	usage := func(c *cobra.Command) error {
		w := c.OutOrStderr()
		fmt.Fprintf(w, "Usage:\n  %s\n", c.UseLine())
		if c.HasAvailableSubCommands() {
			fmt.Fprint(w, "\nAvailable Commands:\n")
			for _, sub := range c.Commands() {
				if sub.IsAvailableCommand() {
					fmt.Fprintf(w, "  %-11s %s\n", sub.Name(), sub.Short)
				}
			}
		}
		if c == root {
			printSections(w, fss)
		} else if c.HasAvailableLocalFlags() {
			fmt.Fprintf(w, "\nFlags:\n%s", c.LocalFlags().FlagUsages())
		}
		return nil
	}

	cmd.SetUsageFunc(usage)
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c.Long != "" {
			fmt.Fprintf(c.OutOrStdout(), "%s\n\n", strings.TrimSpace(c.Long))
		} else if c.Short != "" {
			fmt.Fprintf(c.OutOrStdout(), "%s\n\n", c.Short)
		}
		_ = usage(c)
	})
}

// printSections writes each non-empty flag group under its own header.
func printSections(w io.Writer, fss NamedFlagSets) {
	for _, name := range fss.Order {
		fs := fss.FlagSets[name]
		if fs == nil || !fs.HasFlags() {
			continue
		}
		fmt.Fprintf(w, "\n%s%s flags:\n\n%s", strings.ToUpper(name[:1]), name[1:], fs.FlagUsages())
	}
}
