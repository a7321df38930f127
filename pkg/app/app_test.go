package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type syncGroup struct {
	Interval time.Duration `mapstructure:"interval"`
	Units    string        `mapstructure:"units"`
}

// groupedOptions is a minimal options implementation with one flag
// group, recording the lifecycle calls the app makes.
type groupedOptions struct {
	Sync syncGroup `mapstructure:"sync"`

	completeArgs []string
	completed    bool
	validated    bool
	validateErr  error
}

func (o *groupedOptions) Flags() NamedFlagSets {
	fss := NamedFlagSets{}
	fs := fss.FlagSet("sync")
	fs.Duration("sync.interval", 60*time.Second, "Seconds between cycles.")
	fs.String("sync.units", "metric", "Unit system.")
	return fss
}

func (o *groupedOptions) Complete(args []string) error {
	o.completed = true
	o.completeArgs = args
	return nil
}

func (o *groupedOptions) Validate() error {
	o.validated = true
	return o.validateErr
}

func newTestApp(t *testing.T, opts *groupedOptions, extra ...Option) (*App, *bytes.Buffer) {
	t.Helper()

	options := append([]Option{WithOptions(opts)}, extra...)
	a := NewApp("fsink-apptest", "test application", options...)

	buf := &bytes.Buffer{}
	a.Command().SetOut(buf)
	a.Command().SetErr(buf)
	return a, buf
}

func TestNamedFlagSetsOrderAndReuse(t *testing.T) {
	fss := NamedFlagSets{}
	a := fss.FlagSet("alpha")
	fss.FlagSet("beta")
	again := fss.FlagSet("alpha")

	if a != again {
		t.Error("FlagSet returned a new set for an existing section")
	}
	if len(fss.Order) != 2 || fss.Order[0] != "alpha" || fss.Order[1] != "beta" {
		t.Errorf("Order = %v, want [alpha beta]", fss.Order)
	}
}

func TestAppRunsCompleteValidateRun(t *testing.T) {
	opts := &groupedOptions{}
	var ranAfterValidate bool
	a, _ := newTestApp(t, opts,
		WithPositionalArgs(cobra.ExactArgs(2)),
		WithRunFunc(func() error {
			ranAfterValidate = opts.validated
			return nil
		}),
	)

	a.Command().SetArgs([]string{"alpha", "beta"})
	if err := a.Command().Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !opts.completed || len(opts.completeArgs) != 2 || opts.completeArgs[0] != "alpha" {
		t.Errorf("Complete saw args %v, want [alpha beta]", opts.completeArgs)
	}
	if !ranAfterValidate {
		t.Error("run function started before validation finished")
	}
}

func TestAppWrongArityIsUsageError(t *testing.T) {
	opts := &groupedOptions{}
	ran := false
	a, buf := newTestApp(t, opts,
		WithPositionalArgs(cobra.ExactArgs(4)),
		WithRunFunc(func() error { ran = true; return nil }),
	)

	a.Command().SetArgs([]string{"only", "two"})
	err := a.Command().Execute()
	if err == nil {
		t.Fatal("Execute accepted the wrong number of arguments")
	}
	if !strings.Contains(err.Error(), "accepts 4 arg") {
		t.Errorf("error %q does not state the expected arity", err)
	}
	if ran {
		t.Error("run function called despite the usage error")
	}
	if !strings.Contains(buf.String(), "Usage:") {
		t.Error("usage not printed for an argument count mistake")
	}
}

func TestAppValidationFailureIsNotAUsageError(t *testing.T) {
	opts := &groupedOptions{validateErr: errors.New("units must be metric or imperial")}
	ran := false
	a, buf := newTestApp(t, opts,
		WithDefaultValidArgs(),
		WithRunFunc(func() error { ran = true; return nil }),
	)

	a.Command().SetArgs(nil)
	if err := a.Command().Execute(); err == nil {
		t.Fatal("Execute ignored the validation failure")
	}
	if ran {
		t.Error("run function called despite invalid options")
	}
	if strings.Contains(buf.String(), "Usage:") {
		t.Error("usage printed for a runtime failure")
	}
}

func TestAppFlagOverridesDefault(t *testing.T) {
	opts := &groupedOptions{}
	a, _ := newTestApp(t, opts, WithDefaultValidArgs())

	a.Command().SetArgs([]string{"--sync.interval=90s"})
	if err := a.Command().Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if opts.Sync.Interval != 90*time.Second {
		t.Errorf("interval = %v, want 90s from the flag", opts.Sync.Interval)
	}
	if opts.Sync.Units != "metric" {
		t.Errorf("units = %q, want the flag default", opts.Sync.Units)
	}
}

func TestAppEnvironmentFillsUnsetFlags(t *testing.T) {
	t.Setenv("FSINK_SYNC_UNITS", "imperial")

	opts := &groupedOptions{}
	a, _ := newTestApp(t, opts, WithDefaultValidArgs())

	// The changed flag wins over the environment; the untouched one
	// falls through to it.
	a.Command().SetArgs([]string{"--sync.interval=45s"})
	if err := a.Command().Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if opts.Sync.Units != "imperial" {
		t.Errorf("units = %q, want the environment value", opts.Sync.Units)
	}
	if opts.Sync.Interval != 45*time.Second {
		t.Errorf("interval = %v, want the flag value", opts.Sync.Interval)
	}
}

func TestAppReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  interval: 2m\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := &groupedOptions{}
	a, _ := newTestApp(t, opts, WithDefaultValidArgs())

	a.Command().SetArgs([]string{"--config", path})
	if err := a.Command().Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if opts.Sync.Interval != 2*time.Minute {
		t.Errorf("interval = %v, want 2m from the configuration file", opts.Sync.Interval)
	}
}

func TestAppMissingExplicitConfigFileFails(t *testing.T) {
	opts := &groupedOptions{}
	a, _ := newTestApp(t, opts, WithDefaultValidArgs())

	a.Command().SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err := a.Command().Execute(); err == nil {
		t.Fatal("Execute ignored the missing configuration file")
	}
}
