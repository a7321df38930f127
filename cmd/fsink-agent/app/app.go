// Package app wires the fsink-agent command line application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetsink-io/fleetsink/cmd/fsink-agent/app/options"
	"github.com/fleetsink-io/fleetsink/pkg/app"
)

const (
	commandName = "fsink-agent"
	commandDesc = `The fleetsink agent keeps an incremental offline backup of fleet
telemetry. It authenticates against a fleet management server, polls
every device on a fixed interval and appends new position and odometer
snapshots to one CSV file per device.

Credentials are positional:

  fsink-agent SERVER DATABASE USERNAME PASSWORD [flags]`
)

// NewApp assembles the fsink-agent application.
func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch the fleet telemetry backup agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithPositionalArgs(cobra.ExactArgs(4)),
		app.WithRunFunc(run(opts)),
	)

	application.Command().AddCommand(
		newDevicesCommand(opts),
		newVersionCommand(),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		ctx := app.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
