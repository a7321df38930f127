package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/fleetsink-io/fleetsink/cmd/fsink-agent/app/options"
	"github.com/fleetsink-io/fleetsink/internal/backup"
	"github.com/fleetsink-io/fleetsink/pkg/fleetapi"
	"github.com/fleetsink-io/fleetsink/pkg/log"
)

const devicesTimeout = time.Minute

// newDevicesCommand lists the devices the given account can see, without
// writing anything.
func newDevicesCommand(opts *options.AgentOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices SERVER DATABASE USERNAME PASSWORD",
		Short: "List the devices visible to the given account",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if err := opts.FleetOptions.Complete(args); err != nil {
				return err
			}
			if err := multierr.Combine(opts.FleetOptions.Validate()...); err != nil {
				return err
			}
			return runDevices(cmd, opts)
		},
	}
	opts.FleetOptions.AddFlags(cmd.Flags())
	return cmd
}

func runDevices(cmd *cobra.Command, opts *options.AgentOptions) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), devicesTimeout)
	defer cancel()

	clientCfg := opts.FleetOptions.ToClientConfig()
	clientCfg.Logger = log.Logr()
	client, err := fleetapi.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("failed to init fleet client: %w", err)
	}

	if err := client.Authenticate(ctx); err != nil {
		return err
	}

	devices, err := backup.NewAPISource(client, opts.SyncOptions.BatchLimit).ListDevices(ctx)
	if err != nil {
		return err
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	table := uitable.New()
	table.AddRow("ID", "NAME", "VIN")
	for _, d := range devices {
		table.AddRow(d.ID, d.Name, d.VIN)
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}
