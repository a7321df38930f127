package app

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionLine())
		},
	}
}

// versionLine reports the module version and VCS revision recorded by
// the Go toolchain at build time.
func versionLine() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commandName + " (unknown build)"
	}

	version := info.Main.Version
	if version == "" || version == "(devel)" {
		version = "devel"
	}

	revision := ""
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			revision = s.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		}
	}
	if revision != "" {
		return fmt.Sprintf("%s %s (%s, %s)", commandName, version, revision, info.GoVersion)
	}
	return fmt.Sprintf("%s %s (%s)", commandName, version, info.GoVersion)
}
