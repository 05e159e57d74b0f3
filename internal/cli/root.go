// Package cli implements the flow command line: the HTTP server, one-off
// sweeps, occurrence previews and fixture seeding.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lrhflow/flow/internal/config"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// app carries state shared by subcommands. The config file is only read
// by commands that need it.
type app struct {
	configPath string
	cfg        *config.Config
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "flow",
		Short: "LRH Flow - recurring task scheduler",
		Long: `LRH Flow keeps recurring tasks moving. Every recurring task heads a chain
of instances; completing an instance or running the look-ahead sweep
generates the next one from the chain's recurrence rule.

Configuration is read from flow.yaml (current directory or
$HOME/.config/flow) and FLOW_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default: ./flow.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newSweepCmd(a),
		newNextCmd(),
		newSeedCmd(a),
		newHashPasswordCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flow %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
