package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lrhflow/flow/apiclient"
	"github.com/lrhflow/flow/server/recurrence"
)

// passwordEnv holds the password for --remote calls
const passwordEnv = "FLOW_PASSWORD"

func newSweepCmd(a *app) *cobra.Command {
	var (
		lookaheadDays int
		remote        string
		user          string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the look-ahead sweep once",
		Long: `Generate the next instance of every active chain whose next occurrence
falls within the look-ahead window. Failures in one chain do not stop the
others.

By default the sweep runs against the configured storage, which suits the
sqlite driver and an external cron. With --remote it asks a running server
to sweep instead; the password is read from $FLOW_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lookaheadDays < 0 {
				return fmt.Errorf("--lookahead-days must be positive")
			}
			if remote != "" {
				return remoteSweep(cmd, remote, user, lookaheadDays)
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			store, closeStore, err := openStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStore()

			engine := recurrence.NewEngine()
			defer engine.Close()
			sched := newScheduler(cfg, store, engine, logger)

			created, err := sched.RunLookaheadSweep(cmd.Context(), lookaheadDays)
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d instance(s)\n", created)
			if err != nil {
				return fmt.Errorf("sweep finished with errors: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&lookaheadDays, "lookahead-days", 0, "look-ahead window in days (default: sweep.lookahead_days)")
	cmd.Flags().StringVar(&remote, "remote", "", "server URL to run the sweep on, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&user, "user", "", "username for --remote")
	cmd.MarkFlagsRequiredTogether("remote", "user")
	return cmd
}

func remoteSweep(cmd *cobra.Command, serverURL, user string, lookaheadDays int) error {
	password := os.Getenv(passwordEnv)
	if password == "" {
		return fmt.Errorf("%s must be set for --remote", passwordEnv)
	}

	client, err := apiclient.Dial(serverURL, user, password, nil)
	if err != nil {
		return err
	}
	resp, err := client.Sweep(cmd.Context(), lookaheadDays)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %d instance(s)\n", resp.Created)
	for _, msg := range resp.Errors {
		fmt.Fprintf(out, "  failed: %s\n", msg)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("sweep finished with %d error(s)", len(resp.Errors))
	}
	return nil
}
