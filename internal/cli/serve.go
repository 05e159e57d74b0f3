package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lrhflow/flow/server"
	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		seedFile string
		noSweep  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled sweep",
		Long: `Serve the task API and run the look-ahead sweep on the configured cron
schedule (sweep.schedule). With the memory driver, --seed loads fixtures
at startup since nothing survives a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			store, closeStore, err := openStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStore()

			engine := recurrence.NewEngineWithConfig(recurrence.DefaultEngineConfig)
			defer engine.Close()
			sched := newScheduler(cfg, store, engine, logger)

			users, err := newAuthenticator(cfg.Users, logger)
			if err != nil {
				return err
			}
			if len(cfg.Users) == 0 {
				logger.Warn("no users configured, all api requests will be rejected")
			}

			if seedFile != "" {
				tasks, err := loadSeedFile(seedFile)
				if err != nil {
					return err
				}
				created, err := seedTasks(cmd.Context(), store, tasks)
				if err != nil {
					return err
				}
				logger.Info("seeded tasks", "file", seedFile, "count", len(created))
			}

			srv, err := server.New(store, sched, users, cfg.HTTP.Realm, server.WithLogger(logger))
			if err != nil {
				return err
			}

			var trigger *scheduler.Trigger
			if !noSweep && cfg.Sweep.Schedule != "" {
				trigger, err = scheduler.NewTrigger(sched, scheduler.TriggerConfig{
					Schedule:      cfg.Sweep.Schedule,
					LookaheadDays: cfg.Sweep.LookaheadDays,
					Logger:        logger,
				})
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg.HTTP.Addr, srv, trigger, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&seedFile, "seed", "", "load tasks from a YAML or .ics file before serving")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the scheduled sweep")
	return cmd
}

// run serves handler until ctx is done, then shuts down gracefully. A nil
// trigger disables the scheduled sweep.
func run(ctx context.Context, addr string, handler http.Handler, trigger *scheduler.Trigger, logger *slog.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	if trigger != nil {
		go func() {
			if err := trigger.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
