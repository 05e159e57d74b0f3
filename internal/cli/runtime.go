package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lrhflow/flow/internal/config"
	"github.com/lrhflow/flow/server/auth"
	authmem "github.com/lrhflow/flow/server/auth/memory"
	"github.com/lrhflow/flow/server/notify"
	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/scheduler"
	"github.com/lrhflow/flow/server/storage"
	"github.com/lrhflow/flow/server/storage/memory"
	"github.com/lrhflow/flow/server/storage/sqlite"
)

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore returns the configured backend and a func releasing it
func openStore(cfg config.StorageConfig) (storage.Storage, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverMemory, "":
		return memory.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newScheduler(cfg *config.Config, store storage.Storage, engine *recurrence.Engine, logger *slog.Logger) *scheduler.Scheduler {
	return scheduler.New(store,
		scheduler.WithLogger(logger),
		scheduler.WithEngine(engine),
		scheduler.WithNotifier(notify.NewLogNotifier(logger)),
		scheduler.WithLookaheadDays(cfg.Sweep.LookaheadDays),
	)
}

func newAuthenticator(users []config.User, logger *slog.Logger) (*authmem.Store, error) {
	store := authmem.New(authmem.WithLogger(logger))
	for _, u := range users {
		role, err := auth.ParseRole(u.Role)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		if err := store.AddUserWithHash(u.Username, u.PasswordHash, role); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
	}
	return store, nil
}
