// Package config loads flow.yaml with Viper. Missing files and keys fall
// back to defaults, and every key can be overridden through FLOW_*
// environment variables (FLOW_HTTP_ADDR, FLOW_STORAGE_DSN, ...).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lrhflow/flow/server/auth"
	"github.com/lrhflow/flow/server/scheduler"
	"github.com/spf13/viper"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	envPrefix = "FLOW"
)

type Config struct {
	HTTP    HTTPConfig
	Storage StorageConfig
	Sweep   SweepConfig
	Log     LogConfig
	Users   []User
}

type HTTPConfig struct {
	Addr  string
	Realm string
}

type StorageConfig struct {
	Driver string
	DSN    string
}

type SweepConfig struct {
	// Schedule is a five-field cron expression; empty disables the trigger.
	Schedule      string
	LookaheadDays int
}

type LogConfig struct {
	Level  string
	Format string
}

// User is a configured API account. PasswordHash is a bcrypt hash as
// printed by `flow hash-password`.
type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:  ":8080",
			Realm: "LRH Flow",
		},
		Storage: StorageConfig{
			Driver: DriverMemory,
			DSN:    "flow.db",
		},
		Sweep: SweepConfig{
			Schedule:      scheduler.DefaultSchedule,
			LookaheadDays: scheduler.DefaultLookaheadDays,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration. When path is empty, flow.yaml is searched
// in the working directory and in $HOME/.config/flow.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "flow"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.realm", cfg.HTTP.Realm)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("sweep.schedule", cfg.Sweep.Schedule)
	v.SetDefault("sweep.lookahead_days", cfg.Sweep.LookaheadDays)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// no file, defaults plus environment
	}

	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.HTTP.Realm = v.GetString("http.realm")
	cfg.Storage.Driver = strings.ToLower(v.GetString("storage.driver"))
	cfg.Storage.DSN = v.GetString("storage.dsn")
	cfg.Sweep.Schedule = v.GetString("sweep.schedule")
	cfg.Sweep.LookaheadDays = v.GetInt("sweep.lookahead_days")
	cfg.Log.Level = strings.ToLower(v.GetString("log.level"))
	cfg.Log.Format = strings.ToLower(v.GetString("log.format"))

	if v.IsSet("users") {
		if err := v.UnmarshalKey("users", &cfg.Users); err != nil {
			return nil, fmt.Errorf("parsing users: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at serve time.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Sweep.Schedule != "" {
		if err := scheduler.ValidateSchedule(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("sweep.schedule: %w", err)
		}
	}
	if c.Sweep.LookaheadDays <= 0 {
		return fmt.Errorf("sweep.lookahead_days must be positive, got %d", c.Sweep.LookaheadDays)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}

	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if seen[u.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = true
		if u.PasswordHash == "" {
			return fmt.Errorf("users[%d]: password_hash is required", i)
		}
		if _, err := auth.ParseRole(u.Role); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}
	return nil
}
