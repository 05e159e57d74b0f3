package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// maxSleepCap bounds each wait so clock jumps (suspend, NTP) are noticed
const maxSleepCap = 60 * time.Second

// DefaultSchedule runs the sweep at the top of every hour
const DefaultSchedule = "0 * * * *"

// TriggerConfig controls the cron-driven sweep
type TriggerConfig struct {
	// Schedule is a 5-field cron expression
	Schedule string
	// LookaheadDays is passed to every sweep (scheduler default when <= 0)
	LookaheadDays int
	Logger        *slog.Logger
	Now           func() time.Time
}

// Trigger runs RunLookaheadSweep on a cron schedule
type Trigger struct {
	sched  *Scheduler
	config TriggerConfig
}

// ValidateSchedule checks a cron expression. Exactly 5 fields
// (minute hour day-of-month month day-of-week) are accepted.
func ValidateSchedule(expr string) error {
	if len(strings.Fields(expr)) != 5 || !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q, expected 5-field format (minute hour day-of-month month day-of-week)", expr)
	}
	return nil
}

// NewTrigger creates a cron trigger for s
func NewTrigger(s *Scheduler, config TriggerConfig) (*Trigger, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if err := ValidateSchedule(config.Schedule); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Trigger{sched: s, config: config}, nil
}

// Next returns the first tick strictly after after
func (t *Trigger) Next(after time.Time) (time.Time, error) {
	return gronx.NextTickAfter(t.config.Schedule, after, false)
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures are
// logged; Run only returns on cancellation or a schedule error.
func (t *Trigger) Run(ctx context.Context) error {
	next, err := t.Next(t.config.Now())
	if err != nil {
		return fmt.Errorf("failed to compute next sweep: %w", err)
	}
	t.config.Logger.Info("sweep trigger started", "schedule", t.config.Schedule, "next", next)

	for {
		wait := next.Sub(t.config.Now())
		if wait > maxSleepCap {
			wait = maxSleepCap
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.config.Logger.Info("sweep trigger stopped")
			return ctx.Err()
		case <-timer.C:
		}

		now := t.config.Now()
		if now.Before(next) {
			continue
		}

		t.fire(ctx)

		next, err = t.Next(now)
		if err != nil {
			return fmt.Errorf("failed to compute next sweep: %w", err)
		}
	}
}

func (t *Trigger) fire(ctx context.Context) {
	created, err := t.sched.RunLookaheadSweep(ctx, t.config.LookaheadDays)
	if err != nil {
		t.config.Logger.Error("scheduled sweep finished with errors", "created", created, "error", err)
		return
	}
	t.config.Logger.Debug("scheduled sweep finished", "created", created)
}
