// Package scheduler turns recurrence rules into concrete task instances.
//
// Three entry points share one generation step: Generate creates the next
// instance after a template, OnTaskCompleted runs it when a recurring task
// is finished and RunLookaheadSweep repairs chains that have no pending
// instance. Generation is serialized per chain in-process; the storage
// uniqueness constraint on (chain, occurrence) covers other processes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lrhflow/flow/server/notify"
	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/storage"
)

// DefaultLookaheadDays bounds how far ahead the sweep creates instances
const DefaultLookaheadDays = 30

// Scheduler generates recurring task instances
type Scheduler struct {
	store         storage.Storage
	engine        *recurrence.Engine
	notifier      notify.Notifier
	logger        *slog.Logger
	now           func() time.Time
	lookaheadDays int
	locks         *chainLocks
}

// Option represents a configuration option for the Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger for the scheduler
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier sets the notification dispatcher
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithEngine sets the recurrence engine
func WithEngine(e *recurrence.Engine) Option {
	return func(s *Scheduler) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLookaheadDays sets the default sweep horizon
func WithLookaheadDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.lookaheadDays = days
		}
	}
}

// New creates a scheduler on top of store
func New(store storage.Storage, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         store,
		engine:        recurrence.NewEngine(),
		notifier:      notify.Nop{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:           time.Now,
		lookaheadDays: DefaultLookaheadDays,
		locks:         newChainLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the recurrence engine used for date arithmetic
func (s *Scheduler) Engine() *recurrence.Engine {
	return s.engine
}

// Generate creates the instance following the template task. It returns
// nil without error when nothing is due: the template is missing, does not
// recur, or its chain ended. Generate does not check for existing pending
// instances; use OnTaskCompleted or RunLookaheadSweep for that.
func (s *Scheduler) Generate(ctx context.Context, templateID string) (*storage.Task, error) {
	tmpl, err := s.store.GetTask(ctx, templateID)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger.Warn("generation skipped: template not found", "task_id", templateID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}
	return s.generate(ctx, tmpl, s.now())
}

// nextFor computes the next occurrence after tmpl. ok is false when the
// template does not recur or its end date stops the chain.
func (s *Scheduler) nextFor(tmpl *storage.Task, now time.Time) (next time.Time, ok bool) {
	if !tmpl.RecursActively() {
		return time.Time{}, false
	}

	rule := tmpl.Recurrence
	end, hasEnd := rule.EndDate.Get()
	if hasEnd && end.Before(now) {
		s.logger.Info("chain exhausted: end date passed",
			"task_id", tmpl.ID,
			"chain_id", tmpl.ChainID(),
			"end_date", end)
		return time.Time{}, false
	}

	next = s.engine.NextOccurrence(tmpl.BaseDate(now), rule)
	if hasEnd && next.After(end) {
		s.logger.Info("chain exhausted: next occurrence after end date",
			"task_id", tmpl.ID,
			"chain_id", tmpl.ChainID(),
			"next", next,
			"end_date", end)
		return time.Time{}, false
	}
	return next, true
}

func (s *Scheduler) generate(ctx context.Context, tmpl *storage.Task, now time.Time) (*storage.Task, error) {
	next, ok := s.nextFor(tmpl, now)
	if !ok {
		return nil, nil
	}
	return s.create(ctx, tmpl, next)
}

// create persists the instance of tmpl's chain at next. A concurrent
// duplicate rejected by storage is not an error.
func (s *Scheduler) create(ctx context.Context, tmpl *storage.Task, next time.Time) (*storage.Task, error) {
	instance := newInstance(tmpl, next)
	if err := s.store.CreateTask(ctx, instance); err != nil {
		if storage.IsAlreadyExists(err) {
			s.logger.Debug("instance already exists",
				"chain_id", instance.ParentRecurringTaskID,
				"occurrence", next)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create instance of chain %s: %w", instance.ParentRecurringTaskID, err)
	}

	s.logger.Info("generated recurring instance",
		"task_id", instance.ID,
		"chain_id", instance.ParentRecurringTaskID,
		"due_date", next)
	return instance, nil
}

func newInstance(tmpl *storage.Task, next time.Time) *storage.Task {
	due, occurrence := next, next
	return &storage.Task{
		Title:                 tmpl.Title,
		Description:           tmpl.Description,
		Status:                storage.StatusTodo,
		DueDate:               &due,
		OccurrenceDate:        &occurrence,
		IsRecurring:           tmpl.IsRecurring,
		Recurrence:            tmpl.Recurrence,
		ParentRecurringTaskID: tmpl.ChainID(),
		ResponsibleUserID:     tmpl.ResponsibleUserID,
		DepartmentID:          tmpl.DepartmentID,
		PostID:                tmpl.PostID,
		Placement:             tmpl.Placement,
		CreatedByID:           tmpl.CreatedByID,
	}
}

// OnTaskCompleted runs after a task was marked DONE. For recurring tasks it
// creates the next instance unless the chain already has a pending one.
func (s *Scheduler) OnTaskCompleted(ctx context.Context, taskID string) (*storage.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger.Warn("completion hook skipped: task not found", "task_id", taskID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	if task.Status == storage.StatusDone {
		if err := s.notifier.TaskCompleted(ctx, task); err != nil {
			s.logger.Error("failed to send completion notification", "task_id", task.ID, "error", err)
		}
	}

	if !task.RecursActively() {
		return nil, nil
	}

	chainID := task.ChainID()
	unlock := s.locks.lock(chainID)
	defer unlock()

	now := s.now()
	pending, err := storage.HasPendingInstance(ctx, s.store, chainID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending instances of chain %s: %w", chainID, err)
	}
	if pending {
		s.logger.Debug("completion hook skipped: chain has a pending instance", "chain_id", chainID)
		return nil, nil
	}

	// the completed task is normally the chain's latest member; when it is
	// not, advancing from it would recreate an existing occurrence
	tmpl, err := storage.LatestInChain(ctx, s.store, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest instance of chain %s: %w", chainID, err)
	}
	if tmpl.BaseDate(now).Before(task.BaseDate(now)) {
		tmpl = task
	}
	return s.generate(ctx, withRuleOf(tmpl, task), now)
}

// RunLookaheadSweep creates the next instance of every active chain that
// has no TODO member due now or later, as long as that instance falls within
// lookaheadDays (the scheduler default when <= 0). A failing chain does not
// stop the sweep; its error is joined into the returned error.
func (s *Scheduler) RunLookaheadSweep(ctx context.Context, lookaheadDays int) (int, error) {
	if lookaheadDays <= 0 {
		lookaheadDays = s.lookaheadDays
	}
	now := s.now()
	horizon := now.AddDate(0, 0, lookaheadDays)

	heads, err := storage.ChainHeads(ctx, s.store)
	if err != nil {
		return 0, fmt.Errorf("failed to list recurring chains: %w", err)
	}

	var (
		created int
		errs    []error
	)
	for _, head := range heads {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		ok, err := s.sweepChain(ctx, head, now, horizon)
		if err != nil {
			s.logger.Error("sweep failed for chain", "chain_id", head.ID, "error", err)
			errs = append(errs, fmt.Errorf("chain %s: %w", head.ID, err))
			continue
		}
		if ok {
			created++
		}
	}

	s.logger.Info("lookahead sweep finished",
		"chains", len(heads),
		"created", created,
		"failed", len(errs),
		"lookahead_days", lookaheadDays)
	return created, errors.Join(errs...)
}

func (s *Scheduler) sweepChain(ctx context.Context, head *storage.Task, now, horizon time.Time) (bool, error) {
	unlock := s.locks.lock(head.ID)
	defer unlock()

	pending, err := storage.HasPendingInstance(ctx, s.store, head.ID, now)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}

	latest, err := storage.LatestInChain(ctx, s.store, head.ID)
	if err != nil {
		return false, err
	}
	tmpl := withRuleOf(latest, head)

	next, ok := s.nextFor(tmpl, now)
	if !ok {
		return false, nil
	}
	if next.After(horizon) {
		s.logger.Debug("next occurrence beyond lookahead",
			"chain_id", head.ID,
			"next", next,
			"horizon", horizon)
		return false, nil
	}

	if latest.Status == storage.StatusTodo && latest.DueDate != nil && latest.DueDate.Before(now) {
		if err := s.notifier.TaskOverdue(ctx, latest, now); err != nil {
			s.logger.Error("failed to send overdue notification", "task_id", latest.ID, "error", err)
		}
	}

	instance, err := s.create(ctx, tmpl, next)
	if err != nil {
		return false, err
	}
	return instance != nil, nil
}

// withRuleOf returns tmpl carrying the recurrence settings of src
func withRuleOf(tmpl, src *storage.Task) *storage.Task {
	if tmpl == src {
		return tmpl
	}
	c := tmpl.Clone()
	c.IsRecurring = src.IsRecurring
	c.Recurrence = src.Recurrence
	return c
}
