// Package notify dispatches task lifecycle notifications. Delivery
// (email, chat) lives behind the Notifier interface; the bundled LogNotifier
// only records events.
package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lrhflow/flow/server/storage"
)

// Notifier receives task lifecycle events. Implementations must be safe for
// concurrent use; failures are logged by callers and never block scheduling.
type Notifier interface {
	// TaskCompleted fires after a task transitions to DONE
	TaskCompleted(ctx context.Context, task *storage.Task) error
	// TaskOverdue fires when a pending task's due date passed without completion
	TaskOverdue(ctx context.Context, task *storage.Task, now time.Time) error
}

// LogNotifier writes notifications to a structured logger
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier logging to logger (discarding when nil)
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) TaskCompleted(ctx context.Context, task *storage.Task) error {
	n.logger.InfoContext(ctx, "task completed",
		"task_id", task.ID,
		"title", task.Title,
		"responsible_user_id", task.ResponsibleUserID)
	return nil
}

func (n *LogNotifier) TaskOverdue(ctx context.Context, task *storage.Task, now time.Time) error {
	attrs := []any{
		"task_id", task.ID,
		"title", task.Title,
		"responsible_user_id", task.ResponsibleUserID,
	}
	if task.DueDate != nil {
		attrs = append(attrs, "due_date", task.DueDate.Format(time.RFC3339),
			"overdue_by", now.Sub(*task.DueDate).Round(time.Minute).String())
	}
	n.logger.WarnContext(ctx, "task overdue", attrs...)
	return nil
}

// Multi fans a notification out to every notifier, joining their errors
type Multi []Notifier

func (m Multi) TaskCompleted(ctx context.Context, task *storage.Task) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TaskCompleted(ctx, task))
	}
	return errors.Join(errs...)
}

func (m Multi) TaskOverdue(ctx context.Context, task *storage.Task, now time.Time) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TaskOverdue(ctx, task, now))
	}
	return errors.Join(errs...)
}

// Nop discards every notification
type Nop struct{}

func (Nop) TaskCompleted(context.Context, *storage.Task) error { return nil }

func (Nop) TaskOverdue(context.Context, *storage.Task, time.Time) error { return nil }

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TaskCompleted(ctx context.Context, task *storage.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockNotifier) TaskOverdue(ctx context.Context, task *storage.Task, now time.Time) error {
	args := m.Called(ctx, task, now)
	return args.Error(0)
}
