package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lrhflow/flow/server/recurrence"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

// CreateTask implements the Storage interface
func (m *MockStorage) CreateTask(ctx context.Context, task *Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// GetTask implements the Storage interface
func (m *MockStorage) GetTask(ctx context.Context, id string) (*Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

// UpdateTaskStatus implements the Storage interface
func (m *MockStorage) UpdateTaskStatus(ctx context.Context, id string, status Status) (*Task, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

// ListTasks implements the Storage interface
func (m *MockStorage) ListTasks(ctx context.Context, filter *Filter) ([]*Task, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Task), args.Error(1)
}

// --- Helper methods for creating test data ---

// NewMockTask creates a one-off TODO task due at due
func NewMockTask(id, title string, due time.Time) *Task {
	return &Task{
		ID:        id,
		Title:     title,
		Status:    StatusTodo,
		DueDate:   &due,
		CreatedAt: due,
		UpdatedAt: due,
	}
}

// NewMockRecurringTask creates a recurring chain head due at due
func NewMockRecurringTask(id, title string, due time.Time, rule recurrence.Rule) *Task {
	t := NewMockTask(id, title, due)
	t.IsRecurring = true
	t.Recurrence = rule
	return t
}

// NewMockInstance creates a generated instance of head at occurrence
func NewMockInstance(id string, head *Task, occurrence time.Time) *Task {
	t := head.Clone()
	t.ID = id
	t.ParentRecurringTaskID = head.ID
	t.Status = StatusTodo
	t.DueDate = &occurrence
	t.OccurrenceDate = &occurrence
	t.CompletedAt = nil
	t.CreatedAt = occurrence
	t.UpdatedAt = occurrence
	return t
}
