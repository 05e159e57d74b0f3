// memory based implementation for testing and single-process deployments
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lrhflow/flow/server/storage"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu          sync.RWMutex
	tasks       map[string]*storage.Task
	occurrences map[string]string // key: chainID/occurrence, value: task id
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt/CompletedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		tasks:       make(map[string]*storage.Task),
		occurrences: make(map[string]string),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func occurrenceKey(t *storage.Task) (string, bool) {
	if t.ParentRecurringTaskID == "" || t.OccurrenceDate == nil {
		return "", false
	}
	return fmt.Sprintf("%s/%s", t.ParentRecurringTaskID, t.OccurrenceDate.UTC().Format(time.RFC3339Nano)), true
}

func (s *Store) CreateTask(_ context.Context, task *storage.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = storage.NewTaskID()
	}
	if _, exists := s.tasks[task.ID]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "task already exists",
		}
	}
	if task.ParentRecurringTaskID != "" {
		if _, ok := s.tasks[task.ParentRecurringTaskID]; !ok {
			return &storage.Error{
				Type:    storage.ErrNotFound,
				Message: "chain head not found",
			}
		}
	}

	key, indexed := occurrenceKey(task)
	if indexed {
		if _, taken := s.occurrences[key]; taken {
			return &storage.Error{
				Type:    storage.ErrAlreadyExists,
				Message: "occurrence already exists in chain",
			}
		}
	}

	now := s.now()
	if task.Status == "" {
		task.Status = storage.StatusTodo
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	s.tasks[task.ID] = task.Clone()
	if indexed {
		s.occurrences[key] = task.ID
	}
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "task not found",
		}
	}
	return task.Clone(), nil
}

func (s *Store) UpdateTaskStatus(_ context.Context, id string, status storage.Status) (*storage.Task, error) {
	if !status.Valid() {
		return nil, &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: fmt.Sprintf("unknown status %q", status),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "task not found",
		}
	}

	now := s.now()
	task.Status = status
	task.UpdatedAt = now
	if status == storage.StatusDone {
		task.CompletedAt = &now
	} else {
		task.CompletedAt = nil
	}
	return task.Clone(), nil
}

func (s *Store) ListTasks(_ context.Context, filter *storage.Filter) ([]*storage.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*storage.Task
	for _, task := range s.tasks {
		if filter.Matches(task) {
			tasks = append(tasks, task.Clone())
		}
	}

	storage.SortTasks(tasks)
	return filter.ApplyLimit(tasks), nil
}
