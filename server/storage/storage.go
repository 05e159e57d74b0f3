package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lrhflow/flow/server/recurrence"
)

// Storage interface connects the scheduler with your backend storage (e.g. database).
// Please use the error types provided.
type Storage interface {
	// CreateTask inserts a task. Implementations assign ID when empty and set
	// CreatedAt/UpdatedAt. A second task in the same chain with the same
	// occurrence date must fail with ErrAlreadyExists.
	CreateTask(ctx context.Context, task *Task) error
	// GetTask finds a task by id.
	GetTask(ctx context.Context, id string) (*Task, error)
	// UpdateTaskStatus changes the status of a task and returns the updated copy.
	// Status is the only field that changes once a task exists.
	UpdateTaskStatus(ctx context.Context, id string, status Status) (*Task, error)
	// ListTasks returns tasks matching filter, ordered by due date (tasks
	// without one last), then creation time.
	ListTasks(ctx context.Context, filter *Filter) ([]*Task, error)
}

// Status is the workflow state of a task
type Status string

const (
	StatusTodo  Status = "TODO"
	StatusDoing Status = "DOING"
	StatusDone  Status = "DONE"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	default:
		return false
	}
}

// HierarchyLevel names a level of the strategic-goal tree a task hangs off
type HierarchyLevel string

const (
	LevelMainGoal    HierarchyLevel = "MAIN_GOAL"
	LevelSubgoal     HierarchyLevel = "SUBGOAL"
	LevelPlan        HierarchyLevel = "PLAN"
	LevelProgram     HierarchyLevel = "PROGRAM"
	LevelProject     HierarchyLevel = "PROJECT"
	LevelInstruction HierarchyLevel = "INSTRUCTION"
)

// Placement locates a task in the goal hierarchy. Opaque to the scheduler.
type Placement struct {
	Level  HierarchyLevel `json:"level,omitempty" yaml:"level,omitempty"`
	NodeID string         `json:"nodeId,omitempty" yaml:"node_id,omitempty"`
}

// Task is a unit of work. Recurring tasks form chains: the head has an
// empty ParentRecurringTaskID, every generated instance carries the head's id.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	DueDate *time.Time `json:"dueDate,omitempty"`
	// OccurrenceDate is the date this instance represents
	OccurrenceDate *time.Time `json:"occurrenceDate,omitempty"`

	IsRecurring           bool            `json:"isRecurring"`
	Recurrence            recurrence.Rule `json:"recurrence"`
	ParentRecurringTaskID string          `json:"parentRecurringTaskId,omitempty"`

	// Copied through to generated instances unchanged
	ResponsibleUserID string    `json:"responsibleUserId,omitempty"`
	DepartmentID      string    `json:"departmentId,omitempty"`
	PostID            string    `json:"postId,omitempty"`
	Placement         Placement `json:"placement"`
	CreatedByID       string    `json:"createdById,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// IsChainHead reports whether the task is the template of its chain
func (t *Task) IsChainHead() bool {
	return t.ParentRecurringTaskID == ""
}

// ChainID returns the id of the chain head this task belongs to
func (t *Task) ChainID() string {
	if t.ParentRecurringTaskID != "" {
		return t.ParentRecurringTaskID
	}
	return t.ID
}

// RecursActively reports whether the task recurs with a usable rule
func (t *Task) RecursActively() bool {
	return t.IsRecurring && t.Recurrence.IsActive()
}

// BaseDate is the date the next occurrence is computed from:
// OccurrenceDate, else DueDate, else fallback.
func (t *Task) BaseDate(fallback time.Time) time.Time {
	if t.OccurrenceDate != nil {
		return *t.OccurrenceDate
	}
	return recurrence.SafeTimeDeref(t.DueDate, fallback)
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	c := *t
	c.DueDate = cloneTime(t.DueDate)
	c.OccurrenceDate = cloneTime(t.OccurrenceDate)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Validate checks the fields a caller controls when creating a task
func (t *Task) Validate() error {
	if t.Title == "" {
		return &Error{Type: ErrInvalidInput, Message: "title is required"}
	}
	if t.Status != "" && !t.Status.Valid() {
		return &Error{Type: ErrInvalidInput, Message: fmt.Sprintf("unknown status %q", t.Status)}
	}
	if t.ParentRecurringTaskID != "" && t.ParentRecurringTaskID == t.ID {
		return &Error{Type: ErrInvalidInput, Message: "task cannot be its own chain head"}
	}
	if t.IsRecurring {
		if err := t.Recurrence.Validate(); err != nil {
			return &Error{Type: ErrInvalidInput, Message: "invalid recurrence rule", Err: err}
		}
	}
	return nil
}

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err wraps a storage *Error of the given type
func IsType(err error, typ ErrorType) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Type == typ
}

// IsNotFound reports whether err is a not-found storage error
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// IsAlreadyExists reports whether err is a uniqueness violation
func IsAlreadyExists(err error) bool {
	return IsType(err, ErrAlreadyExists)
}
