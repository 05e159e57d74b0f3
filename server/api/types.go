// Package api holds the JSON wire types shared by the HTTP server and
// the Go client.
package api

import (
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/storage"
)

// Rule is the wire form of recurrence.Rule. Absent anchors are null.
type Rule struct {
	Type       string     `json:"type"`
	Interval   int        `json:"interval"`
	DayOfWeek  *int       `json:"dayOfWeek"`
	DayOfMonth *int       `json:"dayOfMonth"`
	EndDate    *time.Time `json:"endDate"`
}

func FromRule(r recurrence.Rule) Rule {
	out := Rule{Type: string(r.Type), Interval: r.Interval}
	if out.Type == "" {
		out.Type = string(recurrence.None)
	}
	if dow, ok := r.DayOfWeek.Get(); ok {
		v := int(dow)
		out.DayOfWeek = &v
	}
	if dom, ok := r.DayOfMonth.Get(); ok {
		out.DayOfMonth = &dom
	}
	if end, ok := r.EndDate.Get(); ok {
		out.EndDate = &end
	}
	return out
}

// ToRule converts and validates the wire form
func (j Rule) ToRule() (recurrence.Rule, error) {
	r := recurrence.Rule{Type: recurrence.Frequency(j.Type), Interval: j.Interval}
	if j.Type == "" {
		r.Type = recurrence.None
	}
	if r.IsActive() && r.Interval == 0 {
		r.Interval = 1
	}
	if j.DayOfWeek != nil {
		r.DayOfWeek = mo.Some(time.Weekday(*j.DayOfWeek))
	}
	if j.DayOfMonth != nil {
		r.DayOfMonth = mo.Some(*j.DayOfMonth)
	}
	if j.EndDate != nil {
		r.EndDate = mo.Some(*j.EndDate)
	}
	if err := r.Validate(); err != nil {
		return recurrence.Rule{}, fmt.Errorf("invalid recurrence rule: %w", err)
	}
	return r, nil
}

// Task is the wire form of storage.Task
type Task struct {
	ID                    string            `json:"id"`
	Title                 string            `json:"title"`
	Description           string            `json:"description,omitempty"`
	Status                storage.Status    `json:"status"`
	DueDate               *time.Time        `json:"dueDate,omitempty"`
	OccurrenceDate        *time.Time        `json:"occurrenceDate,omitempty"`
	IsRecurring           bool              `json:"isRecurring"`
	Recurrence            Rule              `json:"recurrence"`
	ParentRecurringTaskID string            `json:"parentRecurringTaskId,omitempty"`
	ResponsibleUserID     string            `json:"responsibleUserId,omitempty"`
	DepartmentID          string            `json:"departmentId,omitempty"`
	PostID                string            `json:"postId,omitempty"`
	Placement             storage.Placement `json:"placement"`
	CreatedByID           string            `json:"createdById,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
	CompletedAt           *time.Time        `json:"completedAt,omitempty"`
}

func FromTask(t *storage.Task) *Task {
	if t == nil {
		return nil
	}
	return &Task{
		ID:                    t.ID,
		Title:                 t.Title,
		Description:           t.Description,
		Status:                t.Status,
		DueDate:               t.DueDate,
		OccurrenceDate:        t.OccurrenceDate,
		IsRecurring:           t.IsRecurring,
		Recurrence:            FromRule(t.Recurrence),
		ParentRecurringTaskID: t.ParentRecurringTaskID,
		ResponsibleUserID:     t.ResponsibleUserID,
		DepartmentID:          t.DepartmentID,
		PostID:                t.PostID,
		Placement:             t.Placement,
		CreatedByID:           t.CreatedByID,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		CompletedAt:           t.CompletedAt,
	}
}

func FromTasks(tasks []*storage.Task) []*Task {
	out := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// CreateTaskRequest is the body of POST /api/tasks. Instances are created
// by the scheduler only, so there is no parent field.
type CreateTaskRequest struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Status            storage.Status    `json:"status"`
	DueDate           *time.Time        `json:"dueDate"`
	IsRecurring       bool              `json:"isRecurring"`
	Recurrence        *Rule             `json:"recurrence"`
	ResponsibleUserID string            `json:"responsibleUserId"`
	DepartmentID      string            `json:"departmentId"`
	PostID            string            `json:"postId"`
	Placement         storage.Placement `json:"placement"`
}

func (req CreateTaskRequest) ToTask(createdBy string) (*storage.Task, error) {
	task := &storage.Task{
		Title:             req.Title,
		Description:       req.Description,
		Status:            req.Status,
		DueDate:           req.DueDate,
		IsRecurring:       req.IsRecurring,
		Recurrence:        recurrence.Rule{Type: recurrence.None},
		ResponsibleUserID: req.ResponsibleUserID,
		DepartmentID:      req.DepartmentID,
		PostID:            req.PostID,
		Placement:         req.Placement,
		CreatedByID:       createdBy,
	}
	if req.Recurrence != nil {
		rule, err := req.Recurrence.ToRule()
		if err != nil {
			return nil, err
		}
		task.Recurrence = rule
	}
	if task.IsRecurring && !task.Recurrence.IsActive() {
		return nil, fmt.Errorf("recurring task needs a recurrence type other than %s", recurrence.None)
	}
	return task, nil
}

// UpdateStatusRequest is the body of PATCH /api/tasks/{id}/status
type UpdateStatusRequest struct {
	Status storage.Status `json:"status"`
}

// UpdateStatusResponse carries the updated task and, when the update
// completed a recurring task, the instance generated for it
type UpdateStatusResponse struct {
	Task         *Task `json:"task"`
	NextInstance *Task `json:"nextInstance,omitempty"`
}

type PreviewRequest struct {
	Date  time.Time `json:"date"`
	Rule  Rule      `json:"rule"`
	Count int       `json:"count"`
}

type PreviewResponse struct {
	Next        time.Time               `json:"next"`
	Occurrences []recurrence.Occurrence `json:"occurrences"`
	RRule       string                  `json:"rrule,omitempty"`
}

type SweepResponse struct {
	Created       int      `json:"created"`
	LookaheadDays int      `json:"lookaheadDays,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// ImportResponse lists the tasks created from an iCalendar import. Error
// is set when a storage failure stopped the import part way.
type ImportResponse struct {
	Created []*Task `json:"created"`
	Error   string  `json:"error,omitempty"`
}

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}
