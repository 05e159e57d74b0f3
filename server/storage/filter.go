package storage

import (
	"slices"
	"sort"
	"time"
)

// Filter selects tasks. Zero-valued fields do not constrain the result.
type Filter struct {
	// ChainID matches the chain head itself and every instance pointing at it
	ChainID string
	// Statuses matches any of the listed statuses
	Statuses []Status
	// RecurringOnly matches tasks with isRecurring set and a type other than NONE
	RecurringOnly bool
	// HeadsOnly matches tasks without a parent reference
	HeadsOnly bool
	// DueFrom matches dueDate >= DueFrom; tasks without a due date never match
	DueFrom *time.Time
	// DueBefore matches dueDate < DueBefore; tasks without a due date never match
	DueBefore *time.Time
	// Limit caps the number of results (0 = unlimited)
	Limit int
}

// ChainHeadsFilter selects the heads of all active recurring chains
func ChainHeadsFilter() *Filter {
	return &Filter{RecurringOnly: true, HeadsOnly: true}
}

// PendingFilter selects TODO members of a chain due at or after now
func PendingFilter(chainID string, now time.Time) *Filter {
	return &Filter{
		ChainID:  chainID,
		Statuses: []Status{StatusTodo},
		DueFrom:  &now,
		Limit:    1,
	}
}

// Matches evaluates the filter against a single task
func (f *Filter) Matches(t *Task) bool {
	if f == nil {
		return true
	}
	if f.ChainID != "" && t.ID != f.ChainID && t.ParentRecurringTaskID != f.ChainID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if f.RecurringOnly && !t.RecursActively() {
		return false
	}
	if f.HeadsOnly && !t.IsChainHead() {
		return false
	}
	if f.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*f.DueFrom)) {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	return true
}

// SortTasks orders tasks by due date (nil last), then creation time, then id
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		di, dj := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case di == nil && dj != nil:
			return false
		case di != nil && dj == nil:
			return true
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// ApplyLimit truncates tasks to the filter's limit
func (f *Filter) ApplyLimit(tasks []*Task) []*Task {
	if f != nil && f.Limit > 0 && len(tasks) > f.Limit {
		return tasks[:f.Limit]
	}
	return tasks
}
