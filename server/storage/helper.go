package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/lrhflow/flow/server/recurrence"
)

const (
	icalProductID = "-//LRH Flow//Task Feed//EN"
	uidSuffix     = "@lrhflow"
)

// NewTaskID returns a fresh task identifier
func NewTaskID() string {
	return uuid.NewString()
}

// ChainHeads lists the heads of all active recurring chains
func ChainHeads(ctx context.Context, s Storage) ([]*Task, error) {
	return s.ListTasks(ctx, ChainHeadsFilter())
}

// HasPendingInstance reports whether a chain has a TODO member due at or after now
func HasPendingInstance(ctx context.Context, s Storage, chainID string, now time.Time) (bool, error) {
	tasks, err := s.ListTasks(ctx, PendingFilter(chainID, now))
	if err != nil {
		return false, err
	}
	return len(tasks) > 0, nil
}

// LatestInChain returns the chain member with the latest base date.
// Ties go to the most recently created member.
func LatestInChain(ctx context.Context, s Storage, chainID string) (*Task, error) {
	tasks, err := s.ListTasks(ctx, &Filter{ChainID: chainID})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, &Error{Type: ErrNotFound, Message: fmt.Sprintf("chain %s has no tasks", chainID)}
	}

	latest := tasks[0]
	for _, t := range tasks[1:] {
		lb, tb := latest.BaseDate(latest.CreatedAt), t.BaseDate(t.CreatedAt)
		if tb.After(lb) || (tb.Equal(lb) && t.CreatedAt.After(latest.CreatedAt)) {
			latest = t
		}
	}
	return latest, nil
}

// TaskToComponent converts a task to a VTODO component. Chain heads carry
// the RRULE; instances point at their head with RELATED-TO.
func TaskToComponent(t *Task, now time.Time) *ical.Component {
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, t.ID+uidSuffix)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	todo.Props.SetText(ical.PropSummary, t.Title)
	if t.Description != "" {
		todo.Props.SetText(ical.PropDescription, t.Description)
	}
	if t.DueDate != nil {
		todo.Props.SetDateTime(ical.PropDue, t.DueDate.UTC())
	}
	todo.Props.SetText(ical.PropStatus, statusToICal(t.Status))
	if t.CompletedAt != nil {
		todo.Props.SetDateTime(ical.PropCompleted, t.CompletedAt.UTC())
	}

	if t.IsChainHead() && t.RecursActively() {
		if rr := recurrence.RuleToRRULE(t.Recurrence); rr != "" {
			// RRULE values must not be text-escaped
			prop := ical.NewProp(ical.PropRecurrenceRule)
			prop.Value = rr
			todo.Props.Set(prop)
		}
	}
	if !t.IsChainHead() {
		todo.Props.SetText(ical.PropRelatedTo, t.ParentRecurringTaskID+uidSuffix)
	}
	return todo
}

// TasksToICS renders tasks as a VCALENDAR document of VTODOs
func TasksToICS(tasks []*Task, now time.Time) (string, error) {
	if len(tasks) == 0 {
		// the encoder requires at least one component
		return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + icalProductID + "\r\nEND:VCALENDAR\r\n", nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icalProductID)

	for _, t := range tasks {
		cal.Children = append(cal.Children, TaskToComponent(t, now))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.String(), nil
}

// ICSToTasks decodes every VTODO of a calendar into a new TODO task.
// RRULE-bearing components become recurring chain heads.
func ICSToTasks(ics string) ([]*Task, error) {
	cal, err := ical.NewDecoder(strings.NewReader(ics)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}

	var tasks []*Task
	for _, comp := range cal.Children {
		if comp.Name != ical.CompToDo {
			continue
		}

		summary, err := comp.Props.Text(ical.PropSummary)
		if err != nil {
			return nil, fmt.Errorf("failed to read SUMMARY: %w", err)
		}
		task := &Task{Title: summary, Status: StatusTodo}
		if desc, err := comp.Props.Text(ical.PropDescription); err == nil {
			task.Description = desc
		}
		if comp.Props.Get(ical.PropDue) != nil {
			due, err := comp.Props.DateTime(ical.PropDue, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("task %q: invalid DUE: %w", summary, err)
			}
			task.DueDate = &due
		}

		rule, err := recurrence.RuleFromComponent(comp)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", summary, err)
		}
		if rule.IsActive() {
			task.IsRecurring = true
			task.Recurrence = rule
		}
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks found in calendar")
	}
	return tasks, nil
}

func statusToICal(s Status) string {
	switch s {
	case StatusDoing:
		return "IN-PROCESS"
	case StatusDone:
		return "COMPLETED"
	default:
		return "NEEDS-ACTION"
	}
}
