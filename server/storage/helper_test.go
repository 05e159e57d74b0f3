package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lrhflow/flow/server/recurrence"
)

func TestTasksToICS_Empty(t *testing.T) {
	ics, err := TasksToICS(nil, time.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(ics, "END:VCALENDAR\r\n"))
	assert.NotContains(t, ics, "VTODO")
}

func TestTasksToICS(t *testing.T) {
	due := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	rule := recurrence.Rule{Type: recurrence.Weekly, Interval: 1, DayOfWeek: mo.Some(time.Friday)}
	head := NewMockRecurringTask("head", "Weekly report; draft", due, rule)
	instance := NewMockInstance("inst", head, due.AddDate(0, 0, 7))
	instance.Status = StatusDone

	ics, err := TasksToICS([]*Task{head, instance}, due)
	require.NoError(t, err)

	assert.Contains(t, ics, "BEGIN:VCALENDAR")
	assert.Contains(t, ics, "PRODID:"+icalProductID)
	assert.Contains(t, ics, "UID:head@lrhflow")
	assert.Contains(t, ics, "RRULE:FREQ=WEEKLY")
	assert.Contains(t, ics, "BYDAY=FR")
	assert.Contains(t, ics, "RELATED-TO:head@lrhflow")
	assert.Contains(t, ics, "STATUS:COMPLETED")
	assert.Contains(t, ics, "STATUS:NEEDS-ACTION")
	assert.Contains(t, ics, `SUMMARY:Weekly report\; draft`)
}

func TestICSToTasks(t *testing.T) {
	due := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	rule := recurrence.Rule{Type: recurrence.Monthly, Interval: 1, DayOfMonth: mo.Some(31)}
	head := NewMockRecurringTask("head", "Close the books", due, rule)
	head.Description = "Month-end close"
	oneoff := NewMockTask("oneoff", "Call bank", due)

	ics, err := TasksToICS([]*Task{head, oneoff}, due)
	require.NoError(t, err)

	tasks, err := ICSToTasks(ics)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "Close the books", tasks[0].Title)
	assert.Equal(t, "Month-end close", tasks[0].Description)
	assert.True(t, tasks[0].IsRecurring)
	assert.Equal(t, recurrence.Monthly, tasks[0].Recurrence.Type)
	assert.Equal(t, 31, tasks[0].Recurrence.DayOfMonth.MustGet())
	require.NotNil(t, tasks[0].DueDate)
	assert.True(t, due.Equal(*tasks[0].DueDate))

	assert.False(t, tasks[1].IsRecurring)
	assert.Equal(t, StatusTodo, tasks[1].Status)

	_, err = ICSToTasks("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:x\r\nEND:VCALENDAR\r\n")
	assert.Error(t, err)

	_, err = ICSToTasks("not a calendar")
	assert.Error(t, err)
}

func TestLatestInChain_PrefersLaterOccurrence(t *testing.T) {
	ctx := context.Background()
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	head := NewMockRecurringTask("head", "Standup", due, recurrence.Rule{Type: recurrence.Daily, Interval: 1})
	late := NewMockInstance("late", head, due.AddDate(0, 0, 2))
	early := NewMockInstance("early", head, due.AddDate(0, 0, 1))

	m := new(MockStorage)
	m.On("ListTasks", ctx, mock.MatchedBy(func(f *Filter) bool { return f.ChainID == "head" })).
		Return([]*Task{head, late, early}, nil)

	latest, err := LatestInChain(ctx, m, "head")
	require.NoError(t, err)
	assert.Equal(t, "late", latest.ID)
	m.AssertExpectations(t)
}

func TestTaskHelpers(t *testing.T) {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	head := NewMockRecurringTask("head", "Standup", due, recurrence.Rule{Type: recurrence.Daily, Interval: 1})
	inst := NewMockInstance("inst", head, due.AddDate(0, 0, 1))

	assert.True(t, head.IsChainHead())
	assert.Equal(t, "head", head.ChainID())
	assert.False(t, inst.IsChainHead())
	assert.Equal(t, "head", inst.ChainID())

	fallback := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, due, head.BaseDate(fallback))
	assert.Equal(t, due.AddDate(0, 0, 1), inst.BaseDate(fallback))
	assert.Equal(t, fallback, (&Task{}).BaseDate(fallback))

	head.IsRecurring = false
	assert.False(t, head.RecursActively())

	clone := inst.Clone()
	*clone.DueDate = fallback
	assert.NotEqual(t, fallback, *inst.DueDate)
}
