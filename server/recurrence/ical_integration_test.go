package recurrence

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleToRRULE(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		contains []string
	}{
		{
			name:     "daily",
			rule:     Rule{Type: Daily, Interval: 2},
			contains: []string{"FREQ=DAILY", "INTERVAL=2"},
		},
		{
			name:     "weekly friday",
			rule:     Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Friday)},
			contains: []string{"FREQ=WEEKLY", "BYDAY=FR"},
		},
		{
			name:     "monthly day 15",
			rule:     Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(15)},
			contains: []string{"FREQ=MONTHLY", "BYMONTHDAY=15"},
		},
		{
			name:     "monthly last-day clamp",
			rule:     Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)},
			contains: []string{"BYMONTHDAY=28,29,30,31", "BYSETPOS=-1"},
		},
		{
			name:     "yearly until",
			rule:     Rule{Type: Yearly, Interval: 1, EndDate: mo.Some(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))},
			contains: []string{"FREQ=YEARLY", "UNTIL=20300101T000000Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RuleToRRULE(tt.rule)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}

	assert.Empty(t, RuleToRRULE(Rule{Type: None}))
}

func TestRuleFromRRULE_RoundTrip(t *testing.T) {
	rules := []Rule{
		{Type: Daily, Interval: 3},
		{Type: Weekly, Interval: 2, DayOfWeek: mo.Some(time.Sunday)},
		{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Wednesday)},
		{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(30)},
		{Type: Monthly, Interval: 6, DayOfMonth: mo.Some(1)},
		{Type: Yearly, Interval: 1, EndDate: mo.Some(time.Date(2031, 6, 30, 0, 0, 0, 0, time.UTC))},
	}

	for _, rule := range rules {
		t.Run(RuleToRRULE(rule), func(t *testing.T) {
			parsed, err := RuleFromRRULE(RuleToRRULE(rule))
			require.NoError(t, err)

			assert.Equal(t, rule.Type, parsed.Type)
			assert.Equal(t, rule.Interval, parsed.Interval)
			assert.Equal(t, rule.DayOfWeek.OrEmpty(), parsed.DayOfWeek.OrEmpty())
			assert.Equal(t, rule.DayOfMonth.OrEmpty(), parsed.DayOfMonth.OrEmpty())
			assert.True(t, rule.EndDate.OrEmpty().Equal(parsed.EndDate.OrEmpty()))
		})
	}
}

func TestRuleFromRRULE_Errors(t *testing.T) {
	_, err := RuleFromRRULE("FREQ=HOURLY;INTERVAL=1")
	assert.Error(t, err)

	_, err = RuleFromRRULE("FREQ=DAILY;COUNT=5")
	assert.Error(t, err)

	_, err = RuleFromRRULE("NOT-A-RULE")
	assert.Error(t, err)

	for _, value := range []string{
		"FREQ=WEEKLY;BYDAY=MO,WE,FR",
		"FREQ=WEEKLY;BYDAY=2MO",
		"FREQ=MONTHLY;BYDAY=-1FR",
		"FREQ=MONTHLY;BYMONTHDAY=1,15",
	} {
		_, err = RuleFromRRULE(value)
		assert.Error(t, err, value)
	}

	rule, err := RuleFromRRULE("")
	require.NoError(t, err)
	assert.Equal(t, None, rule.Type)
}

func TestRuleFromComponent(t *testing.T) {
	comp := ical.NewComponent(ical.CompToDo)
	rule, err := RuleFromComponent(comp)
	require.NoError(t, err)
	assert.False(t, rule.IsActive())

	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO"
	comp.Props.Set(prop)
	rule, err = RuleFromComponent(comp)
	require.NoError(t, err)
	assert.Equal(t, Weekly, rule.Type)
	assert.Equal(t, time.Monday, rule.DayOfWeek.MustGet())
}
