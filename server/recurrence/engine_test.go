package recurrence

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		current  time.Time
		rule     Rule
		expected time.Time
	}{
		{
			name:     "daily interval 1",
			current:  date(2024, 3, 10),
			rule:     Rule{Type: Daily, Interval: 1},
			expected: date(2024, 3, 11),
		},
		{
			name:     "daily across year boundary",
			current:  date(2023, 12, 30),
			rule:     Rule{Type: Daily, Interval: 3},
			expected: date(2024, 1, 2),
		},
		{
			name:     "weekly without anchor",
			current:  date(2024, 3, 6),
			rule:     Rule{Type: Weekly, Interval: 2},
			expected: date(2024, 3, 20),
		},
		{
			name:     "weekly anchor later in the week",
			current:  date(2024, 3, 6), // Wednesday
			rule:     Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Friday)},
			expected: date(2024, 3, 8),
		},
		{
			name:     "weekly anchor on same weekday advances a full week",
			current:  date(2024, 3, 6),
			rule:     Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Wednesday)},
			expected: date(2024, 3, 13),
		},
		{
			name:     "weekly anchor earlier in the week",
			current:  date(2024, 3, 8), // Friday
			rule:     Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Monday)},
			expected: date(2024, 3, 11),
		},
		{
			name:     "biweekly anchor",
			current:  date(2024, 3, 6),
			rule:     Rule{Type: Weekly, Interval: 2, DayOfWeek: mo.Some(time.Friday)},
			expected: date(2024, 3, 15),
		},
		{
			name:     "monthly leap year clamp",
			current:  date(2024, 1, 31),
			rule:     Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)},
			expected: date(2024, 2, 29),
		},
		{
			name:     "monthly non-leap clamp",
			current:  date(2023, 1, 31),
			rule:     Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)},
			expected: date(2023, 2, 28),
		},
		{
			name:     "monthly anchor 31 into 30-day month",
			current:  date(2024, 3, 31),
			rule:     Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)},
			expected: date(2024, 4, 30),
		},
		{
			name:     "monthly anchor restores after short month",
			current:  date(2024, 2, 29),
			rule:     Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)},
			expected: date(2024, 3, 31),
		},
		{
			name:     "monthly across year boundary",
			current:  date(2024, 11, 15),
			rule:     Rule{Type: Monthly, Interval: 3, DayOfMonth: mo.Some(15)},
			expected: date(2025, 2, 15),
		},
		{
			name:     "monthly without anchor uses native rollover",
			current:  date(2023, 1, 31),
			rule:     Rule{Type: Monthly, Interval: 1},
			expected: date(2023, 3, 3),
		},
		{
			name:     "yearly",
			current:  date(2024, 6, 1),
			rule:     Rule{Type: Yearly, Interval: 2},
			expected: date(2026, 6, 1),
		},
		{
			name:     "yearly from leap day rolls over",
			current:  date(2024, 2, 29),
			rule:     Rule{Type: Yearly, Interval: 1},
			expected: date(2025, 3, 1),
		},
		{
			name:     "zero interval treated as one",
			current:  date(2024, 3, 10),
			rule:     Rule{Type: Daily},
			expected: date(2024, 3, 11),
		},
		{
			name:     "none returns input",
			current:  date(2024, 3, 10),
			rule:     Rule{Type: None, Interval: 5},
			expected: date(2024, 3, 10),
		},
		{
			name:     "unknown type returns input",
			current:  date(2024, 3, 10),
			rule:     Rule{Type: Frequency("HOURLY"), Interval: 5},
			expected: date(2024, 3, 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(tt.current, tt.rule)
			assert.True(t, tt.expected.Equal(got), "expected %s, got %s", tt.expected, got)
		})
	}
}

func TestNextOccurrence_PreservesClock(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	current := time.Date(2024, 1, 31, 9, 30, 0, 0, loc)

	got := NextOccurrence(current, Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)})

	assert.Equal(t, time.Date(2024, 2, 29, 9, 30, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"none", Rule{Type: None}, false},
		{"empty type", Rule{}, false},
		{"daily", Rule{Type: Daily, Interval: 1}, false},
		{"weekly anchor", Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Saturday)}, false},
		{"monthly anchor", Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(31)}, false},
		{"unknown type", Rule{Type: "FORTNIGHTLY", Interval: 1}, true},
		{"zero interval", Rule{Type: Daily}, true},
		{"negative interval", Rule{Type: Yearly, Interval: -1}, true},
		{"weekday out of range", Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Weekday(7))}, true},
		{"weekday on monthly rule", Rule{Type: Monthly, Interval: 1, DayOfWeek: mo.Some(time.Monday)}, true},
		{"month day zero", Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(0)}, true},
		{"month day 32", Rule{Type: Monthly, Interval: 1, DayOfMonth: mo.Some(32)}, true},
		{"month day on weekly rule", Rule{Type: Weekly, Interval: 1, DayOfMonth: mo.Some(3)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseFrequency(t *testing.T) {
	assert.Equal(t, Daily, ParseFrequency("daily"))
	assert.Equal(t, Weekly, ParseFrequency(" Weekly "))
	assert.Equal(t, None, ParseFrequency("hourly"))
	assert.Equal(t, None, ParseFrequency(""))
}

func TestEngine_Preview(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	t.Run("stops at end date", func(t *testing.T) {
		rule := Rule{Type: Daily, Interval: 10, EndDate: mo.Some(date(2024, 4, 1))}
		got := engine.Preview(date(2024, 3, 1), rule, 10)

		require.Len(t, got, 3)
		assert.Equal(t, date(2024, 3, 11), got[0].Date)
		assert.Equal(t, date(2024, 3, 31), got[2].Date)
		assert.Equal(t, 3, got[2].Index)
	})

	t.Run("end date itself is included", func(t *testing.T) {
		rule := Rule{Type: Daily, Interval: 1, EndDate: mo.Some(date(2024, 3, 3))}
		got := engine.Preview(date(2024, 3, 1), rule, 5)

		require.Len(t, got, 2)
		assert.Equal(t, date(2024, 3, 3), got[1].Date)
	})

	t.Run("inactive rule", func(t *testing.T) {
		assert.Empty(t, engine.Preview(date(2024, 3, 1), Rule{Type: None}, 5))
	})

	t.Run("count capped by config", func(t *testing.T) {
		got := engine.Preview(date(2024, 3, 1), Rule{Type: Daily, Interval: 1}, 10000)
		assert.Len(t, got, DefaultPreviewOptions.MaxOccurrences)
	})

	t.Run("time span limit", func(t *testing.T) {
		got := engine.Preview(date(2024, 1, 1), Rule{Type: Yearly, Interval: 1}, 10)
		// 730 days from a leap-year start end on 2025-12-31
		require.Len(t, got, 1)
		assert.Equal(t, date(2025, 1, 1), got[0].Date)
	})
}

func TestEngine_PreviewUsesCache(t *testing.T) {
	engine := NewEngineWithConfig(DefaultEngineConfig)
	defer engine.Close()

	rule := Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Friday)}
	first := engine.Preview(date(2024, 3, 6), rule, 4)
	require.Len(t, first, 4)

	assert.Equal(t, 1, engine.cache.Stats().TotalEntries)

	second := engine.Preview(date(2024, 3, 6), rule, 4)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, engine.cache.Stats().TotalEntries)
}

func TestEngine_PreviewCacheKeepsRulesApart(t *testing.T) {
	engine := NewEngineWithConfig(DefaultEngineConfig)
	defer engine.Close()

	start := date(2024, 3, 1)
	daily := engine.Preview(start, Rule{Type: Daily, Interval: 1}, 12)
	require.Len(t, daily, 12)
	assert.Equal(t, date(2024, 3, 2), daily[0].Date)

	every11 := engine.Preview(start, Rule{Type: Daily, Interval: 11}, 2)
	uncached := NewEngine().Preview(start, Rule{Type: Daily, Interval: 11}, 2)
	require.Len(t, every11, 2)
	assert.Equal(t, date(2024, 3, 12), every11[0].Date)
	assert.Equal(t, date(2024, 3, 23), every11[1].Date)
	assert.Equal(t, uncached, every11)
}

// An anchor equal to the current weekday never yields the current date:
// Wednesday 03-06 anchored on Wednesday moves to 03-13, and each extra
// interval adds one more week.
func TestNextOccurrence_WeeklyAnchorOnSameWeekday(t *testing.T) {
	wednesday := date(2024, 3, 6)
	require.Equal(t, time.Wednesday, wednesday.Weekday())

	tests := []struct {
		interval int
		expected time.Time
	}{
		{interval: 1, expected: date(2024, 3, 13)},
		{interval: 2, expected: date(2024, 3, 20)},
		{interval: 3, expected: date(2024, 3, 27)},
	}
	for _, tt := range tests {
		rule := Rule{Type: Weekly, Interval: tt.interval, DayOfWeek: mo.Some(time.Wednesday)}
		got := NextOccurrence(wednesday, rule)
		assert.Equal(t, tt.expected, got, "interval %d", tt.interval)
		assert.Equal(t, time.Wednesday, got.Weekday())
	}

	// the same anchor from the previous day lands on the very next day
	tuesday := date(2024, 3, 5)
	assert.Equal(t, wednesday, NextOccurrence(tuesday, Rule{Type: Weekly, Interval: 1, DayOfWeek: mo.Some(time.Wednesday)}))
}
