package recurrence

import (
	"time"
)

// Engine provides next-occurrence calculation and preview expansion
type Engine struct {
	cache  *PreviewCache
	config EngineConfig
}

// NewEngine creates a new recurrence engine instance without a cache
func NewEngine() *Engine {
	return NewEngineWithConfig(DisabledCacheConfig)
}

// Close stops the preview cache, if any
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// NextOccurrence computes the date following current under rule.
// It has no side effects. NONE and unrecognized types return current
// unchanged, which callers read as "do not reschedule".
func NextOccurrence(current time.Time, rule Rule) time.Time {
	n := rule.step()

	switch rule.Type {
	case Daily:
		return current.AddDate(0, 0, n)
	case Weekly:
		return nextWeekly(current, rule, n)
	case Monthly:
		return nextMonthly(current, rule, n)
	case Yearly:
		// Feb 29 rolls over to Mar 1 in non-leap target years
		return current.AddDate(n, 0, 0)
	default:
		return current
	}
}

// NextOccurrence is the method form of the package function, kept so
// callers holding an *Engine need not import both.
func (e *Engine) NextOccurrence(current time.Time, rule Rule) time.Time {
	return NextOccurrence(current, rule)
}

// nextWeekly snaps forward to the anchor weekday. A zero offset would not
// advance, so it becomes a full week. Intervals above one add whole weeks.
func nextWeekly(current time.Time, rule Rule, n int) time.Time {
	anchor, ok := rule.DayOfWeek.Get()
	if !ok {
		return current.AddDate(0, 0, 7*n)
	}

	daysToAdd := ((int(anchor)-int(current.Weekday()))%7 + 7) % 7
	if daysToAdd == 0 {
		daysToAdd = 7
	}
	return current.AddDate(0, 0, daysToAdd+7*(n-1))
}

// nextMonthly advances the month. Without an anchor Go's native rollover
// applies (Jan 31 + 1 month = Mar 2 or 3). With an anchor the day is
// clamped to the last day of the target month.
func nextMonthly(current time.Time, rule Rule, n int) time.Time {
	day, ok := rule.DayOfMonth.Get()
	if !ok {
		return current.AddDate(0, n, 0)
	}

	year, month, _ := current.Date()
	hour, minute, sec := current.Clock()
	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, current.Location())

	last := DaysInMonth(target.Year(), target.Month())
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, current.Nanosecond(), current.Location())
}

// DaysInMonth returns the number of days in the given month
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Preview expands up to count occurrences after start. Expansion stops at
// the rule's end date (an occurrence after it is excluded) and at the
// engine's configured limits.
func (e *Engine) Preview(start time.Time, rule Rule, count int) []Occurrence {
	if !rule.IsActive() || count <= 0 {
		return nil
	}
	if limit := e.config.Preview.MaxOccurrences; limit > 0 && count > limit {
		count = limit
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(start, rule, count); ok {
			return cached
		}
	}

	occurrences := e.expand(start, rule, count)

	if e.cache != nil {
		e.cache.Set(start, rule, count, occurrences)
	}
	return occurrences
}

func (e *Engine) expand(start time.Time, rule Rule, count int) []Occurrence {
	var limit time.Time
	if span := e.config.Preview.MaxTimeSpan; span > 0 {
		limit = start.Add(span)
	}
	end, hasEnd := rule.EndDate.Get()

	occurrences := make([]Occurrence, 0, count)
	cur := start
	for i := 1; i <= count; i++ {
		next := NextOccurrence(cur, rule)
		if !next.After(cur) {
			break
		}
		if hasEnd && next.After(end) {
			break
		}
		if !limit.IsZero() && next.After(limit) {
			break
		}
		occurrences = append(occurrences, Occurrence{Date: next, Index: i})
		cur = next
	}
	return occurrences
}
