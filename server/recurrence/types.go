package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
)

// Frequency is the base period of a recurrence rule
type Frequency string

const (
	None    Frequency = "NONE"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// ParseFrequency normalizes a frequency name. Unknown names map to None.
func ParseFrequency(s string) Frequency {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly, Yearly:
		return f
	default:
		return None
	}
}

// Rule contains all recurrence-related information for a task
type Rule struct {
	Type     Frequency `json:"type"`
	Interval int       `json:"interval"`

	// DayOfWeek anchors WEEKLY rules to a weekday (0=Sunday)
	DayOfWeek mo.Option[time.Weekday] `json:"dayOfWeek"`
	// DayOfMonth anchors MONTHLY rules to a day, clamped to the month's last day
	DayOfMonth mo.Option[int] `json:"dayOfMonth"`
	// EndDate is the horizon after which no occurrence is generated
	EndDate mo.Option[time.Time] `json:"endDate"`
}

// IsActive reports whether the rule advances dates at all
func (r Rule) IsActive() bool {
	switch r.Type {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

// step returns the interval, treating non-positive values as 1
func (r Rule) step() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// Validate checks the rule configuration. The calculator itself never
// fails, so callers are expected to reject bad rules when saving them.
func (r Rule) Validate() error {
	switch r.Type {
	case None, "":
		return nil
	case Daily, Weekly, Monthly, Yearly:
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}

	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be positive, got %d", r.Interval)
	}
	if dow, ok := r.DayOfWeek.Get(); ok {
		if r.Type != Weekly {
			return fmt.Errorf("day of week anchor is only valid for %s rules", Weekly)
		}
		if dow < time.Sunday || dow > time.Saturday {
			return fmt.Errorf("day of week must be between 0 and 6, got %d", dow)
		}
	}
	if dom, ok := r.DayOfMonth.Get(); ok {
		if r.Type != Monthly {
			return fmt.Errorf("day of month anchor is only valid for %s rules", Monthly)
		}
		if dom < 1 || dom > 31 {
			return fmt.Errorf("day of month must be between 1 and 31, got %d", dom)
		}
	}
	return nil
}

// Occurrence is a single previewed date of a rule
type Occurrence struct {
	Date time.Time `json:"date"`
	// Index is 1 for the first occurrence after the start date
	Index int `json:"index"`
}

// PreviewOptions controls how preview expansion behaves
type PreviewOptions struct {
	MaxOccurrences int           // Hard cap on returned occurrences
	MaxTimeSpan    time.Duration // Stop expanding past start+span (0 = unlimited)
}

// DefaultPreviewOptions provides sensible defaults for expansion
var DefaultPreviewOptions = PreviewOptions{
	MaxOccurrences: 100,
	MaxTimeSpan:    365 * 24 * time.Hour * 2, // 2 years
}
