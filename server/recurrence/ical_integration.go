package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// rrule-go weekdays indexed by time.Weekday (Sunday first)
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RuleToROption converts a rule to rrule-go options. NONE rules have no
// RRULE representation and return nil.
func RuleToROption(rule Rule) *rrule.ROption {
	opt := &rrule.ROption{Interval: rule.step()}

	switch rule.Type {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		if dow, ok := rule.DayOfWeek.Get(); ok && dow >= time.Sunday && dow <= time.Saturday {
			opt.Byweekday = []rrule.Weekday{rruleWeekdays[dow]}
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		if dom, ok := rule.DayOfMonth.Get(); ok {
			opt.Bymonthday, opt.Bysetpos = clampedMonthDays(dom)
		}
	case Yearly:
		opt.Freq = rrule.YEARLY
	default:
		return nil
	}

	if end, ok := rule.EndDate.Get(); ok {
		opt.Until = end.UTC()
	}
	return opt
}

// clampedMonthDays expresses "day N, or the month's last day if shorter"
// as BYMONTHDAY=28..N;BYSETPOS=-1. Anchors up to 28 exist in every month.
func clampedMonthDays(dom int) ([]int, []int) {
	if dom <= 28 {
		return []int{dom}, nil
	}
	if dom > 31 {
		dom = 31
	}
	days := make([]int, 0, dom-27)
	for d := 28; d <= dom; d++ {
		days = append(days, d)
	}
	return days, []int{-1}
}

// RuleToRRULE renders the rule as an RRULE value (without the "RRULE:"
// prefix). NONE rules render as an empty string.
func RuleToRRULE(rule Rule) string {
	opt := RuleToROption(rule)
	if opt == nil {
		return ""
	}
	return opt.RRuleString()
}

// RuleFromRRULE parses an RRULE value into a rule. Sub-daily frequencies,
// COUNT bounds and multi-day BYDAY/BYMONTHDAY lists cannot be represented
// and are rejected.
func RuleFromRRULE(value string) (Rule, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	if value == "" {
		return Rule{Type: None}, nil
	}

	opt, err := rrule.StrToROption(value)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to parse RRULE '%s': %w", value, err)
	}
	if opt.Count > 0 {
		return Rule{}, fmt.Errorf("RRULE '%s': COUNT is not supported, use UNTIL", value)
	}

	rule := Rule{Interval: opt.Interval}
	if rule.Interval <= 0 {
		rule.Interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Type = Daily
	case rrule.WEEKLY:
		rule.Type = Weekly
		if len(opt.Byweekday) > 1 {
			return Rule{}, fmt.Errorf("RRULE '%s': only one BYDAY weekday is supported", value)
		}
		if len(opt.Byweekday) == 1 {
			if opt.Byweekday[0].N() != 0 {
				return Rule{}, fmt.Errorf("RRULE '%s': ordinal BYDAY is not supported", value)
			}
			// rrule-go numbers weekdays from Monday
			rule.DayOfWeek = mo.Some(time.Weekday((opt.Byweekday[0].Day() + 1) % 7))
		}
	case rrule.MONTHLY:
		rule.Type = Monthly
		if len(opt.Byweekday) > 0 {
			return Rule{}, fmt.Errorf("RRULE '%s': BYDAY is not supported for monthly rules", value)
		}
		if len(opt.Bymonthday) > 0 {
			clamped := len(opt.Bysetpos) == 1 && opt.Bysetpos[0] == -1
			if len(opt.Bymonthday) > 1 && !clamped {
				return Rule{}, fmt.Errorf("RRULE '%s': only one BYMONTHDAY is supported", value)
			}
			dom := opt.Bymonthday[0]
			if clamped {
				for _, d := range opt.Bymonthday {
					dom = max(dom, d)
				}
			}
			if dom > 0 {
				rule.DayOfMonth = mo.Some(dom)
			}
		}
	case rrule.YEARLY:
		rule.Type = Yearly
	default:
		return Rule{}, fmt.Errorf("RRULE '%s': unsupported frequency %v", value, opt.Freq)
	}

	if !opt.Until.IsZero() {
		rule.EndDate = mo.Some(opt.Until)
	}
	return rule, nil
}

// RuleFromComponent extracts the recurrence rule from an iCal component.
// Components without RRULE yield a NONE rule.
func RuleFromComponent(comp *ical.Component) (Rule, error) {
	prop := comp.Props.Get(ical.PropRecurrenceRule)
	if prop == nil || prop.Value == "" {
		return Rule{Type: None}, nil
	}
	return RuleFromRRULE(prop.Value)
}

// SafeTimeDeref safely dereferences a time pointer, returning defaultTime if nil
func SafeTimeDeref(t *time.Time, defaultTime time.Time) time.Time {
	if t == nil {
		return defaultTime
	}
	return *t
}
