package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/lrhflow/flow/server/recurrence"
)

// dateLayouts are tried in order when parsing --from and --until
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", s)
}

type ruleFlags struct {
	rrule      string
	freq       string
	interval   int
	dayOfWeek  int
	dayOfMonth int
	until      string
}

func (f *ruleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.rrule, "rrule", "", "iCalendar RRULE value, e.g. FREQ=MONTHLY;BYMONTHDAY=31")
	cmd.Flags().StringVar(&f.freq, "freq", "", "DAILY, WEEKLY, MONTHLY or YEARLY")
	cmd.Flags().IntVar(&f.interval, "interval", 1, "number of periods between occurrences")
	cmd.Flags().IntVar(&f.dayOfWeek, "day-of-week", -1, "WEEKLY anchor, 0=Sunday .. 6=Saturday")
	cmd.Flags().IntVar(&f.dayOfMonth, "day-of-month", 0, "MONTHLY anchor, 1..31, clamped to the month's last day")
	cmd.Flags().StringVar(&f.until, "until", "", "end date; no occurrence after it is produced")
	cmd.MarkFlagsMutuallyExclusive("rrule", "freq")
}

func (f *ruleFlags) rule() (recurrence.Rule, error) {
	if f.rrule != "" {
		return recurrence.RuleFromRRULE(f.rrule)
	}
	if f.freq == "" {
		return recurrence.Rule{}, fmt.Errorf("one of --freq or --rrule is required")
	}

	freq := recurrence.ParseFrequency(f.freq)
	if freq == recurrence.None && !strings.EqualFold(f.freq, string(recurrence.None)) {
		return recurrence.Rule{}, fmt.Errorf("unknown frequency %q", f.freq)
	}
	rule := recurrence.Rule{Type: freq, Interval: f.interval}
	if f.dayOfWeek >= 0 {
		rule.DayOfWeek = mo.Some(time.Weekday(f.dayOfWeek))
	}
	if f.dayOfMonth != 0 {
		rule.DayOfMonth = mo.Some(f.dayOfMonth)
	}
	if f.until != "" {
		end, err := parseDate(f.until)
		if err != nil {
			return recurrence.Rule{}, err
		}
		rule.EndDate = mo.Some(end)
	}
	if err := rule.Validate(); err != nil {
		return recurrence.Rule{}, err
	}
	return rule, nil
}

func newNextCmd() *cobra.Command {
	var (
		from  string
		count int
		rf    ruleFlags
	)

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show upcoming occurrences of a recurrence rule",
		Example: `  flow next --from 2024-01-31 --freq MONTHLY --day-of-month 31 --count 4
  flow next --from 2024-03-04 --rrule "FREQ=WEEKLY;BYDAY=WE"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now().UTC()
			if from != "" {
				t, err := parseDate(from)
				if err != nil {
					return err
				}
				start = t
			}
			rule, err := rf.rule()
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			out := cmd.OutOrStdout()
			if s := recurrence.RuleToRRULE(rule); s != "" {
				fmt.Fprintf(out, "RRULE:%s\n", s)
			}

			engine := recurrence.NewEngine()
			occurrences := engine.Preview(start, rule, count)
			if len(occurrences) == 0 {
				fmt.Fprintln(out, "No upcoming occurrences")
				return nil
			}
			for _, o := range occurrences {
				fmt.Fprintf(out, "%3d  %s  %s\n", o.Index, o.Date.Format(time.RFC3339), o.Date.Weekday())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "start date (default: now)")
	cmd.Flags().IntVar(&count, "count", 5, "number of occurrences to show")
	rf.register(cmd)
	return cmd
}
