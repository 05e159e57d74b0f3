package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lrhflow/flow/internal/config"
	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/storage"
)

// seedFile is the YAML fixture format:
//
//	tasks:
//	  - title: Weekly report
//	    due: 2024-03-04T09:00:00Z
//	    recurrence: {type: WEEKLY, interval: 1, day_of_week: 1}
type seedFile struct {
	Tasks []seedTask `yaml:"tasks"`
}

type seedTask struct {
	Title             string            `yaml:"title"`
	Description       string            `yaml:"description"`
	Status            string            `yaml:"status"`
	Due               *time.Time        `yaml:"due"`
	Recurrence        *seedRule         `yaml:"recurrence"`
	ResponsibleUserID string            `yaml:"responsible_user_id"`
	DepartmentID      string            `yaml:"department_id"`
	PostID            string            `yaml:"post_id"`
	Placement         storage.Placement `yaml:"placement"`
	CreatedBy         string            `yaml:"created_by"`
}

type seedRule struct {
	Type       string     `yaml:"type"`
	Interval   int        `yaml:"interval"`
	DayOfWeek  *int       `yaml:"day_of_week"`
	DayOfMonth *int       `yaml:"day_of_month"`
	EndDate    *time.Time `yaml:"end_date"`
	RRule      string     `yaml:"rrule"`
}

func (r *seedRule) toRule() (recurrence.Rule, error) {
	if r.RRule != "" {
		return recurrence.RuleFromRRULE(r.RRule)
	}
	rule := recurrence.Rule{Type: recurrence.ParseFrequency(r.Type), Interval: r.Interval}
	if rule.IsActive() && rule.Interval == 0 {
		rule.Interval = 1
	}
	if r.DayOfWeek != nil {
		rule.DayOfWeek = mo.Some(time.Weekday(*r.DayOfWeek))
	}
	if r.DayOfMonth != nil {
		rule.DayOfMonth = mo.Some(*r.DayOfMonth)
	}
	if r.EndDate != nil {
		rule.EndDate = mo.Some(*r.EndDate)
	}
	return rule, rule.Validate()
}

func (st seedTask) toTask() (*storage.Task, error) {
	task := &storage.Task{
		Title:             st.Title,
		Description:       st.Description,
		Status:            storage.Status(strings.ToUpper(st.Status)),
		DueDate:           st.Due,
		Recurrence:        recurrence.Rule{Type: recurrence.None},
		ResponsibleUserID: st.ResponsibleUserID,
		DepartmentID:      st.DepartmentID,
		PostID:            st.PostID,
		Placement:         st.Placement,
		CreatedByID:       st.CreatedBy,
	}
	if st.Recurrence != nil {
		rule, err := st.Recurrence.toRule()
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", st.Title, err)
		}
		task.IsRecurring = rule.IsActive()
		task.Recurrence = rule
	}
	return task, nil
}

// parseSeedYAML decodes a fixture file. Unknown keys are rejected so typos
// do not silently drop a rule.
func parseSeedYAML(data []byte) ([]*storage.Task, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("seed file contains no tasks")
	}

	tasks := make([]*storage.Task, 0, len(f.Tasks))
	for _, st := range f.Tasks {
		task, err := st.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// loadSeedFile reads YAML fixtures, or VTODOs when the file ends in .ics
func loadSeedFile(path string) ([]*storage.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".ics") {
		return storage.ICSToTasks(string(data))
	}
	return parseSeedYAML(data)
}

// seedTasks stores tasks in order and stops at the first failure
func seedTasks(ctx context.Context, store storage.Storage, tasks []*storage.Task) ([]*storage.Task, error) {
	created := make([]*storage.Task, 0, len(tasks))
	for _, task := range tasks {
		if err := store.CreateTask(ctx, task); err != nil {
			return created, fmt.Errorf("failed to create task %q: %w", task.Title, err)
		}
		created = append(created, task)
	}
	return created, nil
}

func newSeedCmd(a *app) *cobra.Command {
	var sweep bool

	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load tasks from a YAML fixture or an iCalendar file",
		Long: `Create the tasks listed in a YAML fixture file, or every VTODO of an .ics
file. Recurring tasks become chain heads; use --sweep to generate their
first instances right away.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			tasks, err := loadSeedFile(args[0])
			if err != nil {
				return err
			}

			store, closeStore, err := openStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer closeStore()

			created, err := seedTasks(cmd.Context(), store, tasks)
			out := cmd.OutOrStdout()
			for _, t := range created {
				kind := "task"
				if t.IsRecurring {
					kind = "chain"
				}
				fmt.Fprintf(out, "Created %s %s  %s\n", kind, t.ID, t.Title)
			}
			if err != nil {
				return err
			}

			if sweep {
				engine := recurrence.NewEngine()
				defer engine.Close()
				n, err := newScheduler(cfg, store, engine, logger).RunLookaheadSweep(cmd.Context(), 0)
				fmt.Fprintf(out, "Created %d instance(s)\n", n)
				if err != nil {
					return fmt.Errorf("sweep finished with errors: %w", err)
				}
			}
			if cfg.Storage.Driver == config.DriverMemory {
				logger.Warn("memory storage is discarded on exit, use the sqlite driver to keep seeded tasks")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sweep, "sweep", false, "run the look-ahead sweep after seeding")
	return cmd
}
