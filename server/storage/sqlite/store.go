// Package sqlite provides a SQLite-backed implementation of storage.Storage.
//
// Chain uniqueness is enforced by the schema: a partial unique index on
// (parent_recurring_task_id, occurrence_date) rejects a second instance of
// the same occurrence, which the store reports as storage.ErrAlreadyExists.
// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order. Due, occurrence and end dates also keep their zone in a
// companion column so they read back in the zone they were written in.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	_ "modernc.org/sqlite"

	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/storage"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements storage.Storage on a SQLite database
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt/CompletedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (and migrates) the database at dsn. A bare file path is accepted.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		due_date TEXT,
		due_zone TEXT,
		occurrence_date TEXT,
		occurrence_zone TEXT,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		recurrence_type TEXT NOT NULL DEFAULT 'NONE',
		recurrence_interval INTEGER NOT NULL DEFAULT 1,
		recurrence_day_of_week INTEGER,
		recurrence_day_of_month INTEGER,
		recurrence_end_date TEXT,
		recurrence_end_zone TEXT,
		parent_recurring_task_id TEXT REFERENCES tasks(id),
		responsible_user_id TEXT NOT NULL DEFAULT '',
		department_id TEXT NOT NULL DEFAULT '',
		post_id TEXT NOT NULL DEFAULT '',
		placement_level TEXT NOT NULL DEFAULT '',
		placement_node_id TEXT NOT NULL DEFAULT '',
		created_by_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);

	-- one instance per chain and occurrence
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_chain_occurrence
		ON tasks(parent_recurring_task_id, occurrence_date)
		WHERE parent_recurring_task_id IS NOT NULL AND occurrence_date IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_tasks_chain_due
		ON tasks(parent_recurring_task_id, status, due_date);

	CREATE INDEX IF NOT EXISTS idx_tasks_heads
		ON tasks(is_recurring, recurrence_type) WHERE parent_recurring_task_id IS NULL;
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return s.addMissingColumns(ctx, "tasks", zoneColumns)
}

// zoneColumns were added after the first schema; older databases get them on open
var zoneColumns = []string{"due_zone", "occurrence_zone", "recurrence_end_zone"}

func (s *Store) addMissingColumns(ctx context.Context, table string, columns []string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range columns {
		if existing[col] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+col+` TEXT`); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}
	return nil
}

const selectColumns = `id, title, description, status, due_date, due_zone,
	occurrence_date, occurrence_zone, is_recurring, recurrence_type,
	recurrence_interval, recurrence_day_of_week, recurrence_day_of_month,
	recurrence_end_date, recurrence_end_zone, parent_recurring_task_id,
	responsible_user_id, department_id, post_id, placement_level, placement_node_id,
	created_by_id, created_at, updated_at, completed_at`

func (s *Store) CreateTask(ctx context.Context, task *storage.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	if task.ID == "" {
		task.ID = storage.NewTaskID()
	}
	now := s.now()
	if task.Status == "" {
		task.Status = storage.StatusTodo
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	if task.ParentRecurringTaskID != "" {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, task.ParentRecurringTaskID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return &storage.Error{Type: storage.ErrNotFound, Message: "chain head not found"}
		}
		if err != nil {
			return fmt.Errorf("failed to look up chain head: %w", err)
		}
	}

	rule := task.Recurrence
	if rule.Type == "" {
		rule.Type = recurrence.None
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, string(task.Status),
		formatTimePtr(task.DueDate), zonePtr(task.DueDate),
		formatTimePtr(task.OccurrenceDate), zonePtr(task.OccurrenceDate),
		task.IsRecurring, string(rule.Type), rule.Interval,
		weekdayToNull(rule.DayOfWeek),
		optionToNull(rule.DayOfMonth),
		formatTimeOption(rule.EndDate), zoneOption(rule.EndDate),
		nullString(task.ParentRecurringTaskID),
		task.ResponsibleUserID, task.DepartmentID, task.PostID,
		string(task.Placement.Level), task.Placement.NodeID,
		task.CreatedByID,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt), formatTimePtr(task.CompletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &storage.Error{Type: storage.ErrAlreadyExists, Message: "task or occurrence already exists", Err: err}
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*storage.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: "task not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status storage.Status) (*storage.Task, error) {
	if !status.Valid() {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: fmt.Sprintf("unknown status %q", status)}
	}

	now := s.now()
	var completedAt *time.Time
	if status == storage.StatusDone {
		completedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(status), formatTime(now), formatTimePtr(completedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: "task not found"}
	}
	return s.GetTask(ctx, id)
}

func (s *Store) ListTasks(ctx context.Context, filter *storage.Filter) ([]*storage.Task, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + selectColumns + ` FROM tasks` + where +
		` ORDER BY due_date IS NULL, due_date, created_at, id`
	if filter != nil && filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*storage.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

// buildWhere translates a filter into a WHERE clause with the same
// semantics as storage.Filter.Matches
func buildWhere(f *storage.Filter) (string, []any) {
	if f == nil {
		return "", nil
	}

	var conds []string
	var args []any
	if f.ChainID != "" {
		conds = append(conds, "(id = ? OR parent_recurring_task_id = ?)")
		args = append(args, f.ChainID, f.ChainID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.RecurringOnly {
		conds = append(conds, "is_recurring = 1 AND recurrence_type IN (?, ?, ?, ?)")
		args = append(args, string(recurrence.Daily), string(recurrence.Weekly),
			string(recurrence.Monthly), string(recurrence.Yearly))
	}
	if f.HeadsOnly {
		conds = append(conds, "parent_recurring_task_id IS NULL")
	}
	if f.DueFrom != nil {
		conds = append(conds, "due_date >= ?")
		args = append(args, formatTime(*f.DueFrom))
	}
	if f.DueBefore != nil {
		conds = append(conds, "due_date < ?")
		args = append(args, formatTime(*f.DueBefore))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*storage.Task, error) {
	var (
		t                                    storage.Task
		status, recType, level               string
		due, occurrence, end, parent, closed sql.NullString
		dueZone, occurrenceZone, endZone     sql.NullString
		createdAt, updatedAt                 string
		dow, dom                             sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &due, &dueZone,
		&occurrence, &occurrenceZone, &t.IsRecurring, &recType, &t.Recurrence.Interval,
		&dow, &dom, &end, &endZone, &parent,
		&t.ResponsibleUserID, &t.DepartmentID, &t.PostID, &level, &t.Placement.NodeID,
		&t.CreatedByID, &createdAt, &updatedAt, &closed)
	if err != nil {
		return nil, err
	}

	t.Status = storage.Status(status)
	t.Recurrence.Type = recurrence.Frequency(recType)
	t.Placement.Level = storage.HierarchyLevel(level)
	t.ParentRecurringTaskID = parent.String
	if dow.Valid {
		t.Recurrence.DayOfWeek = mo.Some(time.Weekday(dow.Int64))
	}
	if dom.Valid {
		t.Recurrence.DayOfMonth = mo.Some(int(dom.Int64))
	}

	if t.DueDate, err = parseZonedTimePtr(due, dueZone); err != nil {
		return nil, err
	}
	if t.OccurrenceDate, err = parseZonedTimePtr(occurrence, occurrenceZone); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseTimePtr(closed); err != nil {
		return nil, err
	}
	endDate, err := parseZonedTimePtr(end, endZone)
	if err != nil {
		return nil, err
	}
	if endDate != nil {
		t.Recurrence.EndDate = mo.Some(*endDate)
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTimeOption(o mo.Option[time.Time]) sql.NullString {
	if t, ok := o.Get(); ok {
		return formatTimePtr(&t)
	}
	return sql.NullString{}
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored time %q: %w", s.String, err)
	}
	return &t, nil
}

// zoneOf encodes the location name and the offset in effect at t
func zoneOf(t time.Time) string {
	_, offset := t.Zone()
	return t.Location().String() + "|" + strconv.Itoa(offset)
}

func zonePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: zoneOf(*t), Valid: true}
}

func zoneOption(o mo.Option[time.Time]) sql.NullString {
	if t, ok := o.Get(); ok {
		return zonePtr(&t)
	}
	return sql.NullString{}
}

// restoreZone moves t into the zone recorded by zoneOf. A named location is
// used when it loads and agrees with the stored offset, otherwise a fixed
// zone with that offset. Rows without a zone stay in UTC.
func restoreZone(t time.Time, zone sql.NullString) (time.Time, error) {
	if !zone.Valid || zone.String == "" {
		return t, nil
	}
	name, rawOffset, ok := strings.Cut(zone.String, "|")
	if !ok {
		return t, fmt.Errorf("invalid stored zone %q", zone.String)
	}
	offset, err := strconv.Atoi(rawOffset)
	if err != nil {
		return t, fmt.Errorf("invalid stored zone %q: %w", zone.String, err)
	}

	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			if _, off := t.In(loc).Zone(); off == offset {
				return t.In(loc), nil
			}
		}
	}
	return t.In(time.FixedZone(name, offset)), nil
}

func parseZonedTimePtr(s, zone sql.NullString) (*time.Time, error) {
	t, err := parseTimePtr(s)
	if err != nil || t == nil {
		return t, err
	}
	zoned, err := restoreZone(*t, zone)
	if err != nil {
		return nil, err
	}
	return &zoned, nil
}

func optionToNull(o mo.Option[int]) sql.NullInt64 {
	if v, ok := o.Get(); ok {
		return sql.NullInt64{Int64: int64(v), Valid: true}
	}
	return sql.NullInt64{}
}

func weekdayToNull(o mo.Option[time.Weekday]) sql.NullInt64 {
	if v, ok := o.Get(); ok {
		return sql.NullInt64{Int64: int64(v), Valid: true}
	}
	return sql.NullInt64{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
