package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lrhflow/flow/internal/config"
	"github.com/lrhflow/flow/server/recurrence"
	"github.com/lrhflow/flow/server/storage"
	"github.com/lrhflow/flow/server/storage/sqlite"
)

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sqliteConfig(t *testing.T, dir string) (cfgPath, dsn string) {
	t.Helper()
	dsn = filepath.Join(dir, "flow.db")
	cfgPath = writeFile(t, dir, "flow.yaml", "storage:\n  driver: sqlite\n  dsn: "+dsn+"\nlog:\n  level: error\n")
	return cfgPath, dsn
}

func TestRootCmd_Registration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "sweep", "next", "seed", "hash-password", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	_, err := execute(t, "", "nonexistent-command")
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	origVersion, origCommit, origDate := appVersion, appCommit, appDate
	defer SetVersionInfo(origVersion, origCommit, origDate)

	SetVersionInfo("1.2.3", "abc1234", "2024-03-01")
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flow 1.2.3")
	assert.Contains(t, out, "commit: abc1234")
}

func TestNextCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "monthly clamps to month end",
			args: []string{"--from", "2024-01-31", "--freq", "MONTHLY", "--day-of-month", "31", "--count", "3"},
			want: []string{"2024-02-29T00:00:00Z", "2024-03-31T00:00:00Z", "2024-04-30T00:00:00Z"},
		},
		{
			name: "weekly anchor",
			args: []string{"--from", "2024-03-04", "--freq", "weekly", "--day-of-week", "3", "--count", "2"},
			want: []string{"2024-03-06T00:00:00Z", "2024-03-13T00:00:00Z"},
		},
		{
			name: "until bounds the preview",
			args: []string{"--from", "2024-03-01", "--freq", "DAILY", "--until", "2024-03-03", "--count", "10"},
			want: []string{"2024-03-02T00:00:00Z", "2024-03-03T00:00:00Z"},
		},
		{
			name: "rrule",
			args: []string{"--from", "2024-01-01", "--rrule", "FREQ=DAILY;INTERVAL=2", "--count", "2"},
			want: []string{"RRULE:", "2024-01-03T00:00:00Z", "2024-01-05T00:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"next"}, tt.args...)...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestNextCmd_UntilExcludesLaterDates(t *testing.T) {
	out, err := execute(t, "", "next", "--from", "2024-03-01", "--freq", "DAILY", "--until", "2024-03-03", "--count", "10")
	require.NoError(t, err)
	assert.NotContains(t, out, "2024-03-04")
}

func TestNextCmd_NoneRule(t *testing.T) {
	out, err := execute(t, "", "next", "--from", "2024-03-01", "--freq", "NONE")
	require.NoError(t, err)
	assert.Contains(t, out, "No upcoming occurrences")
}

func TestNextCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no rule", []string{"--from", "2024-03-01"}},
		{"unknown frequency", []string{"--freq", "HOURLY"}},
		{"bad date", []string{"--from", "03/01/2024", "--freq", "DAILY"}},
		{"anchor on wrong type", []string{"--freq", "DAILY", "--day-of-month", "5"}},
		{"zero count", []string{"--freq", "DAILY", "--count", "0"}},
		{"both rule forms", []string{"--freq", "DAILY", "--rrule", "FREQ=DAILY"}},
		{"count rrule", []string{"--rrule", "FREQ=DAILY;COUNT=3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", append([]string{"next"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestHashPasswordCmd(t *testing.T) {
	out, err := execute(t, "", "hash-password", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	out, err = execute(t, "from-stdin\n", "hash-password")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = execute(t, "", "hash-password")
	assert.Error(t, err)
}

const seedYAML = `
tasks:
  - title: Weekly report
    due: 2099-03-04T09:00:00Z
    department_id: ops
    placement:
      level: PROJECT
      node_id: p-1
    recurrence:
      type: WEEKLY
      interval: 1
      day_of_week: 3
  - title: One-off
    status: doing
  - title: Month end close
    due: 2099-01-31T00:00:00Z
    recurrence:
      rrule: FREQ=MONTHLY;BYMONTHDAY=31
`

func TestParseSeedYAML(t *testing.T) {
	tasks, err := parseSeedYAML([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	weekly := tasks[0]
	assert.True(t, weekly.IsRecurring)
	assert.Equal(t, recurrence.Weekly, weekly.Recurrence.Type)
	assert.Equal(t, time.Wednesday, weekly.Recurrence.DayOfWeek.MustGet())
	assert.Equal(t, "ops", weekly.DepartmentID)
	assert.Equal(t, storage.LevelProject, weekly.Placement.Level)
	assert.Equal(t, "p-1", weekly.Placement.NodeID)
	require.NotNil(t, weekly.DueDate)
	assert.Equal(t, time.Date(2099, 3, 4, 9, 0, 0, 0, time.UTC), weekly.DueDate.UTC())

	oneOff := tasks[1]
	assert.False(t, oneOff.IsRecurring)
	assert.Equal(t, storage.StatusDoing, oneOff.Status)
	assert.Equal(t, recurrence.None, oneOff.Recurrence.Type)

	monthly := tasks[2]
	assert.Equal(t, recurrence.Monthly, monthly.Recurrence.Type)
	assert.Equal(t, 31, monthly.Recurrence.DayOfMonth.MustGet())
}

func TestParseSeedYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "tasks: []\n"},
		{"unknown key", "tasks:\n  - title: x\n    repeat: daily\n"},
		{"bad rule", "tasks:\n  - title: x\n    recurrence:\n      type: DAILY\n      day_of_month: 3\n"},
		{"negative interval", "tasks:\n  - title: x\n    recurrence:\n      type: DAILY\n      interval: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeedYAML([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSeedAndSweep_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath, dsn := sqliteConfig(t, dir)
	seedPath := writeFile(t, dir, "tasks.yaml", `
tasks:
  - title: Daily standup
    due: `+time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)+`
    recurrence:
      type: DAILY
`)

	out, err := execute(t, "", "--config", cfgPath, "seed", seedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Created chain")
	assert.Contains(t, out, "Daily standup")

	out, err = execute(t, "", "--config", cfgPath, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 1 instance(s)")

	// the new instance is pending, so a second sweep is a no-op
	out, err = execute(t, "", "--config", cfgPath, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 0 instance(s)")

	store, err := sqlite.Open(dsn)
	require.NoError(t, err)
	defer store.Close()
	tasks, err := store.ListTasks(context.Background(), &storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSeedCmd_ICS(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _ := sqliteConfig(t, dir)
	icsPath := writeFile(t, dir, "tasks.ics", strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VTODO
UID:1@test
DTSTAMP:20240301T000000Z
SUMMARY:Quarterly review
DUE:20240331T000000Z
RRULE:FREQ=MONTHLY;INTERVAL=3
END:VTODO
END:VCALENDAR
`, "\n", "\r\n"))

	out, err := execute(t, "", "--config", cfgPath, "seed", icsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Created chain")
	assert.Contains(t, out, "Quarterly review")
}

func TestSeedCmd_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _ := sqliteConfig(t, dir)
	_, err := execute(t, "", "--config", cfgPath, "seed", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSweepCmd_BadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "flow.yaml", "storage:\n  driver: postgres\n")
	_, err := execute(t, "", "--config", cfgPath, "sweep")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "task_id", "t1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"task_id":"t1"`)
}

func TestNewAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	_, err = newAuthenticator([]config.User{{Username: "ceo", PasswordHash: string(hash), Role: "ceo"}}, nil)
	assert.NoError(t, err)

	_, err = newAuthenticator([]config.User{{Username: "x", PasswordHash: "not-a-hash", Role: "CEO"}}, nil)
	assert.Error(t, err)

	_, err = newAuthenticator([]config.User{{Username: "x", PasswordHash: string(hash), Role: "intern"}}, nil)
	assert.Error(t, err)
}

func TestSweepCmd_Remote(t *testing.T) {
	var gotUser, gotDays string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _, _ = r.BasicAuth()
		gotDays = r.URL.Query().Get("lookahead_days")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"created":2,"errors":["chain h1: boom"]}`)
	}))
	defer ts.Close()

	t.Setenv(passwordEnv, "pw")
	out, err := execute(t, "", "sweep", "--remote", ts.URL, "--user", "ceo", "--lookahead-days", "7")
	require.Error(t, err)
	assert.Contains(t, out, "Created 2 instance(s)")
	assert.Contains(t, out, "chain h1: boom")
	assert.Equal(t, "ceo", gotUser)
	assert.Equal(t, "7", gotDays)
}

func TestSweepCmd_RemoteNeedsPassword(t *testing.T) {
	t.Setenv(passwordEnv, "")
	_, err := execute(t, "", "sweep", "--remote", "http://127.0.0.1:1", "--user", "ceo")
	assert.ErrorContains(t, err, passwordEnv)
}
