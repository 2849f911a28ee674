package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/cycles/internal/store"
	"github.com/mesh-intelligence/cycles/pkg/types"
)

// fixedNow falls in cycle 3 of a plan starting 2022-01-01 with
// three-month cycles.
var fixedNow = time.Date(2022, 7, 15, 10, 0, 0, 0, time.UTC)

// testEnv runs the CLI in-process against isolated directories.
type testEnv struct {
	t         *testing.T
	ConfigDir string
	DataDir   string
}

// result holds the output of one invocation.
type result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{
		t:         t,
		ConfigDir: filepath.Join(dir, "config"),
		DataDir:   filepath.Join(dir, "data"),
	}
}

// run invokes the CLI with the env's directories and owner prepended.
func (e *testEnv) run(args ...string) result {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{
		"--config-dir", e.ConfigDir,
		"--data-dir", e.DataDir,
		"--owner", "owner-1",
	}, args...)
	code := run(&app{now: func() time.Time { return fixedNow }}, full, &stdout, &stderr)
	return result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}
}

// mustRun fails the test if the invocation does not exit cleanly.
func (e *testEnv) mustRun(args ...string) result {
	e.t.Helper()
	r := e.run(args...)
	require.Equal(e.t, exitSuccess, r.ExitCode, "cycles %s\nstdout: %s\nstderr: %s",
		strings.Join(args, " "), r.Stdout, r.Stderr)
	return r
}

func parseJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

// seed creates the primary plan and editable statistics.
func (e *testEnv) seed() *types.CyclePlan {
	e.t.Helper()
	r := e.mustRun("plan", "create", "--json",
		"--title", "Regional plan",
		"--start", "2022-01-01",
		"--length", "3",
		"--cycles", "36")
	plan := parseJSON[types.CyclePlan](e.t, r.Stdout)
	e.mustRun("stats", "set", `{"activities":{"study_circles":4,"childrens_classes":2},`+
		`"participants":{"study-circle":{"total":20,"qualifying":8}},"animators":3}`)
	return &plan
}

func TestVersion(t *testing.T) {
	e := newTestEnv(t)
	r := e.mustRun("version")
	assert.Contains(t, r.Stdout, "cycles v")
	assert.Contains(t, r.Stdout, modulePath)

	_, err := os.Stat(e.ConfigDir)
	assert.True(t, os.IsNotExist(err), "version does not create the config directory")
}

func TestInit(t *testing.T) {
	e := newTestEnv(t)
	r := e.mustRun("init")
	assert.Contains(t, r.Stdout, "cycles initialized")

	_, err := os.Stat(filepath.Join(e.DataDir, store.DatabaseFile))
	require.NoError(t, err, "database created")

	data, err := os.ReadFile(filepath.Join(e.ConfigDir, configFileExt))
	require.NoError(t, err)
	var cfg configFile
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, types.BackendSQLite, cfg.Backend)
	assert.Equal(t, "owner-1", cfg.Owner)

	e.mustRun("init")
	again, err := os.ReadFile(filepath.Join(e.ConfigDir, configFileExt))
	require.NoError(t, err)
	assert.Equal(t, data, again, "init leaves an existing config alone")
}

func TestPlanCommands(t *testing.T) {
	e := newTestEnv(t)
	plan := e.seed()
	assert.True(t, plan.IsPrimary)
	assert.NotEmpty(t, plan.PlanID)

	r := e.mustRun("plan", "create", "--json", "--title", "Second", "--start", "2023-01-01")
	second := parseJSON[types.CyclePlan](t, r.Stdout)
	assert.False(t, second.IsPrimary)

	r = e.mustRun("plan", "list", "--json")
	plans := parseJSON[[]types.CyclePlan](t, r.Stdout)
	require.Len(t, plans, 2)
	assert.Equal(t, plan.PlanID, plans[0].PlanID, "primary first")

	r = e.mustRun("plan", "update", "--json", "--plan", second.PlanID, "--title", "Renamed", "--cycles", "12")
	updated := parseJSON[types.CyclePlan](t, r.Stdout)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, 12, updated.TotalCycles)
	assert.Equal(t, 3, updated.CycleLengthMonths, "unset flags keep their values")

	e.mustRun("plan", "primary", second.PlanID)
	r = e.mustRun("plan", "show", "--json")
	assert.Equal(t, second.PlanID, parseJSON[types.CyclePlan](t, r.Stdout).PlanID)

	r = e.mustRun("plan", "cycles", "--json", "--plan", plan.PlanID)
	assert.Len(t, parseJSON[[]types.CycleInfo](t, r.Stdout), 36)

	r = e.mustRun("plan", "close", "--json")
	assert.False(t, parseJSON[types.CyclePlan](t, r.Stdout).Active)
	r = e.mustRun("plan", "restart", "--json", "--start", "2022-06-01")
	restarted := parseJSON[types.CyclePlan](t, r.Stdout)
	assert.True(t, restarted.Active)
	assert.Equal(t, "2022-06-01", restarted.StartDate.Format(time.DateOnly))

	e.mustRun("plan", "delete", second.PlanID)
	r = e.run("plan", "show", "--plan", second.PlanID)
	assert.Equal(t, exitUserError, r.ExitCode)
}

func TestCycleCommands(t *testing.T) {
	e := newTestEnv(t)
	e.seed()

	r := e.mustRun("cycle", "current", "--json")
	cur := parseJSON[types.CycleInfo](t, r.Stdout)
	require.NotNil(t, cur.Number)
	assert.Equal(t, 3, *cur.Number)
	assert.Equal(t, 77, cur.DaysRemaining)

	r = e.mustRun("cycle", "show", "2")
	assert.Contains(t, r.Stdout, "2022-04-01 .. 2022-06-30")

	r = e.run("cycle", "show", "37")
	assert.Equal(t, exitUserError, r.ExitCode)
	r = e.run("cycle", "show", "zero")
	assert.Equal(t, exitUserError, r.ExitCode)
}

func TestCloseAndBackfill(t *testing.T) {
	e := newTestEnv(t)
	e.seed()

	r := e.mustRun("activity", "add", "--category", "study-circle", "--participants", "6", "--qualifying", "2")
	assert.Contains(t, r.Stdout, "recorded")
	assert.NotContains(t, r.Stdout, "backfilled")

	r = e.mustRun("activity", "add", "--category", "childrens-class", "--cycle", "1")
	assert.Contains(t, r.Stdout, "backfilled cycle 1")
	r = e.mustRun("snapshot", "show", "1", "--json")
	backfilled := parseJSON[types.CycleSnapshot](t, r.Stdout)
	assert.Equal(t, 1, backfilled.New.ChildrensClasses)

	r = e.mustRun("book", "add", "--book", "Book 1", "--started", "2022-07-02")
	assert.Contains(t, r.Stdout, "recorded")
	e.mustRun("contact", "add", "--name", "Ana", "--birth", "2009-03-04")

	r = e.mustRun("suggest", "--json")
	suggested := parseJSON[[]types.CycleInfo](t, r.Stdout)
	require.Len(t, suggested, 1)
	assert.Equal(t, 2, *suggested[0].Number)

	r = e.mustRun("close", "--json")
	snap := parseJSON[types.CycleSnapshot](t, r.Stdout)
	assert.Equal(t, 3, snap.CycleNumber)
	assert.Equal(t, types.OriginClosure, snap.Origin)
	assert.Equal(t, 4, snap.Totals.StudyCircles)
	assert.Equal(t, 1, snap.System.Activities.StudyCircles)
	assert.Equal(t, 1, snap.System.Books.Started)
	assert.Equal(t, 1, snap.System.Demographics.JuniorYouth)
	assert.True(t, snap.GrowthFrozen())

	r = e.mustRun("close")
	assert.Contains(t, r.Stdout, "nothing to do")

	r = e.mustRun("snapshot", "list", "--json")
	list := parseJSON[[]types.CycleSnapshot](t, r.Stdout)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].CycleNumber)
	assert.Equal(t, types.OriginBackfill, list[1].Origin)

	r = e.mustRun("snapshot", "show", "1", "--flat")
	rec := parseJSON[map[string]any](t, r.Stdout)
	assert.Equal(t, float64(1), rec["total_childrens_class"])

	r = e.mustRun("snapshot", "show", "2")
	assert.Contains(t, r.Stdout, "no snapshot")

	r = e.mustRun("snapshot", "recompute", "--all")
	assert.Contains(t, r.Stdout, "recomputed 2 snapshots")
	r = e.mustRun("snapshot", "recompute", "3", "--json")
	assert.Equal(t, 2, parseJSON[types.CycleSnapshot](t, r.Stdout).RecomputeCount)

	r = e.mustRun("growth", "--json")
	assert.Contains(t, r.Stdout, `"cycles": 2`)

	e.mustRun("snapshot", "delete", "1")
	r = e.run("snapshot", "delete", "1")
	assert.Equal(t, exitUserError, r.ExitCode)
}

func TestSnapshotExportImport(t *testing.T) {
	e := newTestEnv(t)
	e.seed()
	e.mustRun("activity", "add", "--category", "study-circle", "--cycle", "1")
	e.mustRun("close")

	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	r := e.mustRun("snapshot", "export", path)
	assert.Contains(t, r.Stdout, "exported 2 snapshots")

	flat := filepath.Join(t.TempDir(), "flat.jsonl")
	e.mustRun("snapshot", "export", "--flat", flat)
	data, err := os.ReadFile(flat)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_study_circle"`)

	r = e.mustRun("plan", "create", "--json", "--title", "Copy", "--start", "2022-01-01")
	copyPlan := parseJSON[types.CyclePlan](t, r.Stdout)
	r = e.mustRun("snapshot", "import", "--json", "--plan", copyPlan.PlanID, path)
	assert.Equal(t, store.ImportResult{Imported: 2}, parseJSON[store.ImportResult](t, r.Stdout))
}

func TestMetricsFile(t *testing.T) {
	e := newTestEnv(t)
	e.seed()
	path := filepath.Join(t.TempDir(), "cycles.prom")

	e.mustRun("--metrics-file", path, "activity", "add", "--category", "study-circle", "--cycle", "2")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cycles_backfills_total{category="study-circle"} 1`)

	e.mustRun("--metrics-file", path, "close")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cycles_closures_total{result="closed"} 1`)
}

func TestExitCodes(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{
			name: "close without a plan",
			args: []string{"close"},
			want: exitUserError,
		},
		{
			name: "unknown flag",
			args: []string{"plan", "list", "--bogus"},
			want: exitUserError,
		},
		{
			name: "missing argument",
			args: []string{"snapshot", "delete"},
			want: exitUserError,
		},
		{
			name: "bad date",
			args: []string{"plan", "create", "--title", "X", "--start", "July"},
			want: exitUserError,
		},
		{
			name: "invalid plan shape",
			args: []string{"plan", "create", "--title", "X", "--cycles", "0"},
			want: exitUserError,
		},
		{
			name: "stats payload not JSON",
			args: []string{"stats", "set", "{"},
			want: exitUserError,
		},
		{
			name: "stats before any were set",
			args: []string{"stats", "show"},
			want: exitUserError,
		},
		{
			name: "unknown log level",
			args: []string{"--log-level", "loud", "plan", "list"},
			want: exitUserError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := e.run(tt.args...)
			assert.Equal(t, tt.want, r.ExitCode, "stderr: %s", r.Stderr)
			assert.Contains(t, r.Stderr, "error:")
		})
	}

}

func TestActivityRejected(t *testing.T) {
	e := newTestEnv(t)
	e.seed()

	r := e.run("activity", "add", "--category", "picnic", "--cycle", "1")
	assert.Equal(t, exitUserError, r.ExitCode)
	r = e.run("activity", "add", "--category", "study-circle", "--cycle", "4")
	assert.Equal(t, exitUserError, r.ExitCode, "cycle 4 has not started")

	r = e.mustRun("snapshot", "list", "--json")
	assert.Equal(t, "[]", strings.TrimSpace(r.Stdout), "nothing was backfilled")
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, exitSuccess, exitCode(nil))
	assert.Equal(t, exitUserError, exitCode(types.NewValidationError("title", "required")))
	assert.Equal(t, exitUserError, exitCode(usageError{assert.AnError}))
	assert.Equal(t, exitSysError, exitCode(assert.AnError))
	assert.Equal(t, exitSysError, exitCode(types.ErrStoreDetached))
}

func TestBackendFromConfig(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.MkdirAll(e.ConfigDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.ConfigDir, configFileExt),
		[]byte("backend: postgres\n"), 0o644))

	r := e.run("plan", "list")
	assert.Equal(t, exitUserError, r.ExitCode, "postgres without a dsn")
	assert.Contains(t, r.Stderr, types.ErrDSNEmpty.Error())
}
