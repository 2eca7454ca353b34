package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/cadence/internal/app"
	"github.com/sandeepkv93/cadence/internal/generator"
	"github.com/sandeepkv93/cadence/internal/storage"
)

var testNow = time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	config string
	db     string
	stdin  string
	opts   []app.Option
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cadence.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("generation:\n  timezone: UTC\n"), 0o644))

	n := 0
	return &harness{
		t:      t,
		config: cfg,
		db:     filepath.Join(dir, "cadence.db"),
		opts: []app.Option{
			app.WithClock(generator.ClockFunc(func() time.Time { return testNow })),
			app.WithIDFunc(func() string {
				n++
				return fmt.Sprintf("id-%03d", n)
			}),
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCommand(h.opts...)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(h.stdin))
	cmd.SetArgs(append(args, "--config="+h.config, "--db="+h.db))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "cadence %s", strings.Join(args, " "))
	return out
}

func TestAddAndList(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("add", "Water plants", "--rule", "daily at 09:00")
	assert.Equal(t, "added id-001 \"Water plants\" (every day at 09:00 (UTC)), next due 2025-01-02 09:00 UTC\n", out)

	out = h.mustRun("list")
	for _, want := range []string{"ID", "id-001", "Water plants", "every day at 09:00 (UTC)", "2025-01-02 09:00 UTC", "active"} {
		assert.Contains(t, out, want)
	}
}

func TestAddFromRuleFlags(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Pay rent", "--frequency", "monthly", "--day-of-month", "31", "--at", "18:00", "--priority", "high", "--category", "home")

	out := h.mustRun("show", "id-001", "--plain", "-n", "2")
	for _, want := range []string{
		"# Pay rent",
		"_every month on day 31 at 18:00 (UTC)_",
		"| priority | High |",
		"| category | home |",
		"1. 2025-02-28 18:00 UTC",
		"2. 2025-03-31 18:00 UTC",
	} {
		assert.Contains(t, out, want)
	}
}

func TestAddValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("add", "Nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule")

	_, err = h.run("add", "Both", "--rule", "daily", "--frequency", "daily")
	require.Error(t, err)

	_, err = h.run("add", "Bad", "--rule", "fortnightly")
	require.Error(t, err)

	_, err = h.run("add", "Bad end", "--rule", "daily", "--end", "someday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--end")

	_, err = h.run("add", "Bad priority", "--rule", "daily", "--priority", "urgent")
	require.Error(t, err)

	assert.Equal(t, "no definitions\n", h.mustRun("list"))
}

func TestEndDateLimitsUpcoming(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Course", "--rule", "daily at 09:00", "--end", "2025-01-03")

	out := h.mustRun("show", "id-001", "--plain")
	assert.Contains(t, out, "| ends | 2025-01-03 00:00 UTC |")
	assert.Contains(t, out, "1. 2025-01-02 09:00 UTC")
	assert.NotContains(t, out, "2. ")
}

func TestGenerateInstancesAndDone(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Water plants", "--rule", "daily at 09:00")

	out := h.mustRun("generate")
	assert.Contains(t, out, "generated 1 instance(s)")
	assert.Contains(t, out, "id-002  Water plants  due 2025-01-02 09:00 UTC")

	assert.Contains(t, h.mustRun("generate"), "generated 0 instance(s)")

	out = h.mustRun("instances", "--definition", "id-001")
	assert.Contains(t, out, "id-002")
	assert.Contains(t, out, "Planned")

	assert.Equal(t, "completed id-002 \"Water plants\"\n", h.mustRun("done", "id-002"))
	assert.Contains(t, h.mustRun("instances", "--state", "done"), "id-002")
	assert.Equal(t, "no instances\n", h.mustRun("instances", "--state", "planned"))

	_, err := h.run("instances", "--state", "sleeping")
	require.Error(t, err)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Journal", "--rule", "daily at 21:00")

	assert.Equal(t, "paused id-001 \"Journal\"\n", h.mustRun("pause", "id-001"))
	assert.Equal(t, "no definitions\n", h.mustRun("list", "--active"))
	assert.Contains(t, h.mustRun("list", "--paused"), "paused")

	// resume accepts a unique id prefix
	out := h.mustRun("resume", "id-0")
	assert.Equal(t, "resumed id-001 \"Journal\", next due 2025-01-02 21:00 UTC\n", out)
}

func TestPreview(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Team sync", "--rule", "weekly on mon at 10:00")

	out := h.mustRun("preview", "id-001", "-n", "3")
	assert.Equal(t, "2025-01-06 10:00 UTC\n2025-01-13 10:00 UTC\n2025-01-20 10:00 UTC\n", out)

	_, err := h.run("preview", "id-001", "-n", "0")
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Old habit", "--rule", "daily")

	assert.Equal(t, "deleted id-001 \"Old habit\"\n", h.mustRun("delete", "id-001"))
	assert.Equal(t, "no definitions\n", h.mustRun("list"))

	_, err := h.run("show", "id-001")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("add", "Water plants", "--rule", "every 2 days at 08:00", "--category", "home")
	h.mustRun("add", "Team sync", "--rule", "weekly on mon,thu at 09:30 in Europe/Berlin")

	doc := h.mustRun("export")
	assert.Contains(t, doc, "title: Water plants")
	assert.Contains(t, doc, "timezone: Europe/Berlin")

	ics := h.mustRun("export", "--format", "ics")
	assert.Contains(t, ics, "BEGIN:VTODO")
	assert.Contains(t, ics, "FREQ=DAILY")
	assert.Contains(t, ics, "FREQ=WEEKLY")

	_, err := h.run("export", "--format", "pdf")
	require.ErrorIs(t, err, app.ErrUnknownFormat)

	path := filepath.Join(t.TempDir(), "defs.yaml")
	h.mustRun("export", "-o", path)

	other := newHarness(t)
	assert.Equal(t, "imported 2 definition(s)\n", other.mustRun("import", path))
	out := other.mustRun("list")
	assert.Contains(t, out, "Water plants")
	assert.Contains(t, out, "every week on Mon, Thu at 09:30 (Europe/Berlin)")

	stdin := newHarness(t)
	stdin.stdin = doc
	assert.Equal(t, "imported 2 definition(s)\n", stdin.mustRun("import", "-"))
}

func TestVersion(t *testing.T) {
	out := newHarness(t).mustRun("version")
	assert.Contains(t, out, "cadence dev")
}
