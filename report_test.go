package focuspuller

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackingReportStructure(t *testing.T) {
	report := TrackingReport{
		SessionName:   "acog bench",
		Success:       true,
		Magnification: 3.04,
		FrameCount:    64,
		Frames: []FrameEntry{
			{Label: "scoped", Filename: "frame_000_scoped.png", Step: 2},
		},
		Steps: []SessionStep{
			{Type: "engage", Details: "magnification 3.04x"},
		},
	}

	assert.Equal(t, "acog bench", report.SessionName)
	assert.True(t, report.Success)
	assert.Len(t, report.Frames, 1)
	assert.Equal(t, "frame_000_scoped.png", report.Frames[0].Filename)
	assert.Equal(t, "engage", report.Steps[0].Type)
}

func TestGenerateReport_WritesSelfContainedHTML(t *testing.T) {
	dir := t.TempDir()
	captureDriftFixture(t, dir, "frame_000_scoped.png", 0.001)
	assert.NoError(t, SaveConsoleFrame(filepath.Join(dir, "console_scoped.ansi"),
		"🔭 scoped at 3.04x\n", nil))

	err := NewReportGenerator(dir).GenerateReport(TrackingReport{
		SessionName:   "ACOG bench session",
		Success:       true,
		Optic:         "optic",
		FovSource:     "hierarchy",
		RawFov:        11.5,
		Magnification: 3.04,
		CorrectedFov:  25.91,
		LODBias:       3.04,
		FarClip:       1500,
		BuzzSummary:   "1 breath",
		Duration:      1024 * time.Millisecond,
		Frames:        []FrameEntry{{Label: "scoped", Filename: "frame_000_scoped.png", Step: 3}},
		Consoles:      []ConsoleEntry{{Label: "scoped", Filename: "console_scoped.ansi"}},
		Steps:         []SessionStep{{Type: "engage", Details: "magnification 3.04x, corrected fov 25.91"}},
		Deltas:        []float64{0.003, 0.002, 0.001, 0.0005},
	})
	assert.NoError(t, err, "report should render")

	content, err := os.ReadFile(filepath.Join(dir, "index.html"))
	assert.NoError(t, err)
	html := string(content)
	assert.Contains(t, html, "ACOG bench session")
	assert.Contains(t, html, "STEADY")
	assert.Contains(t, html, `id="session-metadata"`)
	assert.Contains(t, html, `"magnification": 3.04`)
	assert.Contains(t, html, "<td>hierarchy</td>", "the fov source tier should be tabled")
	assert.Contains(t, html, "<td>11.50&deg;</td>", "the raw fov should be tabled")
	assert.Contains(t, html, "<td>1500</td>", "the applied far clip should be tabled")
	assert.Contains(t, html, "buzz: 1 breath")
	assert.Contains(t, html, "data:image/png;base64,", "captured frames should be inlined")
	assert.Contains(t, html, "scoped at 3.04x", "console frames should be converted")
	assert.Contains(t, html, "magnification 3.04x, corrected fov 25.91", "steps should be listed")
	assert.FileExists(t, filepath.Join(dir, "convergence.png"), "the convergence chart should render")
}

func TestGenerateReport_AssignsSessionID(t *testing.T) {
	dir := t.TempDir()

	err := NewReportGenerator(dir).GenerateReport(TrackingReport{SessionName: "bare session"})
	assert.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "index.html"))
	assert.NoError(t, err)
	assert.Contains(t, string(content), `"session_id": "`)
	assert.NotContains(t, string(content), `"session_id": ""`)
}

func TestGenerateReport_BadOutputDir(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	assert.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := NewReportGenerator(filepath.Join(blocker, "session")).GenerateReport(TrackingReport{
		SessionName: "doomed",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create report directory")
}

func TestGenerateDashboard_IndexesSessions(t *testing.T) {
	base := t.TempDir()

	sessions := []struct {
		name      string
		timestamp string
		success   bool
	}{
		{"dawn patrol", "20260820_063000", true},
		{"dusk patrol", "20260821_183000", false},
	}
	for _, session := range sessions {
		dir := filepath.Join(base, "session_"+session.timestamp)
		err := NewReportGenerator(dir).GenerateReport(TrackingReport{
			SessionName: session.name,
			Timestamp:   session.timestamp,
			Success:     session.success,
		})
		assert.NoError(t, err)
	}

	err := NewReportGenerator(base).GenerateDashboard(base)
	assert.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(base, "dashboard.html"))
	assert.NoError(t, err)
	html := string(content)
	assert.Contains(t, html, "dawn patrol")
	assert.Contains(t, html, "dusk patrol")
	assert.Contains(t, html, "STEADY")
	assert.Contains(t, html, "DRIFTED")
	assert.Less(t, strings.Index(html, "dusk patrol"), strings.Index(html, "dawn patrol"),
		"newer sessions should list first")
}

func TestGenerateDashboard_EmptyTree(t *testing.T) {
	base := t.TempDir()

	err := NewReportGenerator(base).GenerateDashboard(base)

	assert.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(base, "dashboard.html"))
	assert.NoError(t, err)
	assert.Contains(t, string(content), "No session reports found yet")
}

func TestExtractSessionEntry_SkipsForeignHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	assert.NoError(t, os.WriteFile(path, []byte("<html><body>not a session</body></html>"), 0644))

	_, ok := extractSessionEntry(path)

	assert.False(t, ok, "reports without a metadata block should be skipped")
}

func TestFormatTimestamp(t *testing.T) {
	stamp := FormatTimestamp(time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC))
	assert.Equal(t, "20260825_143000", stamp)
}
