package focuspuller

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// TrackingReport aggregates one scripted tracking session for publication.
type TrackingReport struct {
	SessionID     string // Stable identifier, assigned when empty
	SessionName   string
	Timestamp     string // Layout 20060102_150405
	Duration      time.Duration
	Success       bool
	Optic         string // Engaged optic node name
	FovSource     string // Tier that produced the raw FOV
	RawFov        float64
	Magnification float64
	CorrectedFov  float64
	LODBias       float64 // Bias applied while scoped
	FarClip       float64 // Far clip applied while scoped
	BuzzSummary   string
	FrameCount    int
	Frames        []FrameEntry
	Consoles      []ConsoleEntry
	Steps         []SessionStep
	Deltas        []float64 // Per-frame reticle displacement
}

// FrameEntry is one captured reticle frame inside a report.
type FrameEntry struct {
	Label     string
	Filename  string
	Step      int
	Timestamp time.Time
	DataURL   template.URL // Inline base64 image, filled during generation
}

// ConsoleEntry is one captured console view inside a report.
type ConsoleEntry struct {
	Label    string
	Filename string
	HTML     template.HTML // Converted terminal markup, filled during generation
}

// SessionMetadata is the machine-readable block embedded in every report so
// the dashboard can index sessions without scraping markup.
type SessionMetadata struct {
	SessionName   string  `json:"session_name"`
	SessionID     string  `json:"session_id"`
	Timestamp     string  `json:"timestamp"`
	Duration      string  `json:"duration"`
	FrameCount    int     `json:"frame_count"`
	Magnification float64 `json:"magnification"`
	Success       bool    `json:"success"`
}

// DashboardEntry is one session row on the dashboard.
type DashboardEntry struct {
	SessionName   string
	Timestamp     string
	Duration      string
	FrameCount    int
	Magnification float64
	Success       bool
	RelativePath  string
}

// FormatTimestamp renders a time in the compact layout used for session
// directories and report stamps.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// ReportGenerator renders session reports and the cross-session dashboard.
type ReportGenerator struct {
	outputDir     string
	templateCache map[string]*template.Template
}

// NewReportGenerator creates a generator rooted at an output directory.
func NewReportGenerator(outputDir string) *ReportGenerator {
	return &ReportGenerator{
		outputDir:     outputDir,
		templateCache: make(map[string]*template.Template),
	}
}

// GenerateReport writes a self-contained index.html for one session.
// Captured frames are inlined as data URLs and console frames converted to
// styled markup, so the report can be shared without its directory.
func (rg *ReportGenerator) GenerateReport(report TrackingReport) error {
	if err := os.MkdirAll(rg.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if report.SessionID == "" {
		report.SessionID = uuid.NewString()
	}
	if report.Timestamp == "" {
		report.Timestamp = FormatTimestamp(time.Now())
	}
	if report.FrameCount == 0 {
		report.FrameCount = len(report.Deltas)
	}

	for i := range report.Frames {
		if report.Frames[i].DataURL != "" {
			continue
		}
		dataURL, err := imageToDataURL(filepath.Join(rg.outputDir, report.Frames[i].Filename))
		if err != nil {
			continue // Frame file is gone, leave the entry unembedded
		}
		report.Frames[i].DataURL = dataURL
	}

	for i := range report.Consoles {
		if report.Consoles[i].HTML != "" {
			continue
		}
		html, err := ConsoleFrameHTML(filepath.Join(rg.outputDir, report.Consoles[i].Filename))
		if err != nil {
			continue
		}
		report.Consoles[i].HTML = html
	}

	var chartURL template.URL
	if len(report.Deltas) >= 2 {
		chartPath := filepath.Join(rg.outputDir, "convergence.png")
		if err := renderConvergenceChart(report.Deltas, chartPath); err != nil {
			return fmt.Errorf("failed to render convergence chart: %w", err)
		}
		if dataURL, err := imageToDataURL(chartPath); err == nil {
			chartURL = dataURL
		}
	}

	metadata, err := json.MarshalIndent(SessionMetadata{
		SessionName:   report.SessionName,
		SessionID:     report.SessionID,
		Timestamp:     report.Timestamp,
		Duration:      report.Duration.String(),
		FrameCount:    report.FrameCount,
		Magnification: report.Magnification,
		Success:       report.Success,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	tmpl, err := rg.template("session", sessionReportTemplate)
	if err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(rg.outputDir, "index.html"))
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	page := struct {
		Report      TrackingReport
		ChartURL    template.URL
		MetadataJS  template.JS
		GeneratedAt string
	}{
		Report:      report,
		ChartURL:    chartURL,
		MetadataJS:  template.JS(metadata),
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := tmpl.Execute(file, page); err != nil {
		return fmt.Errorf("failed to render session report: %w", err)
	}
	return nil
}

// GenerateDashboard scans a directory tree for session reports and writes a
// dashboard.html linking them, newest first.
func (rg *ReportGenerator) GenerateDashboard(baseDir string) error {
	entries, err := scanSessionReports(baseDir)
	if err != nil {
		return fmt.Errorf("failed to scan session reports: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})

	tmpl, err := rg.template("dashboard", dashboardTemplate)
	if err != nil {
		return err
	}

	dashboardPath := filepath.Join(baseDir, "dashboard.html")
	file, err := os.Create(dashboardPath)
	if err != nil {
		return fmt.Errorf("failed to create dashboard file: %w", err)
	}
	defer file.Close()

	page := struct {
		Entries     []DashboardEntry
		GeneratedAt string
	}{
		Entries:     entries,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := tmpl.Execute(file, page); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}

	fmt.Printf("📊 Dashboard generated: %s\n", dashboardPath)
	fmt.Printf("🔗 Open in browser: file://%s\n", absolutePath(dashboardPath))
	return nil
}

func (rg *ReportGenerator) template(name, text string) (*template.Template, error) {
	if tmpl, ok := rg.templateCache[name]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	rg.templateCache[name] = tmpl
	return tmpl, nil
}

// scanSessionReports collects dashboard entries from every index.html under
// the base directory that carries a metadata block.
func scanSessionReports(baseDir string) ([]DashboardEntry, error) {
	var entries []DashboardEntry

	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Name() != "index.html" {
			return nil
		}

		entry, ok := extractSessionEntry(path)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			rel = path
		}
		entry.RelativePath = rel
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// extractSessionEntry pulls the embedded metadata block out of a report. A
// report without one is skipped rather than guessed at.
func extractSessionEntry(reportPath string) (DashboardEntry, bool) {
	content, err := os.ReadFile(reportPath)
	if err != nil {
		return DashboardEntry{}, false
	}

	const marker = `<script type="application/json" id="session-metadata">`
	start := strings.Index(string(content), marker)
	if start < 0 {
		return DashboardEntry{}, false
	}
	rest := string(content)[start+len(marker):]
	end := strings.Index(rest, "</script>")
	if end < 0 {
		return DashboardEntry{}, false
	}

	var meta SessionMetadata
	if err := json.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return DashboardEntry{}, false
	}

	return DashboardEntry{
		SessionName:   meta.SessionName,
		Timestamp:     meta.Timestamp,
		Duration:      meta.Duration,
		FrameCount:    meta.FrameCount,
		Magnification: meta.Magnification,
		Success:       meta.Success,
	}, true
}

// renderConvergenceChart plots per-frame reticle displacement so convergence
// toward the deadzone is visible at a glance.
func renderConvergenceChart(deltas []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Reticle Convergence"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Displacement (world units)"

	pts := make(plotter.XYs, len(deltas))
	for i, delta := range deltas {
		pts[i] = plotter.XY{X: float64(i + 1), Y: delta}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build displacement line: %w", err)
	}
	line.Color = color.RGBA{R: 88, G: 166, B: 255, A: 255}
	line.Width = vg.Points(1.5)

	p.Add(line)
	p.Legend.Add("recent delta", line)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 3*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save convergence chart: %w", err)
	}
	return nil
}

func imageToDataURL(imagePath string) (template.URL, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := "image/png"
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	case ".gif":
		mimeType = "image/gif"
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return template.URL(fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)), nil
}

func absolutePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

const sessionReportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Report.SessionName}} - FocusPuller Session</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; background: #0d1117; color: #e6edf3; margin: 0; padding: 24px; }
h1 { font-size: 20px; }
h2 { font-size: 16px; border-bottom: 1px solid #30363d; padding-bottom: 6px; }
h3 { font-size: 13px; color: #8b949e; }
.badge { display: inline-block; padding: 2px 10px; border-radius: 12px; font-size: 12px; font-weight: bold; }
.badge.pass { background: #1f6f43; }
.badge.fail { background: #8e2c35; }
.summary { color: #8b949e; font-size: 13px; }
.summary span { margin-right: 16px; }
.frames { display: flex; flex-wrap: wrap; gap: 16px; }
.frame { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 8px; }
.frame img { display: block; max-width: 320px; }
.frame .label { font-size: 12px; color: #8b949e; margin-top: 6px; }
.chart img { max-width: 100%; border-radius: 6px; }
.terminal { background: #0d1117; border: 1px solid #30363d; border-radius: 6px; padding: 12px; font-family: "SFMono-Regular", Consolas, monospace; font-size: 12px; line-height: 1.5; }
.terminal-empty { color: #6e7681; font-style: italic; }
.steps { border-collapse: collapse; font-size: 13px; }
.steps td { padding: 4px 12px 4px 0; border-bottom: 1px solid #21262d; }
.meta { font-size: 12px; color: #8b949e; }
</style>
</head>
<body>
<h1>🔭 {{.Report.SessionName}} {{if .Report.Success}}<span class="badge pass">STEADY</span>{{else}}<span class="badge fail">DRIFTED</span>{{end}}</h1>
<p class="summary">
<span>session {{.Report.SessionID}}</span>
<span>{{.Report.Timestamp}}</span>
<span>{{.Report.Duration}}</span>
<span>{{.Report.FrameCount}} frames</span>
<span>{{printf "%.2f" .Report.Magnification}}x</span>
<span>{{printf "%.2f" .Report.CorrectedFov}}&deg; fov</span>
</p>
<script type="application/json" id="session-metadata">
{{.MetadataJS}}
</script>
{{if .Report.Optic}}
<h2>Optics</h2>
<table class="steps">
<tr><td>optic</td><td>{{.Report.Optic}}</td></tr>
<tr><td>fov source</td><td>{{.Report.FovSource}}</td></tr>
<tr><td>raw fov</td><td>{{printf "%.2f" .Report.RawFov}}&deg;</td></tr>
<tr><td>lod bias</td><td>{{printf "%.2f" .Report.LODBias}}</td></tr>
<tr><td>far clip</td><td>{{printf "%.0f" .Report.FarClip}}</td></tr>
</table>
{{end}}
{{if .Report.BuzzSummary}}
<p class="summary"><span>buzz: {{.Report.BuzzSummary}}</span></p>
{{end}}
{{if .ChartURL}}
<h2>Convergence</h2>
<div class="chart"><img src="{{.ChartURL}}" alt="Reticle convergence"></div>
{{end}}
{{if .Report.Frames}}
<h2>Tracking Shots</h2>
<div class="frames">
{{range .Report.Frames}}
<div class="frame">
{{if .DataURL}}<img src="{{.DataURL}}" alt="{{.Label}}">{{end}}
<div class="label">{{.Label}} (step {{.Step}})</div>
</div>
{{end}}
</div>
{{end}}
{{if .Report.Consoles}}
<h2>Console Frames</h2>
{{range .Report.Consoles}}
<h3>{{.Label}}</h3>
<div class="terminal">{{.HTML}}</div>
{{end}}
{{end}}
{{if .Report.Steps}}
<h2>Session Script</h2>
<table class="steps">
{{range $i, $step := .Report.Steps}}
<tr><td>{{$i}}</td><td>{{$step.Type}}</td><td>{{$step.Details}}</td></tr>
{{end}}
</table>
{{end}}
<p class="meta">Generated {{.GeneratedAt}} by focuspuller</p>
</body>
</html>
`

const dashboardTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>FocusPuller Session Dashboard</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; background: #0d1117; color: #e6edf3; margin: 0; padding: 24px; }
h1 { font-size: 20px; }
table { border-collapse: collapse; width: 100%; font-size: 13px; }
th { text-align: left; color: #8b949e; font-weight: normal; }
th, td { padding: 8px 16px 8px 0; border-bottom: 1px solid #21262d; }
a { color: #58a6ff; text-decoration: none; }
.badge { display: inline-block; padding: 2px 10px; border-radius: 12px; font-size: 12px; font-weight: bold; }
.badge.pass { background: #1f6f43; }
.badge.fail { background: #8e2c35; }
.meta { font-size: 12px; color: #8b949e; }
</style>
</head>
<body>
<h1>📊 FocusPuller Session Dashboard</h1>
{{if .Entries}}
<table>
<tr><th>Session</th><th>Result</th><th>Frames</th><th>Magnification</th><th>Duration</th><th>Captured</th></tr>
{{range .Entries}}
<tr>
<td><a href="{{.RelativePath}}">{{.SessionName}}</a></td>
<td>{{if .Success}}<span class="badge pass">STEADY</span>{{else}}<span class="badge fail">DRIFTED</span>{{end}}</td>
<td>{{.FrameCount}}</td>
<td>{{printf "%.2f" .Magnification}}x</td>
<td>{{.Duration}}</td>
<td>{{.Timestamp}}</td>
</tr>
{{end}}
</table>
{{else}}
<p class="meta">No session reports found yet.</p>
{{end}}
<p class="meta">Generated {{.GeneratedAt}} by focuspuller</p>
</body>
</html>
`
