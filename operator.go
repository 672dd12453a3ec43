package focuspuller

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/teranos/focuspuller/buzz"
)

// SessionStep records one scripted action in a tracking session.
type SessionStep struct {
	Timestamp time.Time
	Type      string
	Details   string
}

// SessionResult is the outcome of a scripted tracking session.
type SessionResult struct {
	Steps         []SessionStep
	Frames        int
	Captures      []string // Paths of captured reticle frames
	Consoles      []string // Paths of captured console frames
	Deltas        []float64
	Success       bool
	Duration      time.Duration
	FinalState    StabilizerState
	Magnification float64
	ErrorMessage  string
	Error         error
}

// sessionError carries structured context for scripted-session failures.
type sessionError struct {
	Type    string
	Message string
	Context map[string]interface{}
}

func (e *sessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newSessionError(errType, message string, context map[string]interface{}) *sessionError {
	return &sessionError{Type: errType, Message: message, Context: context}
}

// OperatorConfig tunes a scripted session. The zero value of Session means
// DefaultConfig; the stabilizer clock is always replaced by the operator's
// scripted timeline, so sessions replay identically on any machine.
type OperatorConfig struct {
	Session          Config        // FocusPuller configuration
	FrameStep        time.Duration // Scripted time between tracked frames
	SwayAmplitude    float64       // World-unit amplitude of synthesized sway
	SwayPeriod       int           // Frames per sway cycle
	CameraPose       Transform     // Rig camera pose, identity rotation if unset
	OpticPose        Transform     // Scope pose, identity rotation if unset
	LensOffset       mgl64.Vec3    // Lens rest position relative to the camera
	OutputDir        string        // Where captures and reports land
	CaptureFrames    bool          // Whether tracking shots write PNGs
	Reticle          ReticleConfig // Frame compositor settings
	AutoReportErrors bool          // Report failures to the test immediately
}

// DefaultOperatorConfig returns settings for a 60fps handheld session.
func DefaultOperatorConfig() OperatorConfig {
	return OperatorConfig{
		FrameStep:        16 * time.Millisecond,
		SwayAmplitude:    0.003,
		SwayPeriod:       48,
		LensOffset:       mgl64.Vec3{0.02, -0.015, 0.35},
		CaptureFrames:    true,
		Reticle:          DefaultReticleConfig(),
		AutoReportErrors: true,
	}
}

// Operator drives a FocusPuller through a scripted tracking session: scope
// in, sway, settle, capture, scope out. Frames advance on a deterministic
// clock, so sessions never sleep and replay byte for byte.
type Operator struct {
	t      *testing.T
	config OperatorConfig
	puller *FocusPuller
	stage  *ReticleStage

	clock         time.Time
	origin        time.Time
	sway          float64
	frame         int
	optic         Node
	pipeline      RenderPipeline
	magnification float64
	rawFov        float64
	correctedFov  float64
	fovSource     string
	appliedBias   float64
	appliedFar    float64
	state         StabilizerState

	steps     []SessionStep
	captures  []string
	consoles  []string
	deltas    []float64
	failed    bool
	lastError error
}

// NewOperator creates a session driver over scene content. Pass the
// enclosing test so failures are reported in place; a nil test just records
// them into the result.
func NewOperator(t *testing.T, catalog TypeCatalog, config OperatorConfig) *Operator {
	if config.FrameStep <= 0 {
		config.FrameStep = DefaultOperatorConfig().FrameStep
	}
	if config.SwayPeriod <= 0 {
		config.SwayPeriod = DefaultOperatorConfig().SwayPeriod
	}
	if config.Reticle.Width == 0 {
		config.Reticle = DefaultReticleConfig()
	}
	config.CameraPose = normalizePose(config.CameraPose)
	config.OpticPose = normalizePose(config.OpticPose)

	session := config.Session
	if session.BaseFov == 0 && session.ManualFov == 0 {
		session = DefaultConfig()
	}

	op := &Operator{
		t:             t,
		config:        config,
		clock:         time.Now(),
		sway:          config.SwayAmplitude,
		magnification: 1,
	}
	op.origin = op.clock

	session.Stabilizer.Clock = op.now
	op.puller = New(catalog, session)

	if config.OutputDir != "" && config.CaptureFrames {
		reticle := config.Reticle
		reticle.OutputDir = config.OutputDir
		op.stage = NewReticleStage(reticle)
	}
	return op
}

// Engage scopes in on an optic and records the resolved magnification.
func (op *Operator) Engage(optic Node, pipeline RenderPipeline) *Operator {
	op.puller.Engage(optic, pipeline)
	op.optic = optic
	op.pipeline = pipeline
	op.captureSession()
	op.recordStep("engage", fmt.Sprintf("magnification %.2fx, corrected fov %.2f",
		op.magnification, op.correctedFov))
	return op
}

// Refresh re-resolves scene content while scoped.
func (op *Operator) Refresh() *Operator {
	op.puller.Refresh()
	op.captureSession()
	op.recordStep("refresh", fmt.Sprintf("magnification %.2fx", op.magnification))
	return op
}

// captureSession snapshots the resolved state while the session is live, so
// reports written after Disengage still describe what was applied.
func (op *Operator) captureSession() {
	op.magnification = op.puller.CurrentMagnification()
	op.rawFov = op.puller.CurrentRawFov()
	op.correctedFov = op.puller.CurrentCorrectedFov()
	op.fovSource = op.puller.FovSource()
	if op.pipeline != nil {
		op.appliedBias = op.pipeline.LODBias()
		op.appliedFar = op.pipeline.FarClip()
	}
}

// Disengage scopes out and restores the pipeline.
func (op *Operator) Disengage() *Operator {
	op.puller.Disengage()
	op.recordStep("disengage", "render parameters restored")
	return op
}

// Sway sets the hand-sway amplitude for subsequent frames. Zero holds the
// rig perfectly still so the reticle can settle.
func (op *Operator) Sway(amplitude float64) *Operator {
	op.sway = amplitude
	op.recordStep("sway", fmt.Sprintf("amplitude %.4f", amplitude))
	return op
}

// AdvanceFrames tracks n frames on the scripted clock, synthesizing sway
// around the lens rest position.
func (op *Operator) AdvanceFrames(n int) *Operator {
	for i := 0; i < n; i++ {
		op.clock = op.clock.Add(op.config.FrameStep)
		op.frame++
		op.state = op.puller.Track(op.config.CameraPose, op.lensPose(), op.config.OpticPose)
		op.deltas = append(op.deltas, op.state.RecentDelta)
	}
	op.recordStep("track", fmt.Sprintf("%d frames, delta %.6f", n, op.state.RecentDelta))
	return op
}

// CaptureTrackingShot composes the current stabilizer state into a PNG
// frame. Write failures are retried on the capture policy before the shot
// is reported failed.
func (op *Operator) CaptureTrackingShot(label string) *Operator {
	if op.stage == nil {
		return op
	}

	filename := filepath.Join(op.config.OutputDir,
		fmt.Sprintf("frame_%03d_%s.png", len(op.captures), label))
	op.stage.Compose(op.state, op.telemetry())

	retry, _ := op.puller.Errors().GetRetryConfig("capture")
	var err error
	for attempt := 0; ; attempt++ {
		if err = op.stage.CaptureFrame(filename); err == nil {
			break
		}
		if attempt >= retry.MaxRetries {
			break
		}
		op.puller.Errors().Record(buzz.NewBreath("capture",
			fmt.Sprintf("Retrying tracking shot %q", label),
			buzz.Context{"file": filename}).WithAttempt(attempt + 1))
		op.clock = op.clock.Add(retry.Backoff)
	}
	if err != nil {
		op.recordError(newSessionError("capture",
			fmt.Sprintf("failed to capture tracking shot %q: %v", label, err),
			map[string]interface{}{"file": filename}))
		return op
	}

	op.captures = append(op.captures, filename)
	op.recordStep("capture", label)
	return op
}

// CaptureConsoleFrame saves a console view next to the tracking shots so the
// session report can replay the HUD.
func (op *Operator) CaptureConsoleFrame(label, view string) *Operator {
	if op.config.OutputDir == "" {
		return op
	}

	filename := filepath.Join(op.config.OutputDir, fmt.Sprintf("console_%s.ansi", label))
	meta := map[string]string{
		"label":    label,
		"frame":    fmt.Sprintf("%d", op.frame),
		"captured": FormatTimestamp(op.clock),
	}
	if err := SaveConsoleFrame(filename, view, meta); err != nil {
		op.recordError(newSessionError("capture",
			fmt.Sprintf("failed to save console frame %q: %v", label, err), nil))
		return op
	}

	op.consoles = append(op.consoles, filename)
	op.recordStep("console", label)
	return op
}

// AssertScoped fails the session unless the puller is engaged.
func (op *Operator) AssertScoped() *Operator {
	if !op.puller.Engaged() {
		op.recordError(newSessionError("assertion", "expected scoped mode, still observing", nil))
	}
	return op
}

// AssertIdle fails the session if the puller is still engaged.
func (op *Operator) AssertIdle() *Operator {
	if op.puller.Engaged() {
		op.recordError(newSessionError("assertion", "expected idle mode, still scoped", nil))
	}
	return op
}

// AssertMagnification fails the session unless the resolved magnification
// matches within the tolerance.
func (op *Operator) AssertMagnification(expected, within float64) *Operator {
	actual := op.puller.CurrentMagnification()
	if math.Abs(actual-expected) > within {
		op.recordError(newSessionError("assertion",
			fmt.Sprintf("expected magnification %.4fx, resolved %.4fx", expected, actual),
			map[string]interface{}{"expected": expected, "actual": actual}))
	}
	return op
}

// AssertSteady fails the session unless the latest reticle delta is at or
// below the threshold.
func (op *Operator) AssertSteady(threshold float64) *Operator {
	if op.state.RecentDelta > threshold {
		op.recordError(newSessionError("assertion",
			fmt.Sprintf("reticle still moving: delta %.6f above %.6f", op.state.RecentDelta, threshold),
			map[string]interface{}{"delta": op.state.RecentDelta}))
	}
	return op
}

// AssertCondition evaluates a HUD condition and fails the session when it
// does not hold.
func (op *Operator) AssertCondition(model HUDModel, condition string) *Operator {
	if !model.CheckCondition(condition) {
		op.recordError(newSessionError("assertion",
			fmt.Sprintf("condition %q does not hold", condition), nil))
	}
	return op
}

// WriteReport renders the session into an HTML report alongside the
// captured frames.
func (op *Operator) WriteReport(sessionName string) *Operator {
	if op.config.OutputDir == "" {
		return op
	}

	report := TrackingReport{
		SessionName:   sessionName,
		Timestamp:     FormatTimestamp(op.origin),
		Duration:      op.clock.Sub(op.origin),
		Success:       !op.failed,
		FovSource:     op.fovSource,
		RawFov:        op.rawFov,
		Magnification: op.magnification,
		CorrectedFov:  op.correctedFov,
		LODBias:       op.appliedBias,
		FarClip:       op.appliedFar,
		BuzzSummary:   op.puller.Errors().Summary(),
		FrameCount:    op.frame,
		Steps:         op.steps,
		Deltas:        op.deltas,
	}
	if op.optic != nil {
		report.Optic = op.optic.Name()
	}
	for i, capture := range op.captures {
		report.Frames = append(report.Frames, FrameEntry{
			Label:     strings.TrimSuffix(filepath.Base(capture), ".png"),
			Filename:  filepath.Base(capture),
			Step:      i,
			Timestamp: op.clock,
		})
	}
	for _, console := range op.consoles {
		report.Consoles = append(report.Consoles, ConsoleEntry{
			Label:    strings.TrimSuffix(filepath.Base(console), ".ansi"),
			Filename: filepath.Base(console),
		})
	}

	if err := NewReportGenerator(op.config.OutputDir).GenerateReport(report); err != nil {
		op.recordError(newSessionError("report",
			fmt.Sprintf("failed to write session report: %v", err), nil))
		return op
	}
	op.recordStep("report", sessionName)
	return op
}

// Finish closes the session and returns its result. A still-engaged puller
// is disengaged so render parameters never leak past the session.
func (op *Operator) Finish() *SessionResult {
	if op.puller.Engaged() {
		op.puller.Disengage()
		op.recordStep("disengage", "session finished while scoped")
	}

	result := &SessionResult{
		Steps:         op.steps,
		Frames:        op.frame,
		Captures:      op.captures,
		Consoles:      op.consoles,
		Deltas:        op.deltas,
		Success:       !op.failed,
		Duration:      op.clock.Sub(op.origin),
		FinalState:    op.state,
		Magnification: op.magnification,
	}
	if op.lastError != nil {
		result.Error = op.lastError
		result.ErrorMessage = op.lastError.Error()
	}
	return result
}

// Puller exposes the driven FocusPuller for direct inspection.
func (op *Operator) Puller() *FocusPuller { return op.puller }

// State returns the latest stabilizer output.
func (op *Operator) State() StabilizerState { return op.state }

// HasFailed reports whether any scripted step failed.
func (op *Operator) HasFailed() bool { return op.failed }

// LastError returns the most recent failure, if any.
func (op *Operator) LastError() error { return op.lastError }

func (op *Operator) now() time.Time {
	return op.clock
}

// lensPose synthesizes the swaying lens transform for the current frame.
func (op *Operator) lensPose() Transform {
	phase := 2 * math.Pi * float64(op.frame) / float64(op.config.SwayPeriod)
	offset := mgl64.Vec3{
		op.sway * math.Sin(phase),
		0.6 * op.sway * math.Cos(phase),
		0,
	}
	return Transform{
		Position: op.config.CameraPose.Position.Add(op.config.LensOffset).Add(offset),
		Rotation: mgl64.QuatIdent(),
	}
}

func (op *Operator) telemetry() []string {
	return []string{
		fmt.Sprintf("mag %.2fx  fov %.2f", op.puller.CurrentMagnification(), op.puller.CurrentCorrectedFov()),
		fmt.Sprintf("delta %.5f  frame %d", op.state.RecentDelta, op.frame),
	}
}

func (op *Operator) recordStep(stepType, details string) {
	op.steps = append(op.steps, SessionStep{
		Timestamp: op.clock,
		Type:      stepType,
		Details:   details,
	})
}

func (op *Operator) recordError(err *sessionError) {
	op.failed = true
	op.lastError = err
	op.steps = append(op.steps, SessionStep{
		Timestamp: op.clock,
		Type:      "error",
		Details:   err.Error(),
	})
	if op.t != nil && op.config.AutoReportErrors {
		op.t.Helper()
		op.t.Error(err)
	}
}

func normalizePose(pose Transform) Transform {
	if pose.Rotation == (mgl64.Quat{}) {
		pose.Rotation = mgl64.QuatIdent()
	}
	return pose
}
