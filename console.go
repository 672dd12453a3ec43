package focuspuller

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// PoseSource supplies the camera, lens, and optic transforms for each
// tracked frame. Implementations typically sample a live rig, or synthesize
// sway for demos and scripted sessions.
type PoseSource interface {
	Poses() (camera, lens, optic Transform)
}

// StaticPoses is a PoseSource pinned to fixed transforms.
type StaticPoses struct {
	Camera Transform
	Lens   Transform
	Optic  Transform
}

// Poses returns the pinned transforms.
func (s StaticPoses) Poses() (Transform, Transform, Transform) {
	return s.Camera, s.Lens, s.Optic
}

// HUDModel is the testable surface of a terminal HUD. Session drivers use
// CurrentMode and CheckCondition to observe state without parsing views.
type HUDModel interface {
	tea.Model
	CurrentMode() string
	CheckCondition(condition string) bool
}

type consoleTickMsg time.Time

// Console is a terminal HUD over one FocusPuller. Every tick it tracks the
// current rig poses through the stabilization filter; keys scope the optic
// in and out.
type Console struct {
	puller   *FocusPuller
	optic    Node
	pipeline RenderPipeline
	poses    PoseSource
	rate     time.Duration
	state    StabilizerState
	quitting bool
}

var _ HUDModel = Console{}

// NewConsole builds a HUD bound to an optic and a render pipeline. The pose
// source is sampled on every tick, roughly 30 times a second.
func NewConsole(puller *FocusPuller, optic Node, pipeline RenderPipeline, poses PoseSource) Console {
	return Console{
		puller:   puller,
		optic:    optic,
		pipeline: pipeline,
		poses:    poses,
		rate:     33 * time.Millisecond,
	}
}

// Init starts the tracking tick loop.
func (c Console) Init() tea.Cmd {
	return c.tickCmd()
}

// Update handles key and tick messages.
func (c Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			c.quitting = true
			if c.puller.Engaged() {
				c.puller.Disengage()
			}
			return c, tea.Quit
		case "z":
			if !c.puller.Engaged() {
				c.puller.Engage(c.optic, c.pipeline)
			}
		case "x":
			if c.puller.Engaged() {
				c.puller.Disengage()
			}
		case "r":
			c.puller.Refresh()
		}
	case consoleTickMsg:
		camera, lens, optic := c.poses.Poses()
		c.state = c.puller.Track(camera, lens, optic)
		return c, c.tickCmd()
	}
	return c, nil
}

// View renders the HUD.
func (c Console) View() string {
	if c.quitting {
		return "🎬 Scope stowed. That's a wrap.\n"
	}

	var view strings.Builder
	view.WriteString("🔭 FocusPuller Console\n\n")

	if c.puller.Engaged() {
		view.WriteString(fmt.Sprintf("mode: scoped at %.2fx\n", c.puller.CurrentMagnification()))
		view.WriteString(fmt.Sprintf("fov:  %.2f corrected (%.2f raw)\n",
			c.puller.CurrentCorrectedFov(), c.puller.CurrentRawFov()))
	} else {
		view.WriteString("mode: observing\n")
		view.WriteString("fov:  wide\n")
	}

	view.WriteString(fmt.Sprintf("reticle: delta %.5f over %d frames\n",
		c.state.RecentDelta, c.puller.FramesTracked()))
	view.WriteString(fmt.Sprintf("buzz: %s\n", c.puller.Errors().Summary()))
	view.WriteString("\n(z scope in, x scope out, r refresh, q quit)\n")
	return view.String()
}

// CurrentMode reports whether the console is scoped in.
func (c Console) CurrentMode() string {
	if c.puller.Engaged() {
		return "scoped"
	}
	return "observing"
}

// CheckCondition evaluates a named condition for session drivers.
func (c Console) CheckCondition(condition string) bool {
	switch condition {
	case "scoped":
		return c.puller.Engaged()
	case "observing":
		return !c.puller.Engaged()
	case "tracking":
		return c.puller.FramesTracked() > 0
	case "steady":
		return c.puller.FramesTracked() > 0 &&
			c.state.RecentDelta <= c.puller.Stabilizer().Deadzone()
	case "resolved":
		return c.puller.CurrentRawFov() > 0
	default:
		return false
	}
}

func (c Console) tickCmd() tea.Cmd {
	return tea.Tick(c.rate, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}
