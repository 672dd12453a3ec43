package focuspuller

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"regexp"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ReticleConfig defines the look of composed scope frames.
type ReticleConfig struct {
	Width         int        // Frame width in pixels
	Height        int        // Frame height in pixels
	PixelsPerUnit float64    // Scale from world-unit displacement to pixels
	Background    color.RGBA // Frame background
	Ring          color.RGBA // Scope vignette ring
	Crosshair     color.RGBA // Crosshair arms
	Dot           color.RGBA // Stabilized aim dot
	Telemetry     color.RGBA // Telemetry text
	OutputDir     string     // Directory for captured frames
}

// DefaultReticleConfig returns frame settings sized for session reports.
func DefaultReticleConfig() ReticleConfig {
	return ReticleConfig{
		Width:         640,
		Height:        480,
		PixelsPerUnit: 4000,
		Background:    color.RGBA{13, 17, 23, 255},
		Ring:          color.RGBA{125, 133, 144, 255},
		Crosshair:     color.RGBA{139, 148, 158, 255},
		Dot:           color.RGBA{88, 166, 255, 255},
		Telemetry:     color.RGBA{255, 255, 255, 255},
	}
}

// ReticleStage composes scope-view frames for tracking sessions. Each frame
// layers a vignette ring, a crosshair, and the stabilized aim dot over a
// flat background, with telemetry text along the bottom edge. The canvas is
// allocated once and repainted in place, so composing inside a frame loop
// does not churn the garbage collector.
type ReticleStage struct {
	config ReticleConfig
	canvas *image.RGBA
	face   font.Face
}

// NewReticleStage creates a frame compositor. Zero dimensions fall back to
// the defaults, and the output directory is created if it does not exist.
func NewReticleStage(config ReticleConfig) *ReticleStage {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width = DefaultReticleConfig().Width
		config.Height = DefaultReticleConfig().Height
	}
	if config.PixelsPerUnit <= 0 {
		config.PixelsPerUnit = DefaultReticleConfig().PixelsPerUnit
	}
	if config.OutputDir != "" {
		os.MkdirAll(config.OutputDir, 0755)
	}

	return &ReticleStage{
		config: config,
		canvas: image.NewRGBA(image.Rect(0, 0, config.Width, config.Height)),
		face:   basicfont.Face7x13,
	}
}

// Compose renders one frame from the stabilizer output. Telemetry lines are
// drawn along the bottom edge with ANSI escape sequences stripped, so console
// HUD lines can be passed straight through. Returns the receiver for chaining.
func (rs *ReticleStage) Compose(state StabilizerState, telemetry []string) *ReticleStage {
	rs.fill(rs.config.Background)

	cx := rs.config.Width / 2
	cy := rs.config.Height / 2
	radius := min(cx, cy) - 8

	rs.drawRing(cx, cy, radius)
	rs.drawCrosshair(cx, cy, radius)
	rs.drawDot(cx, cy, radius, state)
	rs.drawTelemetry(telemetry)
	return rs
}

// Frame returns the most recently composed canvas.
func (rs *ReticleStage) Frame() image.Image {
	return rs.canvas
}

// CaptureFrame writes the current canvas as a PNG.
func (rs *ReticleStage) CaptureFrame(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, rs.canvas); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}

func (rs *ReticleStage) fill(c color.RGBA) {
	for y := 0; y < rs.config.Height; y++ {
		for x := 0; x < rs.config.Width; x++ {
			rs.canvas.Set(x, y, c)
		}
	}
}

func (rs *ReticleStage) drawRing(cx, cy, radius int) {
	steps := 8 * radius
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		sin, cos := math.Sincos(angle)
		for _, r := range []float64{float64(radius), float64(radius) - 1} {
			x := cx + int(math.Round(r*cos))
			y := cy + int(math.Round(r*sin))
			rs.canvas.Set(x, y, rs.config.Ring)
		}
	}
}

func (rs *ReticleStage) drawCrosshair(cx, cy, radius int) {
	const gap = 6
	for d := gap; d < radius-2; d++ {
		rs.canvas.Set(cx+d, cy, rs.config.Crosshair)
		rs.canvas.Set(cx-d, cy, rs.config.Crosshair)
		rs.canvas.Set(cx, cy+d, rs.config.Crosshair)
		rs.canvas.Set(cx, cy-d, rs.config.Crosshair)
	}
}

// drawDot paints the stabilized aim point. Screen Y grows downward, so the
// camera-local Y offset is negated. Displacements past the ring are clamped
// onto it rather than drawn off-canvas.
func (rs *ReticleStage) drawDot(cx, cy, radius int, state StabilizerState) {
	dx := state.Position.X() * rs.config.PixelsPerUnit
	dy := -state.Position.Y() * rs.config.PixelsPerUnit

	limit := float64(radius - 6)
	if dist := math.Hypot(dx, dy); dist > limit {
		scale := limit / dist
		dx *= scale
		dy *= scale
	}

	px := cx + int(math.Round(dx))
	py := cy + int(math.Round(dy))
	for y := -2; y <= 2; y++ {
		for x := -2; x <= 2; x++ {
			if x*x+y*y <= 4 {
				rs.canvas.Set(px+x, py+y, rs.config.Dot)
			}
		}
	}
}

func (rs *ReticleStage) drawTelemetry(lines []string) {
	drawer := &font.Drawer{
		Dst:  rs.canvas,
		Src:  image.NewUniform(rs.config.Telemetry),
		Face: rs.face,
	}

	const lineHeight = 16
	baseY := rs.config.Height - 8 - lineHeight*(len(lines)-1)
	for i, line := range lines {
		drawer.Dot = fixed.Point26_6{
			X: fixed.Int26_6(8 << 6),
			Y: fixed.Int26_6((baseY + i*lineHeight) << 6),
		}
		drawer.DrawString(stripANSI(line))
	}
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripANSI removes terminal escape sequences so styled HUD text renders as
// plain glyphs.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}
