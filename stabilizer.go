package focuspuller

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// StabilizerState is the filter's output for one frame: the smoothed lens
// position in camera-local space, the raw optic rotation, and the magnitude
// of the last raw-to-smoothed displacement for diagnostics.
type StabilizerState struct {
	Position    mgl64.Vec3
	Rotation    mgl64.Quat
	RecentDelta float64
}

// StabilizerConfig configures a StabilizationFilter.
type StabilizerConfig struct {
	// Tau is the smoothing time constant. Default 50ms.
	Tau time.Duration

	// Deadzone is the minimum raw-to-smoothed displacement, in world units,
	// before the filter reacts. Default 0.0005.
	Deadzone float64

	// Clock supplies frame timestamps. Default time.Now. Tests inject a
	// scripted clock here to step frames deterministically.
	Clock func() time.Time
}

// DefaultStabilizerConfig returns the standard filter tuning.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfig{
		Tau:      50 * time.Millisecond,
		Deadzone: 0.0005,
	}
}

// StabilizationFilter smooths the optic lens's apparent position so weapon
// sway and animation jitter do not shake the magnified picture.
//
// The smoothing coefficient is recomputed every frame from the real frame
// delta, alpha = 1 - e^(-dt/tau), so convergence speed is independent of
// frame rate. Displacements inside the deadzone are ignored entirely -
// feeding sub-pixel noise back through the filter amplifies oscillation on
// near-static input instead of damping it. Rotation is never smoothed:
// rotational lag reads as the whole sight dragging behind the player's aim,
// which is far more objectionable than translational micro-jitter, so
// rotation tracks the raw optic every frame and only position is filtered.
type StabilizationFilter struct {
	tau      time.Duration
	deadzone float64
	clock    func() time.Time

	primed   bool
	lastTick time.Time
	state    StabilizerState
}

// NewStabilizationFilter creates a filter with the given tuning. Zero-value
// fields fall back to DefaultStabilizerConfig.
func NewStabilizationFilter(config StabilizerConfig) *StabilizationFilter {
	defaults := DefaultStabilizerConfig()
	if config.Tau <= 0 {
		config.Tau = defaults.Tau
	}
	if config.Deadzone <= 0 {
		config.Deadzone = defaults.Deadzone
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &StabilizationFilter{
		tau:      config.Tau,
		deadzone: config.Deadzone,
		clock:    config.Clock,
	}
}

// Update advances the filter by one frame. Call it once per rendered frame,
// late, after camera motion for the frame is finalized.
//
// The first call after construction or Reset initializes the smoothed state
// to the raw values and returns immediately - starting from anywhere else
// would snap the picture on engage.
func (f *StabilizationFilter) Update(camera, lens, optic Transform) StabilizerState {
	raw := camera.PointToLocal(lens.Position)
	now := f.clock()

	if !f.primed {
		f.primed = true
		f.lastTick = now
		f.state = StabilizerState{Position: raw, Rotation: optic.Rotation}
		return f.state
	}

	dt := now.Sub(f.lastTick).Seconds()
	f.lastTick = now

	f.state.Rotation = optic.Rotation

	offset := raw.Sub(f.state.Position)
	distance := offset.Len()
	f.state.RecentDelta = distance

	if distance > f.deadzone && dt > 0 {
		alpha := 1 - math.Exp(-dt/f.tau.Seconds())
		f.state.Position = f.state.Position.Add(offset.Mul(alpha))
	}
	return f.state
}

// Reset discards the smoothed state. The next Update re-initializes from
// raw values. Call it whenever the active optic changes or stabilization
// disengages.
func (f *StabilizationFilter) Reset() {
	f.primed = false
	f.state = StabilizerState{}
}

// State returns the most recent output without advancing the filter.
func (f *StabilizationFilter) State() StabilizerState {
	return f.state
}

// Deadzone returns the configured movement threshold. Displacements at or
// below it are treated as sensor noise rather than motion.
func (f *StabilizationFilter) Deadzone() float64 {
	return f.deadzone
}
