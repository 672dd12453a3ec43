package focuspuller

// SavedRenderState is the snapshot of host-global rendering parameters taken
// when an apply session opens. Exactly one live snapshot exists at a time;
// Restore always writes back these original values, never intermediates.
type SavedRenderState struct {
	LODBias       float64
	MaxLODLevel   int
	FarClip       float64
	CullDistances []float64
}

type applierState int

const (
	applierIdle applierState = iota
	applierApplied
)

// RenderParameterApplier owns the snapshot/restore contract for the host's
// global rendering parameters and applies magnification-scaled adjustments
// while an optic is engaged.
//
// The state machine has two states. Idle: no snapshot, pipeline untouched.
// Applied: one snapshot held, pipeline carries scaled values. Re-applying
// while Applied recomputes from the saved snapshot, so repeated calls with
// different magnifications never compound.
type RenderParameterApplier struct {
	pipeline RenderPipeline
	state    applierState
	saved    SavedRenderState
}

// NewRenderParameterApplier creates an applier over the host pipeline.
func NewRenderParameterApplier(pipeline RenderPipeline) *RenderParameterApplier {
	return &RenderParameterApplier{pipeline: pipeline}
}

// Apply opens a session if none is open (snapshotting the pipeline first),
// then writes the scaled parameters:
//
//   - LOD bias: saved bias x max(magnification, 1)
//   - max LOD level: 0, forcing highest detail while scoped in
//   - far clip: the larger of the saved value and the provider's, when known
//   - cull distances: each positive saved distance x max(magnification, 1);
//     zero entries mean "no limit" and stay zero
//
// provider may be nil when no camera data was discovered.
func (a *RenderParameterApplier) Apply(magnification float64, provider CameraDataProvider) {
	if a.pipeline == nil {
		return
	}
	if magnification < 1 {
		magnification = 1
	}

	if a.state == applierIdle {
		a.saved = SavedRenderState{
			LODBias:       a.pipeline.LODBias(),
			MaxLODLevel:   a.pipeline.MaxLODLevel(),
			FarClip:       a.pipeline.FarClip(),
			CullDistances: append([]float64(nil), a.pipeline.CullDistances()...),
		}
		a.state = applierApplied
	}

	a.pipeline.SetLODBias(a.saved.LODBias * magnification)
	a.pipeline.SetMaxLODLevel(0)

	farClip := a.saved.FarClip
	if provider != nil {
		if providerFar, ok := provider.FarClip(); ok && providerFar > farClip {
			farClip = providerFar
		}
	}
	a.pipeline.SetFarClip(farClip)

	scaled := make([]float64, len(a.saved.CullDistances))
	for i, distance := range a.saved.CullDistances {
		if distance > 0 {
			scaled[i] = distance * magnification
		} else {
			scaled[i] = distance
		}
	}
	a.pipeline.SetCullDistances(scaled)
}

// Restore closes the session, writing every saved value back exactly and
// returning to Idle. Calling it while Idle is a deliberate no-op, so it is
// idempotent and always safe - Restore doubles as the cancellation path for
// an in-progress session.
func (a *RenderParameterApplier) Restore() {
	if a.state != applierApplied || a.pipeline == nil {
		return
	}
	a.pipeline.SetLODBias(a.saved.LODBias)
	a.pipeline.SetMaxLODLevel(a.saved.MaxLODLevel)
	a.pipeline.SetFarClip(a.saved.FarClip)
	a.pipeline.SetCullDistances(append([]float64(nil), a.saved.CullDistances...))
	a.state = applierIdle
}

// Applied reports whether a session is open.
func (a *RenderParameterApplier) Applied() bool {
	return a.state == applierApplied
}

// Saved returns a copy of the open session's snapshot. The boolean is false
// when Idle.
func (a *RenderParameterApplier) Saved() (SavedRenderState, bool) {
	if a.state != applierApplied {
		return SavedRenderState{}, false
	}
	snapshot := a.saved
	snapshot.CullDistances = append([]float64(nil), a.saved.CullDistances...)
	return snapshot, true
}
