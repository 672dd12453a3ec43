// Package focuspuller computes and applies real-time rendering parameters
// for magnified optical sights: effective field of view, LOD bias, far clip,
// per-layer cull distances, and a jitter-stabilized reticle position.
//
// Like a focus puller riding the lens through a rack zoom, the library keeps
// the picture sharp while everything around it moves: scene content authored
// by third parties, cameras it has never seen the shape of, and a host
// renderer that only tells it "the player just scoped in". Magnification is
// never handed over directly - it is discovered from the scene at runtime
// and every discovery tier has a fallback, down to a manual value.
//
// Example usage:
//
//	catalog := focuspuller.SceneCatalog{Root: sceneRoot}
//	fp := focuspuller.New(catalog, focuspuller.DefaultConfig())
//
//	// Player scopes in: engage the optic against the host pipeline.
//	fp.Engage(opticNode, pipeline)
//	hostCamera.SetFov(fp.CurrentCorrectedFov())
//
//	// Once per frame, late, after camera motion is finalized:
//	state := fp.Track(cameraPose, lensPose, opticPose)
//	reticle.MoveTo(state.Position)
//
//	// Player scopes out: put every global parameter back exactly.
//	fp.Disengage()
//
// The library owns no scene graph, no renderer, and no input. It reads and
// writes through the narrow contracts in scene.go and never raises an error
// into the host: every failure mode degrades to a defined, visually
// suboptimal behavior instead of a crash.
package focuspuller

import (
	"fmt"

	"github.com/teranos/focuspuller/buzz"
)

// Config holds the host-facing tuning knobs.
type Config struct {
	// AutoFov enables runtime FOV discovery. When false, every engagement
	// uses ManualFov directly.
	AutoFov bool

	// ManualFov is the raw scope FOV, in degrees, used when discovery
	// misses (or AutoFov is off).
	ManualFov float64

	// BaseFov is the host camera's unmagnified FOV in degrees.
	BaseFov float64

	// LODBiasOverride and MaxLODOverride are reserved. They are accepted
	// and kept so host configs round-trip, but Apply currently scales the
	// saved bias and forces max LOD level to 0 regardless; whether these
	// overrides should win is an unresolved tuning question.
	LODBiasOverride float64
	MaxLODOverride  int

	// Stabilizer tunes the reticle position filter.
	Stabilizer StabilizerConfig

	// Registry tunes shape discovery.
	Registry RegistryConfig

	// Errors receives buzzes from every component. Nil means a private
	// handler, reachable via Errors().
	Errors *buzz.Handler
}

// DefaultConfig returns the standard tuning: discovery on, 10 degree manual
// fallback, 70 degree base FOV.
func DefaultConfig() Config {
	return Config{
		AutoFov:    true,
		ManualFov:  10.0,
		BaseFov:    70.0,
		Stabilizer: DefaultStabilizerConfig(),
	}
}

// FocusPuller is the long-lived orchestrator: one instance owns the
// registry, walker, resolver, applier, and stabilization filter, and holds
// the only mutable session state. Create it once at startup, Engage and
// Disengage as the player scopes in and out, and Track once per frame.
//
// Everything runs synchronously on the host's update thread. There is no
// background work and no locking; sequencing Engage/Refresh/Track/Disengage
// against scope events is the host's job.
type FocusPuller struct {
	config   Config
	errs     *buzz.Handler
	registry *ProviderRegistry
	walker   *SceneGraphWalker
	resolver *FovResolver
	filter   *StabilizationFilter
	applier  *RenderParameterApplier

	engaged  Node
	pipeline RenderPipeline

	rawFov        float64
	fovSource     string
	magnification float64
	correctedFov  float64

	sessions      int
	framesTracked int
}

// New creates a FocusPuller over the host's component catalog.
func New(catalog TypeCatalog, config Config) *FocusPuller {
	errs := config.Errors
	if errs == nil {
		errs = buzz.NewHandler("focuspuller", nil)
	}
	if config.BaseFov <= 0 {
		config.BaseFov = DefaultConfig().BaseFov
	}

	registryConfig := config.Registry
	if registryConfig.Errors == nil {
		registryConfig.Errors = errs
	}
	registry := NewProviderRegistry(catalog, registryConfig)
	walker := NewSceneGraphWalker(errs)

	return &FocusPuller{
		config:        config,
		errs:          errs,
		registry:      registry,
		walker:        walker,
		resolver:      NewFovResolver(registry, walker, errs),
		filter:        NewStabilizationFilter(config.Stabilizer),
		magnification: 1,
	}
}

// Engage opens a session for the given optic: resolves its FOV, computes
// magnification, and applies the scaled render parameters to the pipeline.
// An already-open session for a previous optic is disengaged first. Returns
// the receiver for chaining.
func (fp *FocusPuller) Engage(optic Node, pipeline RenderPipeline) *FocusPuller {
	if fp.engaged != nil {
		fp.Disengage()
	}

	fp.engaged = optic
	fp.pipeline = pipeline
	fp.applier = NewRenderParameterApplier(pipeline)
	fp.sessions++

	fp.refreshParameters()
	return fp
}

// Refresh re-resolves the FOV and re-applies parameters for the engaged
// optic. Call it when the optic's zoom can change while engaged (variable
// zoom sights); repeated calls never compound, because the applier always
// recomputes from its saved snapshot.
func (fp *FocusPuller) Refresh() *FocusPuller {
	if fp.engaged == nil {
		return fp
	}
	fp.refreshParameters()
	return fp
}

// Disengage restores every render parameter to its pre-session value and
// resets the stabilization filter. Safe to call at any time, any number of
// times.
func (fp *FocusPuller) Disengage() *FocusPuller {
	if fp.applier != nil {
		fp.applier.Restore()
	}
	fp.filter.Reset()
	fp.engaged = nil
	fp.pipeline = nil
	fp.rawFov = 0
	fp.fovSource = ""
	fp.magnification = 1
	fp.correctedFov = 0
	return fp
}

// Track advances the stabilization filter by one frame and returns the
// smoothed state. The filter is independent of the engage session; it only
// consumes the three poses.
func (fp *FocusPuller) Track(camera, lens, optic Transform) StabilizerState {
	fp.framesTracked++
	return fp.filter.Update(camera, lens, optic)
}

func (fp *FocusPuller) refreshParameters() {
	raw, source := fp.resolveRawFov()
	fp.rawFov = raw
	fp.fovSource = source
	fp.magnification = Magnification(raw)
	fp.correctedFov = CorrectedFov(fp.config.BaseFov, fp.magnification)

	if fp.applier != nil {
		fp.applier.Apply(fp.magnification, fp.currentProvider())
	}
}

// resolveRawFov runs the discovery chain and lands on the manual fallback.
func (fp *FocusPuller) resolveRawFov() (float64, string) {
	if fp.config.AutoFov {
		if raw := fp.resolver.ResolveRawFov(fp.engaged); raw > fovConfidenceFloor {
			return raw, fp.resolver.LastSource()
		}
	}
	return fp.config.ManualFov, "manual"
}

// currentProvider looks up the discovered provider instance for the engaged
// optic, for its far clip value. Isolated like every other lookup.
func (fp *FocusPuller) currentProvider() (provider CameraDataProvider) {
	defer func() {
		if rec := recover(); rec != nil {
			provider = nil
			fp.errs.Record(buzz.New("hierarchy", "Provider lookup panicked during apply",
				buzz.Context{"panic": fmt.Sprint(rec)}))
		}
	}()

	if fp.engaged == nil {
		return nil
	}
	binding, ok := fp.registry.Resolve()
	if !ok {
		return nil
	}
	found, ok := fp.walker.FindProvider(fp.engaged, binding)
	if !ok {
		return nil
	}
	return found
}

// Engaged reports whether a session is open.
func (fp *FocusPuller) Engaged() bool { return fp.engaged != nil }

// CurrentRawFov returns the raw FOV the open session resolved, in degrees.
func (fp *FocusPuller) CurrentRawFov() float64 { return fp.rawFov }

// FovSource names where the open session's raw FOV came from: "zoom",
// "hierarchy", "discovery", or "manual". Empty while disengaged.
func (fp *FocusPuller) FovSource() string { return fp.fovSource }

// CurrentMagnification returns the open session's magnification factor.
func (fp *FocusPuller) CurrentMagnification() float64 { return fp.magnification }

// CurrentCorrectedFov returns the camera FOV for the open session, degrees.
func (fp *FocusPuller) CurrentCorrectedFov() float64 { return fp.correctedFov }

// Stabilizer returns the owned filter, for direct Reset or State access.
func (fp *FocusPuller) Stabilizer() *StabilizationFilter { return fp.filter }

// Registry returns the owned provider registry.
func (fp *FocusPuller) Registry() *ProviderRegistry { return fp.registry }

// Errors returns the buzz handler all components record into.
func (fp *FocusPuller) Errors() *buzz.Handler { return fp.errs }

// Sessions returns how many engage sessions have been opened.
func (fp *FocusPuller) Sessions() int { return fp.sessions }

// FramesTracked returns how many frames the filter has consumed.
func (fp *FocusPuller) FramesTracked() int { return fp.framesTracked }
