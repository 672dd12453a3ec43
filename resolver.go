package focuspuller

import (
	"fmt"
	"reflect"

	"github.com/teranos/focuspuller/buzz"
)

// Confidence floor for any discovered FOV value, in degrees. Values at or
// below this are treated as "no value from this source".
const fovConfidenceFloor = 0.1

// Upper bound for the wide scan's plausibility window, exclusive.
const fovScanCeiling = 180.0

// FovResolver turns an active optic node into a raw field-of-view value by
// trying data sources in priority order:
//
//  1. A live ZoomHandler on the optic, its parent, or its descendants,
//     doubled to undo the half-angle convention.
//  2. The discovered CameraDataProvider, located through the walker,
//     doubled identically.
//  3. A wide scan of every component under the scope root for any shape
//     with an FOV-named scalar in a plausible range, exact variant match
//     required. The first hit is cached on the registry as the secondary
//     binding so later resolutions skip the scan.
//
// A zero return means unresolved; the orchestrator then falls back to the
// configured manual value. Every tier is isolated - a panic inside a lookup
// is recorded as a buzz and treated as a miss, never propagated.
type FovResolver struct {
	registry *ProviderRegistry
	walker   *SceneGraphWalker
	errs     *buzz.Handler

	lastSource string
}

// NewFovResolver creates a resolver over a shared registry and walker.
func NewFovResolver(registry *ProviderRegistry, walker *SceneGraphWalker, errs *buzz.Handler) *FovResolver {
	if errs == nil {
		errs = buzz.NewHandler("resolver", nil)
	}
	return &FovResolver{registry: registry, walker: walker, errs: errs}
}

// ResolveRawFov resolves the raw FOV for the active optic, in degrees.
// Returns 0 when every tier misses.
func (r *FovResolver) ResolveRawFov(optic Node) float64 {
	r.lastSource = ""
	if optic == nil {
		return 0
	}

	if fov, ok := r.safeFov("zoom", func() (float64, bool) { return r.zoomHandlerFov(optic) }); ok {
		r.lastSource = "zoom"
		return fov * 2
	}

	if fov, ok := r.safeFov("hierarchy", func() (float64, bool) { return r.providerFov(optic) }); ok {
		r.lastSource = "hierarchy"
		return fov * 2
	}

	if fov, ok := r.safeFov("discovery", func() (float64, bool) { return r.wideScanFov(optic) }); ok {
		r.lastSource = "discovery"
		return fov
	}

	return 0
}

// LastSource names the tier that produced the most recent resolved value:
// "zoom", "hierarchy", or "discovery". Empty when the last call missed.
func (r *FovResolver) LastSource() string { return r.lastSource }

// zoomHandlerFov reads a live zoom handler attached to the optic, its
// parent, or anywhere below it.
func (r *FovResolver) zoomHandlerFov(optic Node) (float64, bool) {
	if fov, ok := zoomFovOn(optic); ok {
		return fov, true
	}
	if parent := optic.Parent(); parent != nil {
		if fov, ok := zoomFovOn(parent); ok {
			return fov, true
		}
	}
	for _, child := range optic.Children() {
		if fov, ok := zoomFovInSubtree(child); ok {
			return fov, true
		}
	}
	r.errs.Record(buzz.NewBreath("zoom", "No live zoom handler near optic",
		buzz.Context{"optic": optic.Name()}))
	return 0, false
}

func zoomFovOn(node Node) (float64, bool) {
	for _, component := range node.Components() {
		handler, ok := component.(ZoomHandler)
		if !ok {
			continue
		}
		if fov := handler.ZoomFov(); fov > fovConfidenceFloor {
			return fov, true
		}
	}
	return 0, false
}

func zoomFovInSubtree(node Node) (float64, bool) {
	if fov, ok := zoomFovOn(node); ok {
		return fov, true
	}
	for _, child := range node.Children() {
		if fov, ok := zoomFovInSubtree(child); ok {
			return fov, true
		}
	}
	return 0, false
}

// providerFov reads the discovered provider for this optic's variant.
func (r *FovResolver) providerFov(optic Node) (float64, bool) {
	binding, ok := r.registry.Resolve()
	if !ok {
		return 0, false
	}
	provider, ok := r.walker.FindProvider(optic, binding)
	if !ok {
		return 0, false
	}
	fov, ok := provider.FieldOfView()
	if !ok || fov <= fovConfidenceFloor {
		return 0, false
	}
	return fov, true
}

// wideScanFov is the last discovery resort: any component under the scope
// root exposing an FOV-named scalar in (0.1, 180) degrees, exact variant
// match required. Relaxes "same variant" to "skip", never to "any variant".
func (r *FovResolver) wideScanFov(optic Node) (float64, bool) {
	root := r.walker.ScopeRootOf(optic)
	if root == nil {
		return 0, false
	}

	// A previously cached secondary binding replaces the scan entirely -
	// like the primary, it is never re-discovered, even when it yields
	// nothing for this particular optic.
	if secondary, ok := r.registry.Secondary(); ok {
		return r.secondaryFov(root, optic, secondary)
	}

	var (
		fov   float64
		found bool
	)
	r.walker.walk(root, func(n Node) bool {
		if !r.walker.SameVariant(n, optic) {
			return true
		}
		for _, component := range n.Components() {
			t := reflect.TypeOf(component)
			plan, ok := planFields(t)
			if !ok {
				continue
			}
			binder := structuralBinder(plan)
			provider := binder(component)
			if provider == nil {
				continue
			}
			value, ok := provider.FieldOfView()
			if !ok || value <= fovConfidenceFloor || value >= fovScanCeiling {
				continue
			}
			r.registry.setSecondary(&ProviderBinding{Type: t, Source: "wide-scan", Bind: binder})
			fov, found = value, true
			return false
		}
		return true
	})
	if !found {
		r.errs.Record(buzz.NewBreath("discovery", "Wide scan found no plausible FOV scalar",
			buzz.Context{"optic": optic.Name(), "variant": r.walker.VariantOf(optic)}))
	}
	return fov, found
}

func (r *FovResolver) secondaryFov(root, optic Node, binding *ProviderBinding) (float64, bool) {
	var (
		fov   float64
		found bool
	)
	r.walker.walk(root, func(n Node) bool {
		if !r.walker.SameVariant(n, optic) {
			return true
		}
		for _, component := range n.Components() {
			if reflect.TypeOf(component) != binding.Type {
				continue
			}
			provider := binding.Bind(component)
			if provider == nil {
				continue
			}
			value, ok := provider.FieldOfView()
			if !ok || value <= fovConfidenceFloor || value >= fovScanCeiling {
				continue
			}
			fov, found = value, true
			return false
		}
		return true
	})
	return fov, found
}

// safeFov isolates one fallback tier. A recovered panic is a soft buzz;
// the tier simply reports no value.
func (r *FovResolver) safeFov(tier string, lookup func() (float64, bool)) (fov float64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			fov, ok = 0, false
			r.errs.Record(buzz.New("reflection",
				fmt.Sprintf("FOV lookup tier %q panicked", tier),
				buzz.Context{"panic": fmt.Sprint(rec)}))
		}
	}()
	return lookup()
}
