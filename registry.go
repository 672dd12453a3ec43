package focuspuller

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/teranos/focuspuller/buzz"
)

// CameraDataProvider yields the lens parameters a scope camera carries.
// Each accessor reports whether the underlying shape actually exposes the
// field; only the field of view is guaranteed for a recognized shape.
type CameraDataProvider interface {
	FieldOfView() (float64, bool)
	NearClip() (float64, bool)
	FarClip() (float64, bool)
}

// CullingDataProvider is an optional extension for shapes that also expose
// per-optic culling fields. Nothing in the core consumes these today; hosts
// with custom culling can reach them through a type assertion.
type CullingDataProvider interface {
	CullingMask() (int, bool)
	CullingScale() (float64, bool)
}

// Binder wraps one concrete component instance in a CameraDataProvider.
// Binders are cheap; the expensive shape analysis happens once, in Probe.
type Binder func(component interface{}) CameraDataProvider

// ProviderAdapter recognizes camera-data shapes. Probe inspects a component
// type and, when the type qualifies, returns a Binder for its instances.
// A registry calls Probe at most once per type.
type ProviderAdapter interface {
	Name() string
	Probe(t reflect.Type) (Binder, bool)
}

// ProviderBinding is the cached result of shape discovery: the matched type,
// the adapter that recognized it, and the instance binder. One primary
// binding exists per registry lifetime; a secondary binding may be added
// later by the resolver's wide scan.
type ProviderBinding struct {
	Type   reflect.Type
	Source string
	Bind   Binder
}

// TypeCatalog enumerates the behavior component types the host has loaded.
// Discovery walks this catalog in order, so catalog order decides first-match
// ties.
type TypeCatalog interface {
	ComponentTypes() []reflect.Type
}

// SceneCatalog derives a TypeCatalog from a scene subtree: every distinct
// component type reachable under Root, in depth-first first-seen order.
type SceneCatalog struct {
	Root Node
}

// ComponentTypes implements TypeCatalog.
func (c SceneCatalog) ComponentTypes() []reflect.Type {
	var types []reflect.Type
	seen := make(map[reflect.Type]bool)

	var visit func(n Node)
	visit = func(n Node) {
		if n == nil {
			return
		}
		for _, component := range n.Components() {
			t := reflect.TypeOf(component)
			if t == nil || seen[t] {
				continue
			}
			seen[t] = true
			types = append(types, t)
		}
		for _, child := range n.Children() {
			visit(child)
		}
	}
	visit(c.Root)
	return types
}

// Recognized field names, in match priority order. The set is deliberately
// bounded: this is a discovery contract, not a general reflection framework.
var (
	fovFieldNames       = []string{"FOV", "Fov", "FieldOfView", "CameraFov", "VerticalFov"}
	nearClipFieldNames  = []string{"NearClip", "NearClipPlane", "Near", "ZNear"}
	farClipFieldNames   = []string{"FarClip", "FarClipPlane", "Far", "ZFar"}
	cullMaskFieldNames  = []string{"CullingMask", "CullMask"}
	cullScaleFieldNames = []string{"CullingScale", "CullScale"}
)

// Well-known shape identifiers tried before the full structural scan.
var wellKnownShapeNames = []string{
	"ScopeCameraData",
	"OpticCameraData",
	"SightCameraProperties",
}

// fieldPlan holds the resolved index paths into a struct shape. A nil path
// means the shape does not expose that field.
type fieldPlan struct {
	fov       []int
	near      []int
	far       []int
	cullMask  []int
	cullScale []int
}

// planFields resolves the recognized field names against a struct type.
// Pointer types are dereferenced; non-struct types never qualify.
func planFields(t reflect.Type) (*fieldPlan, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}

	plan := &fieldPlan{
		fov:       floatFieldPath(t, fovFieldNames),
		near:      floatFieldPath(t, nearClipFieldNames),
		far:       floatFieldPath(t, farClipFieldNames),
		cullMask:  intFieldPath(t, cullMaskFieldNames),
		cullScale: floatFieldPath(t, cullScaleFieldNames),
	}
	if plan.fov == nil {
		return nil, false
	}
	return plan, true
}

func floatFieldPath(t reflect.Type, names []string) []int {
	for _, name := range names {
		if f, ok := t.FieldByName(name); ok {
			switch f.Type.Kind() {
			case reflect.Float32, reflect.Float64:
				return f.Index
			}
		}
	}
	return nil
}

func intFieldPath(t reflect.Type, names []string) []int {
	for _, name := range names {
		if f, ok := t.FieldByName(name); ok {
			switch f.Type.Kind() {
			case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint32:
				return f.Index
			}
		}
	}
	return nil
}

// structuralProvider adapts a struct instance through a resolved field plan.
type structuralProvider struct {
	value reflect.Value
	plan  *fieldPlan
}

func (p structuralProvider) floatAt(path []int) (float64, bool) {
	if path == nil || !p.value.IsValid() {
		return 0, false
	}
	return p.value.FieldByIndex(path).Float(), true
}

func (p structuralProvider) FieldOfView() (float64, bool) { return p.floatAt(p.plan.fov) }
func (p structuralProvider) NearClip() (float64, bool)    { return p.floatAt(p.plan.near) }
func (p structuralProvider) FarClip() (float64, bool)     { return p.floatAt(p.plan.far) }

func (p structuralProvider) CullingMask() (int, bool) {
	if p.plan.cullMask == nil || !p.value.IsValid() {
		return 0, false
	}
	field := p.value.FieldByIndex(p.plan.cullMask)
	if field.Kind() == reflect.Uint32 {
		return int(field.Uint()), true
	}
	return int(field.Int()), true
}

func (p structuralProvider) CullingScale() (float64, bool) { return p.floatAt(p.plan.cullScale) }

// structuralBinder builds the per-instance wrapper for a planned shape.
func structuralBinder(plan *fieldPlan) Binder {
	return func(component interface{}) CameraDataProvider {
		v := reflect.ValueOf(component)
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil
		}
		return structuralProvider{value: v, plan: plan}
	}
}

// capabilityAdapter recognizes components that implement CameraDataProvider
// natively. It sits first in the default adapter order: a component that
// declares the capability outranks any name or field heuristic.
type capabilityAdapter struct{}

func (capabilityAdapter) Name() string { return "capability" }

var cameraDataProviderType = reflect.TypeOf((*CameraDataProvider)(nil)).Elem()

func (capabilityAdapter) Probe(t reflect.Type) (Binder, bool) {
	if t == nil || !t.Implements(cameraDataProviderType) {
		return nil, false
	}
	return func(component interface{}) CameraDataProvider {
		provider, _ := component.(CameraDataProvider)
		return provider
	}, true
}

// wellKnownAdapter matches shapes by type name against a short identifier
// list, then binds them structurally. Name matches are case-insensitive.
type wellKnownAdapter struct {
	names []string
}

func (wellKnownAdapter) Name() string { return "well-known" }

func (a wellKnownAdapter) Probe(t reflect.Type) (Binder, bool) {
	base := t
	if base != nil && base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	if base == nil {
		return nil, false
	}
	matched := false
	for _, name := range a.names {
		if strings.EqualFold(base.Name(), name) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}
	plan, ok := planFields(t)
	if !ok {
		return nil, false
	}
	return structuralBinder(plan), true
}

// structuralAdapter is the generic fallback: any shape exposing a float FOV
// field plus both clip planes qualifies. First match in catalog order wins;
// there is no best-match ranking.
type structuralAdapter struct{}

func (structuralAdapter) Name() string { return "structural" }

func (structuralAdapter) Probe(t reflect.Type) (Binder, bool) {
	plan, ok := planFields(t)
	if !ok || plan.near == nil || plan.far == nil {
		return nil, false
	}
	return structuralBinder(plan), true
}

// DefaultAdapters returns the standard discovery order: declared capability
// first, well-known type names second, generic structural match last.
func DefaultAdapters() []ProviderAdapter {
	return []ProviderAdapter{
		capabilityAdapter{},
		wellKnownAdapter{names: wellKnownShapeNames},
		structuralAdapter{},
	}
}

// RegistryConfig configures a ProviderRegistry.
type RegistryConfig struct {
	// Adapters overrides the discovery order. Nil means DefaultAdapters().
	Adapters []ProviderAdapter

	// Errors receives discovery buzzes. Nil means a private handler.
	Errors *buzz.Handler
}

// DefaultRegistryConfig returns the standard registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{}
}

// ProviderRegistry discovers which component shape carries camera data and
// caches the answer for its lifetime.
//
// Discovery runs at most once, no matter how many optics ask and no matter
// whether it succeeds: a miss is as terminal as a match, and callers degrade
// through the resolver's fallback chain instead of retrying. The registry is
// an explicit long-lived instance; create one at startup and share it.
type ProviderRegistry struct {
	catalog  TypeCatalog
	adapters []ProviderAdapter
	errs     *buzz.Handler

	resolved  bool
	primary   *ProviderBinding
	secondary *ProviderBinding
}

// NewProviderRegistry creates a registry over the given catalog.
func NewProviderRegistry(catalog TypeCatalog, config RegistryConfig) *ProviderRegistry {
	adapters := config.Adapters
	if adapters == nil {
		adapters = DefaultAdapters()
	}
	errs := config.Errors
	if errs == nil {
		errs = buzz.NewHandler("registry", nil)
	}
	return &ProviderRegistry{
		catalog:  catalog,
		adapters: adapters,
		errs:     errs,
	}
}

// Resolve returns the primary provider binding, running discovery on the
// first call and the cached result on every call after that. The boolean is
// false when no loaded shape qualifies - a valid terminal state, not an
// error.
func (r *ProviderRegistry) Resolve() (*ProviderBinding, bool) {
	if r.resolved {
		return r.primary, r.primary != nil
	}
	r.resolved = true

	types := r.catalogTypes()
	for _, adapter := range r.adapters {
		for _, t := range types {
			binder, ok := r.safeProbe(adapter, t)
			if !ok {
				continue
			}
			r.primary = &ProviderBinding{Type: t, Source: adapter.Name(), Bind: binder}
			return r.primary, true
		}
	}

	r.errs.Record(buzz.NewBreath("discovery", "No camera-data shape in loaded content",
		buzz.Context{"types_scanned": len(types)}))
	return nil, false
}

// Resolved reports whether discovery has already run.
func (r *ProviderRegistry) Resolved() bool { return r.resolved }

// Secondary returns the wide-scan binding, if the resolver has cached one.
func (r *ProviderRegistry) Secondary() (*ProviderBinding, bool) {
	return r.secondary, r.secondary != nil
}

// setSecondary records the wide-scan binding. Only the resolver calls this,
// and like the primary it is written once and kept.
func (r *ProviderRegistry) setSecondary(binding *ProviderBinding) {
	if r.secondary == nil {
		r.secondary = binding
	}
}

func (r *ProviderRegistry) catalogTypes() []reflect.Type {
	if r.catalog == nil {
		return nil
	}
	defer r.recoverTo("catalog enumeration")
	return r.catalog.ComponentTypes()
}

func (r *ProviderRegistry) safeProbe(adapter ProviderAdapter, t reflect.Type) (binder Binder, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			binder, ok = nil, false
			r.errs.Record(buzz.New("reflection",
				fmt.Sprintf("Adapter %q panicked probing %v", adapter.Name(), t),
				buzz.Context{"panic": fmt.Sprint(rec)}))
		}
	}()
	return adapter.Probe(t)
}

func (r *ProviderRegistry) recoverTo(operation string) {
	if rec := recover(); rec != nil {
		r.errs.Record(buzz.New("reflection", operation+" panicked",
			buzz.Context{"panic": fmt.Sprint(rec)}))
	}
}
