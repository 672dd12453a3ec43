package focuspuller

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/focuspuller/buzz"
)

// Fixture shapes. Third-party content never shares a compile-time type with
// the library, so these stand in for whatever a content author shipped.

// ScopeCameraData carries a well-known identifier name.
type ScopeCameraData struct {
	FOV      float64
	NearClip float64
	FarClip  float64
}

// customSightParams matches only structurally.
type customSightParams struct {
	Fov  float64
	Near float64
	Far  float64
}

// richSightParams also matches structurally, with extra culling fields.
type richSightParams struct {
	FieldOfView  float64
	NearClip     float64
	FarClip      float64
	CullingMask  int
	CullingScale float64
}

// fovOnlyGadget exposes an FOV but no clip planes - wide-scan material, not
// a full shape.
type fovOnlyGadget struct {
	FieldOfView float64
}

// plainGadget matches nothing.
type plainGadget struct {
	Weight float64
}

// nativeLensData implements the capability interface directly.
type nativeLensData struct {
	fov, near, far float64
}

func (d nativeLensData) FieldOfView() (float64, bool) { return d.fov, true }
func (d nativeLensData) NearClip() (float64, bool)    { return d.near, true }
func (d nativeLensData) FarClip() (float64, bool)     { return d.far, true }

// countingCatalog counts enumeration calls so tests can probe how often the
// discovery scan actually runs.
type countingCatalog struct {
	types []reflect.Type
	calls int
}

func (c *countingCatalog) ComponentTypes() []reflect.Type {
	c.calls++
	return c.types
}

// panicAdapter blows up on every probe.
type panicAdapter struct{}

func (panicAdapter) Name() string { return "panic" }
func (panicAdapter) Probe(t reflect.Type) (Binder, bool) {
	panic("probe exploded")
}

// TestRegistry_DiscoveryRunsOnce tests the at-most-once scan invariant.
func TestRegistry_DiscoveryRunsOnce(t *testing.T) {
	catalog := &countingCatalog{types: []reflect.Type{reflect.TypeOf(customSightParams{})}}
	registry := NewProviderRegistry(catalog, DefaultRegistryConfig())

	binding, ok := registry.Resolve()
	assert.True(t, ok, "Structural shape should be discovered")
	assert.Equal(t, "structural", binding.Source)
	assert.Equal(t, reflect.TypeOf(customSightParams{}), binding.Type)

	again, ok := registry.Resolve()
	assert.True(t, ok)
	assert.Same(t, binding, again, "Second resolve must return the cached binding")

	registry.Resolve()
	registry.Resolve()
	assert.Equal(t, 1, catalog.calls, "Catalog must be scanned exactly once")
}

// TestRegistry_FailureIsTerminal tests that a miss is cached like a match.
func TestRegistry_FailureIsTerminal(t *testing.T) {
	errs := buzz.NewHandler("registry", nil)
	catalog := &countingCatalog{types: []reflect.Type{
		reflect.TypeOf(plainGadget{}),
		reflect.TypeOf(fovOnlyGadget{}),
	}}
	registry := NewProviderRegistry(catalog, RegistryConfig{Errors: errs})

	_, ok := registry.Resolve()
	assert.False(t, ok, "FOV without clip planes is not a full shape")
	assert.True(t, errs.HasBreaths(), "A discovery miss should be recorded as a breath")

	_, ok = registry.Resolve()
	assert.False(t, ok, "The null result is terminal")
	assert.Equal(t, 1, catalog.calls, "A failed scan is never retried")
	assert.True(t, registry.Resolved())
}

// TestRegistry_WellKnownBeatsStructural tests the discovery order: the
// well-known identifier list is consulted across the whole catalog before
// the structural fallback sees anything.
func TestRegistry_WellKnownBeatsStructural(t *testing.T) {
	catalog := &countingCatalog{types: []reflect.Type{
		reflect.TypeOf(customSightParams{}),
		reflect.TypeOf(ScopeCameraData{}),
	}}
	registry := NewProviderRegistry(catalog, DefaultRegistryConfig())

	binding, ok := registry.Resolve()
	assert.True(t, ok)
	assert.Equal(t, "well-known", binding.Source)
	assert.Equal(t, reflect.TypeOf(ScopeCameraData{}), binding.Type,
		"Catalog position must not outrank the well-known tier")
}

// TestRegistry_CapabilityOutranksEverything tests that a component declaring
// the capability interface wins over names and field heuristics.
func TestRegistry_CapabilityOutranksEverything(t *testing.T) {
	catalog := &countingCatalog{types: []reflect.Type{
		reflect.TypeOf(ScopeCameraData{}),
		reflect.TypeOf(nativeLensData{}),
	}}
	registry := NewProviderRegistry(catalog, DefaultRegistryConfig())

	binding, ok := registry.Resolve()
	assert.True(t, ok)
	assert.Equal(t, "capability", binding.Source)

	provider := binding.Bind(nativeLensData{fov: 5.5, near: 0.05, far: 1200})
	fov, ok := provider.FieldOfView()
	assert.True(t, ok)
	assert.Equal(t, 5.5, fov)
}

// TestRegistry_FirstMatchNotBestMatch tests that a richer shape later in the
// catalog never displaces an earlier sufficient one.
func TestRegistry_FirstMatchNotBestMatch(t *testing.T) {
	catalog := &countingCatalog{types: []reflect.Type{
		reflect.TypeOf(customSightParams{}),
		reflect.TypeOf(richSightParams{}),
	}}
	registry := NewProviderRegistry(catalog, DefaultRegistryConfig())

	binding, ok := registry.Resolve()
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(customSightParams{}), binding.Type,
		"First sufficient match wins; there is no ranking")
}

// TestRegistry_StructuralBinding tests field access through a resolved plan,
// both value and pointer instances.
func TestRegistry_StructuralBinding(t *testing.T) {
	catalog := &countingCatalog{types: []reflect.Type{reflect.TypeOf(&richSightParams{})}}
	registry := NewProviderRegistry(catalog, DefaultRegistryConfig())

	binding, ok := registry.Resolve()
	assert.True(t, ok)

	provider := binding.Bind(&richSightParams{
		FieldOfView:  5.75,
		NearClip:     0.1,
		FarClip:      1500,
		CullingMask:  7,
		CullingScale: 1.25,
	})
	fov, ok := provider.FieldOfView()
	assert.True(t, ok)
	assert.Equal(t, 5.75, fov)

	near, ok := provider.NearClip()
	assert.True(t, ok)
	assert.Equal(t, 0.1, near)

	far, ok := provider.FarClip()
	assert.True(t, ok)
	assert.Equal(t, 1500.0, far)

	culling, ok := provider.(CullingDataProvider)
	assert.True(t, ok, "Structural providers expose the culling extension")
	mask, ok := culling.CullingMask()
	assert.True(t, ok)
	assert.Equal(t, 7, mask)
	scale, ok := culling.CullingScale()
	assert.True(t, ok)
	assert.Equal(t, 1.25, scale)

	assert.Nil(t, binding.Bind((*richSightParams)(nil)), "Nil instances bind to nothing")
}

// TestRegistry_ProbePanicIsolated tests that an exploding adapter is
// recorded and skipped, not propagated.
func TestRegistry_ProbePanicIsolated(t *testing.T) {
	errs := buzz.NewHandler("registry", nil)
	catalog := &countingCatalog{types: []reflect.Type{reflect.TypeOf(customSightParams{})}}
	registry := NewProviderRegistry(catalog, RegistryConfig{
		Adapters: []ProviderAdapter{panicAdapter{}, structuralAdapter{}},
		Errors:   errs,
	})

	binding, ok := registry.Resolve()
	assert.True(t, ok, "Discovery should survive a panicking adapter")
	assert.Equal(t, "structural", binding.Source)
	assert.True(t, errs.HasBuzzes(), "The recovered panic should be recorded as a real buzz")
}

// TestSceneCatalog_DistinctDepthFirst tests catalog derivation from a scene.
func TestSceneCatalog_DistinctDepthFirst(t *testing.T) {
	root := NewBasicNode("root", plainGadget{}).
		Attach(NewBasicNode("a", customSightParams{}, plainGadget{})).
		Attach(NewBasicNode("b", fovOnlyGadget{}))

	types := SceneCatalog{Root: root}.ComponentTypes()
	assert.Equal(t, []reflect.Type{
		reflect.TypeOf(plainGadget{}),
		reflect.TypeOf(customSightParams{}),
		reflect.TypeOf(fovOnlyGadget{}),
	}, types, "Distinct types, depth-first, first-seen order")
}

// TestRegistry_NoSecondaryUntilWideScan tests the secondary slot starts empty.
func TestRegistry_NoSecondaryUntilWideScan(t *testing.T) {
	registry := NewProviderRegistry(&countingCatalog{}, DefaultRegistryConfig())
	_, ok := registry.Secondary()
	assert.False(t, ok)
}
