package focuspuller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/focuspuller/buzz"
)

// zoomLens is a live zoom handler fixture.
type zoomLens struct {
	fov float64
}

func (z zoomLens) ZoomFov() float64 { return z.fov }

// otherGadget is a second FOV-only shape, distinct from fovOnlyGadget.
type otherGadget struct {
	Fov float64
}

// panickyNode explodes when its components are enumerated.
type panickyNode struct{}

func (panickyNode) Name() string              { return "panicky" }
func (panickyNode) Parent() Node              { return nil }
func (panickyNode) Children() []Node          { return nil }
func (panickyNode) Components() []interface{} { panic("scene graph exploded") }

func newResolver(root Node) (*FovResolver, *ProviderRegistry, *buzz.Handler) {
	errs := buzz.NewHandler("resolver", nil)
	registry := NewProviderRegistry(SceneCatalog{Root: root}, RegistryConfig{Errors: errs})
	walker := NewSceneGraphWalker(errs)
	return NewFovResolver(registry, walker, errs), registry, errs
}

// TestResolver_ZoomHandlerWins tests tier priority: a live handler beats a
// perfectly good provider.
func TestResolver_ZoomHandlerWins(t *testing.T) {
	root, optic := acogScene()
	optic.AddComponent(zoomLens{fov: 5})

	resolver, _, _ := newResolver(root)
	assert.Equal(t, 10.0, resolver.ResolveRawFov(optic),
		"Handler value 5 should be doubled and beat the provider's 5.75")
	assert.Equal(t, "zoom", resolver.LastSource())
}

// TestResolver_ZoomHandlerOnParent tests the parent lookup of tier 1.
func TestResolver_ZoomHandlerOnParent(t *testing.T) {
	root, optic := acogScene()
	root.Find("Variant 4x").AddComponent(zoomLens{fov: 4})

	resolver, _, _ := newResolver(root)
	assert.Equal(t, 8.0, resolver.ResolveRawFov(optic))
}

// TestResolver_ZoomHandlerInChildren tests the child lookup of tier 1.
func TestResolver_ZoomHandlerInChildren(t *testing.T) {
	root, optic := acogScene()
	optic.Attach(NewBasicNode("eyepiece").AddComponent(zoomLens{fov: 3.5}))

	resolver, _, _ := newResolver(root)
	assert.Equal(t, 7.0, resolver.ResolveRawFov(optic))
}

// TestResolver_ProviderSecond tests tier 2: the discovered provider, doubled.
func TestResolver_ProviderSecond(t *testing.T) {
	root, optic := acogScene()

	resolver, _, _ := newResolver(root)
	assert.InDelta(t, 11.5, resolver.ResolveRawFov(optic), 1e-12,
		"Provider FOV 5.75 should be doubled")
	assert.Equal(t, "hierarchy", resolver.LastSource())
}

// TestResolver_ThresholdGatesEachTier tests the confidence floor.
func TestResolver_ThresholdGatesEachTier(t *testing.T) {
	root, optic := acogScene()
	optic.AddComponent(zoomLens{fov: 0.05})

	resolver, _, _ := newResolver(root)
	assert.InDelta(t, 11.5, resolver.ResolveRawFov(optic), 1e-12,
		"A handler below the confidence floor must not short-circuit the chain")
}

// wideScanScene builds a scene whose only FOV source is a loose scalar on a
// same-variant node - nothing qualifies as a full provider shape.
func wideScanScene(value float64) (*BasicNode, *BasicNode) {
	optic := NewBasicNode("optic")
	fourX := NewBasicNode("Variant 4x")
	fourX.Attach(optic)
	fourX.Attach(NewBasicNode("projector", fovOnlyGadget{FieldOfView: value}))

	oneX := NewBasicNode("Variant 1x")
	oneX.Attach(NewBasicNode("projector", otherGadget{Fov: 35}))

	root := NewBasicNode("Scope Root PSO")
	root.Attach(fourX)
	root.Attach(oneX)
	return root, optic
}

// TestResolver_WideScanThird tests tier 3: the loose scalar is found, not
// doubled, and cached as the secondary binding.
func TestResolver_WideScanThird(t *testing.T) {
	root, optic := wideScanScene(20)

	resolver, registry, _ := newResolver(root)
	assert.Equal(t, 20.0, resolver.ResolveRawFov(optic))
	assert.Equal(t, "discovery", resolver.LastSource())

	secondary, ok := registry.Secondary()
	assert.True(t, ok, "The wide scan hit should be cached")
	assert.Equal(t, "wide-scan", secondary.Source)

	assert.Equal(t, 20.0, resolver.ResolveRawFov(optic),
		"Later calls should resolve through the cached binding")
}

// TestResolver_WideScanRange tests the plausibility window (0.1, 180).
func TestResolver_WideScanRange(t *testing.T) {
	for _, implausible := range []float64{0.05, 0, -4, 180, 270} {
		root, optic := wideScanScene(implausible)
		resolver, _, _ := newResolver(root)
		assert.Equal(t, 0.0, resolver.ResolveRawFov(optic),
			"FOV %v is outside the plausible window", implausible)
	}
}

// TestResolver_WideScanVariantExact tests that tier 3 skips rather than
// crossing variants.
func TestResolver_WideScanVariantExact(t *testing.T) {
	optic := NewBasicNode("optic")
	fourX := NewBasicNode("Variant 4x")
	fourX.Attach(optic)

	oneX := NewBasicNode("Variant 1x")
	oneX.Attach(NewBasicNode("projector", fovOnlyGadget{FieldOfView: 20}))

	root := NewBasicNode("Scope Root PSO")
	root.Attach(fourX)
	root.Attach(oneX)

	resolver, _, _ := newResolver(root)
	assert.Equal(t, 0.0, resolver.ResolveRawFov(optic),
		"A loose scalar from another variant must be skipped, not used")
}

// TestResolver_SecondaryBindingSticky tests that the secondary binding, once
// cached, is never re-discovered - a different shape on another optic's
// variant stays invisible.
func TestResolver_SecondaryBindingSticky(t *testing.T) {
	root, optic := wideScanScene(20)
	resolver, registry, _ := newResolver(root)

	assert.Equal(t, 20.0, resolver.ResolveRawFov(optic))
	_, ok := registry.Secondary()
	assert.True(t, ok)

	// The 1x variant only carries otherGadget, a shape the cached binding
	// does not cover. No rescan happens on its behalf.
	opticOneX := NewBasicNode("optic b")
	root.Find("Variant 1x").Attach(opticOneX)
	assert.Equal(t, 0.0, resolver.ResolveRawFov(opticOneX),
		"The cached secondary binding is terminal, like the primary")
}

// TestResolver_Unresolved tests the all-tiers-miss outcome.
func TestResolver_Unresolved(t *testing.T) {
	optic := NewBasicNode("optic")
	root := NewBasicNode("Scope Root bare")
	root.Attach(optic)

	resolver, _, errs := newResolver(root)
	assert.Equal(t, 0.0, resolver.ResolveRawFov(optic))
	assert.Equal(t, "", resolver.LastSource())
	assert.True(t, errs.HasBreaths(), "Misses should leave a breath trail")
	assert.False(t, errs.HasBuzzes(), "Clean misses are not real errors")

	assert.Equal(t, 0.0, resolver.ResolveRawFov(nil), "A nil optic resolves to nothing")
}

// TestResolver_PanicIsolated tests that a hostile scene graph cannot crash
// resolution.
func TestResolver_PanicIsolated(t *testing.T) {
	resolver, _, errs := newResolver(NewBasicNode("empty root"))

	assert.NotPanics(t, func() {
		assert.Equal(t, 0.0, resolver.ResolveRawFov(panickyNode{}))
	})
	assert.True(t, errs.HasBuzzes(), "Recovered panics are recorded as real buzzes")
}
