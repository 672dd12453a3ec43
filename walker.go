package focuspuller

import (
	"reflect"
	"strings"

	"github.com/teranos/focuspuller/buzz"
)

// Hierarchy naming markers. These are a soft protocol with scene authors, not
// a schema: an ancestor whose name starts with one of these (case-insensitive)
// scopes provider searches to the right sight and magnification mode.
const (
	// ScopeRootMarker names the subtree that contains one whole sight.
	ScopeRootMarker = "scope root"

	// VariantMarker names one discrete magnification mode inside a sight.
	VariantMarker = "variant"
)

func nameHasMarker(name, marker string) bool {
	return len(name) >= len(marker) && strings.EqualFold(name[:len(marker)], marker)
}

// SceneGraphWalker locates provider instances for an active optic, honoring
// the hierarchy naming contract so a provider belonging to a different zoom
// level is never silently applied.
type SceneGraphWalker struct {
	errs *buzz.Handler
}

// NewSceneGraphWalker creates a walker. A nil handler gets a private one.
func NewSceneGraphWalker(errs *buzz.Handler) *SceneGraphWalker {
	if errs == nil {
		errs = buzz.NewHandler("walker", nil)
	}
	return &SceneGraphWalker{errs: errs}
}

// ScopeRootOf returns the node itself or its nearest ancestor carrying the
// scope root marker, or nil when the hierarchy has none.
func (w *SceneGraphWalker) ScopeRootOf(node Node) Node {
	for n := node; n != nil; n = n.Parent() {
		if nameHasMarker(n.Name(), ScopeRootMarker) {
			return n
		}
	}
	return nil
}

// VariantOf returns the name of the node's nearest variant-marker ancestor
// (the node itself counts), or "" when the ancestry carries no marker. A
// marker-less node is variant-agnostic.
func (w *SceneGraphWalker) VariantOf(node Node) string {
	for n := node; n != nil; n = n.Parent() {
		if nameHasMarker(n.Name(), VariantMarker) {
			return n.Name()
		}
	}
	return ""
}

// SameVariant reports whether two nodes belong to the same magnification
// mode. Two nodes with no variant ancestry match each other.
func (w *SceneGraphWalker) SameVariant(a, b Node) bool {
	return strings.EqualFold(w.VariantOf(a), w.VariantOf(b))
}

// FindProvider locates a camera-data instance for the active optic. Search
// order: a component on the optic node itself, then its descendants, then its
// ancestors, and finally every node under the scope root filtered to the
// optic's own variant. The variant filter applies only to the wide search;
// the first three tiers are already scoped by position. No same-variant
// match means no instance - never "any instance".
func (w *SceneGraphWalker) FindProvider(optic Node, binding *ProviderBinding) (CameraDataProvider, bool) {
	if optic == nil || binding == nil || binding.Bind == nil {
		return nil, false
	}

	// Tier 1: directly attached.
	if provider, ok := w.bindOn(optic, binding); ok {
		return provider, true
	}

	// Tier 2: descendants, depth-first.
	for _, child := range optic.Children() {
		if provider, ok := w.bindInSubtree(child, binding); ok {
			return provider, true
		}
	}

	// Tier 3: ancestors, nearest first.
	for n := optic.Parent(); n != nil; n = n.Parent() {
		if provider, ok := w.bindOn(n, binding); ok {
			return provider, true
		}
	}

	// Tier 4: everything under the scope root, same variant only.
	root := w.ScopeRootOf(optic)
	if root == nil {
		w.errs.Record(buzz.NewBreath("hierarchy", "Optic has no scope root ancestor",
			buzz.Context{"optic": optic.Name()}))
		return nil, false
	}
	var found CameraDataProvider
	w.walk(root, func(n Node) bool {
		if !w.SameVariant(n, optic) {
			return true
		}
		if provider, ok := w.bindOn(n, binding); ok {
			found = provider
			return false
		}
		return true
	})
	if found != nil {
		return found, true
	}

	w.errs.Record(buzz.NewBreath("hierarchy", "No same-variant provider under scope root",
		buzz.Context{"optic": optic.Name(), "variant": w.VariantOf(optic), "shape": binding.Type.String()}))
	return nil, false
}

// bindOn binds the first component on node whose type matches the binding.
func (w *SceneGraphWalker) bindOn(node Node, binding *ProviderBinding) (CameraDataProvider, bool) {
	for _, component := range node.Components() {
		if reflect.TypeOf(component) != binding.Type {
			continue
		}
		if provider := binding.Bind(component); provider != nil {
			return provider, true
		}
	}
	return nil, false
}

func (w *SceneGraphWalker) bindInSubtree(node Node, binding *ProviderBinding) (CameraDataProvider, bool) {
	if provider, ok := w.bindOn(node, binding); ok {
		return provider, true
	}
	for _, child := range node.Children() {
		if provider, ok := w.bindInSubtree(child, binding); ok {
			return provider, true
		}
	}
	return nil, false
}

// walk visits root and every descendant depth-first until visit returns
// false. It reports whether the walk ran to completion.
func (w *SceneGraphWalker) walk(root Node, visit func(Node) bool) bool {
	if root == nil {
		return true
	}
	if !visit(root) {
		return false
	}
	for _, child := range root.Children() {
		if !w.walk(child, visit) {
			return false
		}
	}
	return true
}
