package focuspuller

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Node is the scene graph contract the library reads but never owns.
//
// The host renderer exposes its hierarchy through this interface; focuspuller
// only queries names, parentage, and attached components. Component values are
// opaque - third-party content attaches records whose concrete shape is not
// known at build time, which is why discovery (ProviderRegistry) works from
// reflected shapes rather than compile-time types.
type Node interface {
	// Name returns the node's name as authored in the scene hierarchy.
	// Names carry the soft scoping conventions documented in walker.go.
	Name() string

	// Parent returns the parent node, or nil at the hierarchy root.
	Parent() Node

	// Children returns the node's direct children in hierarchy order.
	Children() []Node

	// Components returns the component values attached to this node.
	Components() []interface{}
}

// ZoomHandler is implemented by sight components that expose their live zoom
// state. The returned value follows the half-angle convention used by
// picture-in-picture scope cameras; the resolver doubles it.
//
// A handler with no current value reports zero (or anything at or below the
// resolver's confidence floor).
type ZoomHandler interface {
	ZoomFov() float64
}

// RenderPipeline is the host's global render-settings surface: the four
// parameters a magnified optic needs adjusted while engaged. All writes
// through this interface are snapshot by RenderParameterApplier before the
// first mutation and restored exactly afterwards.
type RenderPipeline interface {
	LODBias() float64
	SetLODBias(bias float64)

	MaxLODLevel() int
	SetMaxLODLevel(level int)

	FarClip() float64
	SetFarClip(distance float64)

	// CullDistances is the per-layer maximum render distance, index = layer.
	// A zero entry means "no per-layer limit".
	CullDistances() []float64
	SetCullDistances(distances []float64)
}

// Transform is a world-space pose: a position and an orientation.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// PointToLocal converts a world-space point into this transform's local frame.
func (t Transform) PointToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Inverse().Rotate(world.Sub(t.Position))
}

// IdentityTransform returns a transform at the origin with no rotation.
func IdentityTransform() Transform {
	return Transform{Rotation: mgl64.QuatIdent()}
}

// BasicNode is a minimal in-memory Node used by tests, the example app, and
// hosts that do not have a scene graph of their own to adapt.
type BasicNode struct {
	name       string
	parent     *BasicNode
	children   []*BasicNode
	components []interface{}
}

// NewBasicNode creates a detached node with the given name and components.
func NewBasicNode(name string, components ...interface{}) *BasicNode {
	return &BasicNode{
		name:       name,
		components: components,
	}
}

// Attach parents child under this node and returns the receiver so trees can
// be built fluently:
//
//	root := NewBasicNode("Scope Root ACOG").
//	    Attach(NewBasicNode("Variant 4x").
//	        Attach(NewBasicNode("lens", scopeData)))
func (n *BasicNode) Attach(child *BasicNode) *BasicNode {
	if child == nil {
		return n
	}
	child.parent = n
	n.children = append(n.children, child)
	return n
}

// AddComponent attaches a component value and returns the receiver.
func (n *BasicNode) AddComponent(component interface{}) *BasicNode {
	n.components = append(n.components, component)
	return n
}

// Name implements Node.
func (n *BasicNode) Name() string { return n.name }

// Parent implements Node.
func (n *BasicNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Children implements Node.
func (n *BasicNode) Children() []Node {
	children := make([]Node, len(n.children))
	for i, c := range n.children {
		children[i] = c
	}
	return children
}

// Components implements Node.
func (n *BasicNode) Components() []interface{} {
	return n.components
}

// Find returns the first descendant (including the receiver) with the given
// name, or nil. Handy for building test scenes and example apps.
func (n *BasicNode) Find(name string) *BasicNode {
	if n.name == name {
		return n
	}
	for _, c := range n.children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// BasicPipeline is an in-memory RenderPipeline for tests and examples.
// Getters return copies of slice state so callers cannot alias internals.
type BasicPipeline struct {
	lodBias       float64
	maxLODLevel   int
	farClip       float64
	cullDistances []float64
}

// NewBasicPipeline creates a pipeline with neutral defaults: bias 1.0, max
// LOD level 2, far clip 1000, no per-layer limits.
func NewBasicPipeline(layers int) *BasicPipeline {
	return &BasicPipeline{
		lodBias:       1.0,
		maxLODLevel:   2,
		farClip:       1000.0,
		cullDistances: make([]float64, layers),
	}
}

func (p *BasicPipeline) LODBias() float64        { return p.lodBias }
func (p *BasicPipeline) SetLODBias(bias float64) { p.lodBias = bias }

func (p *BasicPipeline) MaxLODLevel() int         { return p.maxLODLevel }
func (p *BasicPipeline) SetMaxLODLevel(level int) { p.maxLODLevel = level }

func (p *BasicPipeline) FarClip() float64            { return p.farClip }
func (p *BasicPipeline) SetFarClip(distance float64) { p.farClip = distance }

func (p *BasicPipeline) CullDistances() []float64 {
	return append([]float64(nil), p.cullDistances...)
}

func (p *BasicPipeline) SetCullDistances(distances []float64) {
	p.cullDistances = append([]float64(nil), distances...)
}

var _ Node = &BasicNode{}
var _ RenderPipeline = &BasicPipeline{}
