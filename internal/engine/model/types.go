// Package model provides mesh/bone binding, vertex skinning and keyframe
// animation sampling for the node hierarchy.
package model

import (
	"github.com/Faultbox/rigview/internal/engine/node"
	"github.com/Faultbox/rigview/pkg/math"
)

// Color is an RGBA color with float components.
type Color struct {
	R, G, B, A float32
}

// White is the default diffuse color.
var White = Color{1, 1, 1, 1}

// Material holds the color properties handed to the renderer. The texture
// itself is loaded by the caller and carried as an opaque handle on the mesh.
type Material struct {
	Name        string
	Diffuse     Color
	Ambient     Color
	Specular    Color
	Emissive    Color
	Shininess   float32
	Opacity     float32
	TwoSided    bool
	TexturePath string
}

// DefaultMaterial returns a white, opaque material.
func DefaultMaterial() Material {
	return Material{
		Name:    "default",
		Diffuse: White,
		Ambient: Color{0.2, 0.2, 0.2, 1},
		Opacity: 1,
	}
}

// VertexWeight is the influence of one bone on one vertex.
type VertexWeight struct {
	Vertex uint32
	Weight float32
}

// Bone deforms the vertices listed in Weights. Offset maps mesh space into the
// bone's local space at bind time.
type Bone struct {
	Name    string
	Offset  math.Mat4
	Weights []VertexWeight

	node *node.Node
}

// Node returns the node the bone is bound to, or nil before binding.
func (b *Bone) Node() *node.Node { return b.node }

// Bind attaches the bone to n.
func (b *Bone) Bind(n *node.Node) { b.node = n }

// WorldMatrix returns the bound node's derived transform times the offset.
func (b *Bone) WorldMatrix() math.Mat4 {
	return b.node.DerivedTransform().Mul(b.Offset)
}

// NodeLookup resolves node names. Misses are reported through the bool.
type NodeLookup interface {
	Node(name string) (*node.Node, bool)
}

// NodeMap is a NodeLookup backed by a map.
type NodeMap map[string]*node.Node

// Node implements NodeLookup.
func (m NodeMap) Node(name string) (*node.Node, bool) {
	n, ok := m[name]
	return n, ok
}
