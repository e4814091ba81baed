// Package node implements the transform hierarchy: nodes with a local
// position/orientation/scale whose world (derived) transform is computed lazily
// from the parent chain and cached behind a dirty flag.
package node

import (
	"weak"

	"github.com/Faultbox/rigview/pkg/math"
)

// Node is a point in the scene hierarchy.
//
// A node owns its children and refers to its parent weakly, so dropping the
// last strong reference to a parent lets it be collected; the child then
// behaves as a root. Derived getters recompute on demand and are idempotent
// between mutations.
//
// Node is not safe for concurrent use. Mutation and derived reads must be
// serialized by the caller.
type Node struct {
	name string

	parent    weak.Pointer[Node]
	hasParent bool
	children  []*Node
	destroyed bool

	position           math.Vec3
	orientation        math.Quat
	scale              math.Vec3
	inheritOrientation bool
	inheritScale       bool
	visible            bool

	initialPosition    math.Vec3
	initialOrientation math.Quat
	initialScale       math.Vec3

	dirty              bool
	derivedPosition    math.Vec3
	derivedOrientation math.Quat
	derivedScale       math.Vec3
	derivedTransform   math.Mat4

	// generation counts recomputations; children compare it against the value
	// they last composed with.
	generation uint64
	parentGen  uint64
	hadParent  bool
}

// New creates a root node with an identity transform.
func New(name string) *Node {
	n := &Node{
		name:               name,
		orientation:        math.QuatIdentity(),
		scale:              math.Vec3One(),
		inheritOrientation: true,
		inheritScale:       true,
		visible:            true,
		dirty:              true,
	}
	n.SetInitialState()
	return n
}

// Name returns the node name. Names are not required to be unique.
func (n *Node) Name() string { return n.name }

// SetName renames the node.
func (n *Node) SetName(name string) { n.name = name }

// Position returns the local position.
func (n *Node) Position() math.Vec3 { return n.position }

// Orientation returns the local orientation.
func (n *Node) Orientation() math.Quat { return n.orientation }

// Scale returns the local scale.
func (n *Node) Scale() math.Vec3 { return n.scale }

// SetPosition replaces the local position.
func (n *Node) SetPosition(p math.Vec3) {
	n.position = p
	n.needUpdate()
}

// SetOrientation replaces the local orientation. The quaternion is normalized.
func (n *Node) SetOrientation(q math.Quat) {
	n.orientation = q.Normalize()
	n.needUpdate()
}

// SetScale replaces the local scale.
func (n *Node) SetScale(s math.Vec3) {
	n.scale = s
	n.needUpdate()
}

// InheritOrientation reports whether the parent's orientation is applied.
func (n *Node) InheritOrientation() bool { return n.inheritOrientation }

// SetInheritOrientation controls whether the parent's orientation is applied
// to this node's derived orientation.
func (n *Node) SetInheritOrientation(inherit bool) {
	n.inheritOrientation = inherit
	n.needUpdate()
}

// InheritScale reports whether the parent's scale is applied.
func (n *Node) InheritScale() bool { return n.inheritScale }

// SetInheritScale controls whether the parent's scale is applied to this
// node's derived scale. The position is always scaled by the parent.
func (n *Node) SetInheritScale(inherit bool) {
	n.inheritScale = inherit
	n.needUpdate()
}

// Parent returns the parent node, or nil when the node is a root or the parent
// has been destroyed or collected.
func (n *Node) Parent() *Node {
	if !n.hasParent {
		return nil
	}
	p := n.parent.Value()
	if p == nil || p.destroyed {
		return nil
	}
	return p
}

// SetParent attaches n under parent, detaching it from its previous parent.
// A nil parent makes n a root.
func (n *Node) SetParent(parent *Node) {
	if parent != nil {
		parent.AddChild(n)
		return
	}
	n.detach()
	n.needUpdate()
}

// AddChild appends child to n's children, re-parenting it if necessary.
func (n *Node) AddChild(child *Node) {
	if child == nil || child == n {
		return
	}
	child.detach()
	n.children = append(n.children, child)
	child.parent = weak.Make(n)
	child.hasParent = true
	child.needUpdate()
}

// RemoveChild detaches child from n. It reports whether child was found.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = weak.Pointer[Node]{}
			child.hasParent = false
			child.needUpdate()
			return true
		}
	}
	return false
}

// detach removes n from its current parent's child list.
func (n *Node) detach() {
	if p := n.Parent(); p != nil {
		p.RemoveChild(n)
		return
	}
	n.parent = weak.Pointer[Node]{}
	n.hasParent = false
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int { return len(n.children) }

// Destroy detaches n from its parent and releases its children, which become
// roots. Nodes still holding n as parent resolve to no parent.
func (n *Node) Destroy() {
	if n.destroyed {
		return
	}
	n.detach()
	n.destroyed = true
	for _, c := range n.children {
		c.parent = weak.Pointer[Node]{}
		c.hasParent = false
		c.needUpdate()
	}
	n.children = nil
}

// Destroyed reports whether Destroy has been called.
func (n *Node) Destroyed() bool { return n.destroyed }

// Show makes the node visible.
func (n *Node) Show() { n.visible = true }

// Hide makes the node invisible. Visibility has no effect on transforms.
func (n *Node) Hide() { n.visible = false }

// IsVisible reports the visibility flag.
func (n *Node) IsVisible() bool { return n.visible }

// SetInitialState snapshots the local transform.
func (n *Node) SetInitialState() {
	n.initialPosition = n.position
	n.initialOrientation = n.orientation
	n.initialScale = n.scale
}

// ResetToInitialState restores the local transform saved by SetInitialState.
func (n *Node) ResetToInitialState() {
	n.position = n.initialPosition
	n.orientation = n.initialOrientation
	n.scale = n.initialScale
	n.needUpdate()
}

// InitialPosition returns the snapshotted local position.
func (n *Node) InitialPosition() math.Vec3 { return n.initialPosition }

// InitialOrientation returns the snapshotted local orientation.
func (n *Node) InitialOrientation() math.Quat { return n.initialOrientation }

// InitialScale returns the snapshotted local scale.
func (n *Node) InitialScale() math.Vec3 { return n.initialScale }

// needUpdate marks n and every descendant dirty.
func (n *Node) needUpdate() {
	n.dirty = true
	for _, c := range n.children {
		c.needUpdate()
	}
}

// IsDirty reports whether the cached derived transform is known to be stale.
func (n *Node) IsDirty() bool { return n.dirty }

// DerivedPosition returns the world-space position.
func (n *Node) DerivedPosition() math.Vec3 {
	n.update()
	return n.derivedPosition
}

// DerivedOrientation returns the world-space orientation.
func (n *Node) DerivedOrientation() math.Quat {
	n.update()
	return n.derivedOrientation
}

// DerivedScale returns the world-space scale.
func (n *Node) DerivedScale() math.Vec3 {
	n.update()
	return n.derivedScale
}

// DerivedTransform returns Translate(position) * Rotate(orientation) * Scale(scale)
// of the derived components.
func (n *Node) DerivedTransform() math.Mat4 {
	n.update()
	return n.derivedTransform
}

// update brings the cache up to date. The parent is always resolved first so a
// parent that changed or disappeared behind a clean flag is still noticed.
func (n *Node) update() {
	p := n.Parent()
	if p != nil {
		p.update()
	}

	if !n.dirty {
		if p == nil && !n.hadParent {
			return
		}
		if p != nil && n.hadParent && p.generation == n.parentGen {
			return
		}
	}

	if p == nil {
		n.derivedOrientation = n.orientation
		n.derivedScale = n.scale
		n.derivedPosition = n.position
		n.hadParent = false
		n.parentGen = 0
	} else {
		po, pp, ps := p.derivedOrientation, p.derivedPosition, p.derivedScale

		if n.inheritOrientation {
			n.derivedOrientation = po.Mul(n.orientation)
		} else {
			n.derivedOrientation = n.orientation
		}
		if n.inheritScale {
			n.derivedScale = ps.Mul(n.scale)
		} else {
			n.derivedScale = n.scale
		}
		n.derivedPosition = po.Rotate(ps.Mul(n.position)).Add(pp)

		n.hadParent = true
		n.parentGen = p.generation
	}

	n.derivedTransform = math.Compose(n.derivedPosition, n.derivedOrientation, n.derivedScale)
	n.dirty = false
	n.generation++
}

// ConvertWorldToLocalPosition maps a world-space point into this node's space.
func (n *Node) ConvertWorldToLocalPosition(world math.Vec3) math.Vec3 {
	n.update()
	return n.derivedOrientation.Inverse().Rotate(world.Sub(n.derivedPosition)).Div(n.derivedScale)
}

// ConvertLocalToWorldPosition maps a point in this node's space to world space.
func (n *Node) ConvertLocalToWorldPosition(local math.Vec3) math.Vec3 {
	n.update()
	return n.derivedOrientation.Rotate(local.Mul(n.derivedScale)).Add(n.derivedPosition)
}

// ConvertWorldToLocalOrientation expresses a world orientation relative to this node.
func (n *Node) ConvertWorldToLocalOrientation(world math.Quat) math.Quat {
	n.update()
	return n.derivedOrientation.Inverse().Mul(world)
}

// ConvertLocalToWorldOrientation expresses an orientation relative to this node in world space.
func (n *Node) ConvertLocalToWorldOrientation(local math.Quat) math.Quat {
	n.update()
	return n.derivedOrientation.Mul(local)
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips the node's subtree.
func (n *Node) Walk(fn func(n *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.children {
		c.walk(fn, depth+1)
	}
}

// FindChild returns the first descendant named name in depth-first order.
func (n *Node) FindChild(name string) (*Node, bool) {
	for _, c := range n.children {
		if c.name == name {
			return c, true
		}
		if found, ok := c.FindChild(name); ok {
			return found, true
		}
	}
	return nil, false
}
