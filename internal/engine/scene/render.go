package scene

import (
	"github.com/Faultbox/rigview/internal/engine/model"
	"github.com/Faultbox/rigview/pkg/math"
)

// RenderItem is one visible mesh-bearing node ready to draw.
type RenderItem struct {
	Name      string
	Transform math.Mat4
	Meshes    []MeshItem
}

// MeshItem is the resolved geometry of one mesh. Skinned geometry is already
// in world space and must be drawn without the node transform.
type MeshItem struct {
	Mesh     *model.TriMesh
	Material *model.Material
	Texture  any
	Skinned  bool
}

// RenderItems returns the draw list for the current frame. Call Update first.
// Hidden nodes are skipped. Materials and textures are nil when their toggle
// is off.
func (s *Scene) RenderItems() []RenderItem {
	items := make([]RenderItem, 0, len(s.meshNodes))
	for _, mn := range s.meshNodes {
		if !mn.Node.IsVisible() || mn.Node.Destroyed() {
			continue
		}
		item := RenderItem{
			Name:      mn.Node.Name(),
			Transform: mn.Node.DerivedTransform(),
			Meshes:    make([]MeshItem, 0, len(mn.Meshes)),
		}
		for _, m := range mn.Meshes {
			mi := MeshItem{
				Mesh:    m.Resolve(s.skinning),
				Skinned: s.skinning && m.HasBones() && m.AnimatedPositions() != nil,
			}
			if s.materials {
				mi.Material = &m.Material
			}
			if s.textures {
				mi.Texture = m.Texture
			}
			item.Meshes = append(item.Meshes, mi)
		}
		items = append(items, item)
	}
	return items
}

// CurrentBounds returns the bounds of the current pose, in world space.
func (s *Scene) CurrentBounds() model.Bounds {
	b := model.EmptyBounds()
	for _, item := range s.RenderItems() {
		for _, mi := range item.Meshes {
			for _, p := range mi.Mesh.Positions {
				if !mi.Skinned {
					p = item.Transform.TransformPoint(p)
				}
				b = b.Extend(p)
			}
		}
	}
	return b
}
