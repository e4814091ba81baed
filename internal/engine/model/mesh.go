package model

import (
	"errors"
	"fmt"

	"github.com/Faultbox/rigview/pkg/math"
)

var (
	ErrBoneNodeNotFound   = errors.New("bone node not found")
	ErrVertexOutOfRange   = errors.New("vertex index out of range")
	ErrMismatchedGeometry = errors.New("normal count does not match position count")
)

// TriMesh is the renderer-facing triangle list of a mesh.
type TriMesh struct {
	Positions []math.Vec3
	Normals   []math.Vec3
	TexCoords []math.Vec2
	Colors    []Color
	Indices   []uint32
}

// Mesh is imported geometry plus the buffers the skinning pass writes into.
//
// The exported geometry is the bind pose and is treated as read-only after
// import; use SetGeometry to replace it. Renderers read through Resolve.
type Mesh struct {
	Name      string
	Positions []math.Vec3
	Normals   []math.Vec3
	TexCoords []math.Vec2
	Colors    []Color
	Indices   []uint32
	Bones     []*Bone
	Material  Material
	// Texture is an opaque handle produced by the caller's texture loader.
	Texture any

	animPositions []math.Vec3
	animNormals   []math.Vec3

	cache        TriMesh
	valid        bool
	cacheSkinned bool
}

// HasBones reports whether the mesh is skinned.
func (m *Mesh) HasBones() bool { return len(m.Bones) > 0 }

// NumTriangles returns the triangle count.
func (m *Mesh) NumTriangles() int { return len(m.Indices) / 3 }

// BindBones resolves every bone to its node by name. All bones must resolve;
// weights must reference existing vertices.
func (m *Mesh) BindBones(lookup NodeLookup) error {
	for _, b := range m.Bones {
		n, ok := lookup.Node(b.Name)
		if !ok {
			return fmt.Errorf("%w: %q (mesh %q)", ErrBoneNodeNotFound, b.Name, m.Name)
		}
		for _, w := range b.Weights {
			if int(w.Vertex) >= len(m.Positions) {
				return fmt.Errorf("%w: bone %q weights vertex %d of %d", ErrVertexOutOfRange, b.Name, w.Vertex, len(m.Positions))
			}
		}
		b.Bind(n)
	}
	m.Invalidate()
	return nil
}

// SetGeometry replaces the bind-pose positions and normals.
func (m *Mesh) SetGeometry(positions, normals []math.Vec3) error {
	if normals != nil && len(normals) != len(positions) {
		return fmt.Errorf("%w: %d normals, %d positions", ErrMismatchedGeometry, len(normals), len(positions))
	}
	m.Positions = positions
	m.Normals = normals
	m.animPositions = nil
	m.animNormals = nil
	m.Invalidate()
	return nil
}

// Invalidate marks the cached triangle mesh stale.
func (m *Mesh) Invalidate() { m.valid = false }

// Valid reports whether the cached triangle mesh is current.
func (m *Mesh) Valid() bool { return m.valid }

// AnimatedPositions returns the output of the last Skin call.
func (m *Mesh) AnimatedPositions() []math.Vec3 { return m.animPositions }

// AnimatedNormals returns the output of the last Skin call.
func (m *Mesh) AnimatedNormals() []math.Vec3 { return m.animNormals }

// Resolve returns the cached triangle mesh, rebuilding it first when stale.
// With skinning enabled and a skinned pose available the animated buffers are
// used, otherwise the bind pose. The returned mesh is owned by m and is
// overwritten by the next rebuild.
func (m *Mesh) Resolve(skinning bool) *TriMesh {
	if m.valid && m.cacheSkinned == skinning {
		return &m.cache
	}

	positions, normals := m.Positions, m.Normals
	if skinning && m.HasBones() && m.animPositions != nil {
		positions, normals = m.animPositions, m.animNormals
	}

	m.cache.Positions = append(m.cache.Positions[:0], positions...)
	m.cache.Normals = append(m.cache.Normals[:0], normals...)
	m.cache.TexCoords = m.TexCoords
	m.cache.Colors = m.Colors
	m.cache.Indices = m.Indices

	m.valid = true
	m.cacheSkinned = skinning
	return &m.cache
}

// LocalBounds returns the bounding box of the bind-pose positions.
func (m *Mesh) LocalBounds() Bounds {
	b := EmptyBounds()
	for _, p := range m.Positions {
		b = b.Extend(p)
	}
	return b
}

// GenerateNormals computes smooth vertex normals by accumulating face normals.
// Degenerate triangles are skipped. Existing normals are replaced.
func (m *Mesh) GenerateNormals() {
	normals := make([]math.Vec3, len(m.Positions))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if int(i0) >= len(m.Positions) || int(i1) >= len(m.Positions) || int(i2) >= len(m.Positions) {
			continue
		}
		v0, v1, v2 := m.Positions[i0], m.Positions[i1], m.Positions[i2]
		n := v1.Sub(v0).Cross(v2.Sub(v0))

		// Degenerate triangle detection
		if n.Length() < 1e-8 {
			continue
		}
		normals[i0] = normals[i0].Add(n)
		normals[i1] = normals[i1].Add(n)
		normals[i2] = normals[i2].Add(n)
	}
	for i := range normals {
		normals[i] = normals[i].Normalize()
	}
	m.Normals = normals
	m.Invalidate()
}
