package model

import "github.com/Faultbox/rigview/pkg/math"

// Skin deforms the bind pose by the current bone transforms into the animated
// buffers and invalidates the cache.
//
// Each influenced vertex becomes the weighted sum of its bones' world matrices
// applied to the bind-pose vertex. Normals use the upper 3x3 of the same
// matrices and are not renormalized, which is only exact for rigid bones.
// Vertices without any influence end up at zero. Meshes without bones are left
// untouched.
func (m *Mesh) Skin() {
	if !m.HasBones() {
		return
	}

	m.animPositions = resetVec3(m.animPositions, len(m.Positions))
	m.animNormals = resetVec3(m.animNormals, len(m.Normals))

	for _, b := range m.Bones {
		if b.node == nil {
			continue
		}
		mat := b.WorldMatrix()
		for _, w := range b.Weights {
			v := int(w.Vertex)
			if v >= len(m.Positions) {
				continue
			}
			p := mat.TransformPoint(m.Positions[v]).Scale(w.Weight)
			m.animPositions[v] = m.animPositions[v].Add(p)
			if v < len(m.Normals) {
				n := mat.TransformDirection(m.Normals[v]).Scale(w.Weight)
				m.animNormals[v] = m.animNormals[v].Add(n)
			}
		}
	}

	m.Invalidate()
}

// BoneMatrices returns the world matrix of every bound bone in Bones order.
// Unbound bones yield the identity.
func (m *Mesh) BoneMatrices() []math.Mat4 {
	out := make([]math.Mat4, len(m.Bones))
	for i, b := range m.Bones {
		if b.node == nil {
			out[i] = math.Identity()
			continue
		}
		out[i] = b.WorldMatrix()
	}
	return out
}

func resetVec3(buf []math.Vec3, n int) []math.Vec3 {
	if cap(buf) < n {
		return make([]math.Vec3, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
