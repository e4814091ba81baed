package formats

import (
	"fmt"
	"io"
	gomath "math"
	"strings"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/rigview/pkg/math"
)

// OpenGLTF reads a .gltf or .glb file. External buffers are resolved relative
// to the file.
func OpenGLTF(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return FromGLTF(doc)
}

// ReadGLTF decodes a glTF document from r. Only embedded or data-URI buffers
// can be resolved.
func ReadGLTF(r io.Reader) (*Scene, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, errors.Wrap(err, "decoding glTF")
	}
	return FromGLTF(doc)
}

// FromGLTF converts a decoded document. The default scene is used, or the
// first one when no default is set. A scene with several root nodes gets a
// synthetic root named after the scene.
func FromGLTF(doc *gltf.Document) (*Scene, error) {
	if len(doc.Scenes) == 0 {
		return nil, ErrNoScene
	}
	sceneIdx := uint32(0)
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if int(sceneIdx) >= len(doc.Scenes) {
		return nil, errors.Wrapf(ErrNoScene, "default scene %d of %d", sceneIdx, len(doc.Scenes))
	}

	c := &gltfConverter{
		doc:        doc,
		out:        &Scene{},
		names:      make([]string, len(doc.Nodes)),
		meshRanges: make([][]int, len(doc.Meshes)),
		skinned:    make(map[[2]uint32][]int),
		bound:      make(map[uint32]bool),
	}
	for i, n := range doc.Nodes {
		c.names[i] = nodeName(n, i)
	}

	if err := c.convertMaterials(); err != nil {
		return nil, err
	}
	if err := c.convertMeshes(); err != nil {
		return nil, err
	}

	gs := doc.Scenes[sceneIdx]
	switch len(gs.Nodes) {
	case 0:
		c.out.Root = NewNode(sceneName(gs, sceneIdx))
	case 1:
		root, err := c.convertNode(gs.Nodes[0], 0)
		if err != nil {
			return nil, err
		}
		c.out.Root = root
	default:
		c.out.Root = NewNode(sceneName(gs, sceneIdx))
		for _, idx := range gs.Nodes {
			child, err := c.convertNode(idx, 0)
			if err != nil {
				return nil, err
			}
			c.out.Root.Children = append(c.out.Root.Children, child)
		}
	}

	if err := c.convertAnimations(); err != nil {
		return nil, err
	}
	return c.out, nil
}

type gltfConverter struct {
	doc   *gltf.Document
	out   *Scene
	names []string
	// meshRanges maps a glTF mesh to the output meshes of its primitives.
	meshRanges [][]int
	// skinned maps (mesh, skin) to the bound output meshes.
	skinned map[[2]uint32][]int
	bound   map[uint32]bool
}

func nodeName(n *gltf.Node, idx int) string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("node%d", idx)
}

func sceneName(s *gltf.Scene, idx uint32) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("scene%d", idx)
}

// maxNodeDepth guards against cyclic child lists in malformed files.
const maxNodeDepth = 256

func (c *gltfConverter) convertNode(idx uint32, depth int) (*Node, error) {
	if int(idx) >= len(c.doc.Nodes) {
		return nil, errors.Errorf("node index %d out of range (%d nodes)", idx, len(c.doc.Nodes))
	}
	if depth > maxNodeDepth {
		return nil, errors.Errorf("node %d: hierarchy deeper than %d", idx, maxNodeDepth)
	}
	gn := c.doc.Nodes[idx]
	n := NewNode(c.names[idx])

	if m := math.Mat4(gn.Matrix); m != (math.Mat4{}) && m != math.Identity() {
		n.Matrix = &m
	} else {
		n.Translation, n.Rotation, n.Scale = c.restPose(idx)
	}

	if gn.Mesh != nil {
		if int(*gn.Mesh) >= len(c.meshRanges) {
			return nil, errors.Wrapf(ErrMeshIndexOutOfRange, "node %q references mesh %d of %d", n.Name, *gn.Mesh, len(c.meshRanges))
		}
		meshes := c.meshRanges[*gn.Mesh]
		if gn.Skin != nil {
			var err error
			if meshes, err = c.skinnedMeshes(*gn.Mesh, *gn.Skin); err != nil {
				return nil, errors.Wrapf(err, "node %q", n.Name)
			}
		}
		n.Meshes = append(n.Meshes, meshes...)
	}

	for _, ci := range gn.Children {
		child, err := c.convertNode(ci, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// restPose returns the local translation, rotation and scale of a node,
// decomposing its matrix when it has one.
func (c *gltfConverter) restPose(idx uint32) (math.Vec3, math.Quat, math.Vec3) {
	gn := c.doc.Nodes[idx]
	if m := math.Mat4(gn.Matrix); m != (math.Mat4{}) && m != math.Identity() {
		p, s, q := m.Decompose()
		return p, q, s
	}

	t, r, s := math.Vec3FromArray(gn.Translation), math.QuatIdentity(), math.Vec3One()
	// zero values mean the property was omitted
	if gr := gn.Rotation; gr != [4]float32{} {
		r = math.Quat{X: gr[0], Y: gr[1], Z: gr[2], W: gr[3]}
	}
	if gs := gn.Scale; gs != [3]float32{} {
		s = math.Vec3FromArray(gs)
	}
	return t, r, s
}

func (c *gltfConverter) convertMaterials() error {
	for i, gm := range c.doc.Materials {
		m := Material{
			Name:     gm.Name,
			Diffuse:  [4]float32{1, 1, 1, 1},
			TwoSided: gm.DoubleSided,
		}
		if m.Name == "" {
			m.Name = fmt.Sprintf("material%d", i)
		}
		m.Emissive = [4]float32{gm.EmissiveFactor[0], gm.EmissiveFactor[1], gm.EmissiveFactor[2], 1}
		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			m.Diffuse = pbr.BaseColorFactorOrDefault()
			// rough surfaces get a dull highlight
			m.Shininess = (1 - pbr.RoughnessFactorOrDefault()) * 128
			if pbr.BaseColorTexture != nil {
				m.TexturePath = c.textureURI(pbr.BaseColorTexture.Index)
			}
		}
		c.out.Materials = append(c.out.Materials, m)
	}
	return nil
}

func (c *gltfConverter) textureURI(tex uint32) string {
	if int(tex) >= len(c.doc.Textures) {
		return ""
	}
	src := c.doc.Textures[tex].Source
	if src == nil || int(*src) >= len(c.doc.Images) {
		return ""
	}
	img := c.doc.Images[*src]
	if strings.HasPrefix(img.URI, "data:") {
		return ""
	}
	return img.URI
}

func (c *gltfConverter) accessor(idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(c.doc.Accessors) {
		return nil, errors.Errorf("accessor %d out of range (%d accessors)", idx, len(c.doc.Accessors))
	}
	return c.doc.Accessors[idx], nil
}

func (c *gltfConverter) convertMeshes() error {
	for mi := range c.doc.Meshes {
		out, err := c.appendMesh(uint32(mi))
		if err != nil {
			return err
		}
		c.meshRanges[mi] = out
	}
	return nil
}

// appendMesh converts the primitives of a glTF mesh and returns the indices
// of the resulting output meshes.
func (c *gltfConverter) appendMesh(mi uint32) ([]int, error) {
	gm := c.doc.Meshes[mi]
	var out []int
	for pi, p := range gm.Primitives {
		mesh, skip, err := c.convertPrimitive(gm, p)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d primitive %d", mi, pi)
		}
		if skip {
			continue
		}
		if mesh.Name == "" {
			mesh.Name = fmt.Sprintf("mesh%d", mi)
		}
		if len(gm.Primitives) > 1 {
			mesh.Name = fmt.Sprintf("%s.%d", mesh.Name, pi)
		}
		out = append(out, len(c.out.Meshes))
		c.out.Meshes = append(c.out.Meshes, mesh)
	}
	return out, nil
}

func (c *gltfConverter) convertPrimitive(gm *gltf.Mesh, p *gltf.Primitive) (mesh *Mesh, skip bool, err error) {
	switch p.Mode {
	case gltf.PrimitiveTriangles, gltf.PrimitiveTriangleStrip, gltf.PrimitiveTriangleFan:
	case gltf.PrimitivePoints, gltf.PrimitiveLines, gltf.PrimitiveLineLoop, gltf.PrimitiveLineStrip:
		return nil, true, nil
	default:
		return nil, false, errors.Wrapf(ErrUnsupportedPrimitive, "mode %d", p.Mode)
	}

	posIdx, ok := p.Attributes["POSITION"]
	if !ok {
		return nil, true, nil
	}

	mesh = &Mesh{Name: gm.Name, Material: -1}
	if p.Material != nil {
		mesh.Material = int(*p.Material)
	}

	acr, err := c.accessor(posIdx)
	if err != nil {
		return nil, false, err
	}
	positions, err := modeler.ReadPosition(c.doc, acr, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "reading POSITION")
	}
	mesh.Positions = make([]math.Vec3, len(positions))
	for i, v := range positions {
		mesh.Positions[i] = math.Vec3FromArray(v)
	}

	if idx, ok := p.Attributes["NORMAL"]; ok {
		acr, err := c.accessor(idx)
		if err != nil {
			return nil, false, err
		}
		normals, err := modeler.ReadNormal(c.doc, acr, nil)
		if err != nil {
			return nil, false, errors.Wrap(err, "reading NORMAL")
		}
		mesh.Normals = make([]math.Vec3, len(normals))
		for i, v := range normals {
			mesh.Normals[i] = math.Vec3FromArray(v)
		}
	}

	if idx, ok := p.Attributes["TEXCOORD_0"]; ok {
		acr, err := c.accessor(idx)
		if err != nil {
			return nil, false, err
		}
		uvs, err := modeler.ReadTextureCoord(c.doc, acr, nil)
		if err != nil {
			return nil, false, errors.Wrap(err, "reading TEXCOORD_0")
		}
		mesh.TexCoords = make([]math.Vec2, len(uvs))
		for i, v := range uvs {
			// glTF puts the UV origin at the top-left
			mesh.TexCoords[i] = math.Vec2{X: v[0], Y: v[1]}.FlipV()
		}
	}

	if idx, ok := p.Attributes["COLOR_0"]; ok {
		acr, err := c.accessor(idx)
		if err != nil {
			return nil, false, err
		}
		colors, err := c.readColors(acr)
		if err != nil {
			return nil, false, err
		}
		mesh.Colors = colors
	}

	var indices []uint32
	if p.Indices != nil {
		acr, err := c.accessor(*p.Indices)
		if err != nil {
			return nil, false, err
		}
		indices, err = modeler.ReadIndices(c.doc, acr, nil)
		if err != nil {
			return nil, false, errors.Wrap(err, "reading indices")
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	mesh.Faces = triangulate(p.Mode, indices)

	if joints, ok := p.Attributes["JOINTS_0"]; ok {
		if weights, ok := p.Attributes["WEIGHTS_0"]; ok {
			if err := c.readInfluences(mesh, joints, weights); err != nil {
				return nil, false, err
			}
		}
	}
	return mesh, false, nil
}

// triangulate turns an index list into triangle faces.
func triangulate(mode gltf.PrimitiveMode, indices []uint32) [][]uint32 {
	var faces [][]uint32
	switch mode {
	case gltf.PrimitiveTriangleStrip:
		for i := 0; i+2 < len(indices); i++ {
			if i%2 == 0 {
				faces = append(faces, []uint32{indices[i], indices[i+1], indices[i+2]})
			} else {
				faces = append(faces, []uint32{indices[i+1], indices[i], indices[i+2]})
			}
		}
	case gltf.PrimitiveTriangleFan:
		for i := 1; i+1 < len(indices); i++ {
			faces = append(faces, []uint32{indices[0], indices[i], indices[i+1]})
		}
	default:
		for i := 0; i+2 < len(indices); i += 3 {
			faces = append(faces, []uint32{indices[i], indices[i+1], indices[i+2]})
		}
	}
	return faces
}

func (c *gltfConverter) readColors(acr *gltf.Accessor) ([][4]float32, error) {
	data, err := modeler.ReadAccessor(c.doc, acr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "reading COLOR_0")
	}
	switch v := data.(type) {
	case [][4]float32:
		return v, nil
	case [][3]float32:
		out := make([][4]float32, len(v))
		for i, col := range v {
			out[i] = [4]float32{col[0], col[1], col[2], 1}
		}
		return out, nil
	case [][4]uint8:
		out := make([][4]float32, len(v))
		for i, col := range v {
			out[i] = [4]float32{float32(col[0]) / 255, float32(col[1]) / 255, float32(col[2]) / 255, float32(col[3]) / 255}
		}
		return out, nil
	case [][4]uint16:
		out := make([][4]float32, len(v))
		for i, col := range v {
			out[i] = [4]float32{float32(col[0]) / 65535, float32(col[1]) / 65535, float32(col[2]) / 65535, float32(col[3]) / 65535}
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrAccessorType, "COLOR_0 is %T", data)
}

// readInfluences regroups per-vertex JOINTS_0/WEIGHTS_0 into per-joint weight
// lists. Bones are keyed by joint slot here and named when the skin is bound.
func (c *gltfConverter) readInfluences(mesh *Mesh, jointsIdx, weightsIdx uint32) error {
	jacr, err := c.accessor(jointsIdx)
	if err != nil {
		return err
	}
	wacr, err := c.accessor(weightsIdx)
	if err != nil {
		return err
	}
	joints, err := modeler.ReadJoints(c.doc, jacr, nil)
	if err != nil {
		return errors.Wrap(err, "reading JOINTS_0")
	}
	weights, err := modeler.ReadWeights(c.doc, wacr, nil)
	if err != nil {
		return errors.Wrap(err, "reading WEIGHTS_0")
	}
	if len(joints) != len(weights) {
		return errors.Wrapf(ErrAccessorType, "JOINTS_0 has %d entries, WEIGHTS_0 has %d", len(joints), len(weights))
	}

	slot := map[uint16]int{}
	for v := range joints {
		for k := 0; k < 4; k++ {
			w := weights[v][k]
			if w == 0 {
				continue
			}
			j := joints[v][k]
			bi, ok := slot[j]
			if !ok {
				bi = len(mesh.Bones)
				slot[j] = bi
				mesh.Bones = append(mesh.Bones, Bone{Name: jointSlotName(j), Offset: math.Identity()})
			}
			mesh.Bones[bi].Weights = append(mesh.Bones[bi].Weights, Weight{Vertex: uint32(v), Weight: w})
		}
	}
	return nil
}

// skinnedMeshes returns the output meshes of a glTF mesh bound to a skin.
// The first skin binds the converted meshes in place; any other skin gets
// its own copy, since bone names and offsets differ per skin.
func (c *gltfConverter) skinnedMeshes(meshIdx, skinIdx uint32) ([]int, error) {
	key := [2]uint32{meshIdx, skinIdx}
	if out, ok := c.skinned[key]; ok {
		return out, nil
	}

	out := c.meshRanges[meshIdx]
	if c.bound[meshIdx] {
		var err error
		if out, err = c.appendMesh(meshIdx); err != nil {
			return nil, err
		}
	}
	if err := c.bindSkin(skinIdx, out); err != nil {
		return nil, err
	}
	c.bound[meshIdx] = true
	c.skinned[key] = out
	return out, nil
}

const jointSlotPrefix = "\x00joint"

func jointSlotName(j uint16) string { return fmt.Sprintf("%s%d", jointSlotPrefix, j) }

// bindSkin replaces joint slots on the given meshes with node names and
// inverse bind matrices from the skin.
func (c *gltfConverter) bindSkin(skinIdx uint32, meshes []int) error {
	if int(skinIdx) >= len(c.doc.Skins) {
		return errors.Errorf("skin %d out of range (%d skins)", skinIdx, len(c.doc.Skins))
	}
	skin := c.doc.Skins[skinIdx]

	var ibms []math.Mat4
	if skin.InverseBindMatrices != nil {
		acr, err := c.accessor(*skin.InverseBindMatrices)
		if err != nil {
			return err
		}
		data, err := modeler.ReadAccessor(c.doc, acr, nil)
		if err != nil {
			return errors.Wrap(err, "reading inverse bind matrices")
		}
		mats, ok := data.([][4][4]float32)
		if !ok {
			return errors.Wrapf(ErrAccessorType, "inverse bind matrices are %T", data)
		}
		ibms = make([]math.Mat4, len(mats))
		for i, m := range mats {
			// the reader returns [row][col]
			for col := 0; col < 4; col++ {
				for row := 0; row < 4; row++ {
					ibms[i][col*4+row] = m[row][col]
				}
			}
		}
	}

	for _, mi := range meshes {
		mesh := c.out.Meshes[mi]
		for b := range mesh.Bones {
			bone := &mesh.Bones[b]
			if !strings.HasPrefix(bone.Name, jointSlotPrefix) {
				continue
			}
			var j int
			if _, err := fmt.Sscanf(strings.TrimPrefix(bone.Name, jointSlotPrefix), "%d", &j); err != nil {
				return errors.Wrapf(err, "bone slot %q", bone.Name)
			}
			if j >= len(skin.Joints) {
				return errors.Errorf("mesh %q: joint %d out of range (%d joints)", mesh.Name, j, len(skin.Joints))
			}
			nodeIdx := skin.Joints[j]
			if int(nodeIdx) >= len(c.names) {
				return errors.Errorf("skin joint %d references node %d of %d", j, nodeIdx, len(c.names))
			}
			bone.Name = c.names[nodeIdx]
			if j < len(ibms) {
				bone.Offset = ibms[j]
			}
		}
	}
	return nil
}

func (c *gltfConverter) convertAnimations() error {
	for ai, ga := range c.doc.Animations {
		anim := &Animation{
			Name:           ga.Name,
			TicksPerSecond: 1,
		}
		if anim.Name == "" {
			anim.Name = fmt.Sprintf("animation%d", ai)
		}

		byNode := map[uint32]int{}
		for ci, ch := range ga.Channels {
			if ch.Target.Node == nil || ch.Sampler == nil {
				continue
			}
			if int(*ch.Sampler) >= len(ga.Samplers) {
				return errors.Errorf("animation %q channel %d: sampler %d out of range", anim.Name, ci, *ch.Sampler)
			}
			if int(*ch.Target.Node) >= len(c.names) {
				return errors.Errorf("animation %q channel %d: node %d out of range", anim.Name, ci, *ch.Target.Node)
			}
			if ch.Target.Path != gltf.TRSTranslation && ch.Target.Path != gltf.TRSRotation && ch.Target.Path != gltf.TRSScale {
				continue
			}

			times, values, err := c.readSampler(ga.Samplers[*ch.Sampler])
			if err != nil {
				return errors.Wrapf(err, "animation %q channel %d", anim.Name, ci)
			}

			slot, ok := byNode[*ch.Target.Node]
			if !ok {
				slot = len(anim.Channels)
				byNode[*ch.Target.Node] = slot
				anim.Channels = append(anim.Channels, Channel{Node: c.names[*ch.Target.Node]})
			}
			out := &anim.Channels[slot]

			for k, t := range times {
				if float64(t) > anim.Duration {
					anim.Duration = float64(t)
				}
				v := values[k]
				switch ch.Target.Path {
				case gltf.TRSTranslation:
					out.Positions = append(out.Positions, VectorKey{Time: float64(t), Value: math.Vec3{X: v[0], Y: v[1], Z: v[2]}})
				case gltf.TRSScale:
					out.Scales = append(out.Scales, VectorKey{Time: float64(t), Value: math.Vec3{X: v[0], Y: v[1], Z: v[2]}})
				case gltf.TRSRotation:
					out.Rotations = append(out.Rotations, QuatKey{Time: float64(t), Value: math.Quat{X: v[0], Y: v[1], Z: v[2], W: v[3]}})
				}
			}
		}

		// glTF leaves unanimated properties at the node's rest value, while a
		// channel without keys samples to identity
		for idx, slot := range byNode {
			out := &anim.Channels[slot]
			t, r, s := c.restPose(idx)
			if len(out.Positions) == 0 {
				out.Positions = []VectorKey{{Value: t}}
			}
			if len(out.Rotations) == 0 {
				out.Rotations = []QuatKey{{Value: r}}
			}
			if len(out.Scales) == 0 {
				out.Scales = []VectorKey{{Value: s}}
			}
		}
		c.out.Animations = append(c.out.Animations, anim)
	}
	return nil
}

// readSampler returns key times and one value per key, padded to four
// components. Cubic spline outputs keep only the value element of each
// (in-tangent, value, out-tangent) triple.
func (c *gltfConverter) readSampler(s *gltf.AnimationSampler) ([]float32, [][4]float32, error) {
	if s.Input == nil || s.Output == nil {
		return nil, nil, errors.New("sampler without input or output")
	}
	iacr, err := c.accessor(*s.Input)
	if err != nil {
		return nil, nil, err
	}
	oacr, err := c.accessor(*s.Output)
	if err != nil {
		return nil, nil, err
	}

	in, err := modeler.ReadAccessor(c.doc, iacr, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading sampler input")
	}
	times, ok := in.([]float32)
	if !ok {
		return nil, nil, errors.Wrapf(ErrAccessorType, "sampler input is %T", in)
	}

	out, err := modeler.ReadAccessor(c.doc, oacr, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading sampler output")
	}
	values, err := toVec4s(out)
	if err != nil {
		return nil, nil, err
	}

	if s.Interpolation == gltf.InterpolationCubicSpline {
		if len(values) != 3*len(times) {
			return nil, nil, errors.Wrapf(ErrAccessorType, "cubic spline output has %d elements for %d keys", len(values), len(times))
		}
		picked := make([][4]float32, len(times))
		for k := range times {
			picked[k] = values[3*k+1]
		}
		values = picked
	}
	if len(values) < len(times) {
		return nil, nil, errors.Wrapf(ErrAccessorType, "sampler output has %d elements for %d keys", len(values), len(times))
	}
	return times, values, nil
}

// toVec4s widens sampler output; integer outputs are normalized.
func toVec4s(data any) ([][4]float32, error) {
	switch v := data.(type) {
	case [][3]float32:
		out := make([][4]float32, len(v))
		for i, e := range v {
			out[i] = [4]float32{e[0], e[1], e[2], 0}
		}
		return out, nil
	case [][4]float32:
		return v, nil
	case [][4]int8:
		out := make([][4]float32, len(v))
		for i, e := range v {
			for k := range e {
				out[i][k] = float32(gomath.Max(float64(e[k])/127, -1))
			}
		}
		return out, nil
	case [][4]uint8:
		out := make([][4]float32, len(v))
		for i, e := range v {
			for k := range e {
				out[i][k] = float32(e[k]) / 255
			}
		}
		return out, nil
	case [][4]int16:
		out := make([][4]float32, len(v))
		for i, e := range v {
			for k := range e {
				out[i][k] = float32(gomath.Max(float64(e[k])/32767, -1))
			}
		}
		return out, nil
	case [][4]uint16:
		out := make([][4]float32, len(v))
		for i, e := range v {
			for k := range e {
				out[i][k] = float32(e[k]) / 65535
			}
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrAccessorType, "sampler output is %T", data)
}
