// Package scene builds a live scene from an imported source description and
// drives it frame by frame: keyframe sampling, skinning and mesh cache refresh.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/rigview/internal/engine/model"
	"github.com/Faultbox/rigview/internal/engine/node"
	"github.com/Faultbox/rigview/pkg/formats"
	"github.com/Faultbox/rigview/pkg/math"
)

// Import errors.
var (
	ErrNoRoot          = errors.New("source scene has no root node")
	ErrFaceNotTriangle = errors.New("face has more than 3 indices")
)

// ImportError is the single failure type returned by Build. Stage names the
// import step that failed.
type ImportError struct {
	Stage string
	Msg   string
	Err   error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import %s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("import %s: %s", e.Stage, e.Msg)
}

func (e *ImportError) Unwrap() error { return e.Err }

// TextureLoader turns a material texture path into an opaque handle.
type TextureLoader func(path string) (any, error)

// Option configures Build.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	loadTexture TextureLoader
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTextureLoader sets the loader used for material textures.
func WithTextureLoader(fn TextureLoader) Option {
	return func(o *options) { o.loadTexture = fn }
}

// MeshNode is a node carrying meshes.
type MeshNode struct {
	Node   *node.Node
	Meshes []*model.Mesh
}

// Scene is an imported hierarchy with its meshes and animations.
//
// A Scene is not safe for concurrent use; mutation, Update and RenderItems
// must run on one goroutine or be serialized by the caller.
type Scene struct {
	id  uuid.UUID
	log *zap.Logger

	// Hierarchy
	root      *node.Node
	nodes     []*node.Node
	byName    map[string]*node.Node
	meshNodes []*MeshNode

	// Resources
	meshes     []*model.Mesh
	animations []*model.Animation
	bounds     model.Bounds

	// Toggles
	materials bool
	textures  bool
	skinning  bool
	animate   bool

	// Playback
	current int
	time    float64
}

// Build creates a scene from src. Any failure is returned as *ImportError and
// no scene is produced.
func Build(src *formats.Scene, opts ...Option) (*Scene, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if src == nil || src.Root == nil {
		return nil, &ImportError{Stage: "hierarchy", Msg: "empty scene", Err: ErrNoRoot}
	}

	s := &Scene{
		id:        uuid.New(),
		byName:    make(map[string]*node.Node),
		materials: true,
		textures:  true,
		skinning:  true,
		animate:   true,
	}
	s.log = o.logger.With(zap.String("scene", s.id.String()))

	if err := s.buildMeshes(src, o.loadTexture); err != nil {
		return nil, err
	}

	root, err := s.buildNode(src.Root)
	if err != nil {
		return nil, err
	}
	s.root = root

	for _, m := range s.meshes {
		if err := m.BindBones(s); err != nil {
			return nil, &ImportError{Stage: "bones", Msg: fmt.Sprintf("mesh %q", m.Name), Err: err}
		}
	}

	for _, n := range s.nodes {
		n.SetInitialState()
	}

	if err := s.buildAnimations(src); err != nil {
		return nil, err
	}

	s.bounds = s.staticBounds()

	s.log.Info("scene imported",
		zap.String("root", root.Name()),
		zap.Int("nodes", len(s.nodes)),
		zap.Int("meshes", len(s.meshes)),
		zap.Int("animations", len(s.animations)))

	return s, nil
}

func (s *Scene) buildMeshes(src *formats.Scene, loadTexture TextureLoader) error {
	textures := map[string]any{}

	for mi, sm := range src.Meshes {
		m := &model.Mesh{
			Name:      sm.Name,
			Positions: sm.Positions,
			TexCoords: sm.TexCoords,
			Material:  model.DefaultMaterial(),
		}
		if len(sm.Normals) == len(sm.Positions) {
			m.Normals = sm.Normals
		}
		for _, c := range sm.Colors {
			m.Colors = append(m.Colors, colorOf(c))
		}

		m.Indices = make([]uint32, 0, len(sm.Faces)*3)
		for fi, face := range sm.Faces {
			if len(face) < 3 {
				continue
			}
			if len(face) > 3 {
				return &ImportError{
					Stage: "mesh",
					Msg:   fmt.Sprintf("mesh %d (%q) face %d has %d indices", mi, sm.Name, fi, len(face)),
					Err:   ErrFaceNotTriangle,
				}
			}
			for _, idx := range face {
				if int(idx) >= len(sm.Positions) {
					return &ImportError{
						Stage: "mesh",
						Msg:   fmt.Sprintf("mesh %d (%q) face %d index %d of %d vertices", mi, sm.Name, fi, idx, len(sm.Positions)),
						Err:   model.ErrVertexOutOfRange,
					}
				}
			}
			m.Indices = append(m.Indices, face...)
		}
		if m.Normals == nil {
			m.GenerateNormals()
		}

		for _, b := range sm.Bones {
			bone := &model.Bone{Name: b.Name, Offset: b.Offset}
			bone.Weights = make([]model.VertexWeight, len(b.Weights))
			for i, w := range b.Weights {
				bone.Weights[i] = model.VertexWeight{Vertex: w.Vertex, Weight: w.Weight}
			}
			m.Bones = append(m.Bones, bone)
		}

		switch {
		case sm.Material >= 0 && sm.Material < len(src.Materials):
			m.Material = convertMaterial(src.Materials[sm.Material])
		case sm.Material >= len(src.Materials):
			s.log.Warn("material index out of range, using default",
				zap.String("mesh", sm.Name),
				zap.Int("material", sm.Material),
				zap.Int("materials", len(src.Materials)))
		}

		if path := m.Material.TexturePath; path != "" && loadTexture != nil {
			tex, ok := textures[path]
			if !ok {
				var err error
				tex, err = loadTexture(path)
				if err != nil {
					// textures are optional decoration
					s.log.Warn("texture load failed", zap.String("path", path), zap.Error(err))
					tex = nil
				}
				textures[path] = tex
			}
			m.Texture = tex
		}

		s.meshes = append(s.meshes, m)
	}
	return nil
}

func convertMaterial(sm formats.Material) model.Material {
	m := model.DefaultMaterial()
	m.Name = sm.Name
	m.Diffuse = colorOf(sm.Diffuse)
	m.Emissive = colorOf(sm.Emissive)
	m.Specular = colorOf(sm.Specular)
	m.Shininess = sm.Shininess
	m.Opacity = sm.Diffuse[3]
	m.TwoSided = sm.TwoSided
	m.TexturePath = sm.TexturePath
	return m
}

func colorOf(c [4]float32) model.Color {
	return model.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
}

func (s *Scene) buildNode(sn *formats.Node) (*node.Node, error) {
	n := node.New(sn.Name)
	if sn.Matrix != nil {
		if !sn.Matrix.IsAffine() {
			s.log.Warn("dropping projective part of node matrix", zap.String("node", sn.Name))
		}
		pos, scale, orient := sn.Matrix.Decompose()
		n.SetPosition(pos)
		n.SetOrientation(orient)
		n.SetScale(scale)
	} else {
		n.SetPosition(sn.Translation)
		n.SetOrientation(sn.Rotation)
		n.SetScale(sn.Scale)
	}

	// later duplicates shadow earlier ones
	s.byName[sn.Name] = n
	s.nodes = append(s.nodes, n)

	if len(sn.Meshes) > 0 {
		mn := &MeshNode{Node: n}
		for _, mi := range sn.Meshes {
			if mi < 0 || mi >= len(s.meshes) {
				return nil, &ImportError{
					Stage: "hierarchy",
					Msg:   fmt.Sprintf("node %q references mesh %d of %d", sn.Name, mi, len(s.meshes)),
					Err:   formats.ErrMeshIndexOutOfRange,
				}
			}
			mn.Meshes = append(mn.Meshes, s.meshes[mi])
		}
		s.meshNodes = append(s.meshNodes, mn)
	}

	for _, sc := range sn.Children {
		child, err := s.buildNode(sc)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

func (s *Scene) buildAnimations(src *formats.Scene) error {
	for _, sa := range src.Animations {
		a := &model.Animation{
			Name:           sa.Name,
			Duration:       sa.Duration,
			TicksPerSecond: sa.TicksPerSecond,
			Channels:       make([]model.Channel, len(sa.Channels)),
		}
		missing := 0
		for i, sc := range sa.Channels {
			ch := model.Channel{Node: sc.Node}
			for _, k := range sc.Positions {
				ch.PositionKeys = append(ch.PositionKeys, model.VectorKey{Time: k.Time, Value: k.Value})
			}
			for _, k := range sc.Rotations {
				ch.RotationKeys = append(ch.RotationKeys, model.QuatKey{Time: k.Time, Value: k.Value})
			}
			for _, k := range sc.Scales {
				ch.ScaleKeys = append(ch.ScaleKeys, model.VectorKey{Time: k.Time, Value: k.Value})
			}
			a.Channels[i] = ch
			if _, ok := s.byName[sc.Node]; !ok {
				missing++
			}
		}
		if err := a.Validate(); err != nil {
			return &ImportError{Stage: "animation", Msg: fmt.Sprintf("animation %q", sa.Name), Err: err}
		}
		if missing > 0 {
			s.log.Warn("animation channels target unknown nodes",
				zap.String("animation", a.Name),
				zap.Int("channels", missing))
		}
		s.animations = append(s.animations, a)
	}
	return nil
}

// staticBounds transforms every mesh vertex through its node's derived
// transform at import time.
func (s *Scene) staticBounds() model.Bounds {
	b := model.EmptyBounds()
	for _, mn := range s.meshNodes {
		xf := mn.Node.DerivedTransform()
		for _, m := range mn.Meshes {
			for _, p := range m.Positions {
				b = b.Extend(xf.TransformPoint(p))
			}
		}
	}
	return b
}

// ID identifies this scene instance in logs.
func (s *Scene) ID() uuid.UUID { return s.id }

// Root returns the root node.
func (s *Scene) Root() *node.Node { return s.root }

// Node looks a node up by name. With duplicate names the last imported node wins.
func (s *Scene) Node(name string) (*node.Node, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// NodeNames returns the resolvable node names, sorted.
func (s *Scene) NodeNames() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Nodes returns every node in import order, duplicates included.
func (s *Scene) Nodes() []*node.Node {
	out := make([]*node.Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Meshes returns the flat mesh list.
func (s *Scene) Meshes() []*model.Mesh {
	out := make([]*model.Mesh, len(s.meshes))
	copy(out, s.meshes)
	return out
}

// MeshNodes returns the nodes that carry meshes.
func (s *Scene) MeshNodes() []*MeshNode {
	out := make([]*MeshNode, len(s.meshNodes))
	copy(out, s.meshNodes)
	return out
}

// Bounds returns the bounding box computed at import.
func (s *Scene) Bounds() model.Bounds { return s.bounds }

// NodePosition returns the local position of the named node.
func (s *Scene) NodePosition(name string) (math.Vec3, bool) {
	n, ok := s.byName[name]
	if !ok {
		return math.Vec3{}, false
	}
	return n.Position(), true
}

// NodeOrientation returns the local orientation of the named node.
func (s *Scene) NodeOrientation(name string) (math.Quat, bool) {
	n, ok := s.byName[name]
	if !ok {
		return math.Quat{}, false
	}
	return n.Orientation(), true
}

// NodeScale returns the local scale of the named node.
func (s *Scene) NodeScale(name string) (math.Vec3, bool) {
	n, ok := s.byName[name]
	if !ok {
		return math.Vec3{}, false
	}
	return n.Scale(), true
}

// SetNodePosition sets the local position of the named node. It reports
// whether the node exists.
func (s *Scene) SetNodePosition(name string, p math.Vec3) bool {
	n, ok := s.byName[name]
	if ok {
		n.SetPosition(p)
	}
	return ok
}

// SetNodeOrientation sets the local orientation of the named node.
func (s *Scene) SetNodeOrientation(name string, q math.Quat) bool {
	n, ok := s.byName[name]
	if ok {
		n.SetOrientation(q)
	}
	return ok
}

// SetNodeScale sets the local scale of the named node.
func (s *Scene) SetNodeScale(name string, v math.Vec3) bool {
	n, ok := s.byName[name]
	if ok {
		n.SetScale(v)
	}
	return ok
}

// ResetPose restores every node to its imported transform.
func (s *Scene) ResetPose() {
	for _, n := range s.nodes {
		n.ResetToInitialState()
	}
}

// EnableMaterials controls whether render items carry materials.
func (s *Scene) EnableMaterials(on bool) { s.materials = on }

// MaterialsEnabled reports the materials toggle.
func (s *Scene) MaterialsEnabled() bool { return s.materials }

// EnableTextures controls whether render items carry texture handles.
func (s *Scene) EnableTextures(on bool) { s.textures = on }

// TexturesEnabled reports the textures toggle.
func (s *Scene) TexturesEnabled() bool { return s.textures }

// EnableSkinning switches between skinned and bind-pose geometry. Every mesh
// cache is invalidated.
func (s *Scene) EnableSkinning(on bool) {
	s.skinning = on
	for _, m := range s.meshes {
		m.Invalidate()
	}
}

// SkinningEnabled reports the skinning toggle.
func (s *Scene) SkinningEnabled() bool { return s.skinning }

// EnableAnimation turns keyframe sampling in Update on or off.
func (s *Scene) EnableAnimation(on bool) { s.animate = on }

// AnimationEnabled reports the animation toggle.
func (s *Scene) AnimationEnabled() bool { return s.animate }

// NumAnimations returns the number of imported animations.
func (s *Scene) NumAnimations() int { return len(s.animations) }

// SetAnimation selects the active animation, clamping i to the valid range.
func (s *Scene) SetAnimation(i int) {
	if i >= len(s.animations) {
		i = len(s.animations) - 1
	}
	if i < 0 {
		i = 0
	}
	s.current = i
}

// AnimationIndex returns the active animation index.
func (s *Scene) AnimationIndex() int { return s.current }

// Animation returns the active animation, or nil when there is none.
func (s *Scene) Animation() *model.Animation {
	if len(s.animations) == 0 {
		return nil
	}
	return s.animations[s.current]
}

// Animations returns all imported animations.
func (s *Scene) Animations() []*model.Animation {
	out := make([]*model.Animation, len(s.animations))
	copy(out, s.animations)
	return out
}

// SetTime sets the playback time in caller units; the active animation
// converts it to ticks.
func (s *Scene) SetTime(t float64) { s.time = t }

// Time returns the playback time.
func (s *Scene) Time() float64 { return s.time }

// Update advances one frame: sample the active animation into node
// transforms, skin meshes against the new bone transforms, then refresh mesh
// caches. The order is fixed because skinning reads derived transforms and
// renderers read caches.
func (s *Scene) Update() {
	if s.animate {
		if a := s.Animation(); a != nil {
			a.Apply(s.time, s)
		}
	}

	if s.skinning {
		for _, m := range s.meshes {
			m.Skin()
		}
	}

	for _, m := range s.meshes {
		m.Resolve(s.skinning)
	}
}
