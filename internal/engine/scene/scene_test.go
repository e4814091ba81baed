package scene

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/rigview/internal/engine/model"
	"github.com/Faultbox/rigview/pkg/formats"
	"github.com/Faultbox/rigview/pkg/math"
)

// riggedSource is a root with a mesh node and a bone one unit along X. The
// single triangle is fully weighted to the bone and the animation slides the
// bone from x=1 to x=3 over ten ticks.
func riggedSource() *formats.Scene {
	root := formats.NewNode("root")
	body := formats.NewNode("body")
	body.Meshes = []int{0}
	bone := formats.NewNode("bone")
	bone.Translation = math.Vec3{X: 1}
	root.Children = []*formats.Node{body, bone}

	return &formats.Scene{
		Root: root,
		Meshes: []*formats.Mesh{{
			Name:      "tri",
			Positions: []math.Vec3{{}, {X: 1}, {Y: 1}},
			Normals:   []math.Vec3{{Z: 1}, {Z: 1}, {Z: 1}},
			Faces:     [][]uint32{{0, 1, 2}},
			Material:  0,
			Bones: []formats.Bone{{
				Name:    "bone",
				Offset:  math.Translate(-1, 0, 0),
				Weights: []formats.Weight{{Vertex: 0, Weight: 1}, {Vertex: 1, Weight: 1}, {Vertex: 2, Weight: 1}},
			}},
		}},
		Materials: []formats.Material{{
			Name:        "skin",
			Diffuse:     [4]float32{1, 0, 0, 1},
			TexturePath: "skin.png",
		}},
		Animations: []*formats.Animation{{
			Name:           "slide",
			Duration:       10,
			TicksPerSecond: 1,
			Channels: []formats.Channel{{
				Node: "bone",
				Positions: []formats.VectorKey{
					{Time: 0, Value: math.Vec3{X: 1}},
					{Time: 10, Value: math.Vec3{X: 3}},
				},
			}},
		}},
	}
}

func mustBuild(t *testing.T, src *formats.Scene, opts ...Option) *Scene {
	t.Helper()
	s, err := Build(src, opts...)
	require.NoError(t, err)
	return s
}

func TestBuildHierarchy(t *testing.T) {
	s := mustBuild(t, riggedSource())

	assert.Equal(t, "root", s.Root().Name())
	assert.Equal(t, []string{"body", "bone", "root"}, s.NodeNames())
	assert.Len(t, s.Nodes(), 3)
	require.Len(t, s.MeshNodes(), 1)
	assert.Equal(t, "body", s.MeshNodes()[0].Node.Name())

	bone, ok := s.Node("bone")
	require.True(t, ok)
	assert.Equal(t, s.Root(), bone.Parent())
	assert.Equal(t, math.Vec3{X: 1}, bone.InitialPosition())

	_, ok = s.Node("nope")
	assert.False(t, ok)

	require.Len(t, s.Meshes(), 1)
	m := s.Meshes()[0]
	assert.Equal(t, bone, m.Bones[0].Node())
	assert.Equal(t, "skin", m.Material.Name)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
}

func TestBuildChainComposition(t *testing.T) {
	parent := formats.NewNode("parent")
	parent.Translation = math.Vec3{X: 1}
	child := formats.NewNode("child")
	child.Translation = math.Vec3{X: 1}
	parent.Children = []*formats.Node{child}

	s := mustBuild(t, &formats.Scene{Root: parent})
	c, _ := s.Node("child")
	assert.True(t, c.DerivedPosition().ApproxEqual(math.Vec3{X: 2}, 1e-6))

	s.SetNodeOrientation("parent", math.QuatFromAxisAngle(math.Vec3{Y: 1}, float32(gomath.Pi/2)))
	assert.True(t, c.DerivedPosition().ApproxEqual(math.Vec3{X: 1, Z: -1}, 1e-5), "got %v", c.DerivedPosition())
}

func TestBuildMatrixNode(t *testing.T) {
	root := formats.NewNode("root")
	xf := math.Compose(math.Vec3{X: 1, Y: 2, Z: 3}, math.QuatIdentity(), math.Vec3{X: 2, Y: 2, Z: 2})
	root.Matrix = &xf

	s := mustBuild(t, &formats.Scene{Root: root})
	assert.True(t, s.Root().Position().ApproxEqual(math.Vec3{X: 1, Y: 2, Z: 3}, 1e-6))
	assert.True(t, s.Root().Scale().ApproxEqual(math.Vec3{X: 2, Y: 2, Z: 2}, 1e-6))
}

func TestBuildWarnsOnProjectiveMatrix(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	root := formats.NewNode("root")
	affine := math.Translate(1, 0, 0)
	root.Matrix = &affine
	cam := formats.NewNode("camera")
	projective := math.Translate(0, 2, 0)
	projective[3] = 0.5
	cam.Matrix = &projective
	root.Children = []*formats.Node{cam}

	s := mustBuild(t, &formats.Scene{Root: root}, WithLogger(zap.New(core)))

	warned := logs.FilterMessage("dropping projective part of node matrix")
	require.Equal(t, 1, warned.Len())
	assert.Equal(t, "camera", warned.All()[0].ContextMap()["node"])

	c, _ := s.Node("camera")
	assert.True(t, c.Position().ApproxEqual(math.Vec3{Y: 2}, 1e-6), "got %v", c.Position())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*formats.Scene)
		stage  string
		target error
	}{
		{
			name:   "mesh index",
			mutate: func(s *formats.Scene) { s.Root.Children[0].Meshes = []int{4} },
			stage:  "hierarchy",
			target: formats.ErrMeshIndexOutOfRange,
		},
		{
			name:   "quad",
			mutate: func(s *formats.Scene) { s.Meshes[0].Faces = [][]uint32{{0, 1, 2, 0}} },
			stage:  "mesh",
			target: ErrFaceNotTriangle,
		},
		{
			name:   "vertex index",
			mutate: func(s *formats.Scene) { s.Meshes[0].Faces = [][]uint32{{0, 1, 9}} },
			stage:  "mesh",
			target: model.ErrVertexOutOfRange,
		},
		{
			name:   "unbound bone",
			mutate: func(s *formats.Scene) { s.Meshes[0].Bones[0].Name = "ghost" },
			stage:  "bones",
			target: model.ErrBoneNodeNotFound,
		},
		{
			name: "unordered keys",
			mutate: func(s *formats.Scene) {
				keys := s.Animations[0].Channels[0].Positions
				keys[0], keys[1] = keys[1], keys[0]
			},
			stage:  "animation",
			target: model.ErrUnorderedKeys,
		},
		{
			name:   "no root",
			mutate: func(s *formats.Scene) { s.Root = nil },
			stage:  "hierarchy",
			target: ErrNoRoot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := riggedSource()
			tt.mutate(src)

			s, err := Build(src)
			require.Error(t, err)
			assert.Nil(t, s)

			var ie *ImportError
			require.True(t, errors.As(err, &ie), "got %T", err)
			assert.Equal(t, tt.stage, ie.Stage)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestBuildSkipsDegenerateFaces(t *testing.T) {
	src := riggedSource()
	src.Meshes[0].Faces = [][]uint32{{0, 1}, {0, 1, 2}, {}}

	s := mustBuild(t, src)
	assert.Equal(t, 1, s.Meshes()[0].NumTriangles())
}

func TestBuildMaterialFallback(t *testing.T) {
	src := riggedSource()
	src.Meshes[0].Material = -1
	s := mustBuild(t, src)
	assert.Equal(t, model.DefaultMaterial(), s.Meshes()[0].Material)

	src = riggedSource()
	src.Meshes[0].Material = 7
	s = mustBuild(t, src)
	assert.Equal(t, model.DefaultMaterial(), s.Meshes()[0].Material)
}

func TestBuildGeneratesMissingNormals(t *testing.T) {
	src := riggedSource()
	src.Meshes[0].Normals = nil

	s := mustBuild(t, src)
	for i, n := range s.Meshes()[0].Normals {
		assert.True(t, n.ApproxEqual(math.Vec3{Z: 1}, 1e-6), "normal %d = %v", i, n)
	}
}

func TestBuildTextures(t *testing.T) {
	calls := 0
	loader := func(path string) (any, error) {
		calls++
		return "tex:" + path, nil
	}
	src := riggedSource()
	src.Meshes = append(src.Meshes, src.Meshes[0])

	s := mustBuild(t, src, WithTextureLoader(loader))
	assert.Equal(t, 1, calls, "textures are loaded once per path")
	assert.Equal(t, "tex:skin.png", s.Meshes()[0].Texture)

	failing := func(string) (any, error) { return nil, errors.New("boom") }
	s = mustBuild(t, riggedSource(), WithTextureLoader(failing))
	assert.Nil(t, s.Meshes()[0].Texture)
}

func TestDuplicateNamesShadow(t *testing.T) {
	root := formats.NewNode("root")
	first := formats.NewNode("dup")
	first.Translation = math.Vec3{X: 1}
	second := formats.NewNode("dup")
	second.Translation = math.Vec3{X: 2}
	root.Children = []*formats.Node{first, second}

	s := mustBuild(t, &formats.Scene{Root: root})
	n, ok := s.Node("dup")
	require.True(t, ok)
	assert.Equal(t, math.Vec3{X: 2}, n.Position())
	assert.Len(t, s.Nodes(), 3)
	assert.Equal(t, []string{"dup", "root"}, s.NodeNames())
}

func TestSetAnimationClamps(t *testing.T) {
	src := riggedSource()
	second := *src.Animations[0]
	second.Name = "again"
	src.Animations = append(src.Animations, &second)

	s := mustBuild(t, src)
	assert.Equal(t, 2, s.NumAnimations())

	s.SetAnimation(1)
	assert.Equal(t, "again", s.Animation().Name)
	s.SetAnimation(9)
	assert.Equal(t, 1, s.AnimationIndex())
	s.SetAnimation(-3)
	assert.Equal(t, 0, s.AnimationIndex())

	empty := mustBuild(t, &formats.Scene{Root: formats.NewNode("r")})
	empty.SetAnimation(2)
	assert.Equal(t, 0, empty.AnimationIndex())
	assert.Nil(t, empty.Animation())
	empty.Update()
}

func TestUpdateDrivesSkinning(t *testing.T) {
	s := mustBuild(t, riggedSource())
	s.SetTime(5)
	s.Update()

	bone, _ := s.Node("bone")
	assert.True(t, bone.Position().ApproxEqual(math.Vec3{X: 2}, 1e-6), "got %v", bone.Position())

	items := s.RenderItems()
	require.Len(t, items, 1)
	require.Len(t, items[0].Meshes, 1)
	mi := items[0].Meshes[0]
	assert.True(t, mi.Skinned)

	// bone moved one unit past its bind placement
	want := []math.Vec3{{X: 1}, {X: 2}, {X: 1, Y: 1}}
	for i, p := range mi.Mesh.Positions {
		assert.True(t, p.ApproxEqual(want[i], 1e-5), "vertex %d = %v", i, p)
	}

	b := s.CurrentBounds()
	assert.True(t, b.Max.ApproxEqual(math.Vec3{X: 2, Y: 1}, 1e-5), "got %v", b.Max)
}

func TestUpdateKeepsUnanimatedRestPose(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Nodes = append(doc.Nodes,
		&gltf.Node{Name: "root", Children: []uint32{1}},
		&gltf.Node{Name: "forearm", Translation: [3]float32{0, 2, 0}},
	)
	doc.Scenes[0].Nodes = []uint32{0}
	times := modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, []float32{0, 1})
	values := modeler.WriteTangent(doc, [][4]float32{{0, 0, 0, 1}, {0, 0, 0.70710677, 0.70710677}})
	doc.Animations = append(doc.Animations, &gltf.Animation{
		Name:     "bend",
		Samplers: []*gltf.AnimationSampler{{Input: gltf.Index(times), Output: gltf.Index(values)}},
		Channels: []*gltf.Channel{{
			Sampler: gltf.Index(0),
			Target:  gltf.ChannelTarget{Node: gltf.Index(1), Path: gltf.TRSRotation},
		}},
	})

	src, err := formats.FromGLTF(doc)
	require.NoError(t, err)
	s := mustBuild(t, src)
	s.SetTime(0.5)
	s.Update()

	forearm, ok := s.Node("forearm")
	require.True(t, ok)
	assert.True(t, forearm.Position().ApproxEqual(math.Vec3{Y: 2}, 1e-6), "got %v", forearm.Position())
	assert.True(t, forearm.Scale().ApproxEqual(math.Vec3One(), 1e-6), "got %v", forearm.Scale())
	assert.NotEqual(t, math.QuatIdentity(), forearm.Orientation())
}

func TestAnimationToggle(t *testing.T) {
	s := mustBuild(t, riggedSource())
	s.EnableAnimation(false)
	assert.False(t, s.AnimationEnabled())
	s.SetTime(5)
	s.Update()

	bone, _ := s.Node("bone")
	assert.Equal(t, math.Vec3{X: 1}, bone.Position())
}

func TestSkinningToggleInvalidates(t *testing.T) {
	s := mustBuild(t, riggedSource())
	s.SetTime(5)
	s.Update()
	m := s.Meshes()[0]
	require.True(t, m.Valid())

	s.EnableSkinning(false)
	assert.False(t, s.SkinningEnabled())
	assert.False(t, m.Valid())

	s.Update()
	mi := s.RenderItems()[0].Meshes[0]
	assert.False(t, mi.Skinned)
	assert.Equal(t, m.Positions, mi.Mesh.Positions)
}

func TestResetPose(t *testing.T) {
	s := mustBuild(t, riggedSource())
	require.True(t, s.SetNodePosition("bone", math.Vec3{Y: 7}))
	require.True(t, s.SetNodeScale("bone", math.Vec3{X: 2, Y: 2, Z: 2}))
	assert.False(t, s.SetNodePosition("ghost", math.Vec3{}))

	s.ResetPose()
	p, ok := s.NodePosition("bone")
	require.True(t, ok)
	assert.Equal(t, math.Vec3{X: 1}, p)
	sc, _ := s.NodeScale("bone")
	assert.Equal(t, math.Vec3One(), sc)
	q, _ := s.NodeOrientation("bone")
	assert.Equal(t, math.QuatIdentity(), q)
}

func TestRenderItemsHonorsToggles(t *testing.T) {
	s := mustBuild(t, riggedSource(), WithTextureLoader(func(p string) (any, error) { return p, nil }))
	s.Update()

	mi := s.RenderItems()[0].Meshes[0]
	require.NotNil(t, mi.Material)
	assert.Equal(t, "skin", mi.Material.Name)
	assert.Equal(t, "skin.png", mi.Texture)

	s.EnableMaterials(false)
	s.EnableTextures(false)
	mi = s.RenderItems()[0].Meshes[0]
	assert.Nil(t, mi.Material)
	assert.Nil(t, mi.Texture)
}

func TestRenderItemsSkipsHidden(t *testing.T) {
	s := mustBuild(t, riggedSource())
	body, _ := s.Node("body")
	body.Hide()
	assert.Empty(t, s.RenderItems())
	assert.True(t, s.CurrentBounds().IsEmpty())

	body.Show()
	assert.Len(t, s.RenderItems(), 1)
}

func TestImportBounds(t *testing.T) {
	src := riggedSource()
	src.Root.Children[0].Translation = math.Vec3{Z: 5}

	s := mustBuild(t, src)
	assert.Equal(t, math.Vec3{Z: 5}, s.Bounds().Min)
	assert.Equal(t, math.Vec3{X: 1, Y: 1, Z: 5}, s.Bounds().Max)
	assert.NotEqual(t, s.ID(), mustBuild(t, riggedSource()).ID())
}
