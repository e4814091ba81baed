package formats

import "github.com/Faultbox/rigview/pkg/math"

// Scene is the imported description handed to the scene builder.
type Scene struct {
	Root       *Node
	Meshes     []*Mesh
	Materials  []Material
	Animations []*Animation
}

// Node is one entry of the source hierarchy. When Matrix is set it takes
// precedence over the decomposed components.
type Node struct {
	Name        string
	Matrix      *math.Mat4
	Translation math.Vec3
	Rotation    math.Quat
	Scale       math.Vec3
	Meshes      []int
	Children    []*Node
}

// NewNode returns a node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:     name,
		Rotation: math.QuatIdentity(),
		Scale:    math.Vec3One(),
	}
}

// Walk visits n and its descendants depth-first.
func (n *Node) Walk(fn func(n *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Mesh is source geometry. Faces index into the vertex arrays; anything other
// than triangles is rejected by the scene builder.
type Mesh struct {
	Name      string
	Positions []math.Vec3
	Normals   []math.Vec3
	TexCoords []math.Vec2
	Colors    [][4]float32
	Faces     [][]uint32
	// Material indexes Scene.Materials, -1 for none.
	Material int
	Bones    []Bone
}

// Bone binds a node (by name) to weighted vertices.
type Bone struct {
	Name    string
	Offset  math.Mat4
	Weights []Weight
}

// Weight is one vertex influence.
type Weight struct {
	Vertex uint32
	Weight float32
}

// Material holds source material properties.
type Material struct {
	Name        string
	Diffuse     [4]float32
	Emissive    [4]float32
	Specular    [4]float32
	Shininess   float32
	TwoSided    bool
	TexturePath string
}

// Animation is a set of per-node keyframe channels. Times are in ticks.
type Animation struct {
	Name           string
	Duration       float64
	TicksPerSecond float64
	Channels       []Channel
}

// Channel holds the keyframe tracks of one node.
type Channel struct {
	Node      string
	Positions []VectorKey
	Rotations []QuatKey
	Scales    []VectorKey
}

// VectorKey is a translation or scale sample.
type VectorKey struct {
	Time  float64
	Value math.Vec3
}

// QuatKey is a rotation sample.
type QuatKey struct {
	Time  float64
	Value math.Quat
}

// Stats summarizes the size of a scene.
type Stats struct {
	Nodes      int
	Meshes     int
	Vertices   int
	Faces      int
	Bones      int
	Animations int
}

// Stats counts the contents of the scene.
func (s *Scene) Stats() Stats {
	st := Stats{Meshes: len(s.Meshes), Animations: len(s.Animations)}
	if s.Root != nil {
		s.Root.Walk(func(*Node, int) { st.Nodes++ })
	}
	for _, m := range s.Meshes {
		st.Vertices += len(m.Positions)
		st.Faces += len(m.Faces)
		st.Bones += len(m.Bones)
	}
	return st
}
