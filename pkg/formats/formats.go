// Package formats converts scene files into a neutral source-scene
// description: a node tree with local transforms, a flat mesh list with bone
// weights, materials and keyframe animations.
//
// glTF 2.0 (.gltf, .glb) is read in gltf.go.
package formats

import "github.com/pkg/errors"

// Import errors.
var (
	ErrNoScene              = errors.New("document has no scene")
	ErrMeshIndexOutOfRange  = errors.New("mesh index out of range")
	ErrUnsupportedPrimitive = errors.New("unsupported primitive mode")
	ErrAccessorType         = errors.New("unexpected accessor type")
)
