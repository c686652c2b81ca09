// Package formats imports and exports model files as mesh.Scene values.
//
// Wavefront OBJ and glTF 2.0 (.gltf and .glb) are supported. Importers weld
// corners that share identical attribute indices and generate normals for
// meshes that have none, so the scene handed to the caller is always indexed.
package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/pzshrink/pkg/mesh"
)

// ErrUnsupportedModel is returned for paths whose extension has no codec.
var ErrUnsupportedModel = errors.New("unsupported model format")

// Kind is a model file format.
type Kind int

const (
	KindUnknown Kind = iota
	KindOBJ
	KindGLTF
	KindGLB
)

// String returns the usual file extension of the kind without the dot.
func (k Kind) String() string {
	switch k {
	case KindOBJ:
		return "obj"
	case KindGLTF:
		return "gltf"
	case KindGLB:
		return "glb"
	default:
		return "unknown"
	}
}

// KindFromPath picks a kind from the file extension.
func KindFromPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		return KindOBJ
	case ".gltf":
		return KindGLTF
	case ".glb":
		return KindGLB
	default:
		return KindUnknown
	}
}

// IsModel reports whether path names a supported model file.
func IsModel(path string) bool {
	return KindFromPath(path) != KindUnknown
}

// Import reads the model at path.
func Import(path string) (*mesh.Scene, error) {
	switch KindFromPath(path) {
	case KindOBJ:
		return ImportOBJ(path)
	case KindGLTF, KindGLB:
		return ImportGLTF(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, filepath.Ext(path))
	}
}

// Export writes s to path in the format named by its extension. Scenes carry
// their source document, so exporting to a different format than the one
// imported is not supported.
func Export(s *mesh.Scene, path string) error {
	switch KindFromPath(path) {
	case KindOBJ:
		return ExportOBJ(s, path)
	case KindGLTF:
		return ExportGLTF(s, path, false)
	case KindGLB:
		return ExportGLTF(s, path, true)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedModel, filepath.Ext(path))
	}
}
