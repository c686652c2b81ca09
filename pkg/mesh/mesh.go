// Package mesh holds the in-memory scene model shared by the model codecs and
// the vertex deduplication pass.
package mesh

import (
	"github.com/Faultbox/pzshrink/pkg/math"
)

// Face is a polygon given as indices into its mesh's vertex arrays.
// Only faces with exactly three indices are triangles.
type Face []uint32

// Color is a linear RGBA vertex color.
type Color struct {
	R, G, B, A float32
}

// Origin identifies where a mesh came from in its source document so that
// exporters can write it back in place.
type Origin struct {
	Group int // OBJ object/group index, glTF mesh index
	Part  int // glTF primitive index, 0 for OBJ
}

// Mesh is a single indexed polygon mesh with per-vertex attribute channels.
type Mesh struct {
	Name   string
	Origin Origin

	// Core vertex attributes. Normals and UV channel 0 are optional; when present
	// they hold one entry per position.
	Positions []math.Vec3
	Normals   []math.Vec3
	UVs       [][]math.Vec2 // UVs[0] is the primary channel

	// Auxiliary channels, dropped whenever vertices are rebuilt.
	Tangents   []math.Vec3
	Bitangents []math.Vec3
	Colors     [][]Color

	Faces    []Face
	Material int // Index into Scene.Materials, -1 for none
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount returns the number of triangular faces.
func (m *Mesh) TriangleCount() int {
	n := 0
	for _, f := range m.Faces {
		if len(f) == 3 {
			n++
		}
	}
	return n
}

// HasNormals reports whether the mesh carries normals.
func (m *Mesh) HasNormals() bool {
	return len(m.Normals) > 0
}

// HasUV reports whether UV channel ch is present and non-empty.
func (m *Mesh) HasUV(ch int) bool {
	return ch < len(m.UVs) && len(m.UVs[ch]) > 0
}

// ClearTangents removes tangents and bitangents.
func (m *Mesh) ClearTangents() {
	m.Tangents = nil
	m.Bitangents = nil
}

// ClearExtraUVs removes every UV channel except channel 0.
func (m *Mesh) ClearExtraUVs() {
	if len(m.UVs) > 1 {
		m.UVs = m.UVs[:1]
	}
}

// ClearColors removes every vertex color channel.
func (m *Mesh) ClearColors() {
	m.Colors = nil
}

// Material is a named surface description. Texture paths refer either to files
// next to the model or, when EmbeddedTexture >= 0, to Scene.Textures.
type Material struct {
	Name            string
	DiffuseTexture  string
	EmbeddedTexture int
}

// Texture is an image embedded in a scene file.
type Texture struct {
	Name     string
	MimeType string
	Data     []byte
}

// Scene is an imported model file.
type Scene struct {
	Meshes    []*Mesh
	Materials []Material
	Textures  []Texture

	// Native is the format-specific document the scene was imported from, kept so
	// that export can preserve everything the model does not represent.
	Native any
}

// HasMaterials reports whether the scene declares any materials.
func (s *Scene) HasMaterials() bool {
	return len(s.Materials) > 0
}

// RemoveTextureInfo drops materials and embedded textures. Geometry is untouched
// apart from mesh material references.
func (s *Scene) RemoveTextureInfo() {
	s.Materials = nil
	s.Textures = nil
	for _, m := range s.Meshes {
		m.Material = -1
	}
}

// VertexCount returns the total vertex count over all meshes.
func (s *Scene) VertexCount() int {
	n := 0
	for _, m := range s.Meshes {
		n += m.VertexCount()
	}
	return n
}
