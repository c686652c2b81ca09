package formats

import (
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/pzshrink/pkg/math"
	"github.com/Faultbox/pzshrink/pkg/mesh"
)

// ErrInvalidGLTF is returned for documents whose references do not resolve.
var ErrInvalidGLTF = errors.New("invalid gltf document")

// Extensions that store geometry outside plain accessors. Primitives using them
// are left untouched and buffers are not compacted.
var compressedGeometry = []string{"KHR_draco_mesh_compression", "EXT_meshopt_compression"}

// ImportGLTF reads a .gltf or .glb file. Every triangle-list primitive becomes
// one mesh. Skinned and morphed primitives are not imported and are written
// back unchanged on export.
func ImportGLTF(path string) (*mesh.Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening gltf: %w", err)
	}
	return SceneFromGLTF(doc)
}

// SceneFromGLTF builds a scene from a decoded document. The document becomes the
// scene's native value and is modified in place by ExportGLTF.
func SceneFromGLTF(doc *gltf.Document) (*mesh.Scene, error) {
	textures, err := gltfTextures(doc)
	if err != nil {
		return nil, err
	}
	s := &mesh.Scene{
		Native:    doc,
		Materials: gltfMaterials(doc),
		Textures:  textures,
	}

	for mi, gm := range doc.Meshes {
		for pi, p := range gm.Primitives {
			if !importable(doc, p) {
				continue
			}
			m, err := readPrimitive(doc, p)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, err)
			}
			m.Name = gm.Name
			if m.Name == "" {
				m.Name = fmt.Sprintf("mesh_%d", mi)
			}
			if len(gm.Primitives) > 1 {
				m.Name = fmt.Sprintf("%s_%d", m.Name, pi)
			}
			m.Origin = mesh.Origin{Group: mi, Part: pi}
			s.Meshes = append(s.Meshes, m)
		}
	}
	return s, nil
}

func importable(doc *gltf.Document, p *gltf.Primitive) bool {
	if p.Mode != gltf.PrimitiveTriangles || len(p.Targets) > 0 {
		return false
	}
	if _, ok := p.Attributes[gltf.POSITION]; !ok {
		return false
	}
	if _, ok := p.Attributes[gltf.JOINTS_0]; ok {
		return false
	}
	if _, ok := p.Attributes[gltf.WEIGHTS_0]; ok {
		return false
	}
	for _, ext := range compressedGeometry {
		if _, ok := p.Extensions[ext]; ok {
			return false
		}
	}
	return true
}

func accessor(doc *gltf.Document, idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d", ErrInvalidGLTF, idx)
	}
	return doc.Accessors[idx], nil
}

func readPrimitive(doc *gltf.Document, p *gltf.Primitive) (*mesh.Mesh, error) {
	m := &mesh.Mesh{Material: -1}
	if p.Material != nil {
		m.Material = *p.Material
	}

	acr, err := accessor(doc, p.Attributes[gltf.POSITION])
	if err != nil {
		return nil, err
	}
	pos, err := modeler.ReadPosition(doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	m.Positions = toVec3s(pos)

	if idx, ok := p.Attributes[gltf.NORMAL]; ok {
		if acr, err = accessor(doc, idx); err != nil {
			return nil, err
		}
		nrm, err := modeler.ReadNormal(doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("reading normals: %w", err)
		}
		m.Normals = toVec3s(nrm)
	}

	for ch := 0; ; ch++ {
		idx, ok := p.Attributes[fmt.Sprintf("TEXCOORD_%d", ch)]
		if !ok {
			break
		}
		if acr, err = accessor(doc, idx); err != nil {
			return nil, err
		}
		uv, err := modeler.ReadTextureCoord(doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("reading uv channel %d: %w", ch, err)
		}
		out := make([]math.Vec2, len(uv))
		for i, v := range uv {
			out[i] = math.Vec2{X: v[0], Y: v[1]}
		}
		m.UVs = append(m.UVs, out)
	}

	if idx, ok := p.Attributes[gltf.TANGENT]; ok {
		if acr, err = accessor(doc, idx); err != nil {
			return nil, err
		}
		tan, err := modeler.ReadTangent(doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("reading tangents: %w", err)
		}
		m.Tangents = make([]math.Vec3, len(tan))
		for i, t := range tan {
			m.Tangents[i] = math.Vec3{X: t[0], Y: t[1], Z: t[2]}
		}
	}

	for ch := 0; ; ch++ {
		idx, ok := p.Attributes[fmt.Sprintf("COLOR_%d", ch)]
		if !ok {
			break
		}
		if acr, err = accessor(doc, idx); err != nil {
			return nil, err
		}
		col, err := modeler.ReadColor(doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("reading color channel %d: %w", ch, err)
		}
		out := make([]mesh.Color, len(col))
		for i, c := range col {
			out[i] = mesh.Color{
				R: float32(c[0]) / 255,
				G: float32(c[1]) / 255,
				B: float32(c[2]) / 255,
				A: float32(c[3]) / 255,
			}
		}
		m.Colors = append(m.Colors, out)
	}

	var indices []uint32
	if p.Indices != nil {
		if acr, err = accessor(doc, *p.Indices); err != nil {
			return nil, err
		}
		if indices, err = modeler.ReadIndices(doc, acr, nil); err != nil {
			return nil, fmt.Errorf("reading indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(m.Positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	m.Faces = make([]mesh.Face, 0, len(indices)/3)
	for i := 0; i+2 < len(indices); i += 3 {
		m.Faces = append(m.Faces, mesh.Face{indices[i], indices[i+1], indices[i+2]})
	}

	mesh.GenerateNormals(m)
	return m, nil
}

func gltfMaterials(doc *gltf.Document) []mesh.Material {
	var out []mesh.Material
	for i, mat := range doc.Materials {
		m := mesh.Material{Name: mat.Name, EmbeddedTexture: -1}
		if m.Name == "" {
			m.Name = fmt.Sprintf("material_%d", i)
		}
		if pbr := mat.PBRMetallicRoughness; pbr != nil && pbr.BaseColorTexture != nil {
			if img := textureImage(doc, pbr.BaseColorTexture.Index); img >= 0 {
				if doc.Images[img].BufferView != nil {
					m.EmbeddedTexture = img
				} else {
					m.DiffuseTexture = doc.Images[img].URI
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func textureImage(doc *gltf.Document, tex int) int {
	if tex < 0 || tex >= len(doc.Textures) || doc.Textures[tex].Source == nil {
		return -1
	}
	img := *doc.Textures[tex].Source
	if img < 0 || img >= len(doc.Images) {
		return -1
	}
	return img
}

// gltfTextures lists every image, in document order, with the bytes of those
// stored in a buffer view.
func gltfTextures(doc *gltf.Document) ([]mesh.Texture, error) {
	var out []mesh.Texture
	for i, img := range doc.Images {
		t := mesh.Texture{Name: img.Name, MimeType: img.MimeType}
		if img.BufferView != nil {
			data, err := viewBytes(doc, *img.BufferView)
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			t.Data = data
		}
		out = append(out, t)
	}
	return out, nil
}

func viewBytes(doc *gltf.Document, view int) ([]byte, error) {
	if view < 0 || view >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: buffer view %d", ErrInvalidGLTF, view)
	}
	bv := doc.BufferViews[view]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d", ErrInvalidGLTF, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("%w: buffer view %d exceeds its buffer", ErrInvalidGLTF, view)
	}
	return data[bv.ByteOffset:end], nil
}

// ExportGLTF writes the scene's meshes back into the document they came from
// and saves it. Vertex data is rewritten into fresh accessors, data no longer
// referenced is dropped and all remaining buffer views are packed into a single
// buffer. When the scene has no materials left, materials, textures, images and
// samplers are removed from the document too.
func ExportGLTF(s *mesh.Scene, path string, binary bool) error {
	doc, ok := s.Native.(*gltf.Document)
	if !ok {
		return fmt.Errorf("exporting gltf: %w", ErrForeignScene)
	}
	if err := ApplyScene(doc, s, binary); err != nil {
		return err
	}

	var err error
	if binary {
		err = gltf.SaveBinary(doc, path)
	} else {
		err = gltf.Save(doc, path)
	}
	if err != nil {
		return fmt.Errorf("saving gltf: %w", err)
	}
	return nil
}

// ApplyScene updates doc from s without writing it.
func ApplyScene(doc *gltf.Document, s *mesh.Scene, binary bool) error {
	before := primitiveAccessors(doc)

	for _, m := range s.Meshes {
		if len(m.Positions) == 0 || len(m.Faces) == 0 {
			continue
		}
		g, p := m.Origin.Group, m.Origin.Part
		if g < 0 || g >= len(doc.Meshes) || p < 0 || p >= len(doc.Meshes[g].Primitives) {
			return fmt.Errorf("%w: mesh %q has no primitive %d/%d", ErrInvalidGLTF, m.Name, g, p)
		}
		writePrimitive(doc, doc.Meshes[g].Primitives[p], m)
	}

	if !s.HasMaterials() {
		stripMaterials(doc)
	}

	after := primitiveAccessors(doc)
	for idx := range before {
		if !after[idx] && idx < len(doc.Accessors) {
			doc.Accessors[idx].BufferView = nil
			doc.Accessors[idx].Sparse = nil
		}
	}

	return compactBuffers(doc, binary)
}

func writePrimitive(doc *gltf.Document, p *gltf.Primitive, m *mesh.Mesh) {
	n := len(m.Positions)
	attrs := map[string]int{}

	pos := make([][3]float32, n)
	for i, v := range m.Positions {
		pos[i] = [3]float32{v.X, v.Y, v.Z}
	}
	attrs[gltf.POSITION] = modeler.WritePosition(doc, pos)

	if len(m.Normals) == n {
		nrm := make([][3]float32, n)
		for i, v := range m.Normals {
			nrm[i] = [3]float32{v.X, v.Y, v.Z}
		}
		attrs[gltf.NORMAL] = modeler.WriteNormal(doc, nrm)
	}

	for ch, uvs := range m.UVs {
		if len(uvs) != n {
			break
		}
		data := make([][2]float32, n)
		for i, v := range uvs {
			data[i] = [2]float32{v.X, v.Y}
		}
		attrs[fmt.Sprintf("TEXCOORD_%d", ch)] = modeler.WriteTextureCoord(doc, data)
	}

	if len(m.Tangents) == n {
		tan := make([][4]float32, n)
		for i, v := range m.Tangents {
			tan[i] = [4]float32{v.X, v.Y, v.Z, 1}
		}
		attrs[gltf.TANGENT] = modeler.WriteTangent(doc, tan)
	}

	for ch, cols := range m.Colors {
		if len(cols) != n {
			break
		}
		data := make([][4]uint8, n)
		for i, c := range cols {
			data[i] = [4]uint8{unorm8(c.R), unorm8(c.G), unorm8(c.B), unorm8(c.A)}
		}
		attrs[fmt.Sprintf("COLOR_%d", ch)] = modeler.WriteColor(doc, data)
	}

	p.Attributes = attrs
	p.Indices = gltf.Index(writeIndices(doc, m.Faces, n))
}

// writeIndices stores the triangle list with 16-bit indices when they fit.
func writeIndices(doc *gltf.Document, faces []mesh.Face, vertices int) int {
	if vertices <= 1<<16 {
		idx := make([]uint16, 0, len(faces)*3)
		for _, f := range faces {
			if len(f) == 3 {
				idx = append(idx, uint16(f[0]), uint16(f[1]), uint16(f[2]))
			}
		}
		return modeler.WriteIndices(doc, idx)
	}
	idx := make([]uint32, 0, len(faces)*3)
	for _, f := range faces {
		if len(f) == 3 {
			idx = append(idx, f[0], f[1], f[2])
		}
	}
	return modeler.WriteIndices(doc, idx)
}

func unorm8(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

func stripMaterials(doc *gltf.Document) {
	doc.Materials = nil
	doc.Textures = nil
	doc.Images = nil
	doc.Samplers = nil
	for _, gm := range doc.Meshes {
		for _, p := range gm.Primitives {
			p.Material = nil
		}
	}
}

func primitiveAccessors(doc *gltf.Document) map[int]bool {
	used := make(map[int]bool)
	for _, gm := range doc.Meshes {
		for _, p := range gm.Primitives {
			for _, idx := range p.Attributes {
				used[idx] = true
			}
			for _, target := range p.Targets {
				for _, idx := range target {
					used[idx] = true
				}
			}
			if p.Indices != nil {
				used[*p.Indices] = true
			}
		}
	}
	return used
}

// compactBuffers copies every buffer view still referenced by an accessor or an
// image into one new buffer and drops the rest.
func compactBuffers(doc *gltf.Document, binary bool) error {
	if len(doc.Buffers) == 0 {
		return nil
	}
	for _, used := range doc.ExtensionsUsed {
		for _, ext := range compressedGeometry {
			if used == ext {
				return nil
			}
		}
	}

	live := make([]bool, len(doc.BufferViews))
	mark := func(i int) {
		if i >= 0 && i < len(live) {
			live[i] = true
		}
	}
	for _, acr := range doc.Accessors {
		if acr.BufferView != nil {
			mark(*acr.BufferView)
		}
		if acr.Sparse != nil {
			mark(acr.Sparse.Indices.BufferView)
			mark(acr.Sparse.Values.BufferView)
		}
	}
	for _, img := range doc.Images {
		if img.BufferView != nil {
			mark(*img.BufferView)
		}
	}

	remap := make([]int, len(doc.BufferViews))
	var views []*gltf.BufferView
	var data []byte
	for i, bv := range doc.BufferViews {
		remap[i] = -1
		if !live[i] {
			continue
		}
		src, err := viewBytes(doc, i)
		if err != nil {
			return err
		}
		for len(data)%4 != 0 {
			data = append(data, 0)
		}
		nv := *bv
		nv.Buffer = 0
		nv.ByteOffset = len(data)
		data = append(data, src...)
		remap[i] = len(views)
		views = append(views, &nv)
	}

	for _, acr := range doc.Accessors {
		if acr.BufferView != nil {
			acr.BufferView = gltf.Index(remap[*acr.BufferView])
		}
		if acr.Sparse != nil {
			acr.Sparse.Indices.BufferView = remap[acr.Sparse.Indices.BufferView]
			acr.Sparse.Values.BufferView = remap[acr.Sparse.Values.BufferView]
		}
	}
	for _, img := range doc.Images {
		if img.BufferView != nil {
			img.BufferView = gltf.Index(remap[*img.BufferView])
		}
	}

	first := doc.Buffers[0]
	buf := &gltf.Buffer{Name: first.Name, URI: first.URI, Data: data, ByteLength: len(data)}
	switch {
	case binary:
		buf.URI = ""
	case first.URI == "" || first.IsEmbeddedResource():
		buf.EmbeddedResource()
	}
	doc.BufferViews = views
	doc.Buffers = []*gltf.Buffer{buf}
	if len(data) == 0 {
		doc.Buffers = nil
	}
	return nil
}

func toVec3s(in [][3]float32) []math.Vec3 {
	out := make([]math.Vec3, len(in))
	for i, v := range in {
		out[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	return out
}
