package mesh

import (
	"errors"
	"testing"

	"github.com/Faultbox/pzshrink/pkg/math"
)

// quadMesh builds two triangles sharing an edge, stored as six unshared corners.
func quadMesh() *Mesh {
	p := []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}}
	n := make([]math.Vec3, len(p))
	uv := make([]math.Vec2, len(p))
	for i, v := range p {
		n[i] = math.Vec3{X: 0, Y: 0, Z: 1}
		uv[i] = math.Vec2{X: v.X, Y: v.Y}
	}
	return &Mesh{
		Name:      "quad",
		Positions: p,
		Normals:   n,
		UVs:       [][]math.Vec2{uv},
		Faces:     []Face{{0, 1, 2}, {3, 4, 5}},
		Material:  -1,
	}
}

func TestDedup_SharedEdge(t *testing.T) {
	m := quadMesh()
	st, err := Dedup(m, Options{})
	if err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}

	if len(m.Positions) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(m.Positions))
	}
	if len(m.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(m.Faces))
	}
	want := []Face{{0, 1, 2}, {0, 2, 3}}
	for i, f := range m.Faces {
		for j := range f {
			if f[j] != want[i][j] {
				t.Errorf("face %d = %v, want %v", i, f, want[i])
				break
			}
		}
	}
	if len(m.Normals) != 4 || len(m.UVs) != 1 || len(m.UVs[0]) != 4 {
		t.Errorf("attribute channels not rebuilt: normals=%d uv channels=%d", len(m.Normals), len(m.UVs))
	}
	if st.VerticesIn != 6 || st.VerticesOut != 4 || st.Rewritten != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestDedup_WindingPreserved(t *testing.T) {
	m := quadMesh()
	before := make([][3]math.Vec3, len(m.Faces))
	for i, f := range m.Faces {
		before[i] = [3]math.Vec3{m.Positions[f[0]], m.Positions[f[1]], m.Positions[f[2]]}
	}

	if _, err := Dedup(m, Options{}); err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}

	for i, f := range m.Faces {
		got := [3]math.Vec3{m.Positions[f[0]], m.Positions[f[1]], m.Positions[f[2]]}
		if got != before[i] {
			t.Errorf("face %d corners = %v, want %v", i, got, before[i])
		}
	}
}

func TestDedup_NoDuplicates(t *testing.T) {
	m := &Mesh{
		Positions: []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		Normals:   []math.Vec3{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 1}},
		Faces:     []Face{{0, 1, 2}},
	}
	orig := append([]math.Vec3(nil), m.Positions...)

	if _, err := Dedup(m, Options{}); err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(m.Positions) != 3 {
		t.Fatalf("expected 3 vertices, got %d", len(m.Positions))
	}
	for i := range orig {
		if m.Positions[i] != orig[i] {
			t.Errorf("vertex %d = %v, want %v", i, m.Positions[i], orig[i])
		}
	}
	if m.UVs != nil {
		t.Errorf("expected no UV channel for mesh without UVs, got %d", len(m.UVs))
	}
}

func TestDedup_DefaultNormal(t *testing.T) {
	m := &Mesh{
		Positions: []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}},
		Faces:     []Face{{0, 1, 2}, {3, 4, 5}},
	}
	if _, err := Dedup(m, Options{}); err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(m.Positions) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(m.Positions))
	}
	// Missing normals default to +Y.
	for i, n := range m.Normals {
		if n != math.Up {
			t.Errorf("normal %d = %v, want %v", i, n, math.Up)
		}
	}
}

func TestDedup_KeyUsesRawBits(t *testing.T) {
	// Within epsilon but not bitwise equal: the lookup only compares inside a
	// hash bucket, so these stay separate.
	m := &Mesh{
		Positions: []math.Vec3{{X: 0.1, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0.1000001, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}},
		Faces:     []Face{{0, 1, 2}, {3, 4, 5}},
	}
	if _, err := Dedup(m, Options{}); err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(m.Positions) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(m.Positions))
	}
}

func TestDedup_DifferentUVNotMerged(t *testing.T) {
	m := quadMesh()
	m.UVs[0][3] = math.Vec2{X: 0.5, Y: 0.5} // same position as vertex 0, different UV

	if _, err := Dedup(m, Options{}); err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(m.Positions) != 5 {
		t.Errorf("expected 5 vertices, got %d", len(m.Positions))
	}
}

func TestDedup_DropsNonTriangles(t *testing.T) {
	m := quadMesh()
	m.Faces = append(m.Faces, Face{0, 1, 2, 5}, Face{0, 1})

	st, err := Dedup(m, Options{})
	if err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if len(m.Faces) != 2 {
		t.Errorf("expected 2 faces, got %d", len(m.Faces))
	}
	if st.DroppedFaces != 2 {
		t.Errorf("expected 2 dropped faces, got %d", st.DroppedFaces)
	}
}

func TestDedup_ClearsAuxChannels(t *testing.T) {
	m := quadMesh()
	m.Tangents = make([]math.Vec3, 6)
	m.Bitangents = make([]math.Vec3, 6)
	m.Colors = [][]Color{make([]Color, 6)}
	m.UVs = append(m.UVs, make([]math.Vec2, 6))

	if _, err := Dedup(m, Options{}); err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if m.Tangents != nil || m.Bitangents != nil || m.Colors != nil {
		t.Error("expected auxiliary channels to be cleared")
	}
	if len(m.UVs) != 1 {
		t.Errorf("expected only UV channel 0, got %d channels", len(m.UVs))
	}
}

func TestDedup_EmptyMeshSkipped(t *testing.T) {
	m := &Mesh{
		Positions: []math.Vec3{{X: 0, Y: 0, Z: 0}},
		Tangents:  []math.Vec3{{X: 1, Y: 0, Z: 0}},
		Colors:    [][]Color{{{1, 1, 1, 1}}},
	}
	st, err := Dedup(m, Options{RemoveColors: true})
	if err != nil {
		t.Fatalf("Dedup failed: %v", err)
	}
	if st.Skipped != 1 || st.Rewritten != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if len(m.Positions) != 1 || len(m.Tangents) != 1 {
		t.Error("skipped mesh geometry was modified")
	}
	if m.Colors != nil {
		t.Error("toggles should apply to skipped meshes")
	}
}

func TestDedup_IndexOutOfRange(t *testing.T) {
	m := quadMesh()
	m.Faces[1] = Face{3, 4, 42}
	before := len(m.Positions)

	_, err := Dedup(m, Options{})
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if len(m.Positions) != before {
		t.Error("mesh modified despite validation failure")
	}
}

func TestDedup_TruncatedNormals(t *testing.T) {
	m := quadMesh()
	m.Normals = m.Normals[:2]

	_, err := Dedup(m, Options{})
	if !errors.Is(err, ErrChannelTruncated) {
		t.Fatalf("expected ErrChannelTruncated, got %v", err)
	}
}

func TestDedupScene_PerMesh(t *testing.T) {
	a, b := quadMesh(), quadMesh()
	s := &Scene{Meshes: []*Mesh{a, b}}

	st, err := DedupScene(s, Options{})
	if err != nil {
		t.Fatalf("DedupScene failed: %v", err)
	}
	if len(a.Positions) != 4 || len(b.Positions) != 4 {
		t.Errorf("expected 4 vertices per mesh, got %d and %d", len(a.Positions), len(b.Positions))
	}
	if st.VerticesOut != 8 || st.Stored != 8 {
		t.Errorf("expected 8 output and stored vertices, got %d and %d", st.VerticesOut, st.Stored)
	}
}

func TestDedupScene_MergeAll(t *testing.T) {
	a := quadMesh()
	b := &Mesh{
		Name:      "tri",
		Positions: []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 5, Y: 5, Z: 5}},
		Normals:   []math.Vec3{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 1}},
		UVs:       [][]math.Vec2{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0.2, Y: 0.2}}},
		Faces:     []Face{{0, 1, 2}},
	}
	empty := &Mesh{Name: "empty"}
	s := &Scene{Meshes: []*Mesh{a, empty, b}}

	st, err := DedupScene(s, Options{MergeAll: true})
	if err != nil {
		t.Fatalf("DedupScene failed: %v", err)
	}
	if st.VerticesOut != 5 {
		t.Errorf("expected 5 global vertices, got %d", st.VerticesOut)
	}
	if st.Stored != 10 {
		t.Errorf("expected both meshes to store the 5 global vertices, got %d", st.Stored)
	}
	if st.Skipped != 1 || st.Rewritten != 2 {
		t.Errorf("unexpected stats: %+v", st)
	}

	// Every rewritten mesh carries the full global table.
	for _, m := range []*Mesh{a, b} {
		if len(m.Positions) != 5 || len(m.Normals) != 5 || len(m.UVs[0]) != 5 {
			t.Errorf("mesh %q: expected full global table of 5, got %d", m.Name, len(m.Positions))
		}
	}
	// The shared corners of b resolve to a's vertices.
	if got := b.Faces[0]; got[0] != 0 || got[1] != 1 || got[2] != 4 {
		t.Errorf("mesh tri face = %v, want [0 1 4]", got)
	}
	// Copies, not aliases.
	a.Positions[0] = math.Vec3{X: 9, Y: 9, Z: 9}
	if b.Positions[0] == a.Positions[0] {
		t.Error("global vertex arrays are shared between meshes")
	}
	if empty.Positions != nil {
		t.Error("empty mesh should be left untouched")
	}
}

func TestDedupScene_ValidationIsAtomic(t *testing.T) {
	good := quadMesh()
	bad := quadMesh()
	bad.Faces[0] = Face{0, 1, 99}
	s := &Scene{Meshes: []*Mesh{good, bad}}

	if _, err := DedupScene(s, Options{MergeAll: true}); err == nil {
		t.Fatal("expected error")
	}
	if len(good.Positions) != 6 {
		t.Error("valid mesh was modified before the scene failed validation")
	}
}

func TestVertexTable_HashCollisionTolerated(t *testing.T) {
	tbl := newVertexTable(DefaultEpsilon)
	a := Vertex{Position: math.Vec3{X: 1, Y: 2, Z: 3}}
	b := Vertex{Position: math.Vec3{X: 1, Y: 2, Z: 4}}
	// Force both into the same bucket to exercise the equality check.
	h := a.hash()
	tbl.verts = append(tbl.verts, a)
	tbl.buckets[h] = []uint32{0}

	if idx := tbl.index(a); idx != 0 {
		t.Errorf("index(a) = %d, want 0", idx)
	}
	tbl.buckets[b.hash()] = tbl.buckets[h]
	if idx := tbl.index(b); idx != 1 {
		t.Errorf("index(b) = %d, want 1 (collision must not merge)", idx)
	}
}

func TestSceneRemoveTextureInfo(t *testing.T) {
	m := quadMesh()
	m.Material = 0
	s := &Scene{
		Meshes:    []*Mesh{m},
		Materials: []Material{{Name: "wood", DiffuseTexture: "wood.png", EmbeddedTexture: -1}},
		Textures:  []Texture{{Name: "wood", MimeType: "image/png", Data: []byte{1}}},
	}
	s.RemoveTextureInfo()

	if s.HasMaterials() || len(s.Textures) != 0 {
		t.Error("expected materials and textures to be removed")
	}
	if m.Material != -1 {
		t.Errorf("expected mesh material -1, got %d", m.Material)
	}
	if len(m.Positions) != 6 || len(m.Faces) != 2 {
		t.Error("geometry changed by RemoveTextureInfo")
	}
}
