package formats

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/pzshrink/pkg/math"
	"github.com/Faultbox/pzshrink/pkg/mesh"
)

// Two triangles of a quad written with separate corners for every face, as
// exporters that do not share vertices produce them.
const quadOBJ = `# quad
mtllib quad.mtl
o Quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl Wood
f 1/1/1 2/2/1 3/3/1
f 4/4/1 5/5/1 6/6/1
`

func TestParseOBJ_Quad(t *testing.T) {
	s, err := ParseOBJ(strings.NewReader(quadOBJ), "")
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	if len(s.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(s.Meshes))
	}

	m := s.Meshes[0]
	if m.Name != "Quad" {
		t.Errorf("name = %q, want Quad", m.Name)
	}
	if m.VertexCount() != 6 || m.TriangleCount() != 2 {
		t.Errorf("got %d vertices / %d triangles, want 6 / 2", m.VertexCount(), m.TriangleCount())
	}
	if !m.HasUV(0) || !m.HasNormals() {
		t.Error("expected uv and normal channels")
	}
	if m.Normals[0] != (math.Vec3{Z: 1}) {
		t.Errorf("normal = %v, want (0,0,1)", m.Normals[0])
	}
	if len(s.Materials) != 1 || s.Materials[0].Name != "Wood" || m.Material != 0 {
		t.Errorf("materials = %+v, mesh material %d", s.Materials, m.Material)
	}
}

func TestParseOBJ_WeldsIdenticalCorners(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3
f 1 3 4
`
	s, err := ParseOBJ(strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	m := s.Meshes[0]
	if m.VertexCount() != 4 {
		t.Errorf("expected 4 welded vertices, got %d", m.VertexCount())
	}
	if m.HasUV(0) {
		t.Error("no vt given, expected no uv channel")
	}
	// Normals are generated for the flat quad.
	for i, n := range m.Normals {
		if !n.ApproxEqual(math.Vec3{Z: 1}, 1e-6) {
			t.Errorf("generated normal %d = %v, want (0,0,1)", i, n)
		}
	}
}

func TestParseOBJ_PolygonAndNegativeIndices(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0.5 1.5 0
f -5 -4 -3 -2 -1
`
	s, err := ParseOBJ(strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	m := s.Meshes[0]
	want := []mesh.Face{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}
	if len(m.Faces) != len(want) {
		t.Fatalf("faces = %v, want %v", m.Faces, want)
	}
	for i := range want {
		for j := range want[i] {
			if m.Faces[i][j] != want[i][j] {
				t.Fatalf("faces = %v, want %v", m.Faces, want)
			}
		}
	}
}

func TestParseOBJ_SplitsOnGroupAndMaterial(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 1 1 0
o A
usemtl Red
f 1 2 3
usemtl Blue
f 1 2 3
o B
f 3 2 1
`
	s, err := ParseOBJ(strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	if len(s.Meshes) != 3 {
		t.Fatalf("expected 3 meshes, got %d", len(s.Meshes))
	}
	wantOrigins := []mesh.Origin{{Group: 0, Part: 0}, {Group: 0, Part: 1}, {Group: 1, Part: 0}}
	wantMaterials := []int{0, 1, 1}
	for i, m := range s.Meshes {
		if m.Origin != wantOrigins[i] {
			t.Errorf("mesh %d origin = %+v, want %+v", i, m.Origin, wantOrigins[i])
		}
		if m.Material != wantMaterials[i] {
			t.Errorf("mesh %d material = %d, want %d", i, m.Material, wantMaterials[i])
		}
	}
}

func TestParseOBJ_VertexColors(t *testing.T) {
	src := `v 0 0 0 1 0 0
v 1 0 0 0 1 0
v 1 1 0 0 0 1
f 1 2 3
`
	s, err := ParseOBJ(strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	m := s.Meshes[0]
	if len(m.Colors) != 1 || len(m.Colors[0]) != 3 {
		t.Fatalf("expected one color channel of 3, got %v", m.Colors)
	}
	if m.Colors[0][1] != (mesh.Color{G: 1, A: 1}) {
		t.Errorf("color = %+v, want green", m.Colors[0][1])
	}
}

func TestParseOBJ_Errors(t *testing.T) {
	tests := map[string]string{
		"bad number":   "v 0 x 0\n",
		"short vertex": "v 0 0\n",
		"out of range": "v 0 0 0\nf 1 2 3\n",
		"zero index":   "v 0 0 0\nf 0 1 1\n",
		"bad corner":   "v 0 0 0\nf 1/1/1/1 1 1\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseOBJ(strings.NewReader(src), ""); !errors.Is(err, ErrInvalidOBJ) {
				t.Errorf("expected ErrInvalidOBJ, got %v", err)
			}
		})
	}
}

func TestImportOBJ_MaterialLibrary(t *testing.T) {
	dir := t.TempDir()
	mtl := "newmtl Wood\nKd 1 1 1\nmap_Kd -s 1 1 1 Wood_Diffuse.png\n"
	if err := os.WriteFile(filepath.Join(dir, "quad.mtl"), []byte(mtl), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "quad.obj")
	if err := os.WriteFile(path, []byte(quadOBJ), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := ImportOBJ(path)
	if err != nil {
		t.Fatalf("ImportOBJ failed: %v", err)
	}
	if len(s.Materials) != 1 {
		t.Fatalf("expected 1 material, got %d", len(s.Materials))
	}
	if got := s.Materials[0].DiffuseTexture; got != "Wood_Diffuse.png" {
		t.Errorf("diffuse texture = %q, want Wood_Diffuse.png", got)
	}
}

func TestOBJ_DedupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quad.obj")
	if err := os.WriteFile(path, []byte(quadOBJ), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Import(path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if _, err := mesh.DedupScene(s, mesh.Options{}); err != nil {
		t.Fatalf("DedupScene failed: %v", err)
	}
	s.RemoveTextureInfo()
	if err := Export(s, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if strings.Contains(text, "mtllib") || strings.Contains(text, "usemtl") {
		t.Error("material references should be gone after RemoveTextureInfo")
	}

	again, err := Import(path)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	m := again.Meshes[0]
	if m.VertexCount() != 4 || m.TriangleCount() != 2 {
		t.Errorf("got %d vertices / %d triangles, want 4 / 2", m.VertexCount(), m.TriangleCount())
	}
	if !m.HasUV(0) || !m.HasNormals() {
		t.Error("uv and normal channels should survive the round trip")
	}
}
