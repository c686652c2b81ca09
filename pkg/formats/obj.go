package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Faultbox/pzshrink/pkg/encoding"
	"github.com/Faultbox/pzshrink/pkg/math"
	"github.com/Faultbox/pzshrink/pkg/mesh"
)

// OBJ errors.
var (
	ErrInvalidOBJ   = errors.New("invalid obj data")
	ErrForeignScene = errors.New("scene was imported from another format")
)

// objDocument is the Scene.Native value of an imported OBJ file.
type objDocument struct {
	MtlLibs []string
}

// objCorner is a face corner as attribute indices, -1 when absent.
type objCorner struct {
	v, vt, vn int
}

type objPart struct {
	mesh    *mesh.Mesh
	corners map[objCorner]uint32
	src     []objCorner
}

type objReader struct {
	dir string

	positions []math.Vec3
	colors    []mesh.Color
	hasColor  bool
	texcoords []math.Vec2
	normals   []math.Vec3

	scene     *mesh.Scene
	doc       *objDocument
	materials map[string]int
	parts     []*objPart
	cur       *objPart

	group       int
	groupName   string
	partInGroup int
	material    int
}

// ImportOBJ reads a Wavefront OBJ file. Material libraries referenced by
// mtllib are read from the same directory when present.
func ImportOBJ(path string) (*mesh.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening obj: %w", err)
	}
	defer f.Close()
	return ParseOBJ(f, filepath.Dir(path))
}

// ParseOBJ reads OBJ text from r. dir is where material libraries are looked up;
// pass "" to skip them. Polygons are fan-triangulated. Line and point elements
// are not imported.
func ParseOBJ(r io.Reader, dir string) (*mesh.Scene, error) {
	or := &objReader{
		dir:       dir,
		scene:     &mesh.Scene{},
		doc:       &objDocument{},
		materials: make(map[string]int),
		group:     -1,
		material:  -1,
	}
	or.scene.Native = or.doc

	sc := bufio.NewScanner(encoding.NewReader(r))
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		if err := or.readLine(sc.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading obj: %w", err)
	}

	or.finish()
	return or.scene, nil
}

func (r *objReader) readLine(text string) error {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]

	switch fields[0] {
	case "v":
		vals, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		r.positions = append(r.positions, math.Vec3{X: vals[0], Y: vals[1], Z: vals[2]})
		c := mesh.Color{R: 1, G: 1, B: 1, A: 1}
		if len(vals) >= 6 {
			c = mesh.Color{R: vals[3], G: vals[4], B: vals[5], A: 1}
			r.hasColor = true
		}
		r.colors = append(r.colors, c)
	case "vt":
		vals, err := parseFloats(args, 1)
		if err != nil {
			return err
		}
		uv := math.Vec2{X: vals[0]}
		if len(vals) > 1 {
			uv.Y = vals[1]
		}
		r.texcoords = append(r.texcoords, uv)
	case "vn":
		vals, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		r.normals = append(r.normals, math.Vec3{X: vals[0], Y: vals[1], Z: vals[2]})
	case "f":
		return r.readFace(args)
	case "o", "g":
		r.group++
		r.groupName = strings.Join(args, " ")
		r.partInGroup = 0
		r.cur = nil
	case "usemtl":
		idx := r.materialIndex(strings.Join(args, " "))
		if idx != r.material {
			r.material = idx
			r.cur = nil
		}
	case "mtllib":
		for _, lib := range args {
			r.doc.MtlLibs = append(r.doc.MtlLibs, lib)
			if r.dir != "" {
				r.loadMTL(filepath.Join(r.dir, lib))
			}
		}
	}
	return nil
}

func (r *objReader) readFace(args []string) error {
	part := r.part()
	idx := make([]uint32, 0, len(args))
	for _, tok := range args {
		c, err := r.parseCorner(tok)
		if err != nil {
			return err
		}
		idx = append(idx, part.vertex(c))
	}

	m := part.mesh
	if len(idx) < 3 {
		m.Faces = append(m.Faces, mesh.Face(idx))
		return nil
	}
	for i := 1; i+1 < len(idx); i++ {
		m.Faces = append(m.Faces, mesh.Face{idx[0], idx[i], idx[i+1]})
	}
	return nil
}

func (r *objReader) part() *objPart {
	if r.cur != nil {
		return r.cur
	}
	if r.group < 0 {
		r.group = 0
	}
	name := r.groupName
	if name == "" {
		name = fmt.Sprintf("mesh_%d", len(r.parts))
	}
	p := &objPart{
		mesh: &mesh.Mesh{
			Name:     name,
			Origin:   mesh.Origin{Group: r.group, Part: r.partInGroup},
			Material: r.material,
		},
		corners: make(map[objCorner]uint32),
	}
	r.partInGroup++
	r.parts = append(r.parts, p)
	r.cur = p
	return p
}

func (p *objPart) vertex(c objCorner) uint32 {
	if i, ok := p.corners[c]; ok {
		return i
	}
	i := uint32(len(p.src))
	p.src = append(p.src, c)
	p.corners[c] = i
	return i
}

func (r *objReader) parseCorner(tok string) (objCorner, error) {
	c := objCorner{-1, -1, -1}
	parts := strings.Split(tok, "/")
	if len(parts) > 3 || parts[0] == "" {
		return c, fmt.Errorf("%w: face corner %q", ErrInvalidOBJ, tok)
	}

	var err error
	if c.v, err = resolveIndex(parts[0], len(r.positions)); err != nil {
		return c, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if c.vt, err = resolveIndex(parts[1], len(r.texcoords)); err != nil {
			return c, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if c.vn, err = resolveIndex(parts[2], len(r.normals)); err != nil {
			return c, err
		}
	}
	return c, nil
}

// resolveIndex turns a 1-based or negative relative OBJ index into a 0-based one.
func resolveIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", ErrInvalidOBJ, s)
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += n
	default:
		return 0, fmt.Errorf("%w: zero index", ErrInvalidOBJ)
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: index %s out of range (%d defined)", ErrInvalidOBJ, s, n)
	}
	return i, nil
}

func (r *objReader) materialIndex(name string) int {
	if i, ok := r.materials[name]; ok {
		return i
	}
	i := len(r.scene.Materials)
	r.scene.Materials = append(r.scene.Materials, mesh.Material{Name: name, EmbeddedTexture: -1})
	r.materials[name] = i
	return i
}

// loadMTL registers the materials of a library. A missing or unreadable library
// leaves materials without textures.
func (r *objReader) loadMTL(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	cur := -1
	for _, line := range strings.Split(encoding.DecodeText(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "newmtl":
			cur = r.materialIndex(strings.Join(fields[1:], " "))
		case "map_Kd":
			if cur >= 0 {
				// Options may precede the file name.
				r.scene.Materials[cur].DiffuseTexture = fields[len(fields)-1]
			}
		}
	}
}

// finish builds vertex arrays for every part from its welded corners.
func (r *objReader) finish() {
	for _, p := range r.parts {
		m := p.mesh
		var anyUV, anyN bool
		for _, c := range p.src {
			anyUV = anyUV || c.vt >= 0
			anyN = anyN || c.vn >= 0
		}

		m.Positions = make([]math.Vec3, len(p.src))
		var uvs []math.Vec2
		if anyUV {
			uvs = make([]math.Vec2, len(p.src))
		}
		if anyN {
			m.Normals = make([]math.Vec3, len(p.src))
		}
		var colors []mesh.Color
		if r.hasColor {
			colors = make([]mesh.Color, len(p.src))
		}

		for i, c := range p.src {
			m.Positions[i] = r.positions[c.v]
			if colors != nil {
				colors[i] = r.colors[c.v]
			}
			if anyUV && c.vt >= 0 {
				uvs[i] = r.texcoords[c.vt]
			}
			if anyN {
				m.Normals[i] = math.Up
				if c.vn >= 0 {
					m.Normals[i] = r.normals[c.vn]
				}
			}
		}
		if uvs != nil {
			m.UVs = [][]math.Vec2{uvs}
		}
		if colors != nil {
			m.Colors = [][]mesh.Color{colors}
		}
		mesh.GenerateNormals(m)

		r.scene.Meshes = append(r.scene.Meshes, m)
	}
}

func parseFloats(args []string, need int) ([]float32, error) {
	if len(args) < need {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidOBJ, need, len(args))
	}
	out := make([]float32, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrInvalidOBJ, a)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// ExportOBJ writes s as OBJ text. Material references are written only while
// the scene still has materials.
func ExportOBJ(s *mesh.Scene, path string) error {
	doc, ok := s.Native.(*objDocument)
	if s.Native != nil && !ok {
		return fmt.Errorf("exporting obj: %w", ErrForeignScene)
	}

	var buf bytes.Buffer
	writeOBJ(&buf, s, doc)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing obj: %w", err)
	}
	return nil
}

// writeOBJ formats s as OBJ text into buf. doc may be nil.
func writeOBJ(buf *bytes.Buffer, s *mesh.Scene, doc *objDocument) {
	buf.WriteString("# pzshrink\n")
	if s.HasMaterials() && doc != nil {
		for _, lib := range doc.MtlLibs {
			fmt.Fprintf(buf, "mtllib %s\n", lib)
		}
	}

	vBase, vtBase, vnBase := 1, 1, 1
	lastGroup := -1
	for _, m := range s.Meshes {
		if m.Origin.Group != lastGroup {
			fmt.Fprintf(buf, "o %s\n", m.Name)
			lastGroup = m.Origin.Group
		}

		n := len(m.Positions)
		hasColor := len(m.Colors) > 0 && len(m.Colors[0]) == n
		hasUV := m.HasUV(0) && len(m.UVs[0]) == n
		hasN := n > 0 && len(m.Normals) == n

		for i, p := range m.Positions {
			buf.WriteString("v ")
			writeFloats(buf, p.X, p.Y, p.Z)
			if hasColor {
				c := m.Colors[0][i]
				buf.WriteByte(' ')
				writeFloats(buf, c.R, c.G, c.B)
			}
			buf.WriteByte('\n')
		}
		if hasUV {
			for _, uv := range m.UVs[0] {
				buf.WriteString("vt ")
				writeFloats(buf, uv.X, uv.Y)
				buf.WriteByte('\n')
			}
		}
		if hasN {
			for _, nv := range m.Normals {
				buf.WriteString("vn ")
				writeFloats(buf, nv.X, nv.Y, nv.Z)
				buf.WriteByte('\n')
			}
		}

		if s.HasMaterials() && m.Material >= 0 && m.Material < len(s.Materials) {
			fmt.Fprintf(buf, "usemtl %s\n", s.Materials[m.Material].Name)
		}

		for _, f := range m.Faces {
			buf.WriteByte('f')
			for _, idx := range f {
				i := int(idx)
				switch {
				case hasUV && hasN:
					fmt.Fprintf(buf, " %d/%d/%d", vBase+i, vtBase+i, vnBase+i)
				case hasUV:
					fmt.Fprintf(buf, " %d/%d", vBase+i, vtBase+i)
				case hasN:
					fmt.Fprintf(buf, " %d//%d", vBase+i, vnBase+i)
				default:
					fmt.Fprintf(buf, " %d", vBase+i)
				}
			}
			buf.WriteByte('\n')
		}

		vBase += n
		if hasUV {
			vtBase += n
		}
		if hasN {
			vnBase += n
		}
	}
}

func writeFloats(buf *bytes.Buffer, vals ...float32) {
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
}
