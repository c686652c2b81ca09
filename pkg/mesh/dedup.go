package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/pzshrink/pkg/math"
)

// DefaultEpsilon is the per-component tolerance used when comparing vertices.
const DefaultEpsilon = 1e-5

// Dedup errors.
var (
	ErrIndexOutOfRange  = errors.New("face index out of range")
	ErrChannelTruncated = errors.New("vertex channel shorter than positions")
)

// Options controls a deduplication pass.
type Options struct {
	Epsilon  float32 // Defaults to DefaultEpsilon when zero
	MergeAll bool    // Share one vertex table across every mesh of the scene

	RemoveTangents bool
	RemoveExtraUVs bool
	RemoveColors   bool
}

// Stats summarises a deduplication pass.
type Stats struct {
	Rewritten    int // Meshes whose buffers were rebuilt
	Skipped      int // Meshes without vertices or faces
	VerticesIn   int
	VerticesOut  int // Unique vertices produced (global table size in merge mode)
	Stored       int // Vertices written into meshes; every mesh holds the whole table in merge mode
	DroppedFaces int // Non-triangular faces removed
}

// Vertex is the deduplication key: a corner's position, normal and primary UV.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       math.Vec2
}

// ApproxEqual reports whether every attribute matches within eps.
func (v Vertex) ApproxEqual(o Vertex, eps float32) bool {
	return v.Position.ApproxEqual(o.Position, eps) &&
		v.Normal.ApproxEqual(o.Normal, eps) &&
		v.UV.ApproxEqual(o.UV, eps)
}

// hash mixes the raw float bits with FNV-1a. Values that are approximately but
// not bitwise equal usually land in different buckets and are not merged.
func (v Vertex) hash() uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	mix := func(b uint32) {
		for i := 0; i < 4; i++ {
			h ^= uint64(byte(b >> (8 * i)))
			h *= prime
		}
	}
	for _, b := range v.Position.Bits() {
		mix(b)
	}
	for _, b := range v.Normal.Bits() {
		mix(b)
	}
	for _, b := range v.UV.Bits() {
		mix(b)
	}
	return h
}

// vertexTable assigns indices to unique vertices in first-seen order.
type vertexTable struct {
	eps     float32
	buckets map[uint64][]uint32
	verts   []Vertex
}

func newVertexTable(eps float32) *vertexTable {
	return &vertexTable{eps: eps, buckets: make(map[uint64][]uint32)}
}

func (t *vertexTable) index(v Vertex) uint32 {
	h := v.hash()
	for _, idx := range t.buckets[h] {
		if t.verts[idx].ApproxEqual(v, t.eps) {
			return idx
		}
	}
	idx := uint32(len(t.verts))
	t.verts = append(t.verts, v)
	t.buckets[h] = append(t.buckets[h], idx)
	return idx
}

func (t *vertexTable) arrays() (pos, nrm []math.Vec3, uv []math.Vec2) {
	pos = make([]math.Vec3, len(t.verts))
	nrm = make([]math.Vec3, len(t.verts))
	uv = make([]math.Vec2, len(t.verts))
	for i, v := range t.verts {
		pos[i], nrm[i], uv[i] = v.Position, v.Normal, v.UV
	}
	return pos, nrm, uv
}

// Dedup merges approximately equal vertices of a single mesh.
func Dedup(m *Mesh, opts Options) (Stats, error) {
	opts.MergeAll = false
	return DedupScene(&Scene{Meshes: []*Mesh{m}}, opts)
}

// DedupScene rebuilds the vertex and index buffers of every mesh in s so that
// approximately equal corners share one vertex. Triangle winding is kept and
// non-triangular faces are dropped.
//
// In merge-all mode a single table spans the scene and every rewritten mesh
// receives its own copy of the complete global vertex arrays, even when it only
// references a subset of them.
//
// Inputs are validated before anything is modified; on error the scene is left as
// it was.
func DedupScene(s *Scene, opts Options) (Stats, error) {
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	for _, m := range s.Meshes {
		if err := validate(m); err != nil {
			return Stats{}, err
		}
	}

	var st Stats
	var global *vertexTable
	if opts.MergeAll {
		global = newVertexTable(opts.Epsilon)
	}

	var rewritten []*Mesh
	var hadUV []bool
	for _, m := range s.Meshes {
		applyToggles(m, opts)
		if len(m.Positions) == 0 || len(m.Faces) == 0 {
			st.Skipped++
			continue
		}

		table := global
		if table == nil {
			table = newVertexTable(opts.Epsilon)
		}

		st.VerticesIn += len(m.Positions)
		faces, dropped := remapFaces(m, table)
		st.DroppedFaces += dropped
		m.Faces = faces

		if global == nil {
			withUV := m.HasUV(0)
			setVertices(m, table, withUV)
			st.VerticesOut += len(table.verts)
			st.Stored += len(table.verts)
		} else {
			rewritten = append(rewritten, m)
			hadUV = append(hadUV, m.HasUV(0))
		}
		st.Rewritten++
	}

	if global != nil {
		for i, m := range rewritten {
			setVertices(m, global, hadUV[i])
			st.Stored += len(global.verts)
		}
		st.VerticesOut = len(global.verts)
	}
	return st, nil
}

func applyToggles(m *Mesh, opts Options) {
	if opts.RemoveTangents {
		m.ClearTangents()
	}
	if opts.RemoveExtraUVs {
		m.ClearExtraUVs()
	}
	if opts.RemoveColors {
		m.ClearColors()
	}
}

func validate(m *Mesh) error {
	n := len(m.Positions)
	if m.HasNormals() && len(m.Normals) < n {
		return fmt.Errorf("%w: mesh %q has %d normals for %d positions", ErrChannelTruncated, m.Name, len(m.Normals), n)
	}
	if m.HasUV(0) && len(m.UVs[0]) < n {
		return fmt.Errorf("%w: mesh %q has %d UVs for %d positions", ErrChannelTruncated, m.Name, len(m.UVs[0]), n)
	}
	for fi, f := range m.Faces {
		if len(f) != 3 {
			continue
		}
		for _, idx := range f {
			if int(idx) >= n {
				return fmt.Errorf("%w: mesh %q face %d references vertex %d of %d", ErrIndexOutOfRange, m.Name, fi, idx, n)
			}
		}
	}
	return nil
}

// remapFaces resolves every triangle corner through table and returns the new
// faces plus the number of non-triangular faces dropped.
func remapFaces(m *Mesh, table *vertexTable) ([]Face, int) {
	hasNormals := m.HasNormals()
	hasUV := m.HasUV(0)

	faces := make([]Face, 0, len(m.Faces))
	dropped := 0
	for _, f := range m.Faces {
		if len(f) != 3 {
			dropped++
			continue
		}
		tri := make(Face, 3)
		for i, orig := range f {
			v := Vertex{Position: m.Positions[orig], Normal: math.Up}
			if hasNormals {
				v.Normal = m.Normals[orig]
			}
			if hasUV {
				v.UV = m.UVs[0][orig]
			}
			tri[i] = table.index(v)
		}
		faces = append(faces, tri)
	}
	return faces, dropped
}

// setVertices replaces m's vertex arrays with a copy of the table contents and
// clears the auxiliary channels, which no longer line up with the new vertices.
func setVertices(m *Mesh, table *vertexTable, withUV bool) {
	pos, nrm, uv := table.arrays()
	m.Positions = pos
	m.Normals = nrm
	if withUV {
		m.UVs = [][]math.Vec2{uv}
	} else {
		m.UVs = nil
	}
	m.Tangents = nil
	m.Bitangents = nil
	m.Colors = nil
}
