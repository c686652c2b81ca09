package mesh

import "github.com/Faultbox/pzshrink/pkg/math"

// GenerateNormals fills in smooth vertex normals for a mesh that has none. Each
// vertex gets the normalised sum of the unnormalised normals of the triangles
// using it, which weights faces by area. Vertices used by no valid triangle get
// +Y. Meshes that already have normals are left alone.
func GenerateNormals(m *Mesh) {
	if m.HasNormals() || len(m.Positions) == 0 {
		return
	}
	n := len(m.Positions)
	acc := make([]math.Vec3, n)
	for _, f := range m.Faces {
		if len(f) != 3 || int(f[0]) >= n || int(f[1]) >= n || int(f[2]) >= n {
			continue
		}
		a, b, c := m.Positions[f[0]], m.Positions[f[1]], m.Positions[f[2]]
		fn := b.Sub(a).Cross(c.Sub(a))
		for _, idx := range f {
			acc[idx] = acc[idx].Add(fn)
		}
	}
	for i, v := range acc {
		v = v.Normalize()
		if v == (math.Vec3{}) {
			v = math.Up
		}
		acc[i] = v
	}
	m.Normals = acc
}
