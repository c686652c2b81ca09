// Package math provides vector types used by mesh processing.
package math

import "math"

// Vec2 is a 2D vector, used for texture coordinates.
type Vec2 struct {
	X, Y float32
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

// ApproxEqual reports whether every component differs by less than eps.
func (v Vec2) ApproxEqual(other Vec2, eps float32) bool {
	return absf(v.X-other.X) < eps && absf(v.Y-other.Y) < eps
}

// Bits returns the raw IEEE-754 bit patterns of the components.
func (v Vec2) Bits() [2]uint32 {
	return [2]uint32{math.Float32bits(v.X), math.Float32bits(v.Y)}
}

func absf(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
