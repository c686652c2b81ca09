// Package resize decides target dimensions for raster assets.
package resize

import (
	"errors"
	"fmt"
	"math"
)

// ErrPrecondition marks constraint values that must be rejected before any work starts.
var ErrPrecondition = errors.New("invalid size constraint")

// Dimension is a width/height pair in pixels.
type Dimension struct {
	Width  int
	Height int
}

// String returns the dimension as "WxH".
func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Area returns Width*Height without overflowing on large images.
func (d Dimension) Area() int64 {
	return int64(d.Width) * int64(d.Height)
}

// Constraint bounds the side lengths of a processed image.
type Constraint struct {
	Min   int     // Images with a side below Min are left alone
	Max   int     // Result area may not exceed Max*Max
	Ratio float64 // Scale factor applied before clamping
}

// MaxSide is the largest side length a constraint may name.
const MaxSide = math.MaxInt32

// Validate rejects negative values and sizes above MaxSide.
func (c Constraint) Validate() error {
	if c.Min < 0 || c.Max < 0 {
		return fmt.Errorf("%w: sizes must not be negative (min=%d max=%d)", ErrPrecondition, c.Min, c.Max)
	}
	if c.Min > MaxSide || c.Max > MaxSide {
		return fmt.Errorf("%w: sizes must not exceed %d (min=%d max=%d)", ErrPrecondition, MaxSide, c.Min, c.Max)
	}
	if c.Ratio < 0 || math.IsNaN(c.Ratio) || math.IsInf(c.Ratio, 0) {
		return fmt.Errorf("%w: scale ratio must be a non-negative number (ratio=%v)", ErrPrecondition, c.Ratio)
	}
	return nil
}

// Resolve returns the size an image of the given dimensions should be resized to.
//
// Images with a zero side or a side smaller than Min are returned unchanged. Otherwise
// both sides are scaled by Ratio; if the result has more than Max*Max pixels the longer
// side is fitted to Max, and if either side then falls below Min the shorter side is
// fitted to Min. Both checks keep the original aspect ratio. All rounding is
// half-to-even and every computed side saturates at MaxSide.
func Resolve(original Dimension, c Constraint) Dimension {
	w, h := original.Width, original.Height
	if w == 0 || h == 0 {
		return original
	}
	if w < c.Min || h < c.Min {
		return original
	}

	out := Dimension{
		Width:  round(float64(w) * c.Ratio),
		Height: round(float64(h) * c.Ratio),
	}

	limit := min(c.Max, MaxSide)
	if out.Area() > int64(limit)*int64(limit) {
		if w > h {
			out = Dimension{Width: limit, Height: round(float64(h) * float64(limit) / float64(w))}
		} else {
			out = Dimension{Width: round(float64(w) * float64(limit) / float64(h)), Height: limit}
		}
	}

	if out.Width < c.Min || out.Height < c.Min {
		if w < h {
			out = Dimension{Width: c.Min, Height: round(float64(h) * float64(c.Min) / float64(w))}
		} else {
			out = Dimension{Width: round(float64(w) * float64(c.Min) / float64(h)), Height: c.Min}
		}
	}

	out.Width = max(out.Width, 1)
	out.Height = max(out.Height, 1)
	return out
}

// Changed reports whether resolving original under c produces a different size.
func Changed(original Dimension, c Constraint) (Dimension, bool) {
	d := Resolve(original, c)
	return d, d != original
}

func round(v float64) int {
	r := math.RoundToEven(v)
	switch {
	case math.IsNaN(r) || r <= 0:
		return 0
	case r >= MaxSide:
		return MaxSide
	}
	return int(r)
}
