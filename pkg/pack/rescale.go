package pack

import (
	"math"

	"github.com/Faultbox/pzshrink/pkg/resize"
)

// Rescale remaps every entry rectangle from an atlas of size from to one of size
// to. Offsets and sizes are scaled per axis and rounded half-to-even, then clamped
// so each rectangle stays inside the new atlas. Frame offsets and frame sizes
// describe the untrimmed sprite and are left as they are.
func (c *Container) Rescale(from, to resize.Dimension) {
	if from.Width == 0 || from.Height == 0 {
		return
	}
	sx := float64(to.Width) / float64(from.Width)
	sy := float64(to.Height) / float64(from.Height)

	for pi := range c.Pages {
		entries := c.Pages[pi].Entries
		for ei := range entries {
			e := &entries[ei]
			e.Offset = Point{scale(e.Offset.X, sx), scale(e.Offset.Y, sy)}
			e.Size = Size{scale(e.Size.W, sx), scale(e.Size.H, sy)}
			clampEntry(e, int32(to.Width), int32(to.Height))
		}
	}
}

func scale(v int32, f float64) int32 {
	return int32(math.RoundToEven(float64(v) * f))
}

func clampEntry(e *Entry, w, h int32) {
	e.Offset.X = min(max(e.Offset.X, 0), w)
	e.Offset.Y = min(max(e.Offset.Y, 0), h)
	e.Size.W = min(max(e.Size.W, 0), w-e.Offset.X)
	e.Size.H = min(max(e.Size.H, 0), h-e.Offset.Y)
}
