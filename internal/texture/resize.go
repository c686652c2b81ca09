package texture

import (
	"image"

	"golang.org/x/image/draw"
)

// Resize scales src to w x h with the Catmull-Rom kernel. The result keeps the
// pixel format of src where the format can be drawn into; YCbCr and CMYK
// sources come back as RGBA and anything else unknown as NRGBA.
func Resize(src image.Image, w, h int) image.Image {
	dst := newLike(src, image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func newLike(src image.Image, r image.Rectangle) draw.Image {
	switch s := src.(type) {
	case *image.NRGBA:
		return image.NewNRGBA(r)
	case *image.RGBA:
		return image.NewRGBA(r)
	case *image.NRGBA64:
		return image.NewNRGBA64(r)
	case *image.RGBA64:
		return image.NewRGBA64(r)
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.Alpha:
		return image.NewAlpha(r)
	case *image.Paletted:
		return image.NewPaletted(r, s.Palette)
	case *image.YCbCr, *image.CMYK:
		return image.NewRGBA(r)
	default:
		return image.NewNRGBA(r)
	}
}

// Size returns the dimensions of img.
func Size(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
