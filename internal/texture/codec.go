// Package texture decodes, resizes and re-encodes raster textures.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for files whose format cannot be determined.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is a raster file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
	FormatBMP
	FormatTGA
	FormatWebP
)

// String returns the conventional lower-case format name.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatBMP:
		return "bmp"
	case FormatTGA:
		return "tga"
	case FormatWebP:
		return "webp"
	default:
		return "unknown"
	}
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".bmp":
		return FormatBMP
	case ".tga":
		return FormatTGA
	case ".webp":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// Sniff identifies a format from its magic bytes. TGA has no magic and is never
// reported.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte("\xff\xd8")):
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("BM")):
		return FormatBMP
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// Decode decodes data as format f. Decoders are called directly instead of going
// through image.Decode because TGA registers without a magic string.
func Decode(data []byte, f Format) (image.Image, error) {
	r := bytes.NewReader(data)
	switch f {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatBMP:
		return bmp.Decode(r)
	case FormatTGA:
		return tga.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// Encoder writes images. The zero value uses the package defaults.
type Encoder struct {
	JPEGQuality int // 1-100, defaults to 90
}

// Encode writes img to w as format f. PNG output uses the best compression level.
func (e Encoder) Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case FormatJPEG:
		q := e.JPEGQuality
		if q <= 0 || q > 100 {
			q = 90
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTGA:
		return tga.Encode(w, img)
	case FormatWebP:
		return nativewebp.Encode(w, img, nil)
	default:
		return ErrUnsupportedFormat
	}
}

// Load reads and decodes the image at path. The format comes from the magic
// bytes when recognisable and from the extension otherwise.
func Load(path string) (image.Image, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("texture: read %s: %w", path, err)
	}
	f := Sniff(data)
	if f == FormatUnknown {
		f = FormatFromPath(path)
	}
	img, err := Decode(data, f)
	if err != nil {
		return nil, f, fmt.Errorf("texture: decode %s as %s: %w", path, f, err)
	}
	return img, f, nil
}

// Save encodes img and replaces the file at path. The file is left untouched if
// encoding fails.
func (e Encoder) Save(path string, img image.Image, f Format) error {
	var buf bytes.Buffer
	if err := e.Encode(&buf, img, f); err != nil {
		return fmt.Errorf("texture: encode %s as %s: %w", path, f, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("texture: write %s: %w", path, err)
	}
	return nil
}

// Codec bundles the package functions with an Encoder so they can be passed
// around as one value.
type Codec struct {
	Encoder
}

// Load reads and decodes the image at path.
func (Codec) Load(path string) (image.Image, Format, error) {
	return Load(path)
}

// Decode decodes data as format f.
func (Codec) Decode(data []byte, f Format) (image.Image, error) {
	return Decode(data, f)
}

// Resize scales img to w x h.
func (Codec) Resize(img image.Image, w, h int) image.Image {
	return Resize(img, w, h)
}
