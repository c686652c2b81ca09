// Package pack reads and writes texture pack files: a PNG atlas plus a table of
// named sub-rectangles grouped into pages.
//
// Two layouts exist. V1 stores the page table, then the PNG bytes, then a
// 0xDEADBEEF terminator. V2 starts with the "PZPK" magic and a version number and
// stores the PNG length before the PNG bytes. Both are little-endian and use
// int32-length-prefixed strings.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
)

const (
	v2Magic      = "PZPK"
	v2FileFormat = 1
	v1Terminator = 0xDEADBEEF

	maxPages   = 1 << 16
	maxEntries = 1 << 20
	maxString  = 1 << 16
)

// Pack format errors.
var (
	ErrUnknownFormat = errors.New("not a texture pack")
	ErrTruncated     = errors.New("truncated pack data")
	ErrCorrupt       = errors.New("corrupt pack data")
	ErrNoImage       = errors.New("pack has no image data")
)

// Version identifies the on-disk layout of a pack.
type Version int

const (
	VersionUnknown Version = iota
	V1
	V2
)

// String returns a short version name.
func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Point is a pixel position.
type Point struct {
	X, Y int32
}

// Size is a pixel extent.
type Size struct {
	W, H int32
}

// Entry is a named sub-image of the atlas.
type Entry struct {
	Name        string
	Offset      Point // Top-left of the rectangle in the atlas
	Size        Size  // Rectangle extent in the atlas
	FrameOffset Point // Trimmed-sprite offset inside its original frame
	FrameSize   Size  // Original untrimmed frame size
}

// Page groups entries under a name.
type Page struct {
	Name     string
	Entries  []Entry
	HasAlpha bool
}

// Container is a decoded pack file.
type Container struct {
	Version Version
	Pages   []Page
	Image   []byte // PNG-encoded atlas
}

// Detect reports the layout of the pack at path without fully decoding it.
func Detect(path string) (Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VersionUnknown, err
	}
	return DetectBytes(data), nil
}

// DetectBytes reports the layout of an in-memory pack.
func DetectBytes(data []byte) Version {
	if len(data) >= 8 && string(data[:4]) == v2Magic {
		if binary.LittleEndian.Uint32(data[4:]) == v2FileFormat {
			return V2
		}
		return VersionUnknown
	}
	if len(data) >= 8 && binary.LittleEndian.Uint32(data[len(data)-4:]) == v1Terminator {
		n := int32(binary.LittleEndian.Uint32(data))
		if n >= 0 && n <= maxPages {
			return V1
		}
	}
	return VersionUnknown
}

// Open reads and decodes the pack at path.
func Open(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening pack: %w", err)
	}
	return Parse(data)
}

// Parse decodes a pack from raw bytes, dispatching on its detected version.
func Parse(data []byte) (*Container, error) {
	switch DetectBytes(data) {
	case V1:
		return parseV1(data)
	case V2:
		return parseV2(data)
	default:
		return nil, ErrUnknownFormat
	}
}

func parseV1(data []byte) (*Container, error) {
	body := data[:len(data)-4] // strip terminator
	r := bytes.NewReader(body)

	pages, err := readPages(r)
	if err != nil {
		return nil, err
	}

	img := make([]byte, r.Len())
	if _, err := io.ReadFull(r, img); err != nil {
		return nil, fmt.Errorf("%w: reading image", ErrTruncated)
	}

	return &Container{Version: V1, Pages: pages, Image: img}, nil
}

func parseV2(data []byte) (*Container, error) {
	r := bytes.NewReader(data[8:]) // magic + format version

	pages, err := readPages(r)
	if err != nil {
		return nil, err
	}

	var imgLen int32
	if err := binary.Read(r, binary.LittleEndian, &imgLen); err != nil {
		return nil, fmt.Errorf("%w: reading image length", ErrTruncated)
	}
	if imgLen < 0 || int64(imgLen) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: image length %d exceeds remaining %d bytes", ErrCorrupt, imgLen, r.Len())
	}

	img := make([]byte, imgLen)
	if _, err := io.ReadFull(r, img); err != nil {
		return nil, fmt.Errorf("%w: reading image", ErrTruncated)
	}

	return &Container{Version: V2, Pages: pages, Image: img}, nil
}

func readPages(r *bytes.Reader) ([]Page, error) {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading page count", ErrTruncated)
	}
	if count < 0 || count > maxPages {
		return nil, fmt.Errorf("%w: page count %d", ErrCorrupt, count)
	}

	pages := make([]Page, 0, count)
	for i := int32(0); i < count; i++ {
		p, err := readPage(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func readPage(r *bytes.Reader) (Page, error) {
	name, err := readString(r)
	if err != nil {
		return Page{}, err
	}

	var hdr struct {
		Count int32
		Mask  int32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return Page{}, fmt.Errorf("%w: reading page header", ErrTruncated)
	}
	if hdr.Count < 0 || hdr.Count > maxEntries {
		return Page{}, fmt.Errorf("%w: entry count %d", ErrCorrupt, hdr.Count)
	}

	p := Page{Name: name, HasAlpha: hdr.Mask != 0, Entries: make([]Entry, 0, hdr.Count)}
	for i := int32(0); i < hdr.Count; i++ {
		e, err := readEntry(r)
		if err != nil {
			return Page{}, fmt.Errorf("entry %d: %w", i, err)
		}
		p.Entries = append(p.Entries, e)
	}
	return p, nil
}

func readEntry(r *bytes.Reader) (Entry, error) {
	name, err := readString(r)
	if err != nil {
		return Entry{}, err
	}

	var raw [8]int32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return Entry{}, fmt.Errorf("%w: reading entry rectangle", ErrTruncated)
	}

	return Entry{
		Name:        name,
		Offset:      Point{raw[0], raw[1]},
		Size:        Size{raw[2], raw[3]},
		FrameOffset: Point{raw[4], raw[5]},
		FrameSize:   Size{raw[6], raw[7]},
	}, nil
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("%w: reading string length", ErrTruncated)
	}
	if n < 0 || n > maxString || int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%w: string length %d", ErrCorrupt, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: reading string", ErrTruncated)
	}
	return string(buf), nil
}

// ImageSize returns the pixel dimensions of the embedded atlas.
func (c *Container) ImageSize() (int, int, error) {
	if len(c.Image) == 0 {
		return 0, 0, ErrNoImage
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(c.Image))
	if err != nil {
		return 0, 0, fmt.Errorf("reading atlas header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// EntryCount returns the number of entries across all pages.
func (c *Container) EntryCount() int {
	n := 0
	for _, p := range c.Pages {
		n += len(p.Entries)
	}
	return n
}
