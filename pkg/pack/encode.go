package pack

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Encode writes the container in the layout given by its Version.
func (c *Container) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var err error
	switch c.Version {
	case V1:
		err = c.encodeV1(bw)
	case V2:
		err = c.encodeV2(bw)
	default:
		return fmt.Errorf("%w: cannot encode version %s", ErrUnknownFormat, c.Version)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// Save encodes the container and replaces the file at path. Nothing is written
// if encoding fails.
func (c *Container) Save(path string) error {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func (c *Container) encodeV1(w io.Writer) error {
	if err := writePages(w, c.Pages); err != nil {
		return err
	}
	if _, err := w.Write(c.Image); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(v1Terminator))
}

func (c *Container) encodeV2(w io.Writer) error {
	if _, err := io.WriteString(w, v2Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(v2FileFormat)); err != nil {
		return err
	}
	if err := writePages(w, c.Pages); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(c.Image))); err != nil {
		return err
	}
	_, err := w.Write(c.Image)
	return err
}

func writePages(w io.Writer, pages []Page) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(pages))); err != nil {
		return err
	}
	for _, p := range pages {
		if err := writeString(w, p.Name); err != nil {
			return err
		}
		var mask int32
		if p.HasAlpha {
			mask = 1
		}
		hdr := [2]int32{int32(len(p.Entries)), mask}
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return err
		}
		for _, e := range p.Entries {
			if err := writeString(w, e.Name); err != nil {
				return err
			}
			raw := [8]int32{
				e.Offset.X, e.Offset.Y, e.Size.W, e.Size.H,
				e.FrameOffset.X, e.FrameOffset.Y, e.FrameSize.W, e.FrameSize.H,
			}
			if err := binary.Write(w, binary.LittleEndian, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
