// Package encoding decodes the text assets mods ship: scripts, clothing XML,
// OBJ models and material libraries written by assorted editors.
package encoding

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// bomOverride strips a UTF-8 byte order mark and decodes UTF-16 when a UTF-16
// mark is present. Text without a mark passes through unchanged.
func bomOverride() transform.Transformer {
	return unicode.BOMOverride(transform.Nop)
}

// NewReader wraps r so that it yields UTF-8 without a byte order mark.
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, bomOverride())
}

// CharsetReader converts input declared in the named charset to UTF-8. It suits
// xml.Decoder.CharsetReader for documents already read through NewReader, so
// Unicode labels pass the input through as is.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.HasPrefix(strings.ToLower(label), "utf") {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// DecodeText converts file content to a UTF-8 string. A byte order mark selects
// UTF-8 or UTF-16. Content that is still not valid UTF-8 is read as
// Windows-1252, the usual encoding of text saved by older Windows editors.
func DecodeText(data []byte) string {
	out, _, err := transform.Bytes(bomOverride(), data)
	if err != nil {
		out = data
	}
	if utf8.Valid(out) {
		return string(out)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(out)
	if err != nil {
		return string(out)
	}
	return string(s)
}

// NormalizePath converts a path written with either slash direction to the
// host separator.
func NormalizePath(path string) string {
	return filepath.FromSlash(strings.ReplaceAll(path, `\`, "/"))
}
