// Package discovery finds the assets of a workshop folder.
//
// A workshop folder holds one directory per mod. Each mod keeps its content under
// mods/, where every directory containing a mod.info file is a mod base. Texture
// references are read from the script (*.txt) and clothing (*.xml) files of
// each base.
package discovery

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/pzshrink/internal/logger"
	"github.com/Faultbox/pzshrink/pkg/encoding"
)

// Discovery errors.
var (
	ErrRootNotFound = errors.New("workshop folder not found")
	ErrCorruptMod   = errors.New("corrupted mod, has no mods directory")
)

var (
	textureRe = regexp.MustCompile(`texture\s*=\s*(?:"([^"\r\n]*?)"|'([^'\r\n]*?)'|([^,\r\n]+))`)
	iconRe    = regexp.MustCompile(`Icon\s*=\s*(?:"([^"\r\n]*?)"|'([^'\r\n]*?)'|([^,\r\n]+))`)

	textureElements = map[string]bool{"textureChoices": true, "m_BaseTextures": true}
)

// Targets selects the categories to look for.
type Targets struct {
	IconTextures  bool
	ModelTextures bool
	AllTextures   bool
	Packs         bool
	OBJModels     bool
	GLTFModels    bool
}

// Assets lists discovered files per category, each in first-seen order without
// duplicates.
type Assets struct {
	Mods     int // Mod directories scanned, corrupt ones included
	Textures []string
	Packs    []string
	Models   []string
}

// Count returns the number of files found.
func (a *Assets) Count() int {
	return len(a.Textures) + len(a.Packs) + len(a.Models)
}

// orderedSet accumulates paths, ignoring repeats.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(paths ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, p := range paths {
		if _, ok := s.seen[p]; ok {
			continue
		}
		s.seen[p] = struct{}{}
		s.items = append(s.items, p)
	}
}

// Scan walks every mod of the workshop folder at root. Mods without a mods
// directory are logged and skipped.
func Scan(root string, t Targets) (*Assets, error) {
	log := logger.Named("discovery")

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading workshop folder: %w", err)
	}

	var textures, packs, models orderedSet
	assets := &Assets{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		assets.Mods++
		mod := filepath.Join(root, e.Name())

		bases, err := ModBases(mod)
		if err != nil {
			log.Warn("skipping mod", zap.String("mod", e.Name()), zap.Error(err))
			continue
		}

		if t.AllTextures || t.IconTextures || t.ModelTextures {
			found, err := findTextures(bases, t, log)
			if err != nil {
				return nil, err
			}
			textures.add(found...)
		}
		if t.Packs {
			found, err := findFiles(bases, ".pack")
			if err != nil {
				return nil, err
			}
			packs.add(found...)
		}
		if t.OBJModels {
			found, err := findFiles(bases, ".obj")
			if err != nil {
				return nil, err
			}
			models.add(found...)
		}
		if t.GLTFModels {
			found, err := findFiles(bases, ".gltf", ".glb")
			if err != nil {
				return nil, err
			}
			models.add(found...)
		}
	}

	assets.Textures = textures.items
	assets.Packs = packs.items
	assets.Models = models.items
	log.Info("scan finished",
		zap.Int("mods", assets.Mods),
		zap.Int("textures", len(assets.Textures)),
		zap.Int("packs", len(assets.Packs)),
		zap.Int("models", len(assets.Models)))
	return assets, nil
}

// ModBases returns the directories under mod/mods that contain a mod.info file.
func ModBases(mod string) ([]string, error) {
	mods := filepath.Join(mod, "mods")
	if info, err := os.Stat(mods); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCorruptMod, mod)
	}

	var bases []string
	err := filepath.WalkDir(mods, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "mod.info" {
			bases = append(bases, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing mod bases: %w", err)
	}
	return bases, nil
}

// findFiles lists files under every base whose extension matches one of exts,
// ignoring case.
func findFiles(bases []string, exts ...string) ([]string, error) {
	var out orderedSet
	for _, base := range bases {
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			for _, want := range exts {
				if strings.EqualFold(ext, want) {
					out.add(path)
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", base, err)
		}
	}
	return out.items, nil
}

// findTextures resolves the textures of one mod. With AllTextures only the first
// base is scanned and every PNG in it is returned.
func findTextures(bases []string, t Targets, log *zap.Logger) ([]string, error) {
	var out orderedSet
	for _, base := range bases {
		if t.AllTextures {
			found, err := findFiles([]string{base}, ".png")
			if err != nil {
				return nil, err
			}
			out.add(found...)
			break
		}

		if t.IconTextures || t.ModelTextures {
			scripts, err := findFiles([]string{base}, ".txt")
			if err != nil {
				return nil, err
			}
			for _, script := range scripts {
				raw, err := os.ReadFile(script)
				if err != nil {
					return nil, fmt.Errorf("reading script: %w", err)
				}
				data := []byte(encoding.DecodeText(raw))
				if t.ModelTextures {
					for _, v := range matchValues(textureRe, data) {
						out.add(existing(texturePath(base, v))...)
					}
				}
				if t.IconTextures {
					for _, v := range matchValues(iconRe, data) {
						out.add(existing(texturePath(base, "Item_"+v))...)
					}
				}
			}
		}

		if t.ModelTextures {
			docs, err := findFiles([]string{base}, ".xml")
			if err != nil {
				return nil, err
			}
			for _, doc := range docs {
				values, err := xmlTextures(doc)
				if err != nil {
					log.Warn("skipping unreadable xml", zap.String("file", doc), zap.Error(err))
					continue
				}
				for _, v := range values {
					out.add(existing(texturePath(base, v))...)
				}
			}
		}
	}
	return out.items, nil
}

// matchValues returns the assigned value of every match: the double-quoted,
// single-quoted or bare form, whichever matched. Bare values are trimmed.
func matchValues(re *regexp.Regexp, data []byte) []string {
	var out []string
	for _, m := range re.FindAllSubmatch(data, -1) {
		switch {
		case m[1] != nil:
			out = append(out, string(m[1]))
		case m[2] != nil:
			out = append(out, string(m[2]))
		case m[3] != nil:
			if v := strings.TrimSpace(string(m[3])); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// texturePath maps a texture name to base/media/textures/<name>.png. Names may
// use either slash direction.
func texturePath(base, name string) string {
	return filepath.Join(base, "media", "textures", encoding.NormalizePath(name)) + ".png"
}

func existing(path string) []string {
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return []string{path}
	}
	return nil
}

// xmlTextures returns the text content of every textureChoices and
// m_BaseTextures element in the document.
func xmlTextures(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	var open []*strings.Builder
	dec := xml.NewDecoder(encoding.NewReader(f))
	dec.Strict = false
	dec.CharsetReader = encoding.CharsetReader
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if textureElements[el.Name.Local] {
				open = append(open, &strings.Builder{})
			} else {
				open = append(open, nil)
			}
		case xml.CharData:
			for _, b := range open {
				if b != nil {
					b.Write(el)
				}
			}
		case xml.EndElement:
			if len(open) == 0 {
				continue
			}
			b := open[len(open)-1]
			open = open[:len(open)-1]
			if b != nil {
				if v := strings.TrimSpace(b.String()); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out, nil
}
