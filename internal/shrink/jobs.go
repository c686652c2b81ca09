package shrink

import (
	"bytes"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/pzshrink/internal/texture"
	"github.com/Faultbox/pzshrink/pkg/mesh"
	"github.com/Faultbox/pzshrink/pkg/pack"
	"github.com/Faultbox/pzshrink/pkg/resize"
)

// shrinkTexture resizes a standalone image in place, keeping its format.
func (r *Runner) shrinkTexture(path string, log *zap.Logger, _ *Result) (Outcome, error) {
	img, format, err := r.Images.Load(path)
	if err != nil {
		return Failed, err
	}

	w, h := texture.Size(img)
	from := resize.Dimension{Width: w, Height: h}
	to, changed := resize.Changed(from, r.Constraint)
	if !changed {
		log.Info("skipping texture, no resizing needed", zap.String("file", filepath.Base(path)), zap.Stringer("size", from))
		return Unchanged, nil
	}

	log.Info("resizing texture", zap.String("file", filepath.Base(path)), zap.Stringer("from", from), zap.Stringer("to", to))
	if err := r.Images.Save(path, r.Images.Resize(img, to.Width, to.Height), format); err != nil {
		return Failed, err
	}
	return Modified, nil
}

// shrinkAtlas resizes the image of a texture pack and remaps its entries.
// Files that are not packs and packs without an image are skipped.
func (r *Runner) shrinkAtlas(path string, log *zap.Logger, _ *Result) (Outcome, error) {
	name := filepath.Base(path)

	v, err := pack.Detect(path)
	if err != nil {
		return Failed, fmt.Errorf("reading pack: %w", err)
	}
	if v == pack.VersionUnknown {
		log.Warn("skipping file, not a texture pack", zap.String("file", name))
		return Unchanged, nil
	}

	c, err := pack.Open(path)
	if err != nil {
		return Failed, err
	}
	if len(c.Image) == 0 {
		log.Warn("skipping pack, no image data", zap.String("file", name))
		return Unchanged, nil
	}

	w, h, err := c.ImageSize()
	if err != nil {
		return Failed, err
	}
	from := resize.Dimension{Width: w, Height: h}
	to, changed := resize.Changed(from, r.Constraint)
	if !changed {
		log.Info("skipping pack, no resizing needed", zap.String("file", name), zap.Stringer("size", from))
		return Unchanged, nil
	}

	img, err := r.Images.Decode(c.Image, texture.FormatPNG)
	if err != nil {
		return Failed, fmt.Errorf("decoding pack image: %w", err)
	}

	log.Info("resizing pack", zap.String("file", name), zap.Stringer("version", v),
		zap.Stringer("from", from), zap.Stringer("to", to), zap.Int("entries", c.EntryCount()))

	var buf bytes.Buffer
	if err := r.Images.Encode(&buf, r.Images.Resize(img, to.Width, to.Height), texture.FormatPNG); err != nil {
		return Failed, fmt.Errorf("encoding pack image: %w", err)
	}
	c.Image = buf.Bytes()
	c.Rescale(from, to)

	if err := c.Save(path); err != nil {
		return Failed, err
	}
	return Modified, nil
}

// shrinkModel deduplicates the vertices of a model and writes it back in its own
// format. A model is left untouched when no mesh was rebuilt and no texture
// information was removed.
func (r *Runner) shrinkModel(path string, log *zap.Logger, res *Result) (Outcome, error) {
	name := filepath.Base(path)
	log.Debug("processing model", zap.String("file", name))

	s, err := r.Scenes.Import(path)
	if err != nil {
		return Failed, err
	}
	before := s.VertexCount()

	st, err := mesh.DedupScene(s, r.Model.Options)
	if err != nil {
		return Failed, err
	}
	addStats(&res.Meshes, st)

	stripped := false
	if r.Model.RemoveTextureInfo && (s.HasMaterials() || len(s.Textures) > 0) {
		s.RemoveTextureInfo()
		stripped = true
	}

	if st.Rewritten == 0 && !stripped {
		log.Info("skipping model, nothing to rewrite", zap.String("file", name), zap.Int("meshes", len(s.Meshes)))
		return Unchanged, nil
	}

	if err := r.Scenes.Export(s, path); err != nil {
		return Failed, err
	}
	log.Info("rewrote model", zap.String("file", name),
		zap.Int("meshes", st.Rewritten),
		zap.Int("empty_meshes", st.Skipped),
		zap.Int("vertices_before", before),
		zap.Int("vertices_after", s.VertexCount()),
		zap.Bool("texture_info_removed", stripped))
	return Modified, nil
}

func addStats(dst *mesh.Stats, st mesh.Stats) {
	dst.Rewritten += st.Rewritten
	dst.Skipped += st.Skipped
	dst.VerticesIn += st.VerticesIn
	dst.VerticesOut += st.VerticesOut
	dst.Stored += st.Stored
	dst.DroppedFaces += st.DroppedFaces
}
