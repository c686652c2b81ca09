// Package shrink runs batches of asset reductions: texture resizing, texture
// pack resizing and model vertex deduplication.
//
// A batch processes its items one after another in input order. A failing item
// is recorded and never stops the batch; Result.Err reports all failures at once.
package shrink

import (
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/pzshrink/internal/logger"
	"github.com/Faultbox/pzshrink/internal/texture"
	"github.com/Faultbox/pzshrink/pkg/formats"
	"github.com/Faultbox/pzshrink/pkg/mesh"
	"github.com/Faultbox/pzshrink/pkg/resize"
)

// Batch errors.
var (
	ErrUnknownKind = errors.New("unknown batch kind") // Recorded for every item of a batch with an invalid kind
	ErrItemPanic   = errors.New("item processing panicked")
)

// Kind selects the job a batch runs.
type Kind int

const (
	KindTexture Kind = iota
	KindAtlas
	KindModel
)

// String returns the kind name used in logs and summaries.
func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindAtlas:
		return "pack"
	case KindModel:
		return "model"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one item.
type Outcome int

const (
	Modified  Outcome = iota // File rewritten
	Unchanged                // Nothing to do, file untouched
	Failed                   // Error recorded, file untouched
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Modified:
		return "modified"
	case Unchanged:
		return "unchanged"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ItemError is the failure of a single batch item.
type ItemError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Result summarises one batch. Failed items count as skipped.
type Result struct {
	RunID     string
	Kind      Kind
	Processed int
	Skipped   int
	Errors    []*ItemError
	Meshes    mesh.Stats // Model batches only
	Elapsed   time.Duration
}

// Total returns the number of items seen.
func (r *Result) Total() int {
	return r.Processed + r.Skipped
}

// Err combines every item failure, or returns nil when there were none.
func (r *Result) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, e)
	}
	return err
}

// ImageCodec decodes, resizes and encodes raster images.
type ImageCodec interface {
	Load(path string) (image.Image, texture.Format, error)
	Save(path string, img image.Image, f texture.Format) error
	Decode(data []byte, f texture.Format) (image.Image, error)
	Encode(w io.Writer, img image.Image, f texture.Format) error
	Resize(img image.Image, w, h int) image.Image
}

// SceneCodec reads and writes model files.
type SceneCodec interface {
	Import(path string) (*mesh.Scene, error)
	Export(s *mesh.Scene, path string) error
}

// ModelOptions controls the model job.
type ModelOptions struct {
	mesh.Options
	RemoveTextureInfo bool
}

// Runner holds the settings shared by every batch.
type Runner struct {
	Constraint resize.Constraint
	Model      ModelOptions
	Images     ImageCodec
	Scenes     SceneCodec
	Log        *zap.Logger
}

// NewRunner returns a runner using the file-based codecs and the global logger.
func NewRunner(c resize.Constraint, m ModelOptions) *Runner {
	return &Runner{
		Constraint: c,
		Model:      m,
		Images:     texture.Codec{},
		Scenes:     sceneFiles{},
		Log:        logger.Named("shrink"),
	}
}

type sceneFiles struct{}

func (sceneFiles) Import(path string) (*mesh.Scene, error) { return formats.Import(path) }

func (sceneFiles) Export(s *mesh.Scene, path string) error { return formats.Export(s, path) }

// job processes one item. Modified and Unchanged outcomes carry a nil error.
type job func(path string, log *zap.Logger, res *Result) (Outcome, error)

// Run processes items of the given kind and returns the batch summary. It does
// not stop on failures; check Result.Err.
func (r *Runner) Run(kind Kind, items []string) *Result {
	res := &Result{RunID: uuid.NewString(), Kind: kind}
	log := r.logger().With(zap.String("run", res.RunID), zap.Stringer("kind", kind))
	start := time.Now()

	var do job
	switch kind {
	case KindTexture:
		do = r.shrinkTexture
	case KindAtlas:
		do = r.shrinkAtlas
	case KindModel:
		do = r.shrinkModel
	default:
		do = func(string, *zap.Logger, *Result) (Outcome, error) { return Failed, ErrUnknownKind }
	}

	log.Info("batch started", zap.Int("items", len(items)))
	for _, path := range items {
		outcome, err := do.safe(path, log, res)
		if err != nil {
			outcome = Failed
		}
		switch outcome {
		case Modified:
			res.Processed++
		case Unchanged:
			res.Skipped++
		default:
			if err == nil {
				err = errors.New("failed without an error")
			}
			res.Skipped++
			res.Errors = append(res.Errors, &ItemError{Path: path, Kind: kind, Err: err})
			log.Warn("item failed", zap.String("path", path), zap.Error(err))
		}
	}
	res.Elapsed = time.Since(start)

	log.Info("batch finished",
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Errors)),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// safe runs the job, turning a panic into a failure of that item only.
func (do job) safe(path string, log *zap.Logger, res *Result) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			outcome, err = Failed, fmt.Errorf("%w: %v", ErrItemPanic, p)
		}
	}()
	return do(path, log, res)
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
