// Package config handles pzshrink configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/pzshrink/pkg/mesh"
	"github.com/Faultbox/pzshrink/pkg/resize"
)

// ErrPrecondition is returned by Validate for values that must be rejected
// before any file is touched.
var ErrPrecondition = resize.ErrPrecondition

// Config holds all pzshrink settings.
type Config struct {
	Textures TextureConfig `yaml:"textures"`
	Models   ModelConfig   `yaml:"models"`
	Targets  TargetConfig  `yaml:"targets"`
	Logging  LoggingConfig `yaml:"logging"`
}

// TextureConfig holds the size policy shared by textures and texture packs.
type TextureConfig struct {
	MinSize     int     `yaml:"min_size"`
	MaxSize     int     `yaml:"max_size"`
	ScaleRatio  float64 `yaml:"scale_ratio"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// ModelConfig holds the model optimisation switches.
type ModelConfig struct {
	RemoveOtherUV     bool    `yaml:"remove_other_uv"`
	RemoveTextureInfo bool    `yaml:"remove_texture_info"`
	RemoveTangents    bool    `yaml:"remove_tangents"`
	RemoveVertexColor bool    `yaml:"remove_vertex_color"`
	MergeAllMeshes    bool    `yaml:"merge_all_meshes"`
	Epsilon           float32 `yaml:"epsilon"`
}

// TargetConfig selects which asset categories a run processes.
type TargetConfig struct {
	IconTextures  bool `yaml:"icon_textures"`
	ModelTextures bool `yaml:"model_textures"`
	AllTextures   bool `yaml:"all_textures"`
	Packs         bool `yaml:"packs"`
	OBJModels     bool `yaml:"obj_models"`
	GLTFModels    bool `yaml:"gltf_models"`
}

// Any reports whether at least one category is selected.
func (t TargetConfig) Any() bool {
	return t.IconTextures || t.ModelTextures || t.AllTextures || t.Packs || t.OBJModels || t.GLTFModels
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values. No category is
// selected by default.
func Default() *Config {
	return &Config{
		Textures: TextureConfig{
			MinSize:     64,
			MaxSize:     512,
			ScaleRatio:  0.25,
			JPEGQuality: 90,
		},
		Models: ModelConfig{
			Epsilon: mesh.DefaultEpsilon,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Constraint returns the texture size policy.
func (c *Config) Constraint() resize.Constraint {
	return resize.Constraint{
		Min:   c.Textures.MinSize,
		Max:   c.Textures.MaxSize,
		Ratio: c.Textures.ScaleRatio,
	}
}

// DedupOptions returns the vertex deduplication options.
func (c *Config) DedupOptions() mesh.Options {
	return mesh.Options{
		Epsilon:        c.Models.Epsilon,
		MergeAll:       c.Models.MergeAllMeshes,
		RemoveTangents: c.Models.RemoveTangents,
		RemoveExtraUVs: c.Models.RemoveOtherUV,
		RemoveColors:   c.Models.RemoveVertexColor,
	}
}

// Validate rejects negative sizes or ratio, a non-positive epsilon and a JPEG
// quality outside 1..100.
func (c *Config) Validate() error {
	if err := c.Constraint().Validate(); err != nil {
		return err
	}
	if !(c.Models.Epsilon > 0) {
		return fmt.Errorf("%w: epsilon must be positive (epsilon=%v)", ErrPrecondition, c.Models.Epsilon)
	}
	if c.Textures.JPEGQuality < 1 || c.Textures.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality must be within 1..100 (quality=%d)", ErrPrecondition, c.Textures.JPEGQuality)
	}
	return nil
}
