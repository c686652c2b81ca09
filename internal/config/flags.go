package config

import "flag"

// Flags holds command-line overrides bound to a flag set. Only flags that were
// given on the command line override file values.
type Flags struct {
	fs *flag.FlagSet

	config  string
	debug   bool
	logFile string

	minSize int
	maxSize int
	ratio   float64
	quality int

	iconTextures  bool
	modelTextures bool
	allTextures   bool
	packs         bool
	objModels     bool
	gltfModels    bool

	removeOtherUV     bool
	removeTextureInfo bool
	removeTangents    bool
	removeVertexColor bool
	mergeAll          bool
	epsilon           float64
}

// RegisterFlags defines the configuration flags on fs. Short aliases follow the
// long names.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()

	fs.StringVar(&f.config, "config", "", "Path to config file")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.logFile, "log-file", "", "Also write logs to this file")

	intVar(fs, &f.maxSize, d.Textures.MaxSize, "Maximum texture size", "texture-max-size", "tmax")
	intVar(fs, &f.minSize, d.Textures.MinSize, "Minimum texture size", "texture-min-size", "tmin")
	floatVar(fs, &f.ratio, d.Textures.ScaleRatio, "Texture scale ratio", "texture-scale-ratio", "tsr")
	fs.IntVar(&f.quality, "jpeg-quality", d.Textures.JPEGQuality, "JPEG re-encode quality (1-100)")

	boolVar(fs, &f.iconTextures, "Process item icon textures", "icon-texture", "it")
	boolVar(fs, &f.modelTextures, "Process model textures", "model-texture", "mt")
	boolVar(fs, &f.allTextures, "Process all PNG texture files", "all-texture", "all")
	boolVar(fs, &f.packs, "Process tileset texture packs", "tiles-pack", "tp")
	boolVar(fs, &f.objModels, "Process all OBJ model files", "obj-model", "om")
	boolVar(fs, &f.gltfModels, "Process all glTF/GLB model files", "gltf-model", "gm")

	boolVar(fs, &f.removeOtherUV, "Remove UV channels 1-7, keep UV0 only", "model-remove-other-uv", "mrouv")
	boolVar(fs, &f.removeTextureInfo, "Remove materials and embedded textures", "model-remove-texture", "mrtt")
	boolVar(fs, &f.removeTangents, "Remove tangents and bitangents", "model-remove-tangents", "mrtg")
	boolVar(fs, &f.removeVertexColor, "Remove all vertex colors", "model-remove-vertex-color", "mrvc")
	boolVar(fs, &f.mergeAll, "Share one vertex table across all meshes of a model", "model-merge-all", "mma")
	fs.Float64Var(&f.epsilon, "model-epsilon", float64(d.Models.Epsilon), "Vertex comparison tolerance")

	return f
}

func intVar(fs *flag.FlagSet, p *int, value int, usage string, names ...string) {
	for _, n := range names {
		fs.IntVar(p, n, value, usage)
	}
}

func floatVar(fs *flag.FlagSet, p *float64, value float64, usage string, names ...string) {
	for _, n := range names {
		fs.Float64Var(p, n, value, usage)
	}
}

func boolVar(fs *flag.FlagSet, p *bool, usage string, names ...string) {
	for _, n := range names {
		fs.BoolVar(p, n, false, usage)
	}
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.config
}

// applyFlags applies the flags that were set on the command line.
func (f *Flags) applyFlags(cfg *Config) {
	if f == nil {
		return
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "debug":
			if f.debug {
				cfg.Logging.Level = "debug"
			}
		case "log-file":
			cfg.Logging.LogFile = f.logFile
		case "texture-max-size", "tmax":
			cfg.Textures.MaxSize = f.maxSize
		case "texture-min-size", "tmin":
			cfg.Textures.MinSize = f.minSize
		case "texture-scale-ratio", "tsr":
			cfg.Textures.ScaleRatio = f.ratio
		case "jpeg-quality":
			cfg.Textures.JPEGQuality = f.quality
		case "icon-texture", "it":
			cfg.Targets.IconTextures = f.iconTextures
		case "model-texture", "mt":
			cfg.Targets.ModelTextures = f.modelTextures
		case "all-texture", "all":
			cfg.Targets.AllTextures = f.allTextures
		case "tiles-pack", "tp":
			cfg.Targets.Packs = f.packs
		case "obj-model", "om":
			cfg.Targets.OBJModels = f.objModels
		case "gltf-model", "gm":
			cfg.Targets.GLTFModels = f.gltfModels
		case "model-remove-other-uv", "mrouv":
			cfg.Models.RemoveOtherUV = f.removeOtherUV
		case "model-remove-texture", "mrtt":
			cfg.Models.RemoveTextureInfo = f.removeTextureInfo
		case "model-remove-tangents", "mrtg":
			cfg.Models.RemoveTangents = f.removeTangents
		case "model-remove-vertex-color", "mrvc":
			cfg.Models.RemoveVertexColor = f.removeVertexColor
		case "model-merge-all", "mma":
			cfg.Models.MergeAllMeshes = f.mergeAll
		case "model-epsilon":
			cfg.Models.Epsilon = float32(f.epsilon)
		}
	})
}
