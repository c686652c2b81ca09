// pzshrink reduces the size of mod assets: it downsizes textures and texture
// packs and removes duplicate vertices from models.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/pzshrink/internal/config"
	"github.com/Faultbox/pzshrink/internal/discovery"
	"github.com/Faultbox/pzshrink/internal/logger"
	"github.com/Faultbox/pzshrink/internal/shrink"
	"github.com/Faultbox/pzshrink/internal/texture"
	"github.com/Faultbox/pzshrink/pkg/pack"
	"github.com/Faultbox/pzshrink/pkg/resize"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitMissingPath = 2
	exitInvalid     = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFailure)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		os.Exit(cmdRun(args))
	case "scan", "ls":
		os.Exit(cmdScan(args))
	case "pack", "info":
		os.Exit(cmdPack(args))
	case "plan":
		os.Exit(cmdPlan(args))
	case "config":
		os.Exit(cmdConfig(args))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(exitFailure)
	}
}

func printUsage() {
	fmt.Println(`pzshrink - mod asset size reducer

Usage:
  pzshrink <command> [options]

Commands:
  run [flags] <workshop>          Shrink the selected assets of every mod
  scan [flags] <workshop>         List the assets a run would process
  pack <file.pack>                Show texture pack information
  plan [-min N] [-max N] [-ratio R] <WxH>...
                                  Print the size each image would get
  config [path]                   Write the default config file

Run "pzshrink run -h" for the full flag list.

Examples:
  pzshrink run -it -mt -tp ./workshop
  pzshrink run --texture-max-size 256 -all ./workshop
  pzshrink run -om -gm -mrouv -mrtg ./workshop
  pzshrink plan 2048x1024 100x50`)
}

// loadConfig parses command flags into a validated config and initialises
// logging. A missing workshop folder is reported before any value is checked.
// A non-zero code means the command must stop.
func loadConfig(name string, args []string, extra func(*flag.FlagSet)) (*config.Config, *flag.FlagSet, int) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: pzshrink %s [flags] <workshop>\n", name)
		return nil, fs, exitFailure
	}
	if info, err := os.Stat(fs.Arg(0)); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Workshop folder not found: %s\n", fs.Arg(0))
		return nil, fs, exitMissingPath
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, fs, exitFailure
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, fs, exitInvalid
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, fs, exitFailure
	}
	logger.Debug("config loaded",
		zap.String("command", name),
		zap.String("workshop", fs.Arg(0)),
		zap.Any("targets", cfg.Targets),
		zap.Any("textures", cfg.Textures))
	return cfg, fs, exitOK
}

func scan(root string, cfg *config.Config) (*discovery.Assets, int) {
	assets, err := discovery.Scan(root, discovery.Targets(cfg.Targets))
	if errors.Is(err, discovery.ErrRootNotFound) {
		fmt.Fprintf(os.Stderr, "Workshop folder not found: %s\n", root)
		return nil, exitMissingPath
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, exitFailure
	}
	return assets, exitOK
}

func cmdRun(args []string) int {
	var strict bool
	cfg, fs, code := loadConfig("run", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&strict, "strict", false, "Exit with status 1 when any item failed")
	})
	if code != exitOK {
		return code
	}
	defer logger.Sync()

	if !cfg.Targets.Any() {
		fmt.Println("Nothing selected. Pass at least one target flag, e.g. -it, -mt, -all, -tp, -om or -gm.")
		return exitOK
	}

	assets, code := scan(fs.Arg(0), cfg)
	if code != exitOK {
		return code
	}

	runner := shrink.NewRunner(cfg.Constraint(), shrink.ModelOptions{
		Options:           cfg.DedupOptions(),
		RemoveTextureInfo: cfg.Models.RemoveTextureInfo,
	})
	runner.Images = texture.Codec{Encoder: texture.Encoder{JPEGQuality: cfg.Textures.JPEGQuality}}
	logger.Info("run started",
		zap.String("workshop", fs.Arg(0)),
		zap.Int("mods", assets.Mods),
		zap.Int("files", assets.Count()))

	batches := []struct {
		kind  shrink.Kind
		items []string
	}{
		{shrink.KindTexture, assets.Textures},
		{shrink.KindAtlas, assets.Packs},
		{shrink.KindModel, assets.Models},
	}

	start := time.Now()
	var failures error
	for _, b := range batches {
		if len(b.items) == 0 {
			continue
		}
		res := runner.Run(b.kind, b.items)
		printResult(os.Stdout, res)
		failures = multierr.Append(failures, res.Err())
	}

	fmt.Printf("\nDone in %s.\n", time.Since(start).Round(time.Millisecond))
	if failures != nil {
		errs := multierr.Errors(failures)
		fmt.Fprintf(os.Stderr, "\n%d item(s) failed:\n", len(errs))
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "  %v\n", err)
			logger.Warn("item failed", zap.Error(err))
		}
		if strict {
			logger.Error("run failed", zap.Int("failures", len(errs)))
			return exitFailure
		}
	}
	logger.Info("run finished", zap.Duration("elapsed", time.Since(start)))
	return exitOK
}

func printResult(w io.Writer, res *shrink.Result) {
	fmt.Fprintf(w, "%-8s processed %d, skipped %d, failed %d (%s)\n",
		res.Kind, res.Processed, res.Skipped, len(res.Errors), res.Elapsed.Round(time.Millisecond))
	if res.Kind == shrink.KindModel && res.Meshes.VerticesIn > 0 {
		m := res.Meshes
		change := 100 * float64(m.VerticesIn-m.Stored) / float64(m.VerticesIn)
		verb := "removed"
		if change < 0 {
			change, verb = -change, "added"
		}
		fmt.Fprintf(w, "         vertices %d -> %d stored, %d unique (%.1f%% %s), %d empty mesh(es)\n",
			m.VerticesIn, m.Stored, m.VerticesOut, change, verb, m.Skipped)
	}
}

func cmdScan(args []string) int {
	cfg, fs, code := loadConfig("scan", args, nil)
	if code != exitOK {
		return code
	}
	defer logger.Sync()

	root := fs.Arg(0)
	assets, code := scan(root, cfg)
	if code != exitOK {
		return code
	}

	section := func(title string, files []string) {
		if len(files) == 0 {
			return
		}
		fmt.Printf("%s (%d):\n", title, len(files))
		for _, f := range files {
			if rel, err := filepath.Rel(root, f); err == nil {
				f = rel
			}
			fmt.Printf("  %s\n", f)
		}
	}
	section("Textures", assets.Textures)
	section("Packs", assets.Packs)
	section("Models", assets.Models)

	fmt.Fprintf(os.Stderr, "\n(%d mods, %d files)\n", assets.Mods, assets.Count())
	return exitOK
}

func cmdPack(args []string) int {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	entries := fs.Bool("entries", false, "List every entry")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pzshrink pack [-entries] <file.pack>")
		return exitFailure
	}

	path := fs.Arg(0)
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "File not found: %s\n", path)
		return exitMissingPath
	}

	c, err := pack.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	fmt.Printf("Pack:    %s\n", path)
	fmt.Printf("Version: %s\n", c.Version)
	if w, h, err := c.ImageSize(); err == nil {
		fmt.Printf("Image:   %dx%d (%.2f KB)\n", w, h, float64(len(c.Image))/1024)
	} else {
		fmt.Printf("Image:   none (%v)\n", err)
	}
	fmt.Printf("Pages:   %d\n", len(c.Pages))
	fmt.Printf("Entries: %d\n", c.EntryCount())

	for _, p := range c.Pages {
		fmt.Printf("\n  %s (%d entries, alpha=%v)\n", p.Name, len(p.Entries), p.HasAlpha)
		if !*entries {
			continue
		}
		for _, e := range p.Entries {
			fmt.Printf("    %-32s %4d,%-4d %4dx%-4d frame %dx%d+%d+%d\n",
				e.Name, e.Offset.X, e.Offset.Y, e.Size.W, e.Size.H,
				e.FrameSize.W, e.FrameSize.H, e.FrameOffset.X, e.FrameOffset.Y)
		}
	}
	return exitOK
}

func cmdPlan(args []string) int {
	d := config.Default()
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	minSize := fs.Int("min", d.Textures.MinSize, "Minimum texture size")
	maxSize := fs.Int("max", d.Textures.MaxSize, "Maximum texture size")
	ratio := fs.Float64("ratio", d.Textures.ScaleRatio, "Texture scale ratio")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pzshrink plan [-min N] [-max N] [-ratio R] <WxH>...")
		return exitFailure
	}

	c := resize.Constraint{Min: *minSize, Max: *maxSize, Ratio: *ratio}
	if err := c.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitInvalid
	}

	for _, arg := range fs.Args() {
		dim, err := parseDimension(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitInvalid
		}
		to, changed := resize.Changed(dim, c)
		mark := ""
		if !changed {
			mark = " (unchanged)"
		}
		fmt.Printf("%-12s -> %s%s\n", dim, to, mark)
	}
	return exitOK
}

func parseDimension(s string) (resize.Dimension, error) {
	var d resize.Dimension
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return d, fmt.Errorf("invalid size %q, want WxH", s)
	}
	if _, err := fmt.Sscan(w, &d.Width); err != nil {
		return d, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	if _, err := fmt.Sscan(h, &d.Height); err != nil {
		return d, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if d.Width < 0 || d.Height < 0 {
		return d, fmt.Errorf("%w: size %s is negative", resize.ErrPrecondition, s)
	}
	return d, nil
}

func cmdConfig(args []string) int {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	fs.Parse(args)

	cfg := config.Default()
	path := filepath.Join(config.ConfigDir(), config.FileName)
	var err error
	if fs.NArg() > 0 {
		path = fs.Arg(0)
		err = cfg.SaveTo(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return exitOK
}
