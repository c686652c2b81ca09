package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/pzshrink/internal/shrink"
	"github.com/Faultbox/pzshrink/pkg/mesh"
	"github.com/Faultbox/pzshrink/pkg/resize"
)

func TestParseDimension(t *testing.T) {
	tests := []struct {
		in      string
		want    resize.Dimension
		wantErr bool
	}{
		{"2048x1024", resize.Dimension{Width: 2048, Height: 1024}, false},
		{"64X32", resize.Dimension{Width: 64, Height: 32}, false},
		{"0x0", resize.Dimension{}, false},
		{"100", resize.Dimension{}, true},
		{"ax10", resize.Dimension{}, true},
		{"10x", resize.Dimension{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDimension(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDimension(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseDimension(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDimension_Negative(t *testing.T) {
	if _, err := parseDimension("-4x16"); !errors.Is(err, resize.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

// brokenWorkshop returns a workshop folder holding one mod whose only texture
// cannot be decoded.
func brokenWorkshop(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "1", "mods", "A")
	textures := filepath.Join(base, "media", "textures")
	if err := os.MkdirAll(textures, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "mod.info"), []byte("name=A"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(textures, "bad.png"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestCmdRun_ExitCodes(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	workshop := brokenWorkshop(t)
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no workshop", nil, exitFailure},
		{"missing workshop", []string{missing}, exitMissingPath},
		{"missing workshop wins over invalid values", []string{"-it", "-tmax", "-1", missing}, exitMissingPath},
		{"missing workshop without targets", []string{"-tmin", "0", missing}, exitMissingPath},
		{"invalid values", []string{"-it", "-tmax", "-1", workshop}, exitInvalid},
		{"invalid ratio", []string{"-tsr", "-1", workshop}, exitInvalid},
		{"invalid jpeg quality", []string{"-jpeg-quality", "0", workshop}, exitInvalid},
		{"nothing selected", []string{workshop}, exitOK},
		{"failed item", []string{"-all", workshop}, exitOK},
		{"failed item strict", []string{"-all", "--strict", workshop}, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cmdRun(tt.args); got != tt.want {
				t.Errorf("cmdRun(%q) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestCmdScan_MissingWorkshop(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if got := cmdScan([]string{"-all", filepath.Join(t.TempDir(), "missing")}); got != exitMissingPath {
		t.Errorf("cmdScan = %d, want %d", got, exitMissingPath)
	}
	if got := cmdScan([]string{"-all", brokenWorkshop(t)}); got != exitOK {
		t.Errorf("cmdScan = %d, want %d", got, exitOK)
	}
}

func TestCmdPlan_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no sizes", nil, exitFailure},
		{"sizes", []string{"2048x1024", "10x10"}, exitOK},
		{"invalid max", []string{"-max", "-1", "10x10"}, exitInvalid},
		{"oversized max", []string{"-max", "4294967296", "10x10"}, exitInvalid},
		{"malformed size", []string{"abc"}, exitInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cmdPlan(tt.args); got != tt.want {
				t.Errorf("cmdPlan(%q) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestPrintResult_Vertices(t *testing.T) {
	tests := []struct {
		name  string
		stats mesh.Stats
		want  string
	}{
		{"per mesh", mesh.Stats{VerticesIn: 12, VerticesOut: 8, Stored: 8}, "12 -> 8 stored, 8 unique (33.3% removed)"},
		{"merge all", mesh.Stats{VerticesIn: 12, VerticesOut: 5, Stored: 10}, "12 -> 10 stored, 5 unique (16.7% removed)"},
		{"merge all grows", mesh.Stats{VerticesIn: 6, VerticesOut: 5, Stored: 10}, "6 -> 10 stored, 5 unique (66.7% added)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, &shrink.Result{Kind: shrink.KindModel, Processed: 1, Meshes: tt.stats})
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}
