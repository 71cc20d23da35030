package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// OsuOptions describes a generated .osu file.
type OsuOptions struct {
	Mode       int
	Title      string
	Artist     string
	Version    string
	BeatmapID  int64
	BeatLength float64
	HitTimes   []float64
}

// OsuFile renders a minimal .osu file with one timing point and a circle at
// each hit time.
func OsuFile(opts OsuOptions) string {
	if opts.Title == "" {
		opts.Title = "Test Song"
	}
	if opts.Artist == "" {
		opts.Artist = "Test Artist"
	}
	if opts.Version == "" {
		opts.Version = "Normal"
	}

	var b strings.Builder
	b.WriteString("osu file format v14\n\n[General]\n")
	fmt.Fprintf(&b, "Mode: %d\n\n[Metadata]\n", opts.Mode)
	fmt.Fprintf(&b, "Title:%s\nArtist:%s\nCreator:tester\nVersion:%s\n", opts.Title, opts.Artist, opts.Version)
	if opts.BeatmapID != 0 {
		fmt.Fprintf(&b, "BeatmapID:%d\n", opts.BeatmapID)
	}
	b.WriteString("\n[Difficulty]\nCircleSize:4\nOverallDifficulty:5\nSliderMultiplier:1.4\nSliderTickRate:1\n\n[TimingPoints]\n")
	if opts.BeatLength > 0 {
		fmt.Fprintf(&b, "0,%g,4,2,1,60,1,0\n", opts.BeatLength)
	}
	b.WriteString("\n[HitObjects]\n")
	for i, ts := range opts.HitTimes {
		x := 64 + (i%4)*128
		fmt.Fprintf(&b, "%d,192,%g,1,0,0:0:0:0:\n", x, ts)
	}
	return b.String()
}

// ZipBytes builds an in-memory zip archive holding files. Entries are written
// in sorted name order.
func ZipBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteOsz writes a zip archive of files to dir/name and returns its path.
func WriteOsz(t testing.TB, dir, name string, files map[string]string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, ZipBytes(t, files), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteFiles writes files under dir, creating parent directories for
// slash-separated names.
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}
