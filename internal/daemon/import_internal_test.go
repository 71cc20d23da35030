package daemon

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"beatline/internal/app"
	"beatline/internal/logging"
	"beatline/internal/testsupport"
)

func newImportDaemon(t *testing.T) (*Daemon, *bytes.Buffer, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	comps, err := app.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	t.Cleanup(func() { _ = comps.Close() })

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d, err := New(cfg, comps, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, &buf, cfg.Paths.ImportDir
}

func TestImportArchiveLogsMissingFileAsVanished(t *testing.T) {
	d, logs, dir := newImportDaemon(t)

	d.importArchive(context.Background(), filepath.Join(dir, "gone.osz"))

	out := logs.String()
	if !strings.Contains(out, "archive vanished before import") {
		t.Fatalf("expected vanished log, got %q", out)
	}
	if strings.Contains(out, "archive import failed") {
		t.Fatalf("unexpected failure log %q", out)
	}
}

func TestImportArchiveReportsMissingEntryAsFailure(t *testing.T) {
	d, logs, dir := newImportDaemon(t)

	// The archive itself exists but one of its entries cannot be read.
	path := filepath.Join(dir, "broken.osz")
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "nowhere.osu"), filepath.Join(path, "map.osu")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	d.importArchive(context.Background(), path)

	out := logs.String()
	if !strings.Contains(out, "archive import failed") {
		t.Fatalf("expected failure log, got %q", out)
	}
	if strings.Contains(out, "archive vanished before import") {
		t.Fatalf("existing archive logged as vanished: %q", out)
	}
}
