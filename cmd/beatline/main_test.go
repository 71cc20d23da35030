package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"beatline/internal/testsupport"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config exists")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "Online lookups: disabled") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestImportListAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	archive := writeTestArchive(t, t.TempDir())

	out, _, err := runCLI(t, []string{"import", archive}, env.configPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported xi - Blue Zenith") {
		t.Fatalf("unexpected import output %q", out)
	}
	if !strings.Contains(out, "1/1 beatmaps processed") {
		t.Fatalf("expected processed summary, got %q", out)
	}
	setID := importedSetID(t, out)

	out, _, err = runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", out)
	}
	fields := strings.Split(lines[1], "\t")
	if len(fields) != len(listHeaders) {
		t.Fatalf("expected %d columns, got %q", len(listHeaders), lines[1])
	}
	if fields[0] != setID.String()[:8] || fields[3] != "Normal" || fields[4] != "osu" {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if fields[6] != "0:04" || fields[7] != "120" {
		t.Fatalf("unexpected length or bpm in %q", lines[1])
	}

	out, _, err = runCLI(t, []string{"remove", setID.String()}, env.configPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "Removed "+setID.String()) {
		t.Fatalf("unexpected remove output %q", out)
	}

	out, _, err = runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	if strings.TrimSpace(out) != "Library is empty" {
		t.Fatalf("expected empty library, got %q", out)
	}
}

func TestImportReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.osz")

	_, stderr, err := runCLI(t, []string{"import", missing}, env.configPath)
	if err == nil {
		t.Fatal("expected import failure")
	}
	if !strings.Contains(stderr, "missing.osz") {
		t.Fatalf("expected failing path in stderr, got %q", stderr)
	}
}

func TestProcessRequiresTarget(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"process"}, env.configPath); err == nil {
		t.Fatal("expected error without ids or --all")
	}
	if _, _, err := runCLI(t, []string{"process", "not-a-uuid"}, env.configPath); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestProcessAllAndStars(t *testing.T) {
	env := setupCLITestEnv(t)
	archive := writeTestArchive(t, t.TempDir())

	out, _, err := runCLI(t, []string{"import", archive}, env.configPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	setID := importedSetID(t, out)

	out, _, err = runCLI(t, []string{"process", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("process --all: %v", err)
	}
	if !strings.Contains(out, "Processed 1 set") {
		t.Fatalf("unexpected process output %q", out)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	set, err := store.SetByID(context.Background(), setID)
	if err != nil {
		t.Fatalf("load set: %v", err)
	}
	beatmapID := set.Beatmaps[0].ID.String()
	_ = store.Close()

	out, _, err = runCLI(t, []string{"stars", beatmapID, "--mods", "DT"}, env.configPath)
	if err != nil {
		t.Fatalf("stars: %v", err)
	}
	if !strings.Contains(out, "+DT:") || !strings.Contains(out, "stars, max combo 9") {
		t.Fatalf("unexpected stars output %q", out)
	}

	if _, _, err := runCLI(t, []string{"stars", beatmapID, "--mods", "DT,HT"}, env.configPath); err == nil {
		t.Fatal("expected error for incompatible mods")
	}
}
