package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/uuid"

	"beatline/internal/config"
	"beatline/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nlibrary_dir = %q\nimport_dir = %q\nlog_dir = %q\n\n[online]\nenabled = false\ncache_path = %q\n\n[logging]\nlevel = \"error\"\n\n[metrics]\nbind = \"\"\n",
		cfg.Paths.LibraryDir,
		cfg.Paths.ImportDir,
		cfg.Paths.LogDir,
		cfg.Online.CachePath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

var importedIDPattern = regexp.MustCompile(`\(([0-9a-f-]{36})\)`)

func importedSetID(t *testing.T, out string) uuid.UUID {
	t.Helper()
	match := importedIDPattern.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("no set id in output %q", out)
	}
	id, err := uuid.Parse(match[1])
	if err != nil {
		t.Fatalf("parse set id: %v", err)
	}
	return id
}

func writeTestArchive(t *testing.T, dir string) string {
	t.Helper()
	return testsupport.WriteOsz(t, dir, "set.osz", map[string]string{
		"normal.osu": testsupport.OsuFile(testsupport.OsuOptions{
			Title:      "Blue Zenith",
			Artist:     "xi",
			Version:    "Normal",
			BeatLength: 500,
			HitTimes:   []float64{1000, 1500, 2000, 2500, 3000, 3500, 4000, 4500, 5000},
		}),
		"audio.mp3": "audio",
	})
}
