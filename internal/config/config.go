package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	ImportDir  string `toml:"import_dir"`
	LogDir     string `toml:"log_dir"`
}

// Online contains configuration for the remote beatmap metadata lookup.
type Online struct {
	Enabled           bool   `toml:"enabled"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	UserAgent         string `toml:"user_agent"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	CachePath         string `toml:"cache_path"`
	QueueSize         int    `toml:"queue_size"`
}

// Cache sizes the in-memory rendered-beatmap and difficulty caches.
type Cache struct {
	WorkingBeatmaps      int `toml:"working_beatmaps"`
	DifficultyEntries    int `toml:"difficulty_entries"`
	DifficultyTTLMinutes int `toml:"difficulty_ttl_minutes"`
}

// Updater controls the background update pipeline.
type Updater struct {
	Workers int `toml:"workers"`
}

// Import controls the daemon's import directory handling.
type Import struct {
	RemoveProcessed bool `toml:"remove_processed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains the optional Prometheus listener address.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for beatline.
//
// Configuration sections by subsystem:
//   - Paths: library storage, watched import directory, logs
//   - Online: remote metadata lookup credentials and rate limits
//   - Cache: rendered-beatmap and difficulty cache sizing
//   - Updater: update pipeline worker count
//   - Import: import directory behaviour
//   - Logging: log format and level
//   - Metrics: Prometheus endpoint
type Config struct {
	Paths   Paths   `toml:"paths"`
	Online  Online  `toml:"online"`
	Cache   Cache   `toml:"cache"`
	Updater Updater `toml:"updater"`
	Import  Import  `toml:"import"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the store, importer, and logger write to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LibraryDir, c.Paths.ImportDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the library directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LibraryDir, "library.db")
}

// FilesDir returns the root of the content-addressed file store.
func (c *Config) FilesDir() string {
	return filepath.Join(c.Paths.LibraryDir, "files")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LibraryDir, "beatline.lock")
}

// OnlineTimeout returns the per-request timeout for remote lookups.
func (c *Config) OnlineTimeout() time.Duration {
	return time.Duration(c.Online.TimeoutSeconds) * time.Second
}

// DifficultyTTL returns how long a computed difficulty stays cached.
func (c *Config) DifficultyTTL() time.Duration {
	return time.Duration(c.Cache.DifficultyTTLMinutes) * time.Minute
}

// OnlineLookupActive reports whether remote lookups should be attempted.
func (c *Config) OnlineLookupActive() bool {
	return c.Online.Enabled && strings.TrimSpace(c.Online.APIKey) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
