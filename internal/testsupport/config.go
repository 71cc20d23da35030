package testsupport

import (
	"path/filepath"
	"testing"

	"beatline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Online lookups are disabled unless WithOnline is supplied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.ImportDir = filepath.Join(base, "import")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Online.Enabled = false
	cfgVal.Online.APIKey = ""
	cfgVal.Online.CachePath = filepath.Join(base, "online_lookup.json")
	cfgVal.Metrics.Bind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithOnline enables online lookups against baseURL.
func WithOnline(baseURL, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Online.Enabled = true
		b.cfg.Online.BaseURL = baseURL
		b.cfg.Online.APIKey = apiKey
		b.cfg.Online.RequestsPerSecond = 50
		b.cfg.Online.TimeoutSeconds = 5
	}
}

// WithWorkers overrides the update pipeline worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Updater.Workers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LibraryDir)
}
