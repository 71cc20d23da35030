package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeOnline(); err != nil {
		return err
	}
	c.normalizeCache()
	if c.Updater.Workers <= 0 {
		c.Updater.Workers = defaultUpdaterWorkers
	}
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		c.Paths.LibraryDir = defaultLibraryDir
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ImportDir) == "" {
		c.Paths.ImportDir = defaultImportDir
	}
	if c.Paths.ImportDir, err = expandPath(c.Paths.ImportDir); err != nil {
		return fmt.Errorf("paths.import_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeOnline() error {
	c.Online.APIKey = strings.TrimSpace(c.Online.APIKey)
	if c.Online.APIKey == "" {
		if value, ok := os.LookupEnv(apiKeyEnv); ok {
			c.Online.APIKey = strings.TrimSpace(value)
		}
	}
	c.Online.BaseURL = strings.TrimRight(strings.TrimSpace(c.Online.BaseURL), "/")
	if c.Online.BaseURL == "" {
		c.Online.BaseURL = defaultOnlineBaseURL
	}
	c.Online.UserAgent = strings.TrimSpace(c.Online.UserAgent)
	if c.Online.UserAgent == "" {
		c.Online.UserAgent = defaultOnlineUserAgent
	}
	if c.Online.RequestsPerSecond <= 0 {
		c.Online.RequestsPerSecond = defaultOnlineRequestsPerSec
	}
	if c.Online.TimeoutSeconds <= 0 {
		c.Online.TimeoutSeconds = defaultOnlineTimeoutSeconds
	}
	if c.Online.QueueSize <= 0 {
		c.Online.QueueSize = defaultOnlineQueueSize
	}
	var err error
	if strings.TrimSpace(c.Online.CachePath) == "" {
		c.Online.CachePath = defaultOnlineCachePath
	}
	if c.Online.CachePath, err = expandPath(c.Online.CachePath); err != nil {
		return fmt.Errorf("online.cache_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() {
	if c.Cache.WorkingBeatmaps <= 0 {
		c.Cache.WorkingBeatmaps = defaultWorkingBeatmaps
	}
	if c.Cache.DifficultyEntries <= 0 {
		c.Cache.DifficultyEntries = defaultDifficultyEntries
	}
	if c.Cache.DifficultyTTLMinutes <= 0 {
		c.Cache.DifficultyTTLMinutes = defaultDifficultyTTLMinutes
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		format = "console"
	}
	c.Logging.Format = format
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
