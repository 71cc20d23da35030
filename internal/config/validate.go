package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOnline(); err != nil {
		return err
	}
	if err := c.validateUpdater(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.ImportDir == c.Paths.LibraryDir {
		return errors.New("paths.import_dir must differ from paths.library_dir")
	}
	return nil
}

func (c *Config) validateOnline() error {
	if !c.Online.Enabled {
		return nil
	}
	if c.Online.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("online.api_key is required when online.enabled is true. Set %s or edit %s (create with 'beatline config init')", apiKeyEnv, defaultPath)
	}
	parsed, err := url.Parse(c.Online.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("online.base_url must be an absolute URL, got %q", c.Online.BaseURL)
	}
	if c.Online.RequestsPerSecond > maxOnlineRequestsPerSecond {
		return fmt.Errorf("online.requests_per_second must be at most %d", maxOnlineRequestsPerSecond)
	}
	return nil
}

func (c *Config) validateUpdater() error {
	if c.Updater.Workers > maxUpdaterWorkers {
		return fmt.Errorf("updater.workers must be at most %d", maxUpdaterWorkers)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
