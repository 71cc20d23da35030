package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"beatline/internal/app"
	"beatline/internal/config"
	"beatline/internal/daemon"
	"beatline/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the beatline daemon and blocks until ctx ends or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	comps, err := app.Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open components", logging.Error(err))
		return err
	}
	defer comps.Close()

	d, err := daemon.New(cfg, comps, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	pidPath := filepath.Join(cfg.Paths.LogDir, "beatline.pid")
	if err := writePIDFile(pidPath); err != nil {
		logging.WarnWithContext(logger, "failed to write pid file", "pid_file_failed",
			logging.Error(err),
			logging.String("path", pidPath))
	} else {
		defer os.Remove(pidPath)
	}

	<-signalCtx.Done()
	logger.Info("beatline daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("library_dir", cfg.Paths.LibraryDir),
		logging.String("import_dir", cfg.Paths.ImportDir),
		logging.Bool("online_lookup", cfg.OnlineLookupActive()),
		logging.Int("updater_workers", cfg.Updater.Workers),
		logging.Int("working_cache_size", cfg.Cache.WorkingBeatmaps),
		logging.Int("difficulty_cache_size", cfg.Cache.DifficultyEntries),
		logging.String("metrics_bind", cfg.Metrics.Bind))
}
