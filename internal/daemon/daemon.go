package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"beatline/internal/app"
	"beatline/internal/config"
	"beatline/internal/logging"
)

// Daemon coordinates the import watcher and metrics endpoint and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	comps  *app.Components
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	watcher *importWatcher
	metrics *metricsServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	ImportDir    string
	MetricsBind  string
}

// New constructs a daemon over already opened components.
func New(cfg *config.Config, comps *app.Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps == nil {
		return nil, errors.New("daemon requires config and components")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		comps:    comps,
		logger:   logger,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, scans and watches the import directory
// and starts the metrics endpoint.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another beatline daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	metrics, err := newMetricsServer(d.cfg.Metrics.Bind, d.logger)
	if err == nil {
		err = metrics.start(runCtx)
	}
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	watcher, err := newImportWatcher(d.cfg.Paths.ImportDir, d.importArchive, d.logger)
	if err == nil {
		err = watcher.start(runCtx)
	}
	if err != nil {
		cancel()
		metrics.stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("watch import directory: %w", err)
	}

	d.cancel = cancel
	d.metrics = metrics
	d.watcher = watcher
	d.running.Store(true)
	d.logger.Info("beatline daemon started",
		logging.String("lock", d.lockPath),
		logging.String("import_dir", d.cfg.Paths.ImportDir))
	return nil
}

// Stop closes the watcher and metrics endpoint, stops the update pipeline
// and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.watcher.stop()
	d.metrics.stop()
	d.comps.Updater.Close()
	d.comps.Lookup.Stop()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String("lock", d.lockPath))
	}
	d.running.Store(false)
	d.logger.Info("beatline daemon stopped")
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.comps.Store.Path(),
		LockFilePath: d.lockPath,
		ImportDir:    d.cfg.Paths.ImportDir,
		MetricsBind:  d.metrics.address(),
	}
}
