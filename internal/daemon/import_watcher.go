package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"beatline/internal/logging"
)

const settleDelay = 750 * time.Millisecond

type archiveHandler func(ctx context.Context, path string)

// importWatcher reports .osz files in dir once no write has touched them for
// settleDelay. Files already present at start are reported immediately.
type importWatcher struct {
	dir     string
	handle  archiveHandler
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	ready   chan string

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func newImportWatcher(dir string, handle archiveHandler, logger *slog.Logger) (*importWatcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("import directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create import directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &importWatcher{
		dir:     dir,
		handle:  handle,
		logger:  logging.NewComponentLogger(logger, "import_watcher"),
		watcher: watcher,
		ready:   make(chan string, 64),
		timers:  make(map[string]*time.Timer),
	}, nil
}

func (w *importWatcher) start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		_ = w.watcher.Close()
		return err
	}

	existing, err := pendingArchives(w.dir)
	if err != nil {
		_ = w.watcher.Close()
		return err
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processArchives(ctx)

	for _, path := range existing {
		w.schedule(path, 0)
	}
	return nil
}

func (w *importWatcher) stop() {
	if w == nil {
		return
	}
	_ = w.watcher.Close()
	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *importWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isArchive(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				w.schedule(event.Name, settleDelay)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.cancelPending(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "import watcher error", "import_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some archives may need a daemon restart to import"))
		}
	}
}

func (w *importWatcher) processArchives(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			w.handle(ctx, path)
		}
	}
}

// schedule (re)arms the settle timer for path.
func (w *importWatcher) schedule(path string, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(delay)
		return
	}
	w.timers[path] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		default:
			logging.WarnWithContext(w.logger, "import backlog full", "import_backlog_full",
				logging.String("path", path),
				logging.String(logging.FieldImpact, "archive stays in the import directory until restart"))
		}
	})
}

func (w *importWatcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
		delete(w.timers, path)
	}
}

func pendingArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read import directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isArchive(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".osz")
}
