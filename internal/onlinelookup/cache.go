package onlinelookup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"beatline/internal/beatmap"
	"beatline/internal/logging"
)

// Entry is a cached lookup result keyed by beatmap MD5.
type Entry struct {
	MD5       string               `json:"md5"`
	BeatmapID int64                `json:"beatmap_id"`
	SetID     int64                `json:"set_id"`
	Status    beatmap.OnlineStatus `json:"status"`
	CachedAt  time.Time            `json:"cached_at"`
}

// Result converts the entry into a lookup result.
func (e Entry) Result() Result {
	return Result{BeatmapID: e.BeatmapID, SetID: e.SetID, Status: e.Status}
}

// Cache provides thread-safe access to the lookup cache file.
type Cache struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache creates a cache backed by path. An empty path makes every
// operation a no-op. The file is created lazily on the first Store.
func NewCache(path string, logger *slog.Logger) *Cache {
	logger = logging.NewComponentLogger(logger, "online_cache")

	c := &Cache{
		path:    path,
		logger:  logger,
		entries: make(map[string]Entry),
	}
	if path == "" {
		return c
	}

	if err := c.load(); err != nil {
		logger.Warn("failed to load online lookup cache",
			logging.String(logging.FieldEventType, "online_cache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "beatmaps will be looked up online again"))
	}
	return c
}

func normalizeMD5(md5 string) string {
	return strings.ToLower(strings.TrimSpace(md5))
}

// Lookup returns the cached entry for md5.
func (c *Cache) Lookup(md5 string) (Entry, bool) {
	md5 = normalizeMD5(md5)
	if md5 == "" || c.path == "" {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, found := c.entries[md5]
	return entry, found
}

// Store adds or replaces an entry and persists the cache.
func (c *Cache) Store(entry Entry) error {
	entry.MD5 = normalizeMD5(entry.MD5)
	if entry.MD5 == "" {
		return errors.New("beatmap hash cannot be empty")
	}
	if c.path == "" {
		return nil
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.MD5] = entry
	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cached online lookup",
		logging.String("md5", entry.MD5),
		logging.Int64("online_beatmap_id", entry.BeatmapID),
		logging.String("status", string(entry.Status)))
	return nil
}

// Count returns the number of cached entries.
func (c *Cache) Count() int {
	if c.path == "" {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}

	c.entries = make(map[string]Entry, len(entries))
	for _, entry := range entries {
		if key := normalizeMD5(entry.MD5); key != "" {
			entry.MD5 = key
			c.entries[key] = entry
		}
	}

	c.logger.Debug("loaded online lookup cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))
	return nil
}

// save writes the cache to disk atomically.
func (c *Cache) save() error {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].MD5 < entries[j].MD5
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
