package workingcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"beatline/internal/beatmap"
	"beatline/internal/filestore"
	"beatline/internal/logging"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_working_cache_hits_total",
		Help: "Working beatmap lookups served from memory.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_working_cache_misses_total",
		Help: "Working beatmap lookups that required a decode.",
	})
	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_working_cache_invalidations_total",
		Help: "Beatmaps dropped from the working cache by invalidation.",
	})
)

const defaultSize = 64

// DecodeFunc turns raw .osu content into a beatmap.
type DecodeFunc func(io.Reader) (*beatmap.Beatmap, error)

// Option customizes a Cache.
type Option func(*Cache)

// WithDecoder replaces beatmap.Decode.
func WithDecoder(decode DecodeFunc) Option {
	return func(c *Cache) {
		if decode != nil {
			c.decode = decode
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache maps beatmap IDs to decoded working beatmaps.
type Cache struct {
	files   *filestore.Store
	decode  DecodeFunc
	entries *lru.Cache[uuid.UUID, *beatmap.Beatmap]
	logger  *slog.Logger

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

// New creates a cache holding at most size decoded beatmaps.
func New(files *filestore.Store, size int, opts ...Option) (*Cache, error) {
	if files == nil {
		return nil, errors.New("working cache requires a file store")
	}
	if size <= 0 {
		size = defaultSize
	}
	entries, err := lru.New[uuid.UUID, *beatmap.Beatmap](size)
	if err != nil {
		return nil, fmt.Errorf("create working cache: %w", err)
	}
	c := &Cache{
		files:       files,
		decode:      beatmap.Decode,
		entries:     entries,
		logger:      logging.NewNop(),
		generations: make(map[uuid.UUID]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "working_cache")
	return c, nil
}

// Get returns the working beatmap for info, decoding it from the file store
// on a miss.
func (c *Cache) Get(ctx context.Context, info beatmap.Info) (*beatmap.WorkingBeatmap, error) {
	if decoded, ok := c.entries.Get(info.ID); ok {
		cacheHitsTotal.Inc()
		return &beatmap.WorkingBeatmap{Info: info, Beatmap: decoded}, nil
	}
	cacheMissesTotal.Inc()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	generation := c.generations[info.ID]
	c.mu.Unlock()

	decoded, err := c.load(info)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generations[info.ID] == generation {
		c.entries.Add(info.ID, decoded)
	} else {
		c.logger.Debug("discarding decode started before invalidation",
			logging.BeatmapID(info.ID))
	}
	c.mu.Unlock()

	return &beatmap.WorkingBeatmap{Info: info, Beatmap: decoded}, nil
}

func (c *Cache) load(info beatmap.Info) (*beatmap.Beatmap, error) {
	f, err := c.files.Open(info.FileHash)
	if err != nil {
		return nil, fmt.Errorf("open beatmap %s: %w", info.Filename, err)
	}
	defer f.Close()

	decoded, err := c.decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode beatmap %s: %w", info.Filename, err)
	}
	return decoded, nil
}

// Invalidate drops every beatmap of set.
func (c *Cache) Invalidate(set *beatmap.SetInfo) {
	if set == nil {
		return
	}
	for _, b := range set.Beatmaps {
		c.InvalidateBeatmap(b.ID)
	}
}

// InvalidateBeatmap drops a single beatmap.
func (c *Cache) InvalidateBeatmap(id uuid.UUID) {
	c.mu.Lock()
	c.generations[id]++
	c.entries.Remove(id)
	c.mu.Unlock()
	invalidationsTotal.Inc()
}

// Contains reports whether id is cached, without touching recency.
func (c *Cache) Contains(id uuid.UUID) bool {
	return c.entries.Contains(id)
}

// Len returns the number of cached beatmaps.
func (c *Cache) Len() int {
	return c.entries.Len()
}
