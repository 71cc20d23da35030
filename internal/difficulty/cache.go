package difficulty

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"beatline/internal/beatmap"
	"beatline/internal/logging"
	"beatline/internal/rulesets"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_difficulty_cache_hits_total",
		Help: "Difficulty lookups served from memory.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_difficulty_cache_misses_total",
		Help: "Difficulty lookups that required a calculation.",
	})
	computeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beatline_difficulty_compute_duration_seconds",
		Help:    "Time spent calculating difficulty on a cache miss.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

const (
	defaultSize = 1024
	defaultTTL  = 30 * time.Minute
)

// WorkingSource provides decoded beatmaps.
type WorkingSource interface {
	Get(ctx context.Context, info beatmap.Info) (*beatmap.WorkingBeatmap, error)
}

// RulesetSource resolves ruleset names.
type RulesetSource interface {
	Create(name string) (rulesets.Ruleset, error)
}

// StarDifficulty is a cached difficulty result.
type StarDifficulty struct {
	Stars    float64
	MaxCombo int
}

// Key identifies a cached result.
type Key struct {
	BeatmapID uuid.UUID
	Ruleset   string
	Mods      string
}

func (k Key) String() string {
	return k.BeatmapID.String() + "|" + k.Ruleset + "|" + k.Mods
}

// Cache is an expiring LRU of difficulty results.
type Cache struct {
	working  WorkingSource
	rulesets RulesetSource
	entries  *expirable.LRU[Key, StarDifficulty]
	group    singleflight.Group
	logger   *slog.Logger

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
	inflight    map[uuid.UUID]map[Key]struct{}
}

// New creates a cache of at most size entries that expire after ttl.
func New(working WorkingSource, registry RulesetSource, size int, ttl time.Duration, logger *slog.Logger) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		working:     working,
		rulesets:    registry,
		entries:     expirable.NewLRU[Key, StarDifficulty](size, nil, ttl),
		logger:      logging.NewComponentLogger(logger, "difficulty_cache"),
		generations: make(map[uuid.UUID]uint64),
		inflight:    make(map[uuid.UUID]map[Key]struct{}),
	}
}

// Get returns the difficulty of info under mods, computing it on a miss.
func (c *Cache) Get(ctx context.Context, info beatmap.Info, mods []rulesets.Mod) (StarDifficulty, error) {
	key := Key{BeatmapID: info.ID, Ruleset: info.Ruleset, Mods: rulesets.ModsKey(mods)}
	if cached, ok := c.entries.Get(key); ok {
		cacheHitsTotal.Inc()
		return cached, nil
	}
	cacheMissesTotal.Inc()

	// Callers joining an in-flight computation share it, so it must not be
	// bound to the first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		c.mu.Lock()
		generation := c.generations[info.ID]
		c.trackLocked(key)
		c.mu.Unlock()

		start := time.Now()
		value, err := c.compute(shared, info, mods)
		computeDuration.Observe(time.Since(start).Seconds())

		c.mu.Lock()
		defer c.mu.Unlock()
		c.untrackLocked(key)
		if err != nil {
			return StarDifficulty{}, err
		}
		if c.generations[info.ID] == generation {
			c.entries.Add(key, value)
		}
		return value, nil
	})
	select {
	case <-ctx.Done():
		return StarDifficulty{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return StarDifficulty{}, res.Err
		}
		return res.Val.(StarDifficulty), nil
	}
}

func (c *Cache) compute(ctx context.Context, info beatmap.Info, mods []rulesets.Mod) (StarDifficulty, error) {
	ruleset, err := c.rulesets.Create(info.Ruleset)
	if err != nil {
		return StarDifficulty{}, fmt.Errorf("beatmap %s: %w", info.ID, err)
	}
	working, err := c.working.Get(ctx, info)
	if err != nil {
		return StarDifficulty{}, err
	}
	attrs, err := ruleset.CreateDifficultyCalculator(working).Calculate(ctx, mods)
	if err != nil {
		return StarDifficulty{}, fmt.Errorf("calculate difficulty for %s: %w", info.ID, err)
	}
	return StarDifficulty{Stars: attrs.StarRating, MaxCombo: attrs.MaxCombo}, nil
}

// Invalidate removes every cached result for the beatmap.
func (c *Cache) Invalidate(info beatmap.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[info.ID]++
	removed := 0
	for _, key := range c.entries.Keys() {
		if key.BeatmapID != info.ID {
			continue
		}
		c.entries.Remove(key)
		removed++
	}
	// New callers must not join a computation that started before this point.
	for key := range c.inflight[info.ID] {
		c.group.Forget(key.String())
	}

	if removed > 0 {
		c.logger.Debug("invalidated difficulty entries",
			logging.BeatmapID(info.ID),
			logging.Int("entries", removed))
	}
}

func (c *Cache) trackLocked(key Key) {
	keys, ok := c.inflight[key.BeatmapID]
	if !ok {
		keys = make(map[Key]struct{})
		c.inflight[key.BeatmapID] = keys
	}
	keys[key] = struct{}{}
}

func (c *Cache) untrackLocked(key Key) {
	keys := c.inflight[key.BeatmapID]
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.inflight, key.BeatmapID)
	}
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return c.entries.Len()
}
