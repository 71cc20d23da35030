package onlinelookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"beatline/internal/beatmap"
	"beatline/internal/config"
	"beatline/internal/library"
	"beatline/internal/logging"
)

var (
	lookupResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatline_online_lookups_total",
		Help: "Online beatmap lookups by outcome.",
	}, []string{"result"})
	droppedUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_online_updates_dropped_total",
		Help: "Online lookup requests dropped because the queue was full.",
	})
)

const defaultQueueSize = 256

type lookupItem struct {
	beatmapID uuid.UUID
	md5       string
}

type request struct {
	setID uuid.UUID
	items []lookupItem
}

// Queue resolves online identifiers for sets in the background and writes
// them back to the library.
type Queue struct {
	store    *library.Store
	lookuper Lookuper
	cache    *Cache
	logger   *slog.Logger

	requests chan request

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewQueue creates a lookup queue. A nil lookuper yields a disabled queue
// whose Update does nothing.
func NewQueue(store *library.Store, lookuper Lookuper, cache *Cache, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if cache == nil {
		cache = NewCache("", logger)
	}
	q := &Queue{
		store:    store,
		lookuper: lookuper,
		cache:    cache,
		logger:   logging.NewComponentLogger(logger, "online_lookup"),
		requests: make(chan request, size),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// NewFromConfig builds the queue described by cfg. When lookups are disabled
// the returned queue is inert.
func NewFromConfig(cfg *config.Config, store *library.Store, logger *slog.Logger) (*Queue, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if !cfg.OnlineLookupActive() {
		return NewQueue(store, nil, nil, cfg.Online.QueueSize, logger), nil
	}
	client, err := New(cfg.Online.APIKey, cfg.Online.BaseURL,
		WithUserAgent(cfg.Online.UserAgent),
		WithTimeout(cfg.OnlineTimeout()),
		WithRateLimit(cfg.Online.RequestsPerSecond),
		WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("online lookup client: %w", err)
	}
	cache := NewCache(cfg.Online.CachePath, logger)
	return NewQueue(store, client, cache, cfg.Online.QueueSize, logger), nil
}

// Enabled reports whether Update schedules any work.
func (q *Queue) Enabled() bool {
	return q != nil && q.lookuper != nil
}

// Start launches the background worker.
func (q *Queue) Start(ctx context.Context) {
	if !q.Enabled() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done != nil || q.stopped {
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.run(ctx, q.done)
}

// Stop cancels the worker and discards requests that have not started.
func (q *Queue) Stop() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.stopped = true
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	q.drain()
}

// Wait blocks until every accepted request has been handled.
func (q *Queue) Wait() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

// Update schedules an online lookup for every beatmap of set. It never
// blocks: when the buffer is full the request is dropped.
func (q *Queue) Update(set *beatmap.SetInfo) {
	if !q.Enabled() || set == nil {
		return
	}

	req := request{setID: set.ID}
	for _, b := range set.Beatmaps {
		if b == nil || strings.TrimSpace(b.MD5Hash) == "" {
			continue
		}
		req.items = append(req.items, lookupItem{beatmapID: b.ID, md5: b.MD5Hash})
	}
	if len(req.items) == 0 {
		return
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	// The worker settles a request under mu, so counting after the send
	// cannot go negative.
	select {
	case q.requests <- req:
		q.pending++
		q.mu.Unlock()
		return
	default:
	}
	q.mu.Unlock()

	droppedUpdatesTotal.Inc()
	logging.WarnWithContext(q.logger, "online lookup queue full", "online_lookup_dropped",
		logging.SetID(set.ID),
		logging.Int("queue_size", cap(q.requests)),
		logging.String(logging.FieldErrorHint, "raise online.queue_size or lower import rate"),
		logging.String(logging.FieldImpact, "set keeps its previous online identifiers"))
}

// settle marks one accepted request as handled.
func (q *Queue) settle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		q.idle.Broadcast()
	}
}

func (q *Queue) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-q.requests:
			q.handle(ctx, req)
			q.settle()
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case <-q.requests:
			q.settle()
		default:
			return
		}
	}
}

func (q *Queue) handle(ctx context.Context, req request) {
	logger := q.logger.With(logging.SetID(req.setID))

	resolved := make(map[uuid.UUID]Result, len(req.items))
	hashes := make(map[uuid.UUID]string, len(req.items))
	for _, item := range req.items {
		res, err := q.resolve(ctx, item.md5)
		switch {
		case errors.Is(err, ErrNotFound):
			lookupResultsTotal.WithLabelValues("not_found").Inc()
			logger.Debug("beatmap not known online",
				logging.BeatmapID(item.beatmapID))
			continue
		case err != nil:
			lookupResultsTotal.WithLabelValues("error").Inc()
			logging.WarnWithContext(logger, "online lookup failed", "online_lookup_failed",
				logging.BeatmapID(item.beatmapID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check online.api_key and network access"))
			continue
		}
		lookupResultsTotal.WithLabelValues("found").Inc()
		resolved[item.beatmapID] = res
		hashes[item.beatmapID] = strings.ToLower(item.md5)
	}
	if len(resolved) == 0 {
		return
	}

	err := q.store.Write(ctx, func(tx *library.Tx) error {
		set, err := tx.SetByID(ctx, req.setID)
		if err != nil {
			return err
		}
		return tx.UpdateOnlineInfo(ctx, applyResults(set, resolved, hashes))
	})
	switch {
	case errors.Is(err, library.ErrSetNotFound):
		logger.Debug("set removed before online lookup completed")
	case err != nil:
		logging.WarnWithContext(logger, "failed to persist online identifiers", "online_lookup_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "online identifiers refresh on the next update"))
	default:
		logger.Debug("online identifiers updated", logging.Int("resolved", len(resolved)))
	}
}

// applyResults copies resolved identifiers onto set. Beatmaps whose hash
// changed since the request was queued are left alone. The set takes the
// identifiers of its first resolved beatmap in stored order.
func applyResults(set *beatmap.SetInfo, resolved map[uuid.UUID]Result, hashes map[uuid.UUID]string) *beatmap.SetInfo {
	setResolved := false
	for _, b := range set.Beatmaps {
		res, ok := resolved[b.ID]
		if !ok || !strings.EqualFold(b.MD5Hash, hashes[b.ID]) {
			continue
		}
		b.OnlineID = res.BeatmapID
		b.Status = res.Status
		if !setResolved {
			set.OnlineID = res.SetID
			set.Status = res.Status
			setResolved = true
		}
	}
	return set
}

func (q *Queue) resolve(ctx context.Context, md5 string) (Result, error) {
	if entry, ok := q.cache.Lookup(md5); ok {
		lookupResultsTotal.WithLabelValues("cached").Inc()
		return entry.Result(), nil
	}
	res, err := q.lookuper.LookupBeatmap(ctx, md5)
	if err != nil {
		return Result{}, err
	}
	if err := q.cache.Store(Entry{
		MD5:       md5,
		BeatmapID: res.BeatmapID,
		SetID:     res.SetID,
		Status:    res.Status,
	}); err != nil {
		logging.WarnWithContext(q.logger, "failed to cache online lookup", "online_cache_store_failed",
			logging.Error(err))
	}
	return res, nil
}
