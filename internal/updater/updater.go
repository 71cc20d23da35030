package updater

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
	"beatline/internal/library"
	"beatline/internal/logging"
	"beatline/internal/rulesets"
)

// ErrClosed is delivered to Queue callers after Close.
var ErrClosed = errors.New("updater closed")

const defaultWorkers = 4

// WorkingCache serves decoded beatmaps.
type WorkingCache interface {
	Invalidate(set *beatmap.SetInfo)
	Get(ctx context.Context, info beatmap.Info) (*beatmap.WorkingBeatmap, error)
}

// DifficultyCache holds computed difficulty values per beatmap.
type DifficultyCache interface {
	Invalidate(info beatmap.Info)
}

// LookupQueue schedules online metadata lookups.
type LookupQueue interface {
	Update(set *beatmap.SetInfo)
}

// RulesetRegistry resolves rulesets by short name.
type RulesetRegistry interface {
	Create(name string) (rulesets.Ruleset, error)
}

// Updater recomputes derived metadata for beatmap sets.
type Updater struct {
	store      *library.Store
	working    WorkingCache
	difficulty DifficultyCache
	lookup     LookupQueue
	rulesets   RulesetRegistry
	logger     *slog.Logger
	now        func() time.Time
	workers    int

	runCtx context.Context
	cancel context.CancelFunc
	slots  chan struct{}

	mu     sync.Mutex
	idle   *sync.Cond
	keys   map[uuid.UUID]*keyState
	closed bool
}

// Option configures an Updater.
type Option func(*Updater)

// WithWorkers bounds how many sets are processed at once.
func WithWorkers(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.workers = n
		}
	}
}

// WithLogger sets the updater logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) { u.logger = logger }
}

// WithClock overrides the time source used for LastProcessed.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		if now != nil {
			u.now = now
		}
	}
}

// New creates an updater. difficulty and lookup may be nil.
func New(store *library.Store, working WorkingCache, difficulty DifficultyCache, lookup LookupQueue, registry RulesetRegistry, opts ...Option) *Updater {
	u := &Updater{
		store:      store,
		working:    working,
		difficulty: difficulty,
		lookup:     lookup,
		rulesets:   registry,
		now:        time.Now,
		workers:    defaultWorkers,
		keys:       make(map[uuid.UUID]*keyState),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.difficulty == nil {
		u.difficulty = nopDifficulty{}
	}
	if u.lookup == nil {
		u.lookup = nopLookup{}
	}
	u.logger = logging.NewComponentLogger(u.logger, "updater")
	u.idle = sync.NewCond(&u.mu)
	u.slots = make(chan struct{}, u.workers)
	u.runCtx, u.cancel = context.WithCancel(context.Background())
	return u
}

type nopDifficulty struct{}

func (nopDifficulty) Invalidate(beatmap.Info) {}

type nopLookup struct{}

func (nopLookup) Update(*beatmap.SetInfo) {}
