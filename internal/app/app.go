package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"beatline/internal/config"
	"beatline/internal/difficulty"
	"beatline/internal/filestore"
	"beatline/internal/importer"
	"beatline/internal/library"
	"beatline/internal/logging"
	"beatline/internal/onlinelookup"
	"beatline/internal/rulesets"
	"beatline/internal/updater"
	"beatline/internal/workingcache"
)

// Components holds the wired services of one beatline process.
type Components struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *library.Store
	Files      *filestore.Store
	Registry   *rulesets.Registry
	Working    *workingcache.Cache
	Difficulty *difficulty.Cache
	Lookup     *onlinelookup.Queue
	Updater    *updater.Updater
	Importer   *importer.Importer
}

// Open builds every component described by cfg. The online lookup worker
// runs until Close.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := library.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}

	files, err := filestore.New(cfg.FilesDir())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open file store: %w", err)
	}

	registry := rulesets.Default()
	working, err := workingcache.New(files, cfg.Cache.WorkingBeatmaps, workingcache.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create working cache: %w", err)
	}
	diffCache := difficulty.New(working, registry, cfg.Cache.DifficultyEntries, cfg.DifficultyTTL(), logger)

	lookup, err := onlinelookup.NewFromConfig(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	lookup.Start(ctx)

	upd := updater.New(store, working, diffCache, lookup, registry,
		updater.WithWorkers(cfg.Updater.Workers),
		updater.WithLogger(logger))
	imp := importer.New(store, files, registry, upd, importer.WithLogger(logger))

	return &Components{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Files:      files,
		Registry:   registry,
		Working:    working,
		Difficulty: diffCache,
		Lookup:     lookup,
		Updater:    upd,
		Importer:   imp,
	}, nil
}

// Drain waits for queued updates and the online lookups they triggered.
func (c *Components) Drain() {
	if c == nil {
		return
	}
	c.Updater.Wait()
	c.Lookup.Wait()
}

// Close stops background work and closes the store. Pending online lookups
// are discarded; call Drain first to keep them.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	c.Updater.Close()
	c.Lookup.Stop()
	return c.Store.Close()
}
