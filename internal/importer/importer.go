package importer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"beatline/internal/archive"
	"beatline/internal/beatmap"
	"beatline/internal/filestore"
	"beatline/internal/library"
	"beatline/internal/logging"
	"beatline/internal/rulesets"
)

var (
	// ErrNoBeatmaps is returned for archives without any .osu file.
	ErrNoBeatmaps = errors.New("archive contains no beatmaps")
	// ErrAlreadyImported marks an archive whose content is already in the
	// library. Import resolves it to the existing set instead of failing.
	ErrAlreadyImported = errors.New("set already imported")
)

const defaultConcurrency = 4

// Scheduler receives newly imported sets for derived-metadata processing.
type Scheduler interface {
	Queue(live library.Live) <-chan error
}

// Importer imports archives into a library.
type Importer struct {
	store       *library.Store
	files       *filestore.Store
	registry    *rulesets.Registry
	scheduler   Scheduler
	logger      *slog.Logger
	concurrency int
}

// Option configures an Importer.
type Option func(*Importer)

// WithConcurrency bounds how many archive entries are stored at once.
func WithConcurrency(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithLogger sets the importer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) { i.logger = logger }
}

// New creates an importer. scheduler may be nil, in which case imported sets
// are not processed until something else queues them.
func New(store *library.Store, files *filestore.Store, registry *rulesets.Registry, scheduler Scheduler, opts ...Option) *Importer {
	imp := &Importer{
		store:       store,
		files:       files,
		registry:    registry,
		scheduler:   scheduler,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.logger = logging.NewComponentLogger(imp.logger, "importer")
	return imp
}

// ImportPath opens the archive at path and imports it.
func (i *Importer) ImportPath(ctx context.Context, path string) (*beatmap.SetInfo, error) {
	reader, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return i.Import(ctx, reader)
}

type storedEntry struct {
	file    beatmap.NamedFile
	size    int64
	data    []byte
	decoded *beatmap.Beatmap
	md5     string
}

// Import stores and records the set held by reader, then queues it for
// processing. The caller keeps ownership of reader. Difficulties are decoded
// and validated before anything reaches the file store.
func (i *Importer) Import(ctx context.Context, reader archive.Reader) (*beatmap.SetInfo, error) {
	if reader == nil {
		return nil, errors.New("archive reader is nil")
	}
	logger := i.logger.With(logging.String("archive", reader.Name()))

	names := reader.Filenames()
	entries := make([]storedEntry, len(names))
	for idx, name := range names {
		entries[idx].file.Filename = name
	}

	if err := i.forEach(ctx, entries, func(entry *storedEntry) error {
		if !isBeatmapFile(entry.file.Filename) {
			return nil
		}
		return i.decodeEntry(reader, entry)
	}); err != nil {
		return nil, err
	}
	if err := i.validate(entries); err != nil {
		return nil, fmt.Errorf("%s: %w", reader.Name(), err)
	}

	var total atomic.Int64
	storeErr := i.forEach(ctx, entries, func(entry *storedEntry) error {
		if err := i.storeEntry(reader, entry); err != nil {
			return err
		}
		total.Add(entry.size)
		return nil
	})
	if storeErr != nil {
		i.discard(ctx, entries)
		return nil, storeErr
	}

	set, err := i.buildSet(entries)
	if err != nil {
		i.discard(ctx, entries)
		return nil, fmt.Errorf("%s: %w", reader.Name(), err)
	}

	existing, err := i.insert(ctx, set)
	if errors.Is(err, ErrAlreadyImported) {
		logger.Info("archive already imported",
			logging.SetID(existing.ID),
			logging.String("title", existing.Metadata.Title))
		return existing, nil
	}
	if err != nil {
		i.discard(ctx, entries)
		return nil, err
	}

	logger.Info("imported beatmap set",
		logging.SetID(set.ID),
		logging.String("title", set.Metadata.Title),
		logging.String("artist", set.Metadata.Artist),
		logging.Int("beatmaps", len(set.Beatmaps)),
		logging.Int("files", len(set.Files)),
		logging.String("size", humanize.Bytes(uint64(total.Load()))))

	if i.scheduler != nil {
		i.scheduler.Queue(i.store.Live(set.ID))
	}
	return set, nil
}

// forEach runs fn over entries with bounded concurrency.
func (i *Importer) forEach(ctx context.Context, entries []storedEntry, fn func(*storedEntry) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(&entries[idx])
		})
	}
	return g.Wait()
}

func (i *Importer) decodeEntry(reader archive.Reader, entry *storedEntry) error {
	name := entry.file.Filename
	stream, err := reader.GetStream(name)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	decoded, err := beatmap.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	sum := md5.Sum(data)

	entry.data = data
	entry.decoded = decoded
	entry.md5 = hex.EncodeToString(sum[:])
	return nil
}

func (i *Importer) storeEntry(reader archive.Reader, entry *storedEntry) error {
	name := entry.file.Filename
	var src io.Reader
	if entry.data != nil {
		src = bytes.NewReader(entry.data)
	} else {
		stream, err := reader.GetStream(name)
		if err != nil {
			return err
		}
		src = stream
	}
	hash, size, err := i.files.Put(src)
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	entry.file.Hash = hash
	entry.size = size
	return nil
}

// validate rejects archives without difficulties or with a difficulty whose
// ruleset is not registered.
func (i *Importer) validate(entries []storedEntry) error {
	beatmaps := 0
	for _, entry := range entries {
		if entry.decoded == nil {
			continue
		}
		if _, err := i.resolveRuleset(entry.decoded.Mode); err != nil {
			return fmt.Errorf("%s: %w", entry.file.Filename, err)
		}
		beatmaps++
	}
	if beatmaps == 0 {
		return ErrNoBeatmaps
	}
	return nil
}

// discard removes files stored by a failed import that no set references.
func (i *Importer) discard(ctx context.Context, entries []storedEntry) {
	ctx = context.WithoutCancel(ctx)
	var orphaned []string
	err := i.store.Read(ctx, func(tx *library.Tx) error {
		seen := make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			hash := entry.file.Hash
			if hash == "" {
				continue
			}
			if _, dup := seen[hash]; dup {
				continue
			}
			seen[hash] = struct{}{}
			referenced, err := tx.FileReferenced(ctx, hash)
			if err != nil {
				return err
			}
			if !referenced {
				orphaned = append(orphaned, hash)
			}
		}
		return nil
	})
	if err == nil {
		err = i.removeFiles(orphaned)
	}
	if err != nil {
		logging.WarnWithContext(i.logger, "failed to discard files of rejected import", "import_discard_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unreferenced files remain in the file store"))
	}
}

func (i *Importer) buildSet(entries []storedEntry) (*beatmap.SetInfo, error) {
	set := &beatmap.SetInfo{Status: beatmap.StatusNone}
	hashes := make([]string, 0, len(entries))

	for _, entry := range entries {
		set.Files = append(set.Files, entry.file)
		hashes = append(hashes, entry.file.Hash)
		if entry.decoded == nil {
			continue
		}

		ruleset, err := i.resolveRuleset(entry.decoded.Mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.file.Filename, err)
		}

		if len(set.Beatmaps) == 0 {
			set.Metadata = entry.decoded.Metadata
			set.OnlineID = entry.decoded.SetOnlineID
		}
		set.Beatmaps = append(set.Beatmaps, &beatmap.Info{
			DifficultyName: entry.decoded.DifficultyName,
			Ruleset:        ruleset.ShortName(),
			Filename:       entry.file.Filename,
			FileHash:       entry.file.Hash,
			MD5Hash:        entry.md5,
			OnlineID:       entry.decoded.OnlineID,
			Status:         beatmap.StatusNone,
		})
	}
	if len(set.Beatmaps) == 0 {
		return nil, ErrNoBeatmaps
	}
	set.Hash = filestore.CombineHashes(hashes)
	return set, nil
}

func (i *Importer) resolveRuleset(mode int) (rulesets.Ruleset, error) {
	name := beatmap.LegacyModeName(mode)
	if name == "" {
		name = strconv.Itoa(mode)
	}
	ruleset, err := i.registry.Create(name)
	if err != nil {
		return nil, fmt.Errorf("mode %d: %w", mode, err)
	}
	return ruleset, nil
}

// insert stores set unless a set with the same hash exists. On a duplicate it
// returns the existing set together with ErrAlreadyImported.
func (i *Importer) insert(ctx context.Context, set *beatmap.SetInfo) (*beatmap.SetInfo, error) {
	var existing *beatmap.SetInfo
	err := i.store.Write(ctx, func(tx *library.Tx) error {
		found, err := tx.SetByHash(ctx, set.Hash)
		switch {
		case err == nil:
			existing = found
			return ErrAlreadyImported
		case !errors.Is(err, library.ErrSetNotFound):
			return err
		}
		return tx.InsertSet(ctx, set)
	})
	if err != nil {
		return existing, err
	}
	return set, nil
}

// Remove deletes a set and every stored file no other set references.
func (i *Importer) Remove(ctx context.Context, id uuid.UUID) error {
	var orphaned []string
	err := i.store.Write(ctx, func(tx *library.Tx) error {
		set, err := tx.SetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteSet(ctx, id); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(set.Files))
		for _, f := range set.Files {
			if _, dup := seen[f.Hash]; dup {
				continue
			}
			seen[f.Hash] = struct{}{}
			referenced, err := tx.FileReferenced(ctx, f.Hash)
			if err != nil {
				return err
			}
			if !referenced {
				orphaned = append(orphaned, f.Hash)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := i.removeFiles(orphaned); err != nil {
		logging.WarnWithContext(i.logger, "failed to remove stored files", "import_cleanup_failed",
			logging.SetID(id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "unreferenced files remain in the file store"))
	}
	i.logger.Info("removed beatmap set",
		logging.SetID(id),
		logging.Int("files_removed", len(orphaned)))
	return nil
}

func (i *Importer) removeFiles(hashes []string) error {
	g := new(errgroup.Group)
	g.SetLimit(i.concurrency)
	for _, hash := range hashes {
		g.Go(func() error {
			return i.files.Remove(hash)
		})
	}
	return g.Wait()
}

func isBeatmapFile(name string) bool {
	return strings.EqualFold(path.Ext(name), ".osu")
}
