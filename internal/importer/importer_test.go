package importer_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"

	"beatline/internal/archive"
	"beatline/internal/filestore"
	"beatline/internal/importer"
	"beatline/internal/library"
	"beatline/internal/logging"
	"beatline/internal/rulesets"
	"beatline/internal/testsupport"
)

type recordingScheduler struct {
	mu     sync.Mutex
	queued []library.Live
}

func (s *recordingScheduler) Queue(live library.Live) <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, live)
	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}

type fixture struct {
	store     *library.Store
	files     *filestore.Store
	scheduler *recordingScheduler
	importer  *importer.Importer
	dir       string
	filesDir  string
}

func newFixture(t *testing.T, registry *rulesets.Registry) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	files, err := filestore.New(cfg.FilesDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	scheduler := &recordingScheduler{}
	imp := importer.New(store, files, registry, scheduler,
		importer.WithLogger(logging.NewNop()),
		importer.WithConcurrency(2))
	return fixture{store: store, files: files, scheduler: scheduler, importer: imp, dir: testsupport.BaseDir(cfg), filesDir: cfg.FilesDir()}
}

func songArchive() map[string]string {
	return map[string]string{
		"audio.mp3":        "not really audio",
		"bg.jpg":           "not really an image",
		"Song [Hard].osu":  testsupport.OsuFile(testsupport.OsuOptions{Version: "Hard", BeatmapID: 11, BeatLength: 500, HitTimes: []float64{1000, 1500, 2000}}),
		"Song [Taiko].osu": testsupport.OsuFile(testsupport.OsuOptions{Mode: 1, Version: "Taiko", HitTimes: []float64{1000}}),
		"__MACOSX/._bg.jpg": "resource fork",
	}
}

func TestImportPathStoresSet(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	path := testsupport.WriteOsz(t, f.dir, "song.osz", songArchive())

	set, err := f.importer.ImportPath(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	if len(set.Files) != 4 {
		t.Fatalf("expected 4 files (junk filtered), got %d: %+v", len(set.Files), set.Files)
	}
	if len(set.Beatmaps) != 2 {
		t.Fatalf("expected 2 beatmaps, got %d", len(set.Beatmaps))
	}
	if set.Metadata.Title != "Test Song" || set.Hash == "" {
		t.Fatalf("unexpected set: %+v", set)
	}

	loaded := testsupport.LoadSet(t, f.store, set)
	rulesetsSeen := map[string]string{}
	for _, b := range loaded.Beatmaps {
		rulesetsSeen[b.DifficultyName] = b.Ruleset
		if !f.files.Exists(b.FileHash) {
			t.Fatalf("beatmap file %s not stored", b.Filename)
		}
	}
	if rulesetsSeen["Hard"] != "osu" || rulesetsSeen["Taiko"] != "taiko" {
		t.Fatalf("unexpected rulesets: %v", rulesetsSeen)
	}

	hard := testsupport.OsuFile(testsupport.OsuOptions{Version: "Hard", BeatmapID: 11, BeatLength: 500, HitTimes: []float64{1000, 1500, 2000}})
	sum := md5.Sum([]byte(hard))
	for _, b := range loaded.Beatmaps {
		if b.DifficultyName == "Hard" {
			if b.MD5Hash != hex.EncodeToString(sum[:]) {
				t.Fatalf("unexpected md5 %q", b.MD5Hash)
			}
			if b.OnlineID != 11 {
				t.Fatalf("expected online id from file, got %d", b.OnlineID)
			}
		}
	}

	if len(f.scheduler.queued) != 1 || f.scheduler.queued[0].ID() != set.ID {
		t.Fatalf("expected set to be queued once, got %d", len(f.scheduler.queued))
	}
}

func TestImportDeduplicatesBySetHash(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	path := testsupport.WriteOsz(t, f.dir, "song.osz", songArchive())

	first, err := f.importer.ImportPath(context.Background(), path)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := f.importer.ImportPath(context.Background(), path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing set %s, got %s", first.ID, second.ID)
	}
	sets, err := f.store.ListSets(context.Background())
	if err != nil {
		t.Fatalf("ListSets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("expected 1 set, got %d", len(sets))
	}
	if len(f.scheduler.queued) != 1 {
		t.Fatalf("expected duplicate not to be queued, got %d", len(f.scheduler.queued))
	}
}

func TestImportRejectsUnknownRuleset(t *testing.T) {
	f := newFixture(t, rulesets.NewRegistry(rulesets.Osu{}))
	path := testsupport.WriteOsz(t, f.dir, "song.osz", songArchive())

	_, err := f.importer.ImportPath(context.Background(), path)
	if !errors.Is(err, rulesets.ErrRulesetNotFound) {
		t.Fatalf("expected ErrRulesetNotFound, got %v", err)
	}
	sets, err := f.store.ListSets(context.Background())
	if err != nil {
		t.Fatalf("ListSets: %v", err)
	}
	if len(sets) != 0 {
		t.Fatalf("expected nothing inserted, got %d sets", len(sets))
	}
	if n := storedFiles(t, f.filesDir); n != 0 {
		t.Fatalf("expected no stored files after rejected import, got %d", n)
	}
}

func TestImportRequiresBeatmaps(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	path := testsupport.WriteOsz(t, f.dir, "empty.osz", map[string]string{"audio.mp3": "x"})

	if _, err := f.importer.ImportPath(context.Background(), path); !errors.Is(err, importer.ErrNoBeatmaps) {
		t.Fatalf("expected ErrNoBeatmaps, got %v", err)
	}
	if n := storedFiles(t, f.filesDir); n != 0 {
		t.Fatalf("expected no stored files after rejected import, got %d", n)
	}
}

func TestImportRejectsMalformedDifficultyWithoutStoring(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	files := songArchive()
	files["Song [Broken].osu"] = testsupport.OsuFile(testsupport.OsuOptions{Version: "Broken", HitTimes: []float64{1000}}) +
		"256,192,inf,1,0\n"
	path := testsupport.WriteOsz(t, f.dir, "broken.osz", files)

	if _, err := f.importer.ImportPath(context.Background(), path); err == nil {
		t.Fatal("expected malformed difficulty to fail the import")
	}
	if n := storedFiles(t, f.filesDir); n != 0 {
		t.Fatalf("expected no stored files, got %d", n)
	}
}

// failingReader serves an archive but fails reading one entry.
type failingReader struct {
	archive.Reader
	broken string
}

func (r failingReader) GetStream(name string) (io.ReadSeeker, error) {
	if name == r.broken {
		return brokenStream{}, nil
	}
	return r.Reader.GetStream(name)
}

type brokenStream struct{}

func (brokenStream) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }
func (brokenStream) Seek(int64, int) (int64, error) { return 0, nil }

func TestImportDiscardsFilesWhenStoringFails(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	existing, err := f.importer.ImportPath(context.Background(), testsupport.WriteOsz(t, f.dir, "song.osz", songArchive()))
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}
	before := storedFiles(t, f.filesDir)

	path := testsupport.WriteOsz(t, f.dir, "other.osz", map[string]string{
		"audio.mp3": "not really audio",
		"cover.png": "unreadable",
		"extra.wav": "hitsound",
		"b.osu":     testsupport.OsuFile(testsupport.OsuOptions{Title: "Other", HitTimes: []float64{10}}),
	})
	reader, err := archive.Open(path)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	defer reader.Close()

	if _, err := f.importer.Import(context.Background(), failingReader{Reader: reader, broken: "cover.png"}); err == nil {
		t.Fatal("expected import to fail")
	}
	if n := storedFiles(t, f.filesDir); n != before {
		t.Fatalf("expected %d stored files after failed import, got %d", before, n)
	}
	if !f.files.Exists(existing.FileHash("audio.mp3")) {
		t.Fatal("expected audio shared with an imported set to be kept")
	}
}

func storedFiles(t *testing.T, root string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return count
}

func TestImportFromDirectory(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	dir := t.TempDir()
	testsupport.WriteFiles(t, dir, map[string]string{
		"map.osu": testsupport.OsuFile(testsupport.OsuOptions{Mode: 3, Version: "4K", HitTimes: []float64{100}}),
	})
	reader, err := archive.Open(dir)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	defer reader.Close()

	set, err := f.importer.Import(context.Background(), reader)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if set.Beatmaps[0].Ruleset != "mania" {
		t.Fatalf("expected mania ruleset, got %q", set.Beatmaps[0].Ruleset)
	}
}

func TestRemoveDeletesUnreferencedFiles(t *testing.T) {
	f := newFixture(t, rulesets.Default())
	path := testsupport.WriteOsz(t, f.dir, "song.osz", songArchive())
	set, err := f.importer.ImportPath(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportPath: %v", err)
	}

	other := testsupport.WriteOsz(t, f.dir, "other.osz", map[string]string{
		"audio.mp3": "not really audio",
		"b.osu":     testsupport.OsuFile(testsupport.OsuOptions{Title: "Other", HitTimes: []float64{10}}),
	})
	if _, err := f.importer.ImportPath(context.Background(), other); err != nil {
		t.Fatalf("ImportPath other: %v", err)
	}

	if err := f.importer.Remove(context.Background(), set.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := f.store.SetByID(context.Background(), set.ID); !errors.Is(err, library.ErrSetNotFound) {
		t.Fatalf("expected set removed, got %v", err)
	}
	audio := set.FileHash("audio.mp3")
	if !f.files.Exists(audio) {
		t.Fatal("expected shared audio file to be kept")
	}
	if f.files.Exists(set.FileHash("bg.jpg")) {
		t.Fatal("expected unreferenced background to be removed")
	}
}
