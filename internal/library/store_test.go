package library_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
	"beatline/internal/library"
	"beatline/internal/testsupport"
)

func sampleSet() *beatmap.SetInfo {
	return &beatmap.SetInfo{
		Metadata: beatmap.Metadata{Title: "Blue Zenith", Artist: "xi", Creator: "Asphyxia"},
		Hash:     "set-hash-1",
		Files: []beatmap.NamedFile{
			{Filename: "easy.osu", Hash: "aaa"},
			{Filename: "hard.osu", Hash: "bbb"},
		},
		Beatmaps: []*beatmap.Info{
			{DifficultyName: "Hard", Ruleset: "osu", Filename: "hard.osu", FileHash: "bbb", MD5Hash: "md5-hard"},
			{DifficultyName: "Easy", Ruleset: "osu", Filename: "easy.osu", FileHash: "aaa", MD5Hash: "md5-easy"},
		},
	}
}

func TestInsertAndLoadSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	set := testsupport.InsertSet(t, store, sampleSet())
	if set.ID == uuid.Nil {
		t.Fatal("expected set ID to be assigned")
	}
	for _, b := range set.Beatmaps {
		if b.ID == uuid.Nil || b.SetID != set.ID {
			t.Fatalf("beatmap not linked to set: %+v", b)
		}
	}

	loaded := testsupport.LoadSet(t, store, set)
	if loaded.Metadata.Title != "Blue Zenith" || loaded.Status != beatmap.StatusNone {
		t.Fatalf("unexpected set: %+v", loaded)
	}
	if len(loaded.Beatmaps) != 2 {
		t.Fatalf("expected 2 beatmaps, got %d", len(loaded.Beatmaps))
	}
	// Stored order is insertion order, not name order.
	if loaded.Beatmaps[0].DifficultyName != "Hard" || loaded.Beatmaps[1].DifficultyName != "Easy" {
		t.Fatalf("stored order not preserved: %s, %s", loaded.Beatmaps[0].DifficultyName, loaded.Beatmaps[1].DifficultyName)
	}
	if loaded.FileHash("EASY.osu") != "aaa" {
		t.Fatalf("expected case-insensitive file lookup, got %q", loaded.FileHash("EASY.osu"))
	}
}

func TestSetByIDMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.SetByID(context.Background(), uuid.New())
	if !errors.Is(err, library.ErrSetNotFound) {
		t.Fatalf("expected ErrSetNotFound, got %v", err)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := testsupport.InsertSet(t, store, sampleSet())

	ctx := context.Background()
	boom := errors.New("boom")
	err := store.Write(ctx, func(tx *library.Tx) error {
		b := set.Beatmaps[0]
		b.StarRating = 7.5
		b.LastProcessed = time.Now()
		if err := tx.UpdateBeatmapDerived(ctx, b); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	loaded := testsupport.LoadSet(t, store, set)
	if loaded.Beatmaps[0].StarRating != 0 || !loaded.Beatmaps[0].LastProcessed.IsZero() {
		t.Fatalf("expected rollback, got %+v", loaded.Beatmaps[0])
	}
}

func TestWriteRollsBackOnPanic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := testsupport.InsertSet(t, store, sampleSet())
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = store.Write(ctx, func(tx *library.Tx) error {
			b := set.Beatmaps[0]
			b.BPM = 180
			if err := tx.UpdateBeatmapDerived(ctx, b); err != nil {
				return err
			}
			panic("mid-scope failure")
		})
	}()

	loaded := testsupport.LoadSet(t, store, set)
	if loaded.Beatmaps[0].BPM != 0 {
		t.Fatalf("expected rollback after panic, got bpm %v", loaded.Beatmaps[0].BPM)
	}

	// The single writer connection must be usable again.
	if err := store.Write(ctx, func(tx *library.Tx) error { return nil }); err != nil {
		t.Fatalf("Write after panic: %v", err)
	}
}

func TestUpdateBeatmapDerivedCommits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := testsupport.InsertSet(t, store, sampleSet())
	ctx := context.Background()

	processed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := store.Write(ctx, func(tx *library.Tx) error {
		b := set.Beatmaps[1]
		b.StarRating = 2.25
		b.Length = 4 * time.Second
		b.BPM = 120
		b.LastProcessed = processed
		return tx.UpdateBeatmapDerived(ctx, b)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got *beatmap.Info
	err = store.Read(ctx, func(tx *library.Tx) error {
		var err error
		got, err = tx.BeatmapByID(ctx, set.Beatmaps[1].ID)
		return err
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.StarRating != 2.25 || got.Length != 4*time.Second || got.BPM != 120 {
		t.Fatalf("unexpected derived fields: %+v", got)
	}
	if !got.LastProcessed.Equal(processed) {
		t.Fatalf("last processed = %v, want %v", got.LastProcessed, processed)
	}
}

func TestUpdateBeatmapDerivedMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.Write(ctx, func(tx *library.Tx) error {
		return tx.UpdateBeatmapDerived(ctx, &beatmap.Info{ID: uuid.New()})
	})
	if !errors.Is(err, library.ErrBeatmapNotFound) {
		t.Fatalf("expected ErrBeatmapNotFound, got %v", err)
	}
}

func TestUpdateOnlineInfo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := testsupport.InsertSet(t, store, sampleSet())
	ctx := context.Background()

	set.OnlineID = 292301
	set.Status = beatmap.StatusRanked
	set.Beatmaps[0].OnlineID = 658127
	set.Beatmaps[0].Status = beatmap.StatusRanked
	if err := store.Write(ctx, func(tx *library.Tx) error { return tx.UpdateOnlineInfo(ctx, set) }); err != nil {
		t.Fatalf("UpdateOnlineInfo: %v", err)
	}

	loaded := testsupport.LoadSet(t, store, set)
	if loaded.OnlineID != 292301 || loaded.Status != beatmap.StatusRanked {
		t.Fatalf("unexpected set online info: %d %s", loaded.OnlineID, loaded.Status)
	}
	if loaded.Beatmaps[0].OnlineID != 658127 || loaded.Beatmaps[1].OnlineID != 0 {
		t.Fatalf("unexpected beatmap online ids: %d %d", loaded.Beatmaps[0].OnlineID, loaded.Beatmaps[1].OnlineID)
	}
}

func TestLiveResolvesInsideScope(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := testsupport.InsertSet(t, store, sampleSet())
	ctx := context.Background()

	live := store.Live(set.ID)
	if live.ID() != set.ID {
		t.Fatalf("live id = %s", live.ID())
	}
	var count int
	if err := live.PerformRead(ctx, func(_ *library.Tx, s *beatmap.SetInfo) error {
		count = len(s.Beatmaps)
		return nil
	}); err != nil {
		t.Fatalf("PerformRead: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 beatmaps, got %d", count)
	}

	if err := store.Write(ctx, func(tx *library.Tx) error { return tx.DeleteSet(ctx, set.ID) }); err != nil {
		t.Fatalf("DeleteSet: %v", err)
	}
	err := live.PerformWrite(ctx, func(*library.Tx, *beatmap.SetInfo) error { return nil })
	if !errors.Is(err, library.ErrSetNotFound) {
		t.Fatalf("expected ErrSetNotFound for deleted set, got %v", err)
	}
}

func TestDeleteSetCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := testsupport.InsertSet(t, store, sampleSet())
	ctx := context.Background()

	err := store.Write(ctx, func(tx *library.Tx) error {
		if err := tx.DeleteSet(ctx, set.ID); err != nil {
			return err
		}
		referenced, err := tx.FileReferenced(ctx, "aaa")
		if err != nil {
			return err
		}
		if referenced {
			t.Errorf("expected file reference to be removed with the set")
		}
		_, err = tx.BeatmapByID(ctx, set.Beatmaps[0].ID)
		if !errors.Is(err, library.ErrBeatmapNotFound) {
			t.Errorf("expected beatmap to be deleted, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestSetByHashAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.InsertSet(t, store, sampleSet())
	second := sampleSet()
	second.Hash = "set-hash-2"
	second.DateAdded = first.DateAdded.Add(time.Minute)
	testsupport.InsertSet(t, store, second)
	ctx := context.Background()

	var found *beatmap.SetInfo
	if err := store.Read(ctx, func(tx *library.Tx) error {
		var err error
		found, err = tx.SetByHash(ctx, "set-hash-2")
		return err
	}); err != nil {
		t.Fatalf("SetByHash: %v", err)
	}
	if found.ID != second.ID {
		t.Fatalf("SetByHash returned %s, want %s", found.ID, second.ID)
	}

	sets, err := store.ListSets(ctx)
	if err != nil {
		t.Fatalf("ListSets: %v", err)
	}
	if len(sets) != 2 || sets[0].ID != first.ID {
		t.Fatalf("unexpected list order: %v", sets)
	}
}

func TestReopenChecksSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Close()
}
