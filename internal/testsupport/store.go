package testsupport

import (
	"context"
	"testing"

	"beatline/internal/beatmap"
	"beatline/internal/config"
	"beatline/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// InsertSet stores set in a write scope and fails the test on error.
func InsertSet(t testing.TB, store *library.Store, set *beatmap.SetInfo) *beatmap.SetInfo {
	t.Helper()

	err := store.Write(context.Background(), func(tx *library.Tx) error {
		return tx.InsertSet(context.Background(), set)
	})
	if err != nil {
		t.Fatalf("InsertSet: %v", err)
	}
	return set
}

// LoadSet reads a set back from the store and fails the test on error.
func LoadSet(t testing.TB, store *library.Store, set *beatmap.SetInfo) *beatmap.SetInfo {
	t.Helper()

	loaded, err := store.SetByID(context.Background(), set.ID)
	if err != nil {
		t.Fatalf("SetByID: %v", err)
	}
	return loaded
}
