package library

import (
	"context"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
)

// Live names a set without holding its records. Resolve it inside a scope
// with PerformWrite or PerformRead.
type Live struct {
	store *Store
	id    uuid.UUID
}

// ID returns the set identifier.
func (l Live) ID() uuid.UUID {
	return l.id
}

// Store returns the store the handle resolves against.
func (l Live) Store() *Store {
	return l.store
}

// PerformWrite resolves the set inside a write scope and runs fn with it. A
// deleted set yields ErrSetNotFound.
func (l Live) PerformWrite(ctx context.Context, fn func(*Tx, *beatmap.SetInfo) error) error {
	return l.store.Write(ctx, func(tx *Tx) error {
		set, err := tx.SetByID(ctx, l.id)
		if err != nil {
			return err
		}
		return fn(tx, set)
	})
}

// PerformRead resolves the set inside a read scope and runs fn with it.
func (l Live) PerformRead(ctx context.Context, fn func(*Tx, *beatmap.SetInfo) error) error {
	return l.store.Read(ctx, func(tx *Tx) error {
		set, err := tx.SetByID(ctx, l.id)
		if err != nil {
			return err
		}
		return fn(tx, set)
	})
}
