package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"beatline/internal/beatmap"
	"beatline/internal/config"
)

var (
	// ErrSetNotFound is returned when a beatmap set ID does not resolve.
	ErrSetNotFound = errors.New("beatmap set not found")
	// ErrBeatmapNotFound is returned when a beatmap ID does not resolve.
	ErrBeatmapNotFound = errors.New("beatmap not found")
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store manages library persistence backed by SQLite. Writes share a single
// connection so write scopes are serialized; reads use their own pool.
type Store struct {
	db   *sql.DB
	read *sql.DB
	path string
}

// Open initializes or connects to the library database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at dbPath, creating the schema when the file is new.
func OpenPath(dbPath string) (*Store, error) {
	pragmas := "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+pragmas+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	read, err := sql.Open("sqlite", "file:"+dbPath+"?"+pragmas)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}
	store.read = read
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes both connection pools.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var readErr error
	if s.read != nil {
		readErr = s.read.Close()
	}
	return errors.Join(s.db.Close(), readErr)
}

// Write runs fn inside a write transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics.
func (s *Store) Write(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ensureContext(ctx), s.db, fn)
}

// Read runs fn inside a transaction on the reader pool. Changes made through
// the Tx are rolled back.
func (s *Store) Read(ctx context.Context, fn func(*Tx) error) error {
	ctx = ensureContext(ctx)
	var sqlTx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var beginErr error
		sqlTx, beginErr = s.read.BeginTx(ctx, nil)
		return beginErr
	}); err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&Tx{tx: sqlTx})
}

func (s *Store) run(ctx context.Context, db *sql.DB, fn func(*Tx) error) (err error) {
	var sqlTx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var beginErr error
		sqlTx, beginErr = db.BeginTx(ctx, nil)
		return beginErr
	}); err != nil {
		return fmt.Errorf("begin write tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = sqlTx.Rollback()
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit write tx: %w", err)
	}
	committed = true
	return nil
}

// Live returns a handle for the set with id. The set is resolved on use.
func (s *Store) Live(id uuid.UUID) Live {
	return Live{store: s, id: id}
}

// SetByID loads a set outside of any caller-held scope.
func (s *Store) SetByID(ctx context.Context, id uuid.UUID) (*beatmap.SetInfo, error) {
	var set *beatmap.SetInfo
	err := s.Read(ctx, func(tx *Tx) error {
		var err error
		set, err = tx.SetByID(ctx, id)
		return err
	})
	return set, err
}

// ListSets loads every set outside of any caller-held scope.
func (s *Store) ListSets(ctx context.Context) ([]*beatmap.SetInfo, error) {
	var sets []*beatmap.SetInfo
	err := s.Read(ctx, func(tx *Tx) error {
		var err error
		sets, err = tx.ListSets(ctx)
		return err
	})
	return sets, err
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
