package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
)

// Tx is an open transaction scope. It is only valid inside the function
// passed to Store.Write or Store.Read.
type Tx struct {
	tx *sql.Tx
}

// InsertSet stores a new set with its files and beatmaps. Zero IDs are
// assigned and beatmap SetIDs are pointed at the set.
func (t *Tx) InsertSet(ctx context.Context, set *beatmap.SetInfo) error {
	if set == nil {
		return errors.New("set is nil")
	}
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	if set.DateAdded.IsZero() {
		set.DateAdded = time.Now().UTC()
	}
	if set.Status == "" {
		set.Status = beatmap.StatusNone
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO beatmap_sets (
            id, online_id, status, title, artist, creator, source, tags, hash, date_added
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID.String(),
		nullableInt(set.OnlineID),
		string(set.Status),
		nullableString(set.Metadata.Title),
		nullableString(set.Metadata.Artist),
		nullableString(set.Metadata.Creator),
		nullableString(set.Metadata.Source),
		nullableString(set.Metadata.Tags),
		set.Hash,
		formatTime(set.DateAdded),
	)
	if err != nil {
		return fmt.Errorf("insert set: %w", err)
	}

	for _, f := range set.Files {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO set_files (set_id, filename, hash) VALUES (?, ?, ?)`,
			set.ID.String(), f.Filename, f.Hash,
		); err != nil {
			return fmt.Errorf("insert file %s: %w", f.Filename, err)
		}
	}

	for position, b := range set.Beatmaps {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		b.SetID = set.ID
		if b.Status == "" {
			b.Status = beatmap.StatusNone
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO beatmaps (
                id, set_id, position, difficulty_name, ruleset, filename, file_hash, md5_hash,
                online_id, status, star_rating, length_ms, bpm, last_processed
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(),
			set.ID.String(),
			position,
			nullableString(b.DifficultyName),
			b.Ruleset,
			b.Filename,
			b.FileHash,
			nullableString(b.MD5Hash),
			nullableInt(b.OnlineID),
			string(b.Status),
			b.StarRating,
			b.Length.Milliseconds(),
			b.BPM,
			nullableTime(b.LastProcessed),
		); err != nil {
			return fmt.Errorf("insert beatmap %s: %w", b.Filename, err)
		}
	}
	return nil
}

// SetByID loads a set with its files and beatmaps in stored order.
func (t *Tx) SetByID(ctx context.Context, id uuid.UUID) (*beatmap.SetInfo, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+setColumns+` FROM beatmap_sets WHERE id = ?`, id.String())
	return t.loadSet(ctx, row, id.String())
}

// SetByHash loads the set whose combined file hash is hash.
func (t *Tx) SetByHash(ctx context.Context, hash string) (*beatmap.SetInfo, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+setColumns+` FROM beatmap_sets WHERE hash = ?`, hash)
	return t.loadSet(ctx, row, hash)
}

func (t *Tx) loadSet(ctx context.Context, row *sql.Row, key string) (*beatmap.SetInfo, error) {
	set, err := scanSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSetNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get set: %w", err)
	}
	if err := t.loadChildren(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// ListSets returns every set ordered by import time.
func (t *Tx) ListSets(ctx context.Context) ([]*beatmap.SetInfo, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+setColumns+` FROM beatmap_sets ORDER BY date_added, id`)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	var sets []*beatmap.SetInfo
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate sets: %w", err)
	}
	_ = rows.Close()

	for _, set := range sets {
		if err := t.loadChildren(ctx, set); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

func (t *Tx) loadChildren(ctx context.Context, set *beatmap.SetInfo) error {
	files, err := t.tx.QueryContext(ctx,
		`SELECT filename, hash FROM set_files WHERE set_id = ? ORDER BY filename`, set.ID.String())
	if err != nil {
		return fmt.Errorf("list set files: %w", err)
	}
	defer files.Close()
	for files.Next() {
		var f beatmap.NamedFile
		if err := files.Scan(&f.Filename, &f.Hash); err != nil {
			return fmt.Errorf("scan set file: %w", err)
		}
		set.Files = append(set.Files, f)
	}
	if err := files.Err(); err != nil {
		return fmt.Errorf("iterate set files: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+beatmapColumns+` FROM beatmaps WHERE set_id = ? ORDER BY position`, set.ID.String())
	if err != nil {
		return fmt.Errorf("list beatmaps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBeatmap(rows)
		if err != nil {
			return fmt.Errorf("scan beatmap: %w", err)
		}
		set.Beatmaps = append(set.Beatmaps, b)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate beatmaps: %w", err)
	}
	return nil
}

// BeatmapByID loads a single beatmap record.
func (t *Tx) BeatmapByID(ctx context.Context, id uuid.UUID) (*beatmap.Info, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+beatmapColumns+` FROM beatmaps WHERE id = ?`, id.String())
	b, err := scanBeatmap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBeatmapNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get beatmap: %w", err)
	}
	return b, nil
}

// UpdateBeatmapDerived persists star rating, length, BPM and the processed
// timestamp of b.
func (t *Tx) UpdateBeatmapDerived(ctx context.Context, b *beatmap.Info) error {
	if b == nil {
		return errors.New("beatmap is nil")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE beatmaps SET star_rating = ?, length_ms = ?, bpm = ?, last_processed = ? WHERE id = ?`,
		b.StarRating,
		b.Length.Milliseconds(),
		b.BPM,
		nullableTime(b.LastProcessed),
		b.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update beatmap %s: %w", b.ID, err)
	}
	return expectOneRow(res, ErrBeatmapNotFound, b.ID.String())
}

// UpdateOnlineInfo persists the online ID and status of the set and of each
// of its beatmaps.
func (t *Tx) UpdateOnlineInfo(ctx context.Context, set *beatmap.SetInfo) error {
	if set == nil {
		return errors.New("set is nil")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE beatmap_sets SET online_id = ?, status = ? WHERE id = ?`,
		nullableInt(set.OnlineID), string(set.Status), set.ID.String())
	if err != nil {
		return fmt.Errorf("update set online info: %w", err)
	}
	if err := expectOneRow(res, ErrSetNotFound, set.ID.String()); err != nil {
		return err
	}
	for _, b := range set.Beatmaps {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE beatmaps SET online_id = ?, status = ? WHERE id = ? AND set_id = ?`,
			nullableInt(b.OnlineID), string(b.Status), b.ID.String(), set.ID.String(),
		); err != nil {
			return fmt.Errorf("update beatmap online info: %w", err)
		}
	}
	return nil
}

// DeleteSet removes a set together with its files and beatmaps.
func (t *Tx) DeleteSet(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM beatmap_sets WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete set: %w", err)
	}
	return expectOneRow(res, ErrSetNotFound, id.String())
}

// FileReferenced reports whether any set still references content hash.
func (t *Tx) FileReferenced(ctx context.Context, hash string) (bool, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM set_files WHERE hash = ?`, hash).Scan(&count); err != nil {
		return false, fmt.Errorf("count file references: %w", err)
	}
	return count > 0, nil
}

func expectOneRow(res sql.Result, notFound error, key string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", notFound, key)
	}
	return nil
}
