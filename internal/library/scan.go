package library

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
)

const (
	setColumns     = "id, online_id, status, title, artist, creator, source, tags, hash, date_added"
	beatmapColumns = "id, set_id, difficulty_name, ruleset, filename, file_hash, md5_hash, online_id, status, star_rating, length_ms, bpm, last_processed"
)

type scanner interface{ Scan(dest ...any) error }

func scanSet(row scanner) (*beatmap.SetInfo, error) {
	var (
		idRaw    string
		onlineID sql.NullInt64
		status   string
		title    sql.NullString
		artist   sql.NullString
		creator  sql.NullString
		source   sql.NullString
		tags     sql.NullString
		hash     string
		addedRaw string
	)
	if err := row.Scan(&idRaw, &onlineID, &status, &title, &artist, &creator, &source, &tags, &hash, &addedRaw); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idRaw)
	if err != nil {
		return nil, fmt.Errorf("parse set id %q: %w", idRaw, err)
	}
	set := &beatmap.SetInfo{
		ID:       id,
		OnlineID: onlineID.Int64,
		Status:   beatmap.ParseStatus(status),
		Metadata: beatmap.Metadata{
			Title:   title.String,
			Artist:  artist.String,
			Creator: creator.String,
			Source:  source.String,
			Tags:    tags.String,
		},
		Hash: hash,
	}
	if added, err := parseTimeString(addedRaw); err == nil {
		set.DateAdded = added
	}
	return set, nil
}

func scanBeatmap(row scanner) (*beatmap.Info, error) {
	var (
		idRaw        string
		setIDRaw     string
		diffName     sql.NullString
		ruleset      string
		filename     string
		fileHash     string
		md5Hash      sql.NullString
		onlineID     sql.NullInt64
		status       string
		starRating   float64
		lengthMillis int64
		bpm          float64
		processedRaw sql.NullString
	)
	if err := row.Scan(&idRaw, &setIDRaw, &diffName, &ruleset, &filename, &fileHash, &md5Hash,
		&onlineID, &status, &starRating, &lengthMillis, &bpm, &processedRaw); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idRaw)
	if err != nil {
		return nil, fmt.Errorf("parse beatmap id %q: %w", idRaw, err)
	}
	setID, err := uuid.Parse(setIDRaw)
	if err != nil {
		return nil, fmt.Errorf("parse set id %q: %w", setIDRaw, err)
	}
	b := &beatmap.Info{
		ID:             id,
		SetID:          setID,
		DifficultyName: diffName.String,
		Ruleset:        ruleset,
		Filename:       filename,
		FileHash:       fileHash,
		MD5Hash:        md5Hash.String,
		OnlineID:       onlineID.Int64,
		Status:         beatmap.ParseStatus(status),
		StarRating:     starRating,
		Length:         time.Duration(lengthMillis) * time.Millisecond,
		BPM:            bpm,
	}
	if processedRaw.Valid {
		if processed, err := parseTimeString(processedRaw.String); err == nil {
			b.LastProcessed = processed
		}
	}
	return b, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
