package updater

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"beatline/internal/beatmap"
	"beatline/internal/library"
	"beatline/internal/logging"
	"beatline/internal/rulesets"
)

// Process recomputes set inside its own write scope. The scope commits when
// every beatmap was processed and rolls back otherwise.
func (u *Updater) Process(ctx context.Context, set *beatmap.SetInfo) error {
	return u.store.Write(ctx, func(tx *library.Tx) error {
		return u.ProcessInTx(ctx, set, tx)
	})
}

// ProcessInTx recomputes set using the caller's scope.
func (u *Updater) ProcessInTx(ctx context.Context, set *beatmap.SetInfo, tx *library.Tx) error {
	if set == nil {
		return errors.New("set is nil")
	}
	if tx == nil {
		return errors.New("transaction is nil")
	}

	u.working.Invalidate(set)
	u.lookup.Update(set)

	for _, b := range set.Beatmaps {
		if err := u.processBeatmap(ctx, tx, b); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) processBeatmap(ctx context.Context, tx *library.Tx, b *beatmap.Info) error {
	if b == nil {
		return errors.New("beatmap is nil")
	}

	u.difficulty.Invalidate(b.Detach())

	working, err := u.working.Get(ctx, b.Detach())
	if err != nil {
		return fmt.Errorf("load beatmap %s: %w", b.ID, err)
	}
	if working == nil || working.Beatmap == nil {
		return fmt.Errorf("load beatmap %s: no decoded beatmap", b.ID)
	}

	ruleset, err := u.rulesets.Create(b.Ruleset)
	if err != nil || ruleset == nil {
		return rulesetError(b, err)
	}

	attrs, err := ruleset.CreateDifficultyCalculator(working).Calculate(ctx, nil)
	if err != nil {
		return fmt.Errorf("calculate difficulty for beatmap %s: %w", b.ID, err)
	}

	b.StarRating = attrs.StarRating
	b.Length = calculateLength(working.Beatmap)
	b.BPM = calculateBPM(working.Beatmap)
	b.LastProcessed = u.now().UTC()

	if err := tx.UpdateBeatmapDerived(ctx, b); err != nil {
		return err
	}
	beatmapsProcessedTotal.Inc()

	u.logger.Debug("beatmap processed",
		logging.SetID(b.SetID),
		logging.BeatmapID(b.ID),
		logging.String("ruleset", b.Ruleset),
		logging.Float64("star_rating", b.StarRating),
		logging.Duration("length", b.Length),
		logging.Float64("bpm", b.BPM))
	return nil
}

// rulesetError reports a beatmap whose ruleset cannot be created. Import
// validates rulesets, so reaching this means the registry changed since.
func rulesetError(b *beatmap.Info, cause error) error {
	if cause != nil && errors.Is(cause, rulesets.ErrRulesetNotFound) {
		return fmt.Errorf("beatmap %s: %w", b.ID, cause)
	}
	if cause == nil {
		return fmt.Errorf("beatmap %s: %w: %q", b.ID, rulesets.ErrRulesetNotFound, b.Ruleset)
	}
	return fmt.Errorf("beatmap %s: %w: %q: %w", b.ID, rulesets.ErrRulesetNotFound, b.Ruleset, cause)
}

// calculateLength measures from the first object's start to the end of the
// last object in stored order. A long object ending after the last one is not
// considered.
func calculateLength(bm *beatmap.Beatmap) time.Duration {
	if bm == nil || len(bm.HitObjects) == 0 {
		return 0
	}
	first := bm.HitObjects[0]
	last := bm.HitObjects[len(bm.HitObjects)-1]
	ms := beatmap.EndTime(last) - first.StartTime()
	switch {
	case math.IsNaN(ms):
		return 0
	case ms > maxLengthMillis:
		return time.Duration(math.MaxInt64)
	case ms < -maxLengthMillis:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

var maxLengthMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// calculateBPM converts the dominant beat length to beats per minute. A map
// without a usable timing point has no tempo and yields 0.
func calculateBPM(bm *beatmap.Beatmap) float64 {
	if bm == nil {
		return 0
	}
	beatLength := bm.MostCommonBeatLength()
	if beatLength <= 0 || math.IsNaN(beatLength) || math.IsInf(beatLength, 0) {
		return 0
	}
	return 60000 / beatLength
}
