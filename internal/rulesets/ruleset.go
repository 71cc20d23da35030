package rulesets

import (
	"context"

	"beatline/internal/beatmap"
)

// Attributes is the result of a difficulty calculation.
type Attributes struct {
	StarRating float64
	MaxCombo   int
}

// DifficultyCalculator computes difficulty attributes for one working beatmap.
type DifficultyCalculator interface {
	Calculate(ctx context.Context, mods []Mod) (Attributes, error)
}

// Ruleset is a game mode implementation.
type Ruleset interface {
	ShortName() string
	LegacyID() int
	CreateDifficultyCalculator(working *beatmap.WorkingBeatmap) DifficultyCalculator
}
