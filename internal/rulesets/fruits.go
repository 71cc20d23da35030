package rulesets

import (
	"math"

	"beatline/internal/beatmap"
)

// Fruits is the catching ruleset.
type Fruits struct{}

func (Fruits) ShortName() string { return "fruits" }
func (Fruits) LegacyID() int     { return 2 }

func (Fruits) CreateDifficultyCalculator(working *beatmap.WorkingBeatmap) DifficultyCalculator {
	return &strainCalculator{working: working, skill: fruitsSkill{}}
}

type fruitsSkill struct{}

func (fruitsSkill) decayBase() float64      { return 0.2 }
func (fruitsSkill) starMultiplier() float64 { return 0.24 }

func (fruitsSkill) strainOf(current, previous beatmap.HitObject, delta float64) float64 {
	if previous == nil {
		return 1
	}
	if _, ok := current.(*beatmap.Spinner); ok {
		return 0
	}
	// Only horizontal movement matters for the catcher.
	dx := math.Abs(position(current).X - position(previous).X)
	return (1 + dx/100) * 900 / delta
}

func (fruitsSkill) comboOf(obj beatmap.HitObject) int {
	switch o := obj.(type) {
	case *beatmap.Slider:
		return 1 + o.TickCount + o.Spans()
	case *beatmap.Spinner:
		return 0
	default:
		return 1
	}
}
