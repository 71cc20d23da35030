package rulesets

import "beatline/internal/beatmap"

// Taiko is the drum ruleset.
type Taiko struct{}

func (Taiko) ShortName() string { return "taiko" }
func (Taiko) LegacyID() int     { return 1 }

func (Taiko) CreateDifficultyCalculator(working *beatmap.WorkingBeatmap) DifficultyCalculator {
	return &strainCalculator{working: working, skill: taikoSkill{}}
}

type taikoSkill struct{}

func (taikoSkill) decayBase() float64      { return 0.3 }
func (taikoSkill) starMultiplier() float64 { return 0.2 }

func (taikoSkill) strainOf(current, previous beatmap.HitObject, delta float64) float64 {
	if previous == nil {
		return 1
	}
	if _, ok := current.(*beatmap.Circle); !ok {
		// Drum rolls and swells are sustained rather than struck.
		return 0.25 * 1000 / delta
	}
	return 1000 / delta
}

func (taikoSkill) comboOf(obj beatmap.HitObject) int {
	if _, ok := obj.(*beatmap.Circle); ok {
		return 1
	}
	return 0
}
