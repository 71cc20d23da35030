package rulesets

import (
	"math"

	"beatline/internal/beatmap"
)

// Mania is the vertical scrolling key ruleset.
type Mania struct{}

func (Mania) ShortName() string { return "mania" }
func (Mania) LegacyID() int     { return 3 }

func (Mania) CreateDifficultyCalculator(working *beatmap.WorkingBeatmap) DifficultyCalculator {
	return &strainCalculator{working: working, skill: maniaSkill{}}
}

type maniaSkill struct{}

func (maniaSkill) decayBase() float64      { return 0.3 }
func (maniaSkill) starMultiplier() float64 { return 0.18 }

func (maniaSkill) strainOf(current, previous beatmap.HitObject, delta float64) float64 {
	if previous == nil {
		return 1
	}
	value := 800 / delta
	if column(current) == column(previous) {
		value *= 1.25
	}
	if hold := holdDuration(current); hold > 0 {
		value += math.Min(hold/1000, 2)
	}
	return value
}

func (maniaSkill) comboOf(obj beatmap.HitObject) int {
	if _, ok := obj.(*beatmap.Hold); ok {
		return 2
	}
	return 1
}

func column(obj beatmap.HitObject) int {
	if hold, ok := obj.(*beatmap.Hold); ok {
		return hold.Column
	}
	if circle, ok := obj.(*beatmap.Circle); ok {
		return int(circle.Position.X / 128)
	}
	return -1
}
