package rulesets

import (
	"math"

	"beatline/internal/beatmap"
)

// Osu is the standard click-and-aim ruleset.
type Osu struct{}

func (Osu) ShortName() string { return "osu" }
func (Osu) LegacyID() int     { return 0 }

func (Osu) CreateDifficultyCalculator(working *beatmap.WorkingBeatmap) DifficultyCalculator {
	return &strainCalculator{working: working, skill: osuSkill{}}
}

type osuSkill struct{}

func (osuSkill) decayBase() float64      { return 0.15 }
func (osuSkill) starMultiplier() float64 { return 0.26 }

func (osuSkill) strainOf(current, previous beatmap.HitObject, delta float64) float64 {
	if previous == nil {
		return 1
	}
	if _, ok := current.(*beatmap.Spinner); ok {
		return 0
	}
	jump := distance(position(current), position(previous))
	value := (1 + jump/120) * 1000 / delta
	if slider, ok := current.(*beatmap.Slider); ok {
		value += 0.5 * float64(slider.Spans())
	}
	return value
}

func (osuSkill) comboOf(obj beatmap.HitObject) int {
	if slider, ok := obj.(*beatmap.Slider); ok {
		return 1 + slider.TickCount + slider.Spans()
	}
	return 1
}

func position(obj beatmap.HitObject) beatmap.Position {
	switch o := obj.(type) {
	case *beatmap.Circle:
		return o.Position
	case *beatmap.Slider:
		return o.Position
	default:
		return beatmap.Position{X: 256, Y: 192}
	}
}

func distance(a, b beatmap.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
