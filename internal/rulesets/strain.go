package rulesets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"beatline/internal/beatmap"
)

const (
	sectionLength = 400.0
	decayWeight   = 0.9
	minDeltaTime  = 25.0

	negligibleStrain = 1e-12
)

// skill describes how a ruleset scores individual objects.
type skill interface {
	// strainOf returns the strain added by current given the previous object.
	strainOf(current, previous beatmap.HitObject, delta float64) float64
	comboOf(obj beatmap.HitObject) int
	decayBase() float64
	starMultiplier() float64
}

type strainCalculator struct {
	working *beatmap.WorkingBeatmap
	skill   skill
}

func (c *strainCalculator) Calculate(ctx context.Context, mods []Mod) (Attributes, error) {
	if c.working == nil || c.working.Beatmap == nil {
		return Attributes{}, errors.New("difficulty calculation: no decoded beatmap")
	}
	if err := checkCompatible(mods); err != nil {
		return Attributes{}, err
	}
	objects := c.working.Beatmap.HitObjects
	if len(objects) == 0 {
		return Attributes{}, nil
	}
	rate := ClockRate(mods)

	var (
		peaks       []float64
		currentPeak float64
		strain      float64
		maxCombo    int
		strainTime  = objects[0].StartTime() / rate
		lastStart   = strainTime
		sectionEnd  = (math.Floor(strainTime/sectionLength) + 1) * sectionLength
	)

	for i, obj := range objects {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return Attributes{}, err
			}
		}
		maxCombo += c.skill.comboOf(obj)

		start := obj.StartTime() / rate
		if math.IsNaN(start) || math.IsInf(start, 0) {
			return Attributes{}, fmt.Errorf("difficulty calculation: object %d has non-finite start time", i)
		}
		for steps := 0; start > sectionEnd; steps++ {
			if steps%1024 == 1023 {
				if err := ctx.Err(); err != nil {
					return Attributes{}, err
				}
			}
			peaks = append(peaks, currentPeak)
			// The next section begins with whatever strain survives the decay.
			strain *= math.Pow(c.skill.decayBase(), (sectionEnd-strainTime)/1000)
			strainTime = sectionEnd
			currentPeak = strain
			sectionEnd += sectionLength
			if strain < negligibleStrain && start > sectionEnd {
				// Every remaining empty section peaks at zero and adds nothing
				// to the weighted sum.
				skipped := math.Ceil((start - sectionEnd) / sectionLength)
				peaks = append(peaks, currentPeak)
				strain, currentPeak = 0, 0
				sectionEnd += skipped * sectionLength
				strainTime = sectionEnd - sectionLength
			}
		}

		if i == 0 {
			strain = c.skill.strainOf(obj, nil, 0)
		} else {
			delta := math.Max(start-lastStart, minDeltaTime)
			decay := math.Pow(c.skill.decayBase(), math.Max(start-strainTime, 0)/1000)
			strain = strain*decay + c.skill.strainOf(obj, objects[i-1], delta)
		}
		strainTime = start
		lastStart = start
		currentPeak = math.Max(currentPeak, strain)
	}
	peaks = append(peaks, currentPeak)

	sort.Sort(sort.Reverse(sort.Float64Slice(peaks)))
	var weighted float64
	weight := 1.0
	for _, peak := range peaks {
		weighted += peak * weight
		weight *= decayWeight
	}

	return Attributes{
		StarRating: c.skill.starMultiplier() * math.Sqrt(weighted),
		MaxCombo:   maxCombo,
	}, nil
}

func holdDuration(obj beatmap.HitObject) float64 {
	return beatmap.EndTime(obj) - obj.StartTime()
}
