package beatmap

import (
	"math"
	"sort"
)

// TimingPoint starts a section with a fixed beat length in milliseconds.
type TimingPoint struct {
	Time       float64
	BeatLength float64
	Meter      int
}

// BPM converts the beat length into beats per minute.
func (t TimingPoint) BPM() float64 {
	if t.BeatLength <= 0 {
		return 0
	}
	return 60000 / t.BeatLength
}

// DifficultyPoint changes the slider velocity multiplier from Time onwards.
type DifficultyPoint struct {
	Time           float64
	SliderVelocity float64
}

// ControlPointInfo groups the timing and effect points of a beatmap, each
// sorted by time.
type ControlPointInfo struct {
	Timing  []TimingPoint
	Effects []DifficultyPoint
}

const defaultBeatLength = 60000.0 / 60

// TimingPointAt returns the timing point active at time. Before the first point
// the first point applies; with no points a 60 BPM default is returned.
func (c ControlPointInfo) TimingPointAt(time float64) TimingPoint {
	if len(c.Timing) == 0 {
		return TimingPoint{BeatLength: defaultBeatLength, Meter: 4}
	}
	idx := sort.Search(len(c.Timing), func(i int) bool { return c.Timing[i].Time > time })
	if idx == 0 {
		return c.Timing[0]
	}
	return c.Timing[idx-1]
}

// DifficultyPointAt returns the slider velocity point active at time.
func (c ControlPointInfo) DifficultyPointAt(time float64) DifficultyPoint {
	idx := sort.Search(len(c.Effects), func(i int) bool { return c.Effects[i].Time > time })
	if idx == 0 {
		return DifficultyPoint{Time: time, SliderVelocity: 1}
	}
	return c.Effects[idx-1]
}

// MostCommonBeatLength returns the beat length that covers the most play time.
//
// Each timing point spans until the next one; the first is treated as starting
// at zero and the last runs to the end of the final hit object (or to its own
// time when the beatmap has no objects). Points that begin after that end add
// nothing. Beat lengths are grouped at millisecond-thousandth precision and
// ties go to the length seen first. Returns 0 when there are no timing points.
func (b *Beatmap) MostCommonBeatLength() float64 {
	points := b.ControlPoints.Timing
	if len(points) == 0 {
		return 0
	}

	var lastTime float64
	if len(b.HitObjects) > 0 {
		lastTime = EndTime(b.HitObjects[len(b.HitObjects)-1])
	} else {
		lastTime = points[len(points)-1].Time
	}

	type bucket struct {
		beatLength float64
		duration   float64
	}
	var (
		buckets []bucket
		index   = map[float64]int{}
	)
	for i, point := range points {
		var duration float64
		if point.Time <= lastTime {
			start := point.Time
			if i == 0 {
				start = 0
			}
			end := lastTime
			if i+1 < len(points) {
				end = points[i+1].Time
			}
			duration = end - start
		}

		key := math.Round(point.BeatLength*1000) / 1000
		pos, ok := index[key]
		if !ok {
			pos = len(buckets)
			index[key] = pos
			buckets = append(buckets, bucket{beatLength: key})
		}
		buckets[pos].duration += duration
	}

	best := buckets[0]
	for _, candidate := range buckets[1:] {
		if candidate.duration > best.duration {
			best = candidate
		}
	}
	return best.beatLength
}
