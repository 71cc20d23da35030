package beatmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned when the input is not a .osu file.
var ErrInvalidFormat = errors.New("invalid beatmap format")

const (
	formatHeader = "osu file format v"

	typeCircle   = 1 << 0
	typeSlider   = 1 << 1
	typeNewCombo = 1 << 2
	typeSpinner  = 1 << 3
	typeHold     = 1 << 7

	maxLineLength = 1 << 20
)

// Decode parses a .osu file. Unknown sections and keys are ignored; malformed
// timing points and hit objects fail the decode.
func Decode(r io.Reader) (*Beatmap, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	bm := &Beatmap{Difficulty: DefaultDifficulty()}
	headerSeen := false
	section := ""
	var rawObjects []string
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !headerSeen {
			if !strings.HasPrefix(line, formatHeader) {
				return nil, fmt.Errorf("%w: missing %q header", ErrInvalidFormat, formatHeader)
			}
			version, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, formatHeader)))
			if err != nil {
				return nil, fmt.Errorf("%w: format version: %v", ErrInvalidFormat, err)
			}
			bm.FormatVersion = version
			headerSeen = true
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}

		var err error
		switch section {
		case "General":
			err = decodeGeneral(bm, line)
		case "Metadata":
			err = decodeMetadata(bm, line)
		case "Difficulty":
			err = decodeDifficulty(bm, line)
		case "TimingPoints":
			err = decodeTimingPoint(bm, line)
		case "HitObjects":
			// Slider durations depend on every timing point, which may follow.
			rawObjects = append(rawObjects, line)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read beatmap: %w", err)
	}
	if !headerSeen {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidFormat)
	}

	sort.SliceStable(bm.ControlPoints.Timing, func(i, j int) bool {
		return bm.ControlPoints.Timing[i].Time < bm.ControlPoints.Timing[j].Time
	})
	sort.SliceStable(bm.ControlPoints.Effects, func(i, j int) bool {
		return bm.ControlPoints.Effects[i].Time < bm.ControlPoints.Effects[j].Time
	})

	bm.HitObjects = make([]HitObject, 0, len(rawObjects))
	for _, raw := range rawObjects {
		obj, err := decodeHitObject(bm, raw)
		if err != nil {
			return nil, fmt.Errorf("hit object %q: %w", raw, err)
		}
		bm.HitObjects = append(bm.HitObjects, obj)
	}
	return bm, nil
}

func splitKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

func decodeGeneral(bm *Beatmap, line string) error {
	key, value, ok := splitKeyValue(line)
	if !ok || key != "Mode" {
		return nil
	}
	mode, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	bm.Mode = mode
	return nil
}

func decodeMetadata(bm *Beatmap, line string) error {
	key, value, ok := splitKeyValue(line)
	if !ok {
		return nil
	}
	switch key {
	case "Title":
		bm.Metadata.Title = value
	case "Artist":
		bm.Metadata.Artist = value
	case "Creator":
		bm.Metadata.Creator = value
	case "Source":
		bm.Metadata.Source = value
	case "Tags":
		bm.Metadata.Tags = value
	case "Version":
		bm.DifficultyName = value
	case "BeatmapID":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("beatmap id: %w", err)
		}
		bm.OnlineID = id
	case "BeatmapSetID":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("beatmap set id: %w", err)
		}
		bm.SetOnlineID = id
	}
	return nil
}

func decodeDifficulty(bm *Beatmap, line string) error {
	key, value, ok := splitKeyValue(line)
	if !ok {
		return nil
	}
	var target *float64
	switch key {
	case "HPDrainRate":
		target = &bm.Difficulty.DrainRate
	case "CircleSize":
		target = &bm.Difficulty.CircleSize
	case "OverallDifficulty":
		target = &bm.Difficulty.OverallDifficulty
	case "ApproachRate":
		target = &bm.Difficulty.ApproachRate
	case "SliderMultiplier":
		target = &bm.Difficulty.SliderMultiplier
	case "SliderTickRate":
		target = &bm.Difficulty.SliderTickRate
	default:
		return nil
	}
	parsed, err := parseBounded(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = parsed
	return nil
}

func decodeTimingPoint(bm *Beatmap, line string) error {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return fmt.Errorf("timing point: expected at least 2 fields, got %d", len(fields))
	}
	offset, err := parseBounded(fields[0])
	if err != nil {
		return fmt.Errorf("timing point time: %w", err)
	}
	beatLength, err := parseBounded(fields[1])
	if err != nil {
		return fmt.Errorf("timing point beat length: %w", err)
	}
	meter := 4
	if len(fields) > 2 {
		if m, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil && m > 0 {
			meter = m
		}
	}
	uninherited := beatLength > 0
	if len(fields) > 6 {
		uninherited = strings.TrimSpace(fields[6]) == "1"
	}

	if uninherited {
		bm.ControlPoints.Timing = append(bm.ControlPoints.Timing, TimingPoint{
			Time:       offset,
			BeatLength: beatLength,
			Meter:      meter,
		})
		return nil
	}

	velocity := 1.0
	if beatLength < 0 {
		velocity = clamp(-100/beatLength, 0.1, 10)
	}
	bm.ControlPoints.Effects = append(bm.ControlPoints.Effects, DifficultyPoint{
		Time:           offset,
		SliderVelocity: velocity,
	})
	return nil
}

func decodeHitObject(bm *Beatmap, line string) (HitObject, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return nil, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}
	x, err := parseBounded(fields[0])
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	y, err := parseBounded(fields[1])
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	start, err := parseBounded(fields[2])
	if err != nil {
		return nil, fmt.Errorf("time: %w", err)
	}
	kind, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("type: %w", err)
	}
	pos := Position{X: x, Y: y}
	newCombo := kind&typeNewCombo != 0

	switch {
	case kind&typeCircle != 0:
		return &Circle{Time: start, Position: pos, NewCombo: newCombo}, nil
	case kind&typeSlider != 0:
		return decodeSlider(bm, fields, start, pos, newCombo)
	case kind&typeSpinner != 0:
		if len(fields) < 6 {
			return nil, errors.New("spinner: missing end time")
		}
		end, err := parseBounded(fields[5])
		if err != nil {
			return nil, fmt.Errorf("spinner end: %w", err)
		}
		return &Spinner{Time: start, End: math.Max(start, end), NewCombo: newCombo}, nil
	case kind&typeHold != 0:
		if len(fields) < 6 {
			return nil, errors.New("hold: missing end time")
		}
		endRaw, _, _ := strings.Cut(fields[5], ":")
		end, err := parseBounded(endRaw)
		if err != nil {
			return nil, fmt.Errorf("hold end: %w", err)
		}
		return &Hold{Time: start, End: math.Max(start, end), Column: maniaColumn(x, bm.Difficulty.CircleSize)}, nil
	default:
		return nil, fmt.Errorf("unknown hit object type %d", kind)
	}
}

func decodeSlider(bm *Beatmap, fields []string, start float64, pos Position, newCombo bool) (HitObject, error) {
	if len(fields) < 8 {
		return nil, fmt.Errorf("slider: expected 8 fields, got %d", len(fields))
	}
	repeats, err := strconv.Atoi(fields[6])
	if err != nil {
		return nil, fmt.Errorf("slider repeats: %w", err)
	}
	if repeats > maxSliderRepeats {
		return nil, fmt.Errorf("slider repeats: %w: %d", ErrValueOutOfRange, repeats)
	}
	pixelLength, err := parseBounded(fields[7])
	if err != nil {
		return nil, fmt.Errorf("slider length: %w", err)
	}

	s := &Slider{
		Time:        start,
		Position:    pos,
		NewCombo:    newCombo,
		Repeats:     repeats,
		PixelLength: math.Max(0, pixelLength),
	}

	timing := bm.ControlPoints.TimingPointAt(start)
	velocity := bm.ControlPoints.DifficultyPointAt(start).SliderVelocity
	scoringDistance := bm.Difficulty.SliderMultiplier * 100 * velocity
	if scoringDistance <= 0 || timing.BeatLength <= 0 {
		return s, nil
	}

	spanDuration := s.PixelLength / scoringDistance * timing.BeatLength
	s.Duration = spanDuration * float64(s.Spans())

	if bm.Difficulty.SliderTickRate > 0 {
		tickDistance := scoringDistance / bm.Difficulty.SliderTickRate
		ticksPerSpan := int(math.Ceil(s.PixelLength/tickDistance)) - 1
		if ticksPerSpan > 0 {
			s.TickCount = ticksPerSpan * s.Spans()
		}
	}
	return s, nil
}

// maxParseValue bounds every numeric field. Larger or non-finite values are
// rejected rather than clamped.
const maxParseValue = math.MaxInt32

const maxSliderRepeats = 9000

// ErrValueOutOfRange is returned for numeric fields that are non-finite or
// exceed maxParseValue in magnitude.
var ErrValueOutOfRange = errors.New("value out of range")

func parseBounded(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxParseValue {
		return 0, fmt.Errorf("%w: %q", ErrValueOutOfRange, raw)
	}
	return v, nil
}

func maniaColumn(x, keys float64) int {
	if keys < 1 {
		keys = 1
	}
	column := int(math.Floor(x * keys / 512))
	return int(clamp(float64(column), 0, keys-1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
