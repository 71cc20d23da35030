package beatmap

// HitObject is a playable note or event. Times are in milliseconds.
type HitObject interface {
	StartTime() float64
}

// HasDuration is implemented by hit objects that span time.
type HasDuration interface {
	HitObject
	EndTime() float64
}

// EndTime returns the end time of h, which is its start time for instantaneous objects.
func EndTime(h HitObject) float64 {
	if d, ok := h.(HasDuration); ok {
		return d.EndTime()
	}
	return h.StartTime()
}

// Position is a playfield coordinate in osu!pixels.
type Position struct {
	X float64
	Y float64
}

// Circle is a single tap note.
type Circle struct {
	Time     float64
	Position Position
	NewCombo bool
}

func (c *Circle) StartTime() float64 { return c.Time }

// Slider is a held note that follows a path and may repeat.
type Slider struct {
	Time        float64
	Position    Position
	NewCombo    bool
	Repeats     int
	PixelLength float64
	Duration    float64
	TickCount   int
}

func (s *Slider) StartTime() float64 { return s.Time }
func (s *Slider) EndTime() float64   { return s.Time + s.Duration }

// Spans is the number of times the path is traversed.
func (s *Slider) Spans() int {
	if s.Repeats < 1 {
		return 1
	}
	return s.Repeats
}

// Spinner is a timed spin that ends at End.
type Spinner struct {
	Time     float64
	End      float64
	NewCombo bool
}

func (s *Spinner) StartTime() float64 { return s.Time }
func (s *Spinner) EndTime() float64   { return s.End }

// Hold is a mania long note in Column.
type Hold struct {
	Time   float64
	End    float64
	Column int
}

func (h *Hold) StartTime() float64 { return h.Time }
func (h *Hold) EndTime() float64   { return h.End }
