package beatmap

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OnlineStatus mirrors the ranked state reported by the online service.
type OnlineStatus string

const (
	StatusNone      OnlineStatus = "none"
	StatusGraveyard OnlineStatus = "graveyard"
	StatusWIP       OnlineStatus = "wip"
	StatusPending   OnlineStatus = "pending"
	StatusRanked    OnlineStatus = "ranked"
	StatusApproved  OnlineStatus = "approved"
	StatusQualified OnlineStatus = "qualified"
	StatusLoved     OnlineStatus = "loved"
)

// StatusFromAPI maps the remote approval code (-2..4) onto an OnlineStatus.
func StatusFromAPI(code int) OnlineStatus {
	switch code {
	case -2:
		return StatusGraveyard
	case -1:
		return StatusWIP
	case 0:
		return StatusPending
	case 1:
		return StatusRanked
	case 2:
		return StatusApproved
	case 3:
		return StatusQualified
	case 4:
		return StatusLoved
	default:
		return StatusNone
	}
}

// ParseStatus converts a stored status string, defaulting to StatusNone.
func ParseStatus(value string) OnlineStatus {
	status := OnlineStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusGraveyard, StatusWIP, StatusPending, StatusRanked,
		StatusApproved, StatusQualified, StatusLoved:
		return status
	default:
		return StatusNone
	}
}

// Metadata is shared by every difficulty of a set.
type Metadata struct {
	Title   string
	Artist  string
	Creator string
	Source  string
	Tags    string
}

// NamedFile associates an archive-relative filename with its content hash.
type NamedFile struct {
	Filename string
	Hash     string
}

// SetInfo is a beatmap set: the content unit the update pipeline works on.
type SetInfo struct {
	ID        uuid.UUID
	OnlineID  int64
	Status    OnlineStatus
	Metadata  Metadata
	Hash      string
	DateAdded time.Time
	Files     []NamedFile
	Beatmaps  []*Info
}

// FileHash returns the hash stored for filename, or "" when the set has no such file.
func (s *SetInfo) FileHash(filename string) string {
	if s == nil {
		return ""
	}
	for _, f := range s.Files {
		if strings.EqualFold(f.Filename, filename) {
			return f.Hash
		}
	}
	return ""
}

// BeatmapIDs returns the identifiers of every beatmap in stored order.
func (s *SetInfo) BeatmapIDs() []uuid.UUID {
	if s == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.Beatmaps))
	for _, b := range s.Beatmaps {
		ids = append(ids, b.ID)
	}
	return ids
}

// Info is a single difficulty within a set.
type Info struct {
	ID             uuid.UUID
	SetID          uuid.UUID
	DifficultyName string
	Ruleset        string
	Filename       string
	FileHash       string
	MD5Hash        string
	OnlineID       int64
	Status         OnlineStatus

	StarRating    float64
	Length        time.Duration
	BPM           float64
	LastProcessed time.Time
}

// Detach returns a copy that does not alias the record owned by a transaction.
func (b *Info) Detach() Info {
	if b == nil {
		return Info{}
	}
	return *b
}

// Difficulty holds the per-difficulty tuning values from the [Difficulty] section.
type Difficulty struct {
	DrainRate         float64
	CircleSize        float64
	OverallDifficulty float64
	ApproachRate      float64
	SliderMultiplier  float64
	SliderTickRate    float64
}

// DefaultDifficulty returns the values a decoder assumes when a field is absent.
func DefaultDifficulty() Difficulty {
	return Difficulty{
		DrainRate:         5,
		CircleSize:        5,
		OverallDifficulty: 5,
		ApproachRate:      5,
		SliderMultiplier:  1.4,
		SliderTickRate:    1,
	}
}

// Beatmap is the decoded note data of one difficulty.
type Beatmap struct {
	FormatVersion  int
	Mode           int
	DifficultyName string
	OnlineID       int64
	SetOnlineID    int64
	Metadata       Metadata
	Difficulty     Difficulty
	ControlPoints  ControlPointInfo
	HitObjects     []HitObject
}

// WorkingBeatmap is a decoded beatmap paired with the record it was decoded for.
type WorkingBeatmap struct {
	Info    Info
	Beatmap *Beatmap
}

var legacyModes = []string{"osu", "taiko", "fruits", "mania"}

// LegacyModeName maps the numeric Mode field of the .osu format to a ruleset
// short name. Unknown modes return "".
func LegacyModeName(mode int) string {
	if mode < 0 || mode >= len(legacyModes) {
		return ""
	}
	return legacyModes[mode]
}
