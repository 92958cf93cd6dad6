package core

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing when the caller does not supply one.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// PlaceID derives the stable identifier of a place from its name and coordinates.
func PlaceID(name string, coords *GeoPoint) ID {
	key := strings.ToLower(strings.TrimSpace(name))
	if coords != nil {
		key += "|" + strconv.FormatFloat(coords.Lat, 'f', 5, 64) +
			"|" + strconv.FormatFloat(coords.Lng, 'f', 5, 64)
	}
	return IDFromContent(key)
}

// GeoPoint is a WGS84 coordinate pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat" koanf:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" koanf:"lng" validate:"gte=-180,lte=180"`
}

// PlaceStatus is the publishing state of a place. Only published places are served.
type PlaceStatus string

const (
	PlaceStatusDraft     PlaceStatus = "draft"
	PlaceStatusEnriched  PlaceStatus = "enriched"
	PlaceStatusPublished PlaceStatus = "published"
)

// Signals is the editorial signal bag attached to a place.
// Scores are in [0,1]; zero means "no signal".
type Signals struct {
	EditorPick            bool     `json:"editor_pick,omitempty"`
	GreatView             bool     `json:"great_view,omitempty"`
	LocalFavorite         bool     `json:"local_favorite,omitempty"`
	Quality               float64  `json:"quality,omitempty"`
	Novelty               float64  `json:"novelty,omitempty"`
	Trend                 float64  `json:"trend,omitempty"`
	Interest              float64  `json:"interest,omitempty"`
	Extraordinary         float64  `json:"extraordinary,omitempty"`
	HighQualityExperience float64  `json:"hq_experience,omitempty"`
	NoiseLevel            *float64 `json:"noise_level,omitempty"`
	Cluster               string   `json:"cluster,omitempty"` // thematic cluster label
}

// Place is a recommendable venue owned by the place store.
type Place struct {
	Id             ID          `json:"id"`
	Name           string      `json:"name"`
	Category       string      `json:"category,omitempty"`
	Summary        string      `json:"summary,omitempty"`
	Tags           string      `json:"tags,omitempty"` // comma-joined canonical tags
	Address        string      `json:"address,omitempty"`
	Area           string      `json:"area,omitempty"`
	Coords         *GeoPoint   `json:"coords,omitempty"`
	Rating         *float64    `json:"rating,omitempty"`
	Picture        string      `json:"picture,omitempty"`
	Status         PlaceStatus `json:"status,omitempty"`
	Signals        Signals     `json:"signals"`
	TagBits        uint64      `json:"tag_bits,omitempty"`         // derived from Tags, never authoritative
	TagBitsVersion uint64      `json:"tag_bits_version,omitempty"` // encoder version TagBits was built with
	InsertedAt     time.Time   `json:"inserted_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TagList returns the place's tags, trimmed, lowercased and without empties or duplicates.
func (p *Place) TagList() []string {
	return SplitTags(p.Tags)
}

// HasTag reports whether the place carries the given canonical tag.
func (p *Place) HasTag(tag string) bool {
	for _, t := range p.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// IsPublished reports whether the place may be served. An empty status counts as published.
func (p *Place) IsPublished() bool {
	return p.Status == "" || p.Status == PlaceStatusPublished
}

// SplitTags parses a comma-joined tag list.
func SplitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// JoinTags is the inverse of SplitTags.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// Mode is a named ranking weight preset.
type Mode string

const (
	ModeLight    Mode = "light"
	ModeVibe     Mode = "vibe"
	ModeSurprise Mode = "surprise"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeLight, ModeVibe, ModeSurprise:
		return true
	}
	return false
}

// ParseMode converts a string into a Mode. Empty input yields ModeLight.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeLight, nil
	}
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", ErrInvalidMode
	}
	return m, nil
}

// Scores is the per-request score bag of a candidate.
type Scores struct {
	SearchRaw      float64 `json:"search_raw"`
	Search         float64 `json:"search"`
	Vibe           float64 `json:"vibe"`
	ScenarioBonus  float64 `json:"scenario_bonus"`
	Novelty        float64 `json:"novelty"`
	SignalBoost    float64 `json:"signal_boost"`
	NoisePenalty   float64 `json:"noise_penalty"`
	Base           float64 `json:"base"`
	ProximityBonus float64 `json:"proximity_bonus"`
	Final          float64 `json:"final"`
}

// Candidate is a place under consideration for a single request.
type Candidate struct {
	Place      *Place
	Bits       uint64
	DistanceKm *float64 // nil when either side has no coordinates
	Scores     Scores
}

// Distance returns the candidate distance in km, or +Inf when unknown.
func (c *Candidate) Distance() float64 {
	if c.DistanceKm == nil {
		return math.Inf(1)
	}
	return *c.DistanceKm
}

// SessionProfile is the personalization state of a browsing session.
type SessionProfile struct {
	SessionID         string             `json:"session_id"`
	Vibe              map[string]float64 `json:"vibe,omitempty"` // tag -> weight
	NoveltyPreference float64            `json:"novelty_preference"`
	SeenPlaces        []ID               `json:"seen_places,omitempty"`
	InsertedAt        time.Time          `json:"inserted_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// HasSeen reports whether the session was already shown the place.
func (s *SessionProfile) HasSeen(id ID) bool {
	if s == nil {
		return false
	}
	for _, seen := range s.SeenPlaces {
		if seen == id {
			return true
		}
	}
	return false
}

// SearchSignal records that a session searched for something.
type SearchSignal struct {
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Slots     []string  `json:"slots,omitempty"` // slot keys, "type:canonical"
	At        time.Time `json:"at"`
}

// Checkpoint records the progress of a resumable maintenance job.
type Checkpoint struct {
	ProcessorType string    `json:"processor_type"`
	LastID        ID        `json:"last_id"`
	Version       uint64    `json:"version"` // job-specific, e.g. the encoder version being applied
	UpdatedAt     time.Time `json:"updated_at"`
}
