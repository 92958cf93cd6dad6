package core

// MaxRailItems bounds the number of items in a single rail.
const MaxRailItems = 12

// MaxRails is the number of rails a composition aims for.
const MaxRails = 3

// MaxBadges bounds the badges attached to a rail item.
const MaxBadges = 3

// RailItem is a single place as presented in a rail.
type RailItem struct {
	Id          ID        `json:"id"`
	Name        string    `json:"name"`
	Summary     string    `json:"summary,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Category    string    `json:"category,omitempty"`
	Coords      *GeoPoint `json:"coords,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	Picture     string    `json:"picture,omitempty"`
	SearchScore float64   `json:"search_score"`
	VibeScore   float64   `json:"vibe_score"`
	Scenario    float64   `json:"scenario_bonus"`
	Novelty     float64   `json:"novelty_score"`
	FinalScore  float64   `json:"final_score"`
	Badges      []string  `json:"badges,omitempty"`
	Why         string    `json:"why,omitempty"`
}

// Rail is one labeled, ordered group of places.
type Rail struct {
	Step   string     `json:"step"`
	Label  string     `json:"label"`
	Origin string     `json:"origin"` // "slot:<type>:<canonical>", "backfill" or "suggested:<theme>"
	Reason string     `json:"reason"`
	Items  []RailItem `json:"items"`
}

// ComposeResult is the outcome of composing rails for a query.
type ComposeResult struct {
	Rails            []Rail `json:"rails"`
	Slots            []Slot `json:"slots,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	CacheHit         bool   `json:"cache_hit"`
}
