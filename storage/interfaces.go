package storage

import (
	"context"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/geo"
)

// PlaceFilter narrows a place scan. Zero values mean "no constraint".
type PlaceFilter struct {
	// Box restricts results to places whose coordinates fall inside it.
	// Places without coordinates are excluded when Box is set.
	Box *geo.Box
	// Area matches place Area case-insensitively.
	Area string
	// PublishedOnly skips draft and enriched places.
	PublishedOnly bool
	// Limit caps the number of results; 0 means unbounded.
	Limit int
}

// PlaceRepository provides operations for managing the place corpus.
// Implementations must be thread-safe and support concurrent access.
type PlaceRepository interface {
	// AddPlaces adds one or more places to storage.
	// For places with ID=0, derives the ID from name and coordinates.
	// Sets InsertedAt and UpdatedAt. Existing places with the same ID are replaced.
	AddPlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error)

	// UpdatePlaces updates existing places and their indices.
	// Returns ErrNotFound if any place doesn't exist.
	UpdatePlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error)

	// DeletePlaces removes places and their index entries.
	// Returns ErrNotFound if any place doesn't exist.
	DeletePlaces(ctx context.Context, ids ...core.ID) error

	// GetPlace retrieves a single place by ID.
	// Returns ErrNotFound if the place doesn't exist.
	GetPlace(ctx context.Context, id core.ID) (*core.Place, error)

	// GetPlaces retrieves multiple places by their IDs.
	// Returns only the places that exist (no error for missing places).
	GetPlaces(ctx context.Context, ids ...core.ID) ([]*core.Place, error)

	// ScanPlaces returns places matching filter, in ID order.
	ScanPlaces(ctx context.Context, filter PlaceFilter) ([]*core.Place, error)

	// FindByTags returns places carrying at least one of tags that also match filter.
	FindByTags(ctx context.Context, tags []string, filter PlaceFilter) ([]*core.Place, error)

	// TagCooccurrence counts, among places carrying any of tags, how often
	// every other tag appears. The input tags are not counted.
	TagCooccurrence(ctx context.Context, tags []string) (map[string]int, error)

	// ForEachPlace calls fn with batches of at most batchSize places in ID
	// order, starting after the place with ID after (0 starts at the beginning).
	// Iteration stops at the first error fn returns.
	ForEachPlace(ctx context.Context, after core.ID, batchSize int, fn func(places []*core.Place) error) error

	// Close releases resources held by the repository.
	Close() error
}

// FieldWeights says how much a match in each place field counts.
type FieldWeights struct {
	Name    float64
	Tags    float64
	Summary float64
	Address float64
}

// FullTextQuery is a ranked text query: the alternatives within a group are
// OR-ed and the groups are AND-ed.
type FullTextQuery struct {
	Groups  [][]string
	Weights FieldWeights
	Filter  PlaceFilter
}

// TextHit is a place matched by a full-text query.
type TextHit struct {
	Place *core.Place
	Score float64
}

// FullTextIndex is implemented by place stores that maintain a token index.
// Results are ordered by score, highest first.
type FullTextIndex interface {
	SearchText(ctx context.Context, query FullTextQuery) ([]TextHit, error)
}

// SessionRepository provides operations for session personalization state.
type SessionRepository interface {
	// GetProfile retrieves a session profile.
	// Returns ErrNotFound if the session is unknown.
	GetProfile(ctx context.Context, sessionID string) (*core.SessionProfile, error)

	// GetOrCreateProfile returns the profile, creating an empty one if needed.
	GetOrCreateProfile(ctx context.Context, sessionID string) (*core.SessionProfile, error)

	// SaveProfile persists a profile and sets UpdatedAt.
	SaveProfile(ctx context.Context, profile *core.SessionProfile) error

	// AppendSignal records a search signal for its session.
	AppendSignal(ctx context.Context, signal *core.SearchSignal) error

	// RecentSignals returns up to limit signals of a session, most recent first.
	RecentSignals(ctx context.Context, sessionID string, limit int) ([]*core.SearchSignal, error)

	// Close releases resources held by the repository.
	Close() error
}

// CheckpointRepository persists the progress of resumable jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint and sets UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint of a processor, or nil, nil if none exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint of a processor, if any.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
