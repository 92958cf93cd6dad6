package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/storage"
)

// BatchProcessor rebuilds the tag bitsets of a batch of places.
type BatchProcessor struct {
	places         storage.PlaceRepository
	encoder        *bitset.Encoder
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a batch processor. Updates are retried up to
// maxRetries times with exponential backoff starting at retryBaseDelay.
func NewBatchProcessor(places storage.PlaceRepository, encoder *bitset.Encoder, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		places:         places,
		encoder:        encoder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Stale reports whether the cached bitset of p was not built by the
// current encoder from its current tags.
func (bp *BatchProcessor) Stale(p *core.Place) bool {
	return p.TagBitsVersion != bp.encoder.Version() || p.TagBits != bp.encoder.Encode(p.TagList())
}

// Process rebuilds stale bitsets in places and writes the changed places
// back. It returns the number of places rewritten.
func (bp *BatchProcessor) Process(ctx context.Context, places []*core.Place) (int, error) {
	var stale []*core.Place
	for _, p := range places {
		if !bp.Stale(p) {
			continue
		}
		p.TagBits = bp.encoder.Encode(p.TagList())
		p.TagBitsVersion = bp.encoder.Version()
		stale = append(stale, p)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err := RetryWithBackoff(ctx, bp.logger, bp.maxRetries, bp.retryBaseDelay, func(ctx context.Context) error {
		_, err := bp.places.UpdatePlaces(ctx, stale...)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update %d places after %d attempts: %w", len(stale), bp.maxRetries, err)
	}
	return len(stale), nil
}
