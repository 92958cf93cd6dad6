package reindex

import (
	"context"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/storage"
)

// DefaultBatchSize is the number of places fetched per batch.
const DefaultBatchSize = 100

// PlaceIterator walks every place in ID order.
type PlaceIterator struct {
	places    storage.PlaceRepository
	batchSize int
}

// NewPlaceIterator creates an iterator. Non-positive batch sizes use DefaultBatchSize.
func NewPlaceIterator(places storage.PlaceRepository, batchSize int) *PlaceIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PlaceIterator{places: places, batchSize: batchSize}
}

// ForEach calls fn with each batch of places whose ID is greater than after.
// Iteration stops at the first error from fn or when ctx is done.
func (it *PlaceIterator) ForEach(ctx context.Context, after core.ID, fn func([]*core.Place) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return it.places.ForEachPlace(ctx, after, it.batchSize, func(batch []*core.Place) error {
		if err := fn(batch); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// Count returns the number of places after the given ID.
func (it *PlaceIterator) Count(ctx context.Context, after core.ID) (int, error) {
	var n int
	err := it.ForEach(ctx, after, func(batch []*core.Place) error {
		n += len(batch)
		return nil
	})
	return n, err
}
