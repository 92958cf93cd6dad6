package badger

import (
	"cmp"
	"context"
	"encoding/binary"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/storage"
	"github.com/poiesic/wayfinder/textnorm"
)

// writeBatchSize bounds the number of places written per transaction.
const writeBatchSize = 100

// PlaceRepository implements storage.PlaceRepository and storage.FullTextIndex
// for BadgerDB. Every place is indexed by latitude, tag and text token.
type PlaceRepository struct {
	backend *Backend
}

var (
	_ storage.PlaceRepository = (*PlaceRepository)(nil)
	_ storage.FullTextIndex   = (*PlaceRepository)(nil)
)

// NewPlaceRepository creates a new PlaceRepository.
func NewPlaceRepository(backend *Backend) (*PlaceRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	return &PlaceRepository{
		backend: backend,
	}, nil
}

// Close releases resources. PlaceRepository has no resources to release.
func (r *PlaceRepository) Close() error {
	return nil
}

// AddPlaces adds one or more places to storage, replacing places with the same ID.
func (r *PlaceRepository) AddPlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error) {
	for _, place := range places {
		if err := core.ValidatePlace(place); err != nil {
			return nil, err
		}
	}

	for chunk := range slices.Chunk(places, writeBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			now := time.Now().UTC()
			for _, place := range chunk {
				if place.Id == 0 {
					place.Id = core.PlaceID(place.Name, place.Coords)
				}

				key := makePlaceKey(place.Id)
				old, err := readPlace(tx, key)
				if err != nil {
					return err
				}
				if old != nil {
					if err := deletePlaceIndices(tx, old); err != nil {
						return err
					}
					place.InsertedAt = old.InsertedAt
				} else if place.InsertedAt.IsZero() {
					place.InsertedAt = now
				}
				place.UpdatedAt = now

				if err := writePlace(tx, place); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return nil, err
		}
	}
	return places, nil
}

// UpdatePlaces updates existing places and re-indexes them.
func (r *PlaceRepository) UpdatePlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error) {
	for _, place := range places {
		if err := core.ValidatePlace(place); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, place := range places {
			key := makePlaceKey(place.Id)

			// Read old place to drop its index entries
			old, err := readPlace(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}
			if err := deletePlaceIndices(tx, old); err != nil {
				return err
			}

			place.InsertedAt = old.InsertedAt
			place.UpdatedAt = now
			if err := writePlace(tx, place); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return places, err
}

// DeletePlaces removes places by their IDs.
func (r *PlaceRepository) DeletePlaces(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makePlaceKey(id)

			place, err := readPlace(tx, key)
			if err != nil {
				return err
			}
			if place == nil {
				return storage.ErrNotFound
			}

			if err := deletePlaceIndices(tx, place); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetPlace retrieves a single place by ID.
func (r *PlaceRepository) GetPlace(ctx context.Context, id core.ID) (*core.Place, error) {
	var result *core.Place
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readPlace(tx, makePlaceKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetPlaces retrieves multiple places by their IDs.
func (r *PlaceRepository) GetPlaces(ctx context.Context, ids ...core.ID) ([]*core.Place, error) {
	var result []*core.Place
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readPlaces(tx, ids)
		return err
	}, false)
	return result, err
}

// ScanPlaces returns places matching filter. With a bounding box the latitude
// index is range-scanned; otherwise every place record is visited.
func (r *PlaceRepository) ScanPlaces(ctx context.Context, filter storage.PlaceFilter) ([]*core.Place, error) {
	var results []*core.Place
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if filter.Box != nil {
			ids, err := idsInBox(tx, filter)
			if err != nil {
				return err
			}
			places, err := readPlaces(tx, ids)
			if err != nil {
				return err
			}
			results = applyFilter(places, filter)
			return nil
		}

		return scanPrefix(tx, []byte(placeRecordPrefix), true, func(item *badger.Item) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			place, err := itemPlace(item)
			if err != nil {
				return false, err
			}
			if matchesFilter(place, filter) {
				results = append(results, place)
			}
			return filter.Limit <= 0 || len(results) < filter.Limit, nil
		})
	}, false)
	return results, err
}

// FindByTags returns places carrying at least one of tags.
func (r *PlaceRepository) FindByTags(ctx context.Context, tags []string, filter storage.PlaceFilter) ([]*core.Place, error) {
	var results []*core.Place
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := idsForTags(tx, tags)
		if err != nil {
			return err
		}
		places, err := readPlaces(tx, ids)
		if err != nil {
			return err
		}
		results = applyFilter(places, filter)
		return nil
	}, false)
	return results, err
}

// TagCooccurrence counts the other tags of places carrying any of tags.
func (r *PlaceRepository) TagCooccurrence(ctx context.Context, tags []string) (map[string]int, error) {
	counts := make(map[string]int)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := idsForTags(tx, tags)
		if err != nil {
			return err
		}
		places, err := readPlaces(tx, ids)
		if err != nil {
			return err
		}
		for _, place := range places {
			if !place.IsPublished() {
				continue
			}
			for _, tag := range place.TagList() {
				if !slices.Contains(tags, tag) {
					counts[tag]++
				}
			}
		}
		return nil
	}, false)
	return counts, err
}

// ForEachPlace visits places in ID order, one read transaction per batch, so
// fn may write to the repository.
func (r *PlaceRepository) ForEachPlace(ctx context.Context, after core.ID, batchSize int, fn func(places []*core.Place) error) error {
	if batchSize <= 0 {
		batchSize = writeBatchSize
	}

	start := makePlaceKey(after)
	skipFirst := after != 0
	prefix := []byte(placeRecordPrefix)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*core.Place, 0, batchSize)
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Seek(start); iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				if skipFirst && string(item.Key()) == string(start) {
					continue
				}
				place, err := itemPlace(item)
				if err != nil {
					return err
				}
				batch = append(batch, place)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		start = makePlaceKey(batch[len(batch)-1].Id)
		skipFirst = true
	}
}

// SearchText runs a ranked query against the token index. A place must match
// every group; its score sums, per group, the best field-weighted alternative.
func (r *PlaceRepository) SearchText(ctx context.Context, query storage.FullTextQuery) ([]storage.TextHit, error) {
	if len(query.Groups) == 0 {
		return nil, nil
	}

	var hits []storage.TextHit
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var scores map[core.ID]float64
		for i, group := range query.Groups {
			groupScores := make(map[core.ID]float64)
			for _, token := range group {
				err := scanPrefix(tx, makePartialTokenKey(token), true, func(item *badger.Item) (bool, error) {
					id := placeIDFromKey(item.Key())
					var fields byte
					if err := item.Value(func(val []byte) error {
						if len(val) > 0 {
							fields = val[0]
						}
						return nil
					}); err != nil {
						return false, err
					}
					if w := fieldScore(fields, query.Weights); w > groupScores[id] {
						groupScores[id] = w
					}
					return true, nil
				})
				if err != nil {
					return err
				}
			}

			if i == 0 {
				scores = groupScores
				continue
			}
			for id, score := range scores {
				if s, ok := groupScores[id]; ok {
					scores[id] = score + s
				} else {
					delete(scores, id)
				}
			}
		}

		ids := make([]core.ID, 0, len(scores))
		for id := range scores {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		places, err := readPlaces(tx, ids)
		if err != nil {
			return err
		}

		filter := query.Filter
		filter.Limit = 0
		for _, place := range applyFilter(places, filter) {
			hits = append(hits, storage.TextHit{Place: place, Score: scores[place.Id]})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b storage.TextHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Place.Id, b.Place.Id)
	})
	if query.Filter.Limit > 0 && len(hits) > query.Filter.Limit {
		hits = hits[:query.Filter.Limit]
	}
	return hits, nil
}

// Helper methods

func fieldScore(fields byte, w storage.FieldWeights) float64 {
	var best float64
	for _, f := range []struct {
		bit    byte
		weight float64
	}{
		{fieldName, w.Name},
		{fieldTags, w.Tags},
		{fieldSummary, w.Summary},
		{fieldAddress, w.Address},
	} {
		if fields&f.bit != 0 && f.weight > best {
			best = f.weight
		}
	}
	return best
}

// writePlace stores the record and every index entry of place.
func writePlace(tx *badger.Txn, place *core.Place) error {
	value, err := storage.MarshalPlace(place)
	if err != nil {
		return err
	}
	if err := tx.Set(makePlaceKey(place.Id), value); err != nil {
		return err
	}

	if place.Coords != nil {
		if err := tx.Set(makeGeoKey(place.Coords.Lat, place.Id), geoValue(*place.Coords)); err != nil {
			return err
		}
	}
	for _, tag := range place.TagList() {
		if err := tx.Set(makeTagKey(tag, place.Id), nil); err != nil {
			return err
		}
	}
	for token, fields := range placeTokens(place) {
		if err := tx.Set(makeTokenKey(token, place.Id), []byte{fields}); err != nil {
			return err
		}
	}
	return nil
}

// deletePlaceIndices removes every index entry written for place.
func deletePlaceIndices(tx *badger.Txn, place *core.Place) error {
	if place.Coords != nil {
		if err := tx.Delete(makeGeoKey(place.Coords.Lat, place.Id)); err != nil {
			return err
		}
	}
	for _, tag := range place.TagList() {
		if err := tx.Delete(makeTagKey(tag, place.Id)); err != nil {
			return err
		}
	}
	for token := range placeTokens(place) {
		if err := tx.Delete(makeTokenKey(token, place.Id)); err != nil {
			return err
		}
	}
	return nil
}

// placeTokens maps each normalized word of the searchable fields to the
// fields it occurs in.
func placeTokens(place *core.Place) map[string]byte {
	tokens := make(map[string]byte)
	add := func(text string, field byte) {
		for _, w := range textnorm.Words(text) {
			tokens[w] |= field
		}
	}
	add(place.Name, fieldName)
	add(strings.ReplaceAll(place.Tags, "_", " "), fieldTags)
	add(place.Summary, fieldSummary)
	add(place.Address, fieldAddress)
	return tokens
}

func idsInBox(tx *badger.Txn, filter storage.PlaceFilter) ([]core.ID, error) {
	box := filter.Box
	prefix := []byte(placeGeoPrefix)
	upper := latBucket(box.MaxLat)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Seek(makePartialGeoKey(box.MinLat)); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.Key()
		if len(key) < len(prefix)+12 {
			continue
		}
		if latBucketFromKey(key) > upper {
			break
		}
		var inside bool
		if err := item.Value(func(val []byte) error {
			p, ok := parseGeoValue(val)
			inside = ok && box.Contains(p)
			return nil
		}); err != nil {
			return nil, err
		}
		if inside {
			ids = append(ids, placeIDFromKey(key))
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func latBucketFromKey(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[len(placeGeoPrefix):])
}

func idsForTags(tx *badger.Txn, tags []string) ([]core.ID, error) {
	seen := make(map[core.ID]struct{})
	var ids []core.ID
	for _, tag := range tags {
		err := scanPrefix(tx, makePartialTagKey(tag), false, func(item *badger.Item) (bool, error) {
			id := placeIDFromKey(item.Key())
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func applyFilter(places []*core.Place, filter storage.PlaceFilter) []*core.Place {
	out := make([]*core.Place, 0, len(places))
	for _, place := range places {
		if !matchesFilter(place, filter) {
			continue
		}
		out = append(out, place)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

func matchesFilter(place *core.Place, filter storage.PlaceFilter) bool {
	if filter.PublishedOnly && !place.IsPublished() {
		return false
	}
	if filter.Area != "" && !strings.EqualFold(strings.TrimSpace(place.Area), strings.TrimSpace(filter.Area)) {
		return false
	}
	if filter.Box != nil && (place.Coords == nil || !filter.Box.Contains(*place.Coords)) {
		return false
	}
	return true
}

func readPlaces(tx *badger.Txn, ids []core.ID) ([]*core.Place, error) {
	var places []*core.Place
	for _, id := range ids {
		place, err := readPlace(tx, makePlaceKey(id))
		if err != nil {
			return nil, err
		}
		if place != nil {
			places = append(places, place)
		}
	}
	return places, nil
}

// readPlace reads a place from the transaction. Returns nil, nil if the key is missing.
func readPlace(tx *badger.Txn, key []byte) (*core.Place, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return itemPlace(item)
}

func itemPlace(item *badger.Item) (*core.Place, error) {
	var place *core.Place
	err := item.Value(func(val []byte) error {
		var err error
		place, err = storage.UnmarshalPlace(val)
		return err
	})
	return place, err
}
