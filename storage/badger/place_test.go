package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/geo"
	"github.com/poiesic/wayfinder/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlaceRepo(t *testing.T) *PlaceRepository {
	t.Helper()
	places, sessions, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		sessions.Close()
		places.Close()
		backend.Close()
	})
	return places
}

func corpus() []*core.Place {
	return []*core.Place{
		{Name: "Sky Garden", Category: "bar", Tags: "rooftop,view,cocktail", Summary: "Cocktails with a skyline view",
			Area: "Riverside", Coords: &core.GeoPoint{Lat: 13.7200, Lng: 100.5100}, Status: core.PlaceStatusPublished},
		{Name: "Tom Yum House", Category: "restaurant", Tags: "tom_yum,thai,spicy", Summary: "Spicy tom yum soup",
			Address: "12 Soi Nana", Coords: &core.GeoPoint{Lat: 13.7400, Lng: 100.5600}, Status: core.PlaceStatusPublished},
		{Name: "Quiet Leaf", Category: "cafe", Tags: "coffee,quiet,wifi", Summary: "Slow coffee and tea",
			Coords: &core.GeoPoint{Lat: 18.7900, Lng: 98.9800}},
		{Name: "Draft Spa", Category: "spa", Tags: "spa,massage", Status: core.PlaceStatusDraft,
			Coords: &core.GeoPoint{Lat: 13.7300, Lng: 100.5200}},
		{Name: "Floating Pop-up", Category: "market", Tags: "market,street_food"},
	}
}

func TestPlaceRepository_AddGet(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()

	added, err := repo.AddPlaces(ctx, corpus()...)
	require.NoError(t, err)
	require.Len(t, added, 5)

	for _, p := range added {
		assert.NotZero(t, p.Id)
		assert.False(t, p.InsertedAt.IsZero())
	}
	assert.Equal(t, core.PlaceID("Sky Garden", &core.GeoPoint{Lat: 13.72, Lng: 100.51}), added[0].Id)

	got, err := repo.GetPlace(ctx, added[1].Id)
	require.NoError(t, err)
	assert.Equal(t, "Tom Yum House", got.Name)

	_, err = repo.GetPlace(ctx, 12345)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	many, err := repo.GetPlaces(ctx, added[0].Id, 999, added[2].Id)
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func TestPlaceRepository_AddInvalid(t *testing.T) {
	repo := newPlaceRepo(t)
	_, err := repo.AddPlaces(context.Background(), &core.Place{Name: ""})
	assert.True(t, errors.Is(err, core.ErrInvalidPlace))
}

func TestPlaceRepository_AddReplacesIndices(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()

	p := &core.Place{Id: 7, Name: "Shifty", Tags: "rooftop"}
	_, err := repo.AddPlaces(ctx, p)
	require.NoError(t, err)
	inserted := p.InsertedAt

	_, err = repo.AddPlaces(ctx, &core.Place{Id: 7, Name: "Shifty", Tags: "spa"})
	require.NoError(t, err)

	rooftops, err := repo.FindByTags(ctx, []string{"rooftop"}, storage.PlaceFilter{})
	require.NoError(t, err)
	assert.Empty(t, rooftops)

	got, err := repo.GetPlace(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, inserted.Unix(), got.InsertedAt.Unix())
}

func TestPlaceRepository_UpdateDelete(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()

	added, err := repo.AddPlaces(ctx, corpus()...)
	require.NoError(t, err)

	p := added[0]
	p.Tags = "rooftop,view,wine"
	_, err = repo.UpdatePlaces(ctx, p)
	require.NoError(t, err)

	wine, err := repo.FindByTags(ctx, []string{"wine"}, storage.PlaceFilter{})
	require.NoError(t, err)
	require.Len(t, wine, 1)
	cocktails, err := repo.FindByTags(ctx, []string{"cocktail"}, storage.PlaceFilter{})
	require.NoError(t, err)
	assert.Empty(t, cocktails)

	_, err = repo.UpdatePlaces(ctx, &core.Place{Id: 4242, Name: "Ghost"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, repo.DeletePlaces(ctx, p.Id))
	_, err = repo.GetPlace(ctx, p.Id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.True(t, errors.Is(repo.DeletePlaces(ctx, p.Id), storage.ErrNotFound))

	hits, err := repo.SearchText(ctx, storage.FullTextQuery{
		Groups:  [][]string{{"skyline"}},
		Weights: storage.FieldWeights{Summary: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPlaceRepository_ScanPlaces(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()
	_, err := repo.AddPlaces(ctx, corpus()...)
	require.NoError(t, err)

	all, err := repo.ScanPlaces(ctx, storage.PlaceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Id, all[i].Id)
	}

	published, err := repo.ScanPlaces(ctx, storage.PlaceFilter{PublishedOnly: true})
	require.NoError(t, err)
	assert.Len(t, published, 4)

	limited, err := repo.ScanPlaces(ctx, storage.PlaceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	riverside, err := repo.ScanPlaces(ctx, storage.PlaceFilter{Area: "riverside"})
	require.NoError(t, err)
	require.Len(t, riverside, 1)
	assert.Equal(t, "Sky Garden", riverside[0].Name)

	box := geo.BoundingBox(core.GeoPoint{Lat: 13.73, Lng: 100.53}, 10)
	nearby, err := repo.ScanPlaces(ctx, storage.PlaceFilter{Box: &box})
	require.NoError(t, err)
	names := make([]string, 0, len(nearby))
	for _, p := range nearby {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Sky Garden", "Tom Yum House", "Draft Spa"}, names)
}

func TestPlaceRepository_FindByTags(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()
	_, err := repo.AddPlaces(ctx, corpus()...)
	require.NoError(t, err)

	got, err := repo.FindByTags(ctx, []string{"spa", "coffee"}, storage.PlaceFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.FindByTags(ctx, []string{"spa", "coffee"}, storage.PlaceFilter{PublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Quiet Leaf", got[0].Name)
}

func TestPlaceRepository_TagCooccurrence(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()
	_, err := repo.AddPlaces(ctx,
		&core.Place{Name: "A", Tags: "rooftop,view,cocktail"},
		&core.Place{Name: "B", Tags: "rooftop,view"},
		&core.Place{Name: "C", Tags: "spa"},
	)
	require.NoError(t, err)

	counts, err := repo.TagCooccurrence(ctx, []string{"rooftop"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"view": 2, "cocktail": 1}, counts)
}

func TestPlaceRepository_ForEachPlace(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()

	var places []*core.Place
	for i := 1; i <= 7; i++ {
		places = append(places, &core.Place{Id: core.ID(i), Name: "P"})
	}
	_, err := repo.AddPlaces(ctx, places...)
	require.NoError(t, err)

	var batches [][]core.ID
	err = repo.ForEachPlace(ctx, 0, 3, func(batch []*core.Place) error {
		ids := make([]core.ID, 0, len(batch))
		for _, p := range batch {
			ids = append(ids, p.Id)
		}
		batches = append(batches, ids)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]core.ID{{1, 2, 3}, {4, 5, 6}, {7}}, batches)

	var resumed []core.ID
	err = repo.ForEachPlace(ctx, 5, 10, func(batch []*core.Place) error {
		for _, p := range batch {
			resumed = append(resumed, p.Id)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{6, 7}, resumed)

	stop := errors.New("stop")
	err = repo.ForEachPlace(ctx, 0, 2, func([]*core.Place) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestPlaceRepository_SearchText(t *testing.T) {
	repo := newPlaceRepo(t)
	ctx := context.Background()
	_, err := repo.AddPlaces(ctx, corpus()...)
	require.NoError(t, err)

	weights := storage.FieldWeights{Name: 1.0, Tags: 0.8, Summary: 0.6, Address: 0.3}

	hits, err := repo.SearchText(ctx, storage.FullTextQuery{
		Groups:  [][]string{{"tom", "tomyum"}, {"yum"}},
		Weights: weights,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Tom Yum House", hits[0].Place.Name)
	assert.InDelta(t, 2.0, hits[0].Score, 1e-9)

	hits, err = repo.SearchText(ctx, storage.FullTextQuery{
		Groups:  [][]string{{"coffee", "cocktail"}},
		Weights: weights,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Both match on tags; equal scores fall back to ID order.
	assert.LessOrEqual(t, hits[0].Place.Id, hits[1].Place.Id)

	hits, err = repo.SearchText(ctx, storage.FullTextQuery{
		Groups:  [][]string{{"spa"}},
		Weights: weights,
		Filter:  storage.PlaceFilter{PublishedOnly: true},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = repo.SearchText(ctx, storage.FullTextQuery{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
