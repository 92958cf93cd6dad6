package compose

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/cache"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/query"
	"github.com/poiesic/wayfinder/search"
	"github.com/poiesic/wayfinder/session"
	"github.com/poiesic/wayfinder/storage/mock"
)

var center = &core.GeoPoint{Lat: 13.7563, Lng: 100.5018}

func ptr(v float64) *float64 { return &v }

func near(dLat float64) *core.GeoPoint {
	return &core.GeoPoint{Lat: center.Lat + dLat, Lng: center.Lng}
}

func testCorpus() []*core.Place {
	return []*core.Place{
		{Name: "Sky Bar", Category: "bar", Tags: "rooftop,view,cocktail", Summary: "Cocktails high above the city",
			Coords: near(0.004), Rating: ptr(4.6), Signals: core.Signals{EditorPick: true, Quality: 0.9, Cluster: "rooftop_bars"}},
		{Name: "Moon Terrace", Category: "lounge", Tags: "rooftop", Summary: "Evening drinks",
			Coords: near(0.008), Signals: core.Signals{Quality: 0.6}},
		{Name: "Lumphini Day Spa", Category: "spa", Tags: "spa,massage,wellness", Summary: "Traditional treatments",
			Coords: near(0.012), Rating: ptr(4.8), Signals: core.Signals{Quality: 0.5}},
		{Name: "Oasis Retreat", Category: "spa", Tags: "massage,wellness", Summary: "Hot stones and oils",
			Coords: near(0.016), Signals: core.Signals{Quality: 0.4}},
		{Name: "Tom Yum House", Category: "restaurant", Tags: "tom_yum,thai,soup", Summary: "Hot and sour soup",
			Coords: near(-0.004), Signals: core.Signals{Quality: 0.5, Trend: 0.8}},
		{Name: "Garden Cafe", Category: "cafe", Tags: "coffee,garden,quiet", Summary: "Slow mornings",
			Coords: near(-0.008), Signals: core.Signals{Quality: 0.3, Novelty: 0.8}},
		{Name: "Night Market", Category: "market", Tags: "market,street_food,local", Summary: "Stalls until late",
			Coords: near(-0.012), Signals: core.Signals{Interest: 0.6}},
		{Name: "Jazz Hall", Category: "bar", Tags: "live_music,lively", Summary: "Trios every night",
			Coords: near(-0.016), Signals: core.Signals{LocalFavorite: true}},
		{Name: "Hidden Draft", Category: "bar", Tags: "rooftop", Status: core.PlaceStatusDraft, Coords: near(0)},
	}
}

type fixture struct {
	store    *mock.PlaceStore
	registry *ontology.Registry
	metrics  *metrics.Metrics
	composer *Composer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	o, err := ontology.Load("")
	require.NoError(t, err)
	reg, err := ontology.NewRegistry(o)
	require.NoError(t, err)
	enc := bitset.NewEncoder(reg.PreferredTags(), reg.Tags(), nil)

	store := mock.NewPlaceStore(testCorpus()...)
	m := metrics.New(prometheus.NewRegistry())

	extractor, err := query.NewExtractor(reg, query.WithMetrics(m))
	require.NoError(t, err)
	searcher, err := search.NewSearcher(store, reg, enc, search.WithMetrics(m))
	require.NoError(t, err)

	opts = append([]Option{WithMetrics(m)}, opts...)
	c, err := NewComposer(extractor, searcher, reg, enc, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Release)

	return &fixture{store: store, registry: reg, metrics: m, composer: c}
}

func assertWellFormed(t *testing.T, result *core.ComposeResult) {
	t.Helper()
	seen := make(map[core.ID]string)
	for _, rail := range result.Rails {
		assert.NotEmpty(t, rail.Label, "rail %s has no label", rail.Origin)
		assert.NotEmpty(t, rail.Reason, "rail %s has no reason", rail.Origin)
		assert.NotEmpty(t, rail.Items, "rail %s is empty", rail.Origin)
		assert.LessOrEqual(t, len(rail.Items), core.MaxRailItems)
		for _, item := range rail.Items {
			if prev, dup := seen[item.Id]; dup {
				t.Errorf("place %s appears in %s and %s", item.Name, prev, rail.Origin)
			}
			seen[item.Id] = rail.Origin
			assert.LessOrEqual(t, len(item.Badges), core.MaxBadges)
			assert.NotEqual(t, "Hidden Draft", item.Name)
		}
	}
}

func origins(result *core.ComposeResult) []string {
	out := make([]string, 0, len(result.Rails))
	for _, r := range result.Rails {
		out = append(out, r.Origin)
	}
	return out
}

func TestNewComposer(t *testing.T) {
	o, err := ontology.Load("")
	require.NoError(t, err)
	reg, err := ontology.NewRegistry(o)
	require.NoError(t, err)
	enc := bitset.NewEncoder(reg.PreferredTags(), reg.Tags(), nil)
	extractor, err := query.NewExtractor(reg)
	require.NoError(t, err)
	searcher, err := search.NewSearcher(mock.NewPlaceStore(), reg, enc)
	require.NoError(t, err)

	_, err = NewComposer(nil, searcher, reg, enc)
	assert.ErrorIs(t, err, ErrExtractorRequired)
	_, err = NewComposer(extractor, nil, reg, enc)
	assert.ErrorIs(t, err, ErrSearcherRequired)
	_, err = NewComposer(extractor, searcher, nil, enc)
	assert.ErrorIs(t, err, ErrRegistryRequired)
	_, err = NewComposer(extractor, searcher, reg, nil)
	assert.ErrorIs(t, err, ErrEncoderRequired)

	bad := config.Default().Compose
	bad.MMRLambda = 2
	_, err = NewComposer(extractor, searcher, reg, enc, WithConfig(bad))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestCompose_SlotRails(t *testing.T) {
	f := newFixture(t)

	result, err := f.composer.Compose(context.Background(), Request{Query: "rooftop spa", Geo: center})
	require.NoError(t, err)

	require.Len(t, result.Rails, 3)
	assertWellFormed(t, result)
	assert.Equal(t, "slot:experience:rooftop", result.Rails[0].Origin)
	assert.Equal(t, "slot:experience:spa", result.Rails[1].Origin)
	assert.Equal(t, "Rooftops", result.Rails[0].Label)
	assert.Equal(t, `Because you asked for "rooftop"`, result.Rails[0].Reason)
	assert.Equal(t, []string{"step_1", "step_2", "step_3"},
		[]string{result.Rails[0].Step, result.Rails[1].Step, result.Rails[2].Step})
	assert.Len(t, result.Slots, 2)
	assert.False(t, result.CacheHit)

	first := result.Rails[0].Items[0]
	assert.Equal(t, "Sky Bar", first.Name)
	assert.Equal(t, []string{"Rooftop Bars", "Editor Pick", "Top Rated"}, first.Badges)
	require.NotNil(t, first.DistanceKm)
	assert.Contains(t, first.Why, "m away")

	var spa []string
	for _, item := range result.Rails[1].Items {
		spa = append(spa, item.Name)
	}
	assert.ElementsMatch(t, []string{"Lumphini Day Spa", "Oasis Retreat"}, spa)
}

func TestCompose_GlobalDedup(t *testing.T) {
	f := newFixture(t)

	result, err := f.composer.Compose(context.Background(), Request{Query: "rooftop cocktail", Geo: center})
	require.NoError(t, err)

	assertWellFormed(t, result)
	require.NotEmpty(t, result.Rails)
	assert.Equal(t, "slot:experience:rooftop", result.Rails[0].Origin)
	assert.Len(t, result.Rails, 3)
}

func TestCompose_EmptyQuery(t *testing.T) {
	f := newFixture(t)

	result, err := f.composer.Compose(context.Background(), Request{})
	require.NoError(t, err)

	assert.Empty(t, result.Slots)
	require.Len(t, result.Rails, 3)
	assertWellFormed(t, result)
	assert.Equal(t, []string{"suggested:editors_picks", "suggested:trending", "suggested:discover"}, origins(result))
	assert.Equal(t, "Sky Bar", result.Rails[0].Items[0].Name)
	assert.Equal(t, "Tom Yum House", result.Rails[1].Items[0].Name)
}

func TestCompose_NearbySuggestions(t *testing.T) {
	f := newFixture(t)

	result, err := f.composer.Compose(context.Background(), Request{Geo: center})
	require.NoError(t, err)

	require.Len(t, result.Rails, 3)
	assertWellFormed(t, result)
	assert.Equal(t, "suggested:nearby", result.Rails[1].Origin)

	items := result.Rails[1].Items
	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, *items[i-1].DistanceKm, *items[i].DistanceKm)
	}
}

func TestCompose_SmallCorpusStillFillsRails(t *testing.T) {
	o, err := ontology.Load("")
	require.NoError(t, err)
	reg, err := ontology.NewRegistry(o)
	require.NoError(t, err)
	enc := bitset.NewEncoder(reg.PreferredTags(), reg.Tags(), nil)

	store := mock.NewPlaceStore(testCorpus()[4:7]...)
	extractor, err := query.NewExtractor(reg)
	require.NoError(t, err)
	searcher, err := search.NewSearcher(store, reg, enc)
	require.NoError(t, err)
	c, err := NewComposer(extractor, searcher, reg, enc)
	require.NoError(t, err)
	defer c.Release()

	result, err := c.Compose(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, result.Rails, 3)
	assertWellFormed(t, result)
	for _, rail := range result.Rails {
		assert.Len(t, rail.Items, 1)
	}
}

func TestCompose_SlotLeavesRoomForOtherRails(t *testing.T) {
	o, err := ontology.Load("")
	require.NoError(t, err)
	reg, err := ontology.NewRegistry(o)
	require.NoError(t, err)
	enc := bitset.NewEncoder(reg.PreferredTags(), reg.Tags(), nil)

	store := mock.NewPlaceStore(
		&core.Place{Name: "Sky Bar", Category: "bar", Tags: "rooftop", Signals: core.Signals{Quality: 0.9}},
		&core.Place{Name: "Moon Terrace", Category: "lounge", Tags: "rooftop", Signals: core.Signals{Quality: 0.7}},
		&core.Place{Name: "Cloud Deck", Category: "bar", Tags: "rooftop", Signals: core.Signals{Quality: 0.5}},
		&core.Place{Name: "Star Roof", Category: "restaurant", Tags: "rooftop", Signals: core.Signals{Quality: 0.3}},
	)
	extractor, err := query.NewExtractor(reg)
	require.NoError(t, err)
	searcher, err := search.NewSearcher(store, reg, enc)
	require.NoError(t, err)
	c, err := NewComposer(extractor, searcher, reg, enc)
	require.NoError(t, err)
	defer c.Release()

	result, err := c.Compose(context.Background(), Request{Query: "rooftop"})
	require.NoError(t, err)

	require.Len(t, result.Rails, 3)
	assertWellFormed(t, result)
	assert.Equal(t, "slot:experience:rooftop", result.Rails[0].Origin)
	assert.Len(t, result.Rails[0].Items, 2)

	var total int
	for _, rail := range result.Rails {
		total += len(rail.Items)
	}
	assert.Equal(t, 4, total)
}

func TestCompose_QualityOnly(t *testing.T) {
	f := newFixture(t)

	result, err := f.composer.Compose(context.Background(), Request{Query: "rooftop", QualityOnly: true})
	require.NoError(t, err)

	require.NotEmpty(t, result.Rails)
	rail := result.Rails[0]
	assert.Equal(t, "slot:experience:rooftop", rail.Origin)
	require.Len(t, rail.Items, 1)
	assert.Equal(t, "Sky Bar", rail.Items[0].Name)
	assertWellFormed(t, result)
}

func TestCompose_StoreFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.store.Err = assert.AnError

	result, err := f.composer.Compose(context.Background(), Request{Query: "rooftop spa"})
	require.NoError(t, err)

	assert.Empty(t, result.Rails)
	assert.NotNil(t, result.Rails)
	assert.Greater(t, testutil.ToFloat64(f.metrics.Degradations.WithLabelValues(metrics.KindSearch)), 0.0)
}

func TestCompose_UnparsedQueryFallsBackToText(t *testing.T) {
	f := newFixture(t)

	result, err := f.composer.Compose(context.Background(), Request{Query: "oils"})
	require.NoError(t, err)

	require.NotEmpty(t, result.Rails)
	assert.Empty(t, result.Slots)
	assert.Equal(t, "backfill", result.Rails[0].Origin)
	assert.Equal(t, "Oasis Retreat", result.Rails[0].Items[0].Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Degradations.WithLabelValues(metrics.KindParse)))
	assertWellFormed(t, result)
}

func TestCompose_Timeout(t *testing.T) {
	rc, err := cache.New[*core.ComposeResult](16, time.Minute)
	require.NoError(t, err)
	defer rc.Close()

	cfg := config.Default().Compose
	cfg.RequestTimeout = 50 * time.Millisecond
	f := newFixture(t, WithConfig(cfg), WithCache(rc))
	f.store.Delay = 500 * time.Millisecond

	result, err := f.composer.Compose(context.Background(), Request{Query: "rooftop spa"})
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Nil(t, result)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ComposeRequests.WithLabelValues("light", "timeout")))

	// A cached result would be served without touching the slow store.
	_, err = f.composer.Compose(context.Background(), Request{Query: "rooftop spa"})
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ComposeRequests.WithLabelValues("light", "timeout")))
	assert.Zero(t, testutil.ToFloat64(f.metrics.CacheHits.WithLabelValues("compose")))
}

func TestCompose_CallerDeadline(t *testing.T) {
	f := newFixture(t)
	f.store.Delay = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.composer.Compose(ctx, Request{})
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestCompose_SharedFlightSurvivesCanceledCaller(t *testing.T) {
	cfg := config.Default().Compose
	cfg.RequestTimeout = 5 * time.Second
	f := newFixture(t, WithConfig(cfg))
	f.store.Delay = 60 * time.Millisecond
	req := Request{Query: "rooftop spa", Geo: center}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.composer.Compose(first, req)
		firstErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	second := make(chan *core.ComposeResult, 1)
	secondErr := make(chan error, 1)
	go func() {
		result, err := f.composer.Compose(context.Background(), req)
		second <- result
		secondErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, core.ErrTimeout)

	result := <-second
	require.NoError(t, <-secondErr)
	require.Len(t, result.Rails, 3)
	assertWellFormed(t, result)
}

func TestCompose_Cache(t *testing.T) {
	rc, err := cache.New[*core.ComposeResult](16, time.Minute)
	require.NoError(t, err)
	defer rc.Close()

	f := newFixture(t, WithCache(rc))
	f.composer.now = func() time.Time { return time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	first, err := f.composer.Compose(ctx, Request{Query: "rooftop spa", Geo: center})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	first.Rails[0].Items[0].Name = "mutated"

	second, err := f.composer.Compose(ctx, Request{Query: " Rooftop  SPA ", Geo: &core.GeoPoint{Lat: center.Lat + 0.00001, Lng: center.Lng}})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "Sky Bar", second.Rails[0].Items[0].Name)
	assert.Equal(t, origins(first), origins(second))

	third, err := f.composer.Compose(ctx, Request{Query: "rooftop spa", Geo: center, Mode: core.ModeSurprise})
	require.NoError(t, err)
	assert.False(t, third.CacheHit)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHits.WithLabelValues("compose")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheMisses.WithLabelValues("compose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ComposeRequests.WithLabelValues("light", "cached")))
}

func TestCompose_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.composer.Compose(ctx, Request{Mode: "chaos"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.composer.Compose(ctx, Request{Geo: &core.GeoPoint{Lat: 120}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.composer.Compose(ctx, Request{Query: strings.Repeat("x", 600)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	result, err := f.composer.Compose(ctx, Request{Mode: " Vibe "})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Rails)
}

func TestCompose_RecordsSession(t *testing.T) {
	o, err := ontology.Load("")
	require.NoError(t, err)
	reg, err := ontology.NewRegistry(o)
	require.NoError(t, err)

	sessions := mock.NewSessionStore()
	recorder, err := session.NewRecorder(sessions, reg)
	require.NoError(t, err)
	defer recorder.Release()

	f := newFixture(t, WithSessions(recorder))
	result, err := f.composer.Compose(context.Background(), Request{Query: "rooftop spa", SessionID: "abc"})
	require.NoError(t, err)
	recorder.Wait()

	signals, err := sessions.RecentSignals(context.Background(), "abc", 0)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, []string{"experience:rooftop", "experience:spa"}, signals[0].Slots)

	profile, err := sessions.GetProfile(context.Background(), "abc")
	require.NoError(t, err)
	var shown int
	for _, rail := range result.Rails {
		shown += len(rail.Items)
	}
	assert.Len(t, profile.SeenPlaces, shown)
	assert.Positive(t, profile.Vibe["rooftop"])
}
