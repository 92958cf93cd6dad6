package wayfinder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/wayfinder/compose"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var silom = &core.GeoPoint{Lat: 13.7286, Lng: 100.5341}

func newDemoEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine("", append([]Option{WithInMemory()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	_, err = e.AddPlaces(context.Background(), DemoPlaces()...)
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	t.Run("create on disk", func(t *testing.T) {
		e, err := NewEngine(filepath.Join(t.TempDir(), "db"))
		require.NoError(t, err)
		require.NotNil(t, e)

		assert.NotNil(t, e.Places())
		assert.NotNil(t, e.Sessions())
		assert.NotNil(t, e.Registry())
		assert.NotNil(t, e.Encoder())
		assert.NotNil(t, e.Metrics())
		assert.NoError(t, e.Close())
	})

	t.Run("path required", func(t *testing.T) {
		_, err := NewEngine("")
		assert.ErrorIs(t, err, ErrPathRequired)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		e, err := NewEngine(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, e)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Compose.RailSize = 0
		_, err := NewEngine("", WithInMemory(), WithConfig(cfg))
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("broken ontology file falls back to built-in", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ontology.yaml")
		require.NoError(t, os.WriteFile(path, []byte("slots: [\n"), 0644))

		e, err := NewEngine("", WithInMemory(), WithOntologyFile(path), WithLogger(nil))
		require.NoError(t, err)
		defer e.Close()
		_, ok := e.Registry().Slot("experience:rooftop")
		assert.True(t, ok)
	})
}

func TestEngine_Compose(t *testing.T) {
	e := newDemoEngine(t)

	res, err := e.Compose(context.Background(), compose.Request{Query: "rooftop", Geo: silom})
	require.NoError(t, err)
	require.Len(t, res.Rails, core.MaxRails)
	assert.Equal(t, "slot:experience:rooftop", res.Rails[0].Origin)
	require.NotEmpty(t, res.Rails[0].Items)

	seen := make(map[core.ID]bool)
	for _, rail := range res.Rails {
		assert.NotEmpty(t, rail.Items, "rail %s should not be empty", rail.Origin)
		assert.LessOrEqual(t, len(rail.Items), core.MaxRailItems)
		for _, item := range rail.Items {
			assert.False(t, seen[item.Id], "%s appears twice", item.Name)
			seen[item.Id] = true
			assert.NotEqual(t, "Secret Garden Wine Bar", item.Name, "drafts must not be served")
		}
	}
}

func TestEngine_EmptyCorpus(t *testing.T) {
	e, err := NewEngine("", WithInMemory())
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Compose(context.Background(), compose.Request{Query: "rooftop"})
	require.NoError(t, err)
	assert.Empty(t, res.Rails)
}

func TestEngine_Extract(t *testing.T) {
	e := newDemoEngine(t)

	var keys []string
	for _, s := range e.Extract(context.Background(), "tom yum by the river") {
		keys = append(keys, s.Key())
	}
	assert.Contains(t, keys, "dish:tom_yum")
	assert.Contains(t, keys, "area:riverside")
}

func TestEngine_Search(t *testing.T) {
	e := newDemoEngine(t)

	cands := e.Search(context.Background(), search.Request{Query: "sushi"})
	require.NotEmpty(t, cands)
	assert.Equal(t, "Sushi Masato", cands[0].Place.Name)
}

func TestEngine_Sessions(t *testing.T) {
	e := newDemoEngine(t)
	ctx := context.Background()

	_, err := e.Compose(ctx, compose.Request{Query: "rooftop", SessionID: "s-1"})
	require.NoError(t, err)
	e.WaitSessions()

	profile, err := e.Sessions().GetProfile(ctx, "s-1")
	require.NoError(t, err)
	assert.Greater(t, profile.Vibe["rooftop"], 0.0)
	assert.NotEmpty(t, profile.SeenPlaces)

	signals, err := e.Sessions().RecentSignals(ctx, "s-1", 10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "rooftop", signals[0].Query)
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newDemoEngine(t, WithRegisterer(reg))
	ctx := context.Background()

	req := compose.Request{Query: "spa", Geo: silom}
	_, err := e.Compose(ctx, req)
	require.NoError(t, err)
	_, err = e.Compose(ctx, req)
	require.NoError(t, err)

	m := e.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComposeRequests.WithLabelValues("light", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComposeRequests.WithLabelValues("light", "cached")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEngine_Reindex(t *testing.T) {
	e := newDemoEngine(t)
	ctx := context.Background()
	total := len(DemoPlaces())

	result, err := e.Reindex(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, total, result.Scanned)
	assert.Zero(t, result.Rebuilt, "AddPlaces should store fresh bitsets")

	id := core.PlaceID("Ramen Bar Ippudo", &core.GeoPoint{Lat: 13.7286, Lng: 100.5341})
	p, err := e.Places().GetPlace(ctx, id)
	require.NoError(t, err)
	p.Tags = "ramen,noodles,japanese,soup,late_night"
	_, err = e.Places().UpdatePlaces(ctx, p)
	require.NoError(t, err)

	result, err = e.Reindex(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rebuilt)

	p, err = e.Places().GetPlace(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, e.Encoder().Encode(p.TagList()), p.TagBits)
}
