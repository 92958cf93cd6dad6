package wayfinder

import (
	"strings"
	"testing"

	"github.com/poiesic/wayfinder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPlaces(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		places, err := ReadPlaces(strings.NewReader(`[
			{"name": "Sky Bar", "tags": "rooftop,view", "coords": {"lat": 13.72, "lng": 100.51}},
			{"name": "Tea Room", "status": "draft"}
		]`))
		require.NoError(t, err)
		require.Len(t, places, 2)
		assert.Equal(t, "Sky Bar", places[0].Name)
		assert.Equal(t, []string{"rooftop", "view"}, places[0].TagList())
		assert.Equal(t, core.PlaceStatusDraft, places[1].Status)
	})

	t.Run("object stream", func(t *testing.T) {
		places, err := ReadPlaces(strings.NewReader(`
			{"name": "One"}
			{"name": "Two", "rating": 4.5}
		`))
		require.NoError(t, err)
		require.Len(t, places, 2)
		require.NotNil(t, places[1].Rating)
		assert.Equal(t, 4.5, *places[1].Rating)
	})

	t.Run("empty input", func(t *testing.T) {
		places, err := ReadPlaces(strings.NewReader("  "))
		require.NoError(t, err)
		assert.Empty(t, places)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ReadPlaces(strings.NewReader(`{"name": `))
		assert.Error(t, err)
	})

	t.Run("invalid place", func(t *testing.T) {
		_, err := ReadPlaces(strings.NewReader(`[{"name": "ok"}, {"name": ""}]`))
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrEmptyPlaceName)
		assert.Contains(t, err.Error(), "place 2")
	})
}

func TestDemoPlaces(t *testing.T) {
	places := DemoPlaces()
	require.NotEmpty(t, places)

	names := make(map[string]bool)
	for _, p := range places {
		assert.False(t, names[p.Name], "duplicate demo place %q", p.Name)
		names[p.Name] = true
		assert.NotNil(t, p.Coords, "%s should have coordinates", p.Name)
	}
}
