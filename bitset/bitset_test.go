package bitset

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncoder_Order(t *testing.T) {
	e := NewEncoder([]string{"rooftop", "view"}, []string{"spa", "cocktail", "View", "rooftop"}, nil)

	assert.Equal(t, []string{"rooftop", "view", "cocktail", "spa"}, e.Tags())
	pos, ok := e.Bit("rooftop")
	require.True(t, ok)
	assert.Equal(t, uint(0), pos)
	pos, ok = e.Bit("spa")
	require.True(t, ok)
	assert.Equal(t, uint(3), pos)
	assert.Equal(t, 4, e.Len())
}

func TestNewEncoder_Stable(t *testing.T) {
	a := NewEncoder([]string{"rooftop"}, []string{"b", "a", "c"}, nil)
	b := NewEncoder([]string{"rooftop"}, []string{"c", "a", "b"}, nil)
	assert.Equal(t, a.Tags(), b.Tags())
	assert.Equal(t, a.Version(), b.Version())

	c := NewEncoder([]string{"rooftop"}, []string{"a", "b", "d"}, nil)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestNewEncoder_Cap(t *testing.T) {
	tags := make([]string, 70)
	for i := range tags {
		tags[i] = fmt.Sprintf("tag%02d", i)
	}
	e := NewEncoder(nil, tags, nil)
	assert.Equal(t, Width, e.Len())
	assert.Equal(t, []string{"tag64", "tag65", "tag66", "tag67", "tag68", "tag69"}, e.Dropped())
	assert.Equal(t, uint64(0), e.Encode([]string{"tag69"}))
}

func TestEncodeDecode(t *testing.T) {
	e := NewEncoder(nil, []string{"rooftop", "view", "cocktail", "spa"}, nil)

	b := e.Encode([]string{"view", "Rooftop", "unknown"})
	assert.Equal(t, []string{"rooftop", "view"}, e.Decode(b))
	assert.Empty(t, e.Decode(0))
	assert.Equal(t, uint64(0), e.Encode(nil))
}

func TestBit_MatchesEncode(t *testing.T) {
	e := NewEncoder([]string{"rooftop"}, []string{"view", "spa"}, nil)

	for _, tag := range []string{"rooftop", "Rooftop", " SPA "} {
		pos, ok := e.Bit(tag)
		require.True(t, ok, tag)
		assert.Equal(t, uint64(1)<<pos, e.Encode([]string{tag}), tag)
	}
	_, ok := e.Bit("sauna")
	assert.False(t, ok)
}

func TestSimilarity(t *testing.T) {
	e := NewEncoder(nil, []string{"rooftop", "view", "cocktail", "spa"}, nil)

	t.Run("jaccard of overlapping sets", func(t *testing.T) {
		a := e.Encode([]string{"rooftop", "view", "cocktail"})
		b := e.Encode([]string{"rooftop", "view"})
		assert.InDelta(t, 2.0/3.0, Similarity(a, b), 1e-9)
	})

	t.Run("both empty is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity(0, 0))
	})

	t.Run("identical sets", func(t *testing.T) {
		a := e.Encode([]string{"spa"})
		assert.Equal(t, 1.0, Similarity(a, a))
	})

	t.Run("disjoint sets", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity(e.Encode([]string{"spa"}), e.Encode([]string{"view"})))
	})

	t.Run("symmetric and bounded", func(t *testing.T) {
		r := rand.New(rand.NewSource(7))
		for i := 0; i < 1000; i++ {
			a, b := r.Uint64(), r.Uint64()
			if i%10 == 0 {
				b = 0
			}
			s := Similarity(a, b)
			assert.Equal(t, s, Similarity(b, a))
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	})
}

func TestWeightedSimilarity(t *testing.T) {
	e := NewEncoder(nil, []string{"rooftop", "view", "cocktail", "spa"}, nil)
	place := e.Encode([]string{"rooftop", "view"})

	tests := []struct {
		name    string
		profile map[string]float64
		want    float64
	}{
		{name: "empty profile", profile: nil, want: 0},
		{name: "full match", profile: map[string]float64{"rooftop": 1, "view": 1}, want: 1},
		{name: "partial match", profile: map[string]float64{"rooftop": 3, "spa": 1}, want: 0.75},
		{name: "unknown tags count toward total", profile: map[string]float64{"rooftop": 1, "karaoke": 1}, want: 0.5},
		{name: "non-positive weights ignored", profile: map[string]float64{"rooftop": 1, "spa": -2}, want: 1},
		{name: "only zero weights", profile: map[string]float64{"rooftop": 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.WeightedSimilarity(place, tt.profile), 1e-9)
		})
	}
}
