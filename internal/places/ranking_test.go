package places

import (
	"testing"

	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank_OrdersByDistanceWithUnknownLast(t *testing.T) {
	bias := &geo.Coordinate{Latitude: -23.561, Longitude: -46.656}
	input := []PlaceSuggestion{
		{ID: "no-coord-1"},
		suggestion("far", -23.450, -46.530),
		suggestion("near", -23.562, -46.657),
		{ID: "no-coord-2"},
		suggestion("mid", -23.550, -46.633),
	}

	ranked := Rank(input, bias)

	ids := make([]string, len(ranked))
	for i, s := range ranked {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"near", "mid", "far", "no-coord-1", "no-coord-2"}, ids)

	seenNil := false
	prev := -1.0
	for _, s := range ranked {
		if s.DistanceKm == nil {
			seenNil = true
			continue
		}
		assert.False(t, seenNil, "ranked distance after unknown distance")
		assert.GreaterOrEqual(t, *s.DistanceKm, prev)
		prev = *s.DistanceKm
	}
}

func TestRank_WithoutBiasKeepsBackendOrder(t *testing.T) {
	input := []PlaceSuggestion{
		suggestion("b", 10, 10),
		suggestion("a", 0, 0),
	}

	ranked := Rank(input, nil)

	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Nil(t, ranked[0].DistanceKm)
	assert.Nil(t, ranked[1].DistanceKm)
}

func TestRank_StableForEqualDistances(t *testing.T) {
	bias := &geo.Coordinate{Latitude: 0, Longitude: 0}
	input := []PlaceSuggestion{
		suggestion("first", 0.01, 0),
		suggestion("second", 0.01, 0),
		suggestion("third", 0.01, 0),
	}

	ranked := Rank(input, bias)

	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
	assert.Equal(t, "third", ranked[2].ID)
}

func TestRank_EqualDisplayedDistanceKeepsBackendOrder(t *testing.T) {
	bias := &geo.Coordinate{Latitude: 0, Longitude: 0}
	// b is a few metres further than a, but both display as 1.00 km.
	input := []PlaceSuggestion{
		suggestion("b", 0.009030, 0),
		suggestion("a", 0.009000, 0),
	}

	ranked := Rank(input, bias)

	require.Len(t, ranked, 2)
	require.NotNil(t, ranked[0].DistanceKm)
	require.NotNil(t, ranked[1].DistanceKm)
	assert.Equal(t, *ranked[0].DistanceKm, *ranked[1].DistanceKm)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "a", ranked[1].ID)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	bias := &geo.Coordinate{Latitude: 0, Longitude: 0}
	input := []PlaceSuggestion{suggestion("x", 1, 1)}

	Rank(input, bias)

	assert.Nil(t, input[0].DistanceKm)
}
