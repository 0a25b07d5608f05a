package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	paulista := Coordinate{Latitude: -23.561, Longitude: -46.656}
	se := Coordinate{Latitude: -23.550, Longitude: -46.633}

	t.Run("zero for identical points", func(t *testing.T) {
		assert.Equal(t, 0.0, Distance(paulista, paulista))
	})

	t.Run("symmetric", func(t *testing.T) {
		pairs := [][2]Coordinate{
			{paulista, se},
			{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 179.9}},
			{{Latitude: 51.5074, Longitude: -0.1278}, {Latitude: 40.7128, Longitude: -74.0060}},
			{{Latitude: -89.9, Longitude: 10}, {Latitude: 89.9, Longitude: -170}},
		}
		for _, p := range pairs {
			assert.Equal(t, Distance(p[0], p[1]), Distance(p[1], p[0]))
		}
	})

	t.Run("known distance", func(t *testing.T) {
		d := Distance(paulista, se)
		assert.InDelta(t, 2.64, d, 0.05)
	})

	t.Run("london to new york", func(t *testing.T) {
		london := Coordinate{Latitude: 51.5074, Longitude: -0.1278}
		newYork := Coordinate{Latitude: 40.7128, Longitude: -74.0060}
		assert.InDelta(t, 5570, Distance(london, newYork), 10)
	})
}

func TestRoundKm(t *testing.T) {
	assert.Equal(t, 2.65, RoundKm(2.6468))
	assert.Equal(t, 0.0, RoundKm(0.001))
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 15, EstimateDuration(10))
	assert.Equal(t, 0, EstimateDuration(0))
}

func TestBounds(t *testing.T) {
	_, ok := BoundsOf()
	assert.False(t, ok)

	a := Coordinate{Latitude: -23.561, Longitude: -46.656}
	b := Coordinate{Latitude: -23.550, Longitude: -46.633}

	bounds, ok := BoundsOf(a, b)
	require.True(t, ok)
	assert.Equal(t, -23.561, bounds.Southwest.Latitude)
	assert.Equal(t, -46.656, bounds.Southwest.Longitude)
	assert.Equal(t, -23.550, bounds.Northeast.Latitude)
	assert.Equal(t, -46.633, bounds.Northeast.Longitude)
	assert.True(t, bounds.Contains(a))
	assert.True(t, bounds.Contains(b))
	assert.False(t, bounds.Contains(Coordinate{Latitude: 0, Longitude: 0}))

	center := bounds.Center()
	assert.InDelta(t, -23.5555, center.Latitude, 1e-9)
	assert.InDelta(t, -46.6445, center.Longitude, 1e-9)
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Latitude: -23.5, Longitude: -46.6}.Valid())
	assert.False(t, Coordinate{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Coordinate{Latitude: 0, Longitude: -181}.Valid())
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate(" -23.561, -46.656 ")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Latitude: -23.561, Longitude: -46.656}, c)

	for _, bad := range []string{"", "-23.5", "a,b", "91,0", "0,181", "1,2,3"} {
		_, err := ParseCoordinate(bad)
		assert.Error(t, err, bad)
	}
}
