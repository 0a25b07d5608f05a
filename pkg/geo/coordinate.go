package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies inside the WGS84 ranges.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// String formats the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
}

// ParseCoordinate parses "lat,lng" and rejects out-of-range values.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("coordinate %q: want \"lat,lng\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("coordinate %q: latitude: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("coordinate %q: longitude: %w", s, err)
	}
	c := Coordinate{Latitude: lat, Longitude: lng}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return c, nil
}

// Bounds is an axis-aligned box in latitude/longitude space.
type Bounds struct {
	Southwest Coordinate `json:"southwest"`
	Northeast Coordinate `json:"northeast"`
}

// BoundsOf returns the smallest box containing every point. ok is false when
// points is empty.
func BoundsOf(points ...Coordinate) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	b = Bounds{Southwest: points[0], Northeast: points[0]}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b, true
}

// Extend grows the box to include p.
func (b Bounds) Extend(p Coordinate) Bounds {
	b.Southwest.Latitude = math.Min(b.Southwest.Latitude, p.Latitude)
	b.Southwest.Longitude = math.Min(b.Southwest.Longitude, p.Longitude)
	b.Northeast.Latitude = math.Max(b.Northeast.Latitude, p.Latitude)
	b.Northeast.Longitude = math.Max(b.Northeast.Longitude, p.Longitude)
	return b
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Coordinate) bool {
	return p.Latitude >= b.Southwest.Latitude && p.Latitude <= b.Northeast.Latitude &&
		p.Longitude >= b.Southwest.Longitude && p.Longitude <= b.Northeast.Longitude
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Coordinate {
	return Coordinate{
		Latitude:  (b.Southwest.Latitude + b.Northeast.Latitude) / 2,
		Longitude: (b.Southwest.Longitude + b.Northeast.Longitude) / 2,
	}
}
