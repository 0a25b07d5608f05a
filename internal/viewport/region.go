// Package viewport computes map camera regions and applies them to the
// client's map surface once it can render.
package viewport

import (
	"math"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

const (
	DefaultPadding  = 0.15
	DefaultMinDelta = 0.005

	// Initial camera spans around the device location.
	InitialLatitudeDelta  = 0.0922
	InitialLongitudeDelta = 0.0421
)

// Region is a camera target.
type Region struct {
	Center         geo.Coordinate `json:"center"`
	LatitudeDelta  float64        `json:"latitude_delta"`
	LongitudeDelta float64        `json:"longitude_delta"`
	Southwest      geo.Coordinate `json:"southwest"`
	Northeast      geo.Coordinate `json:"northeast"`
}

// Bounds returns the region's box.
func (r Region) Bounds() geo.Bounds {
	return geo.Bounds{Southwest: r.Southwest, Northeast: r.Northeast}
}

// Fitter pads fitted regions. Padding is a fraction of the span added on
// every side and MinDelta floors that padding in degrees.
type Fitter struct {
	Padding  float64
	MinDelta float64
}

// NewFitter returns a fitter, substituting defaults for non-positive values.
func NewFitter(padding, minDelta float64) Fitter {
	if padding <= 0 {
		padding = DefaultPadding
	}
	if minDelta <= 0 {
		minDelta = DefaultMinDelta
	}
	return Fitter{Padding: padding, MinDelta: minDelta}
}

// Fit uses the default padding.
func Fit(origin, destination geo.Coordinate, polyline []geo.Coordinate) Region {
	return NewFitter(0, 0).Fit(origin, destination, polyline)
}

// Fit returns a region covering both endpoints and every valid polyline point.
func (f Fitter) Fit(origin, destination geo.Coordinate, polyline []geo.Coordinate) Region {
	b, _ := geo.BoundsOf(origin, destination)
	for _, p := range polyline {
		if p.Valid() {
			b = b.Extend(p)
		}
	}

	padLat := math.Max((b.Northeast.Latitude-b.Southwest.Latitude)*f.Padding, f.MinDelta)
	padLng := math.Max((b.Northeast.Longitude-b.Southwest.Longitude)*f.Padding, f.MinDelta)

	b.Southwest.Latitude = math.Max(b.Southwest.Latitude-padLat, -90)
	b.Northeast.Latitude = math.Min(b.Northeast.Latitude+padLat, 90)
	b.Southwest.Longitude -= padLng
	b.Northeast.Longitude += padLng

	return regionOf(b)
}

// InitialRegion centres the default camera span on c.
func InitialRegion(c geo.Coordinate) Region {
	return regionOf(geo.Bounds{
		Southwest: geo.Coordinate{Latitude: c.Latitude - InitialLatitudeDelta/2, Longitude: c.Longitude - InitialLongitudeDelta/2},
		Northeast: geo.Coordinate{Latitude: c.Latitude + InitialLatitudeDelta/2, Longitude: c.Longitude + InitialLongitudeDelta/2},
	})
}

func regionOf(b geo.Bounds) Region {
	return Region{
		Center:         b.Center(),
		LatitudeDelta:  b.Northeast.Latitude - b.Southwest.Latitude,
		LongitudeDelta: b.Northeast.Longitude - b.Southwest.Longitude,
		Southwest:      b.Southwest,
		Northeast:      b.Northeast,
	}
}
