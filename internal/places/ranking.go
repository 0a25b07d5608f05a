package places

import (
	"sort"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

// Rank annotates each suggestion with its distance from bias and orders the
// list nearest first. Ordering uses the rounded DistanceKm the caller sees, so
// entries showing the same distance keep their backend order. Suggestions
// without a distance follow every ranked one, also in backend order.
func Rank(suggestions []PlaceSuggestion, bias *geo.Coordinate) []PlaceSuggestion {
	out := make([]PlaceSuggestion, len(suggestions))
	for i, s := range suggestions {
		s.DistanceKm = nil
		if bias != nil && s.Coordinate != nil {
			d := geo.RoundKm(geo.Distance(*bias, *s.Coordinate))
			s.DistanceKm = &d
		}
		out[i] = s
	}

	sort.SliceStable(out, func(a, b int) bool {
		da, db := out[a].DistanceKm, out[b].DistanceKm
		if da == nil || db == nil {
			return da != nil && db == nil
		}
		return *da < *db
	})
	return out
}
