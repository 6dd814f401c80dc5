package livecache

import "github.com/flightwatch/flightboard/pkg/flight"

// buildSiteIndex groups positions by their nearest site within radiusNM.
// Nearest wins: a position within range of several sites is assigned to
// exactly one. O(sites x positions) per refresh, acceptable because both
// counts stay in the hundreds.
func buildSiteIndex(positions []flight.Position, sites []flight.Site, radiusNM float64) map[string][]flight.Position {
	index := make(map[string][]flight.Position, len(sites))

	for _, p := range positions {
		bestID := ""
		bestDist := radiusNM
		for _, s := range sites {
			d := flight.HaversineNM(p.Latitude, p.Longitude, s.Latitude, s.Longitude)
			if d <= bestDist {
				bestDist = d
				bestID = s.ID
			}
		}
		if bestID != "" {
			index[bestID] = append(index[bestID], p)
		}
	}

	return index
}
