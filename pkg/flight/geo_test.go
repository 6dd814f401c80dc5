package flight

import (
	"math"
	"testing"
)

func TestHaversineNM(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 40.6413, -73.7781, 40.6413, -73.7781, 0, 0.001},
		// JFK to LGA is about 9.5 NM.
		{"JFK to LGA", 40.6413, -73.7781, 40.7769, -73.8740, 9.5, 0.5},
		// JFK to LHR is about 2990 NM.
		{"JFK to LHR", 40.6413, -73.7781, 51.4700, -0.4543, 2990, 15},
		// One degree of latitude is 60 NM by definition of the nautical mile.
		{"one degree latitude", 0, 0, 1, 0, 60, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineNM(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("HaversineNM = %f, want %f +/- %f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestHaversineNM_Symmetric(t *testing.T) {
	a := HaversineNM(40.6413, -73.7781, 51.4700, -0.4543)
	b := HaversineNM(51.4700, -0.4543, 40.6413, -73.7781)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}
