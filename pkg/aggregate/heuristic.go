package aggregate

import (
	"math"

	"github.com/flightwatch/flightboard/pkg/flight"
)

// estimateGroundRatioDelays infers a delayed-flight count from the share of
// tracked aircraft sitting on the ground. Used only when no authoritative
// delay source is configured; callers attach a caveat saying so.
func estimateGroundRatioDelays(positions []flight.Position, lowAltitudeFeet float64) int {
	if len(positions) == 0 {
		return 0
	}

	grounded := 0
	for _, p := range positions {
		if p.OnGround && p.Altitude < lowAltitudeFeet {
			grounded++
		}
	}

	ratio := float64(grounded) / float64(len(positions))
	var share float64
	switch {
	case ratio > 0.4:
		share = 0.30
	case ratio > 0.3:
		share = 0.15
	default:
		share = 0.05
	}

	return int(math.Round(float64(grounded) * share))
}

// estimateDelayMinutes buckets a single aircraft's state into a fixed delay
// estimate. A deterministic function of altitude, speed, and ground state:
// the same inputs always yield the same figure.
func estimateDelayMinutes(p flight.Position) float64 {
	switch {
	case p.OnGround && p.Speed <= 5:
		// Parked or holding short.
		return 20
	case p.OnGround:
		// Taxiing.
		return 5
	case p.Altitude < 10000 && p.Speed < 200:
		// Low and slow: likely in a hold or extended pattern.
		return 10
	default:
		return 0
	}
}

// meanEstimatedDelayMinutes averages the bucketed per-aircraft estimates
// over aircraft that look affected. Zero when nothing looks delayed.
func meanEstimatedDelayMinutes(positions []flight.Position) float64 {
	sum, n := 0.0, 0
	for _, p := range positions {
		if est := estimateDelayMinutes(p); est > 0 {
			sum += est
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
