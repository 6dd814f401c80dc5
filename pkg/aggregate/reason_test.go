package aggregate

import "testing"

func TestDelayReason(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{0, "normal operations"},
		{-5, "normal operations"},
		{0.1, "minor delays"},
		{10, "minor delays"},
		{10.1, "high traffic volume"},
		{20, "high traffic volume"},
		{25, "runway congestion"},
		{30, "runway congestion"},
		{32, "air traffic control"},
		{35, "air traffic control"},
		{36, "severe weather"},
		{120, "severe weather"},
	}
	for _, tt := range tests {
		if got := delayReason(tt.minutes); got != tt.want {
			t.Errorf("delayReason(%v) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestCancellationReason(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "normal operations"},
		{0.001, "isolated disruptions"},
		{0.015, "isolated disruptions"},
		{0.02, "mechanical issues"},
		{0.03, "mechanical issues"},
		{0.04, "crew availability"},
		{0.05, "crew availability"},
		{0.06, "severe weather"},
		{1, "severe weather"},
	}
	for _, tt := range tests {
		if got := cancellationReason(tt.rate); got != tt.want {
			t.Errorf("cancellationReason(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

// A severity function must be monotonic: a worse input can never map to a
// milder label than a better one.
func TestReasonMonotonicity(t *testing.T) {
	delayOrder := map[string]int{
		"normal operations":   0,
		"minor delays":        1,
		"high traffic volume": 2,
		"runway congestion":   3,
		"air traffic control": 4,
		"severe weather":      5,
	}
	prev := -1
	for m := 0.0; m <= 60; m += 0.5 {
		rank := delayOrder[delayReason(m)]
		if rank < prev {
			t.Fatalf("delayReason not monotonic at %v minutes", m)
		}
		prev = rank
	}

	cancelOrder := map[string]int{
		"normal operations":    0,
		"isolated disruptions": 1,
		"mechanical issues":    2,
		"crew availability":    3,
		"severe weather":       4,
	}
	prev = -1
	for r := 0.0; r <= 0.1; r += 0.001 {
		rank := cancelOrder[cancellationReason(r)]
		if rank < prev {
			t.Fatalf("cancellationReason not monotonic at rate %v", r)
		}
		prev = rank
	}
}
