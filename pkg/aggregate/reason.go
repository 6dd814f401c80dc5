package aggregate

// delayReason maps a mean delay figure to a human-readable cause label.
// Thresholds are monotonic and the function is total: every input maps to
// exactly one label.
func delayReason(meanDelayMinutes float64) string {
	switch {
	case meanDelayMinutes > 35:
		return "severe weather"
	case meanDelayMinutes > 30:
		return "air traffic control"
	case meanDelayMinutes > 20:
		return "runway congestion"
	case meanDelayMinutes > 10:
		return "high traffic volume"
	case meanDelayMinutes > 0:
		return "minor delays"
	default:
		return "normal operations"
	}
}

// cancellationReason maps a cancellation rate (0..1) to a cause label.
// Same contract as delayReason: monotonic, total, deterministic.
func cancellationReason(rate float64) string {
	switch {
	case rate > 0.05:
		return "severe weather"
	case rate > 0.03:
		return "crew availability"
	case rate > 0.015:
		return "mechanical issues"
	case rate > 0:
		return "isolated disruptions"
	default:
		return "normal operations"
	}
}
