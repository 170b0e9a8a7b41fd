package analysis

import "math"

const (
	secondsPerHour = 3600.0
	hoursPerDay    = 8.0

	// Six months of 22 working days.
	benchmarkWorkdays = 132.0
	capacityHours     = 6 * 22 * hoursPerDay

	// Completion times at or above this many hours earn nothing.
	completionCapHours = 480.0
)

// round2 rounds half away from zero to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// mean returns the arithmetic mean of xs and false when xs is empty.
func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	s := 0.0
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs)), true
}
