package analysis

import "math"

// Score combines a developer's metrics into a single non-negative total.
func Score(d DeveloperRecord) float64 {
	// reward sub-task work relative to bug work
	balance := d.SubtaskTime / (d.BugTime + 1) * 10

	// weighted bug penalty
	penalty := float64(d.BugCount*1 + d.CriticalBugCount*2 + d.BlockerBugCount*3)

	speed := (completionCapHours - math.Min(d.AvgCompletionTime, completionCapHours)) / 48 * 10

	utilization := d.DaysLogged8Hours / benchmarkWorkdays * 100

	accuracy := (2 - math.Min(math.Abs(1-d.EstimationAccuracy/100), 1)) * 50

	engagement := d.ProjectTime / (d.BenchTime + 1) * 10

	score := balance - penalty + speed + utilization + accuracy + engagement
	return round2(math.Max(0, score))
}
