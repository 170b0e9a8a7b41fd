package analysis

import "math"

// Priority buckets used when counting bugs. Any other priority is not counted.
var (
	normalPriorities  = map[string]bool{"Lowest": true, "Low": true, "Medium": true}
	criticalPriority  = "High"
	blockerPriorities = map[string]bool{"Highest": true, "Must Have": true}
)

// TimeSplit returns hours logged on bugs and on sub-tasks. Missing time counts as zero.
func TimeSplit(issues []IssueRecord) (bugHours, subtaskHours float64) {
	var bugSeconds, subtaskSeconds float64
	for _, issue := range issues {
		switch issue.IssueType {
		case IssueTypeBug:
			bugSeconds += issue.TimeSpentSeconds.OrZero()
		case IssueTypeSubTask:
			subtaskSeconds += issue.TimeSpentSeconds.OrZero()
		}
	}
	return round2(bugSeconds / secondsPerHour), round2(subtaskSeconds / secondsPerHour)
}

// BugCriticality counts bugs per priority bucket.
func BugCriticality(issues []IssueRecord) (normal, critical, blocker int) {
	for _, issue := range issues {
		if issue.IssueType != IssueTypeBug {
			continue
		}
		switch {
		case normalPriorities[issue.Priority]:
			normal++
		case issue.Priority == criticalPriority:
			critical++
		case blockerPriorities[issue.Priority]:
			blocker++
		}
	}
	return normal, critical, blocker
}

// AverageCompletionHours is the mean creation-to-resolution time in hours.
// Issues with an unparseable timestamp or a negative duration are skipped.
func AverageCompletionHours(issues []IssueRecord) float64 {
	durations := make([]float64, 0, len(issues))
	for _, issue := range issues {
		if !issue.CreatedAt.Valid || !issue.ResolvedAt.Valid {
			continue
		}
		hours := issue.ResolvedAt.Time.Sub(issue.CreatedAt.Time).Hours()
		if hours < 0 {
			continue
		}
		durations = append(durations, hours)
	}

	avg, ok := mean(durations)
	if !ok {
		return 0
	}
	return round2(avg)
}

func totalHours(issues []IssueRecord) float64 {
	seconds := 0.0
	for _, issue := range issues {
		seconds += issue.TimeSpentSeconds.OrZero()
	}
	return seconds / secondsPerHour
}

// DaysLogged8Hours expresses total logged time in 8-hour days.
func DaysLogged8Hours(issues []IssueRecord) float64 {
	return round2(totalHours(issues) / hoursPerDay)
}

// EstimationAccuracy is the mean of spent/estimate as a percentage.
// Ratios that are undefined or infinite are skipped.
func EstimationAccuracy(issues []IssueRecord) float64 {
	ratios := make([]float64, 0, len(issues))
	for _, issue := range issues {
		spent, estimate := issue.TimeSpentSeconds, issue.TimeEstimateSeconds
		if !spent.Valid || !estimate.Valid || estimate.Value == 0 {
			continue
		}
		ratio := spent.Value / estimate.Value * 100
		if !finite(ratio) {
			continue
		}
		ratios = append(ratios, ratio)
	}

	avg, ok := mean(ratios)
	if !ok {
		return 0
	}
	return round2(avg)
}

// ProjectVsBench returns logged project hours and the remaining bench hours
// against six months of capacity.
func ProjectVsBench(issues []IssueRecord) (projectHours, benchHours float64) {
	project := totalHours(issues)
	bench := math.Max(0, capacityHours-project)
	return round2(project), round2(bench)
}
