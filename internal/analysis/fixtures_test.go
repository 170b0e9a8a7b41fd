package analysis

import (
	"fmt"
	"time"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func issue(creator string, typ IssueType, priority string, spent, estimate float64, hours float64) IssueRecord {
	return IssueRecord{
		CreatorName:         creator,
		IssueType:           typ,
		Priority:            priority,
		CreatedAt:           At(baseTime),
		ResolvedAt:          At(baseTime.Add(time.Duration(hours * float64(time.Hour)))),
		TimeSpentSeconds:    Float(spent),
		TimeEstimateSeconds: Float(estimate),
	}
}

// bugSet returns n hour-long bugs estimated at one hour and resolved after 2h.
func bugSet(creator string, priorities ...string) []IssueRecord {
	out := make([]IssueRecord, 0, len(priorities))
	for _, p := range priorities {
		out = append(out, issue(creator, IssueTypeBug, p, 3600, 3600, 2))
	}
	return out
}

func subtasks(creator string, n int, spent float64) []IssueRecord {
	out := make([]IssueRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, issue(creator, IssueTypeSubTask, "", spent, spent, 4))
	}
	return out
}

func manyDevelopers(n int) []IssueRecord {
	var out []IssueRecord
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Dev %03d", i)
		out = append(out, subtasks(name, 5+i%7, float64(1800*(1+i%5)))...)
		out = append(out, bugSet(name, "Low", "High")...)
	}
	return out
}
