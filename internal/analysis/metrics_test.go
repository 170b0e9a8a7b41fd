package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeSplit(t *testing.T) {
	issues := append(bugSet("A", "Low", "High"), subtasks("A", 3, 1800)...)
	issues = append(issues, IssueRecord{IssueType: IssueTypeBug})

	bug, sub := TimeSplit(issues)
	assert.Equal(t, 2.0, bug)
	assert.Equal(t, 1.5, sub)
}

func TestBugCriticality(t *testing.T) {
	tests := []struct {
		name       string
		priorities []string
		normal     int
		critical   int
		blocker    int
	}{
		{"normal bucket", []string{"Lowest", "Low", "Medium"}, 3, 0, 0},
		{"critical bucket", []string{"High", "High"}, 0, 2, 0},
		{"blocker bucket", []string{"Highest", "Must Have"}, 0, 0, 2},
		{"unknown priorities are not counted", []string{"Trivial", "", "high", "Critical"}, 0, 0, 0},
		{"mixed", []string{"Low", "High", "Highest", "Unknown"}, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normal, critical, blocker := BugCriticality(bugSet("A", tt.priorities...))
			assert.Equal(t, tt.normal, normal)
			assert.Equal(t, tt.critical, critical)
			assert.Equal(t, tt.blocker, blocker)
		})
	}

	t.Run("sub-tasks are ignored", func(t *testing.T) {
		sub := issue("A", IssueTypeSubTask, "High", 1, 1, 1)
		normal, critical, blocker := BugCriticality([]IssueRecord{sub})
		assert.Zero(t, normal+critical+blocker)
	})
}

func TestAverageCompletionHours(t *testing.T) {
	valid := issue("A", IssueTypeBug, "Low", 0, 0, 2)
	longer := issue("A", IssueTypeBug, "Low", 0, 0, 5)

	negative := issue("A", IssueTypeBug, "Low", 0, 0, 0)
	negative.ResolvedAt = At(baseTime.Add(-time.Hour))

	unresolved := issue("A", IssueTypeBug, "Low", 0, 0, 0)
	unresolved.ResolvedAt = Timestamp{}

	instant := issue("A", IssueTypeBug, "Low", 0, 0, 0)

	tests := []struct {
		name     string
		issues   []IssueRecord
		expected float64
	}{
		{"mean of valid durations", []IssueRecord{valid, longer}, 3.5},
		{"negative durations dropped", []IssueRecord{valid, negative}, 2},
		{"unparseable dates dropped", []IssueRecord{unresolved, longer}, 5},
		{"zero duration kept", []IssueRecord{instant, valid}, 1},
		{"nothing valid yields zero", []IssueRecord{negative, unresolved}, 0},
		{"empty yields zero", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AverageCompletionHours(tt.issues))
		})
	}
}

func TestDaysLogged8Hours(t *testing.T) {
	assert.Equal(t, 0.63, DaysLogged8Hours(bugSet("A", "Low", "Low", "Low", "Low", "Low")))
	assert.Equal(t, 0.0, DaysLogged8Hours(nil))
}

func TestEstimationAccuracy(t *testing.T) {
	noSpent := issue("A", IssueTypeBug, "Low", 0, 3600, 1)
	noSpent.TimeSpentSeconds = OptionalFloat{}
	noEstimate := issue("A", IssueTypeBug, "Low", 3600, 0, 1)
	noEstimate.TimeEstimateSeconds = OptionalFloat{}

	tests := []struct {
		name     string
		issues   []IssueRecord
		expected float64
	}{
		{"exact estimates", bugSet("A", "Low", "Low"), 100},
		{"over and under", []IssueRecord{issue("A", IssueTypeBug, "", 7200, 3600, 1), issue("A", IssueTypeBug, "", 1800, 3600, 1)}, 125},
		{"zero estimate only yields zero", []IssueRecord{issue("A", IssueTypeBug, "", 3600, 0, 1)}, 0},
		{"zero over zero is excluded", []IssueRecord{issue("A", IssueTypeBug, "", 0, 0, 1), issue("A", IssueTypeBug, "", 1800, 3600, 1)}, 50},
		{"missing values are excluded", []IssueRecord{noSpent, noEstimate, issue("A", IssueTypeBug, "", 3600, 3600, 1)}, 100},
		{"rounded to two decimals", []IssueRecord{issue("A", IssueTypeBug, "", 1000, 3000, 1)}, 33.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimationAccuracy(tt.issues)
			assert.Equal(t, tt.expected, got)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestProjectVsBench(t *testing.T) {
	project, bench := ProjectVsBench(bugSet("A", "Low", "Low", "Low", "Low", "Low"))
	assert.Equal(t, 5.0, project)
	assert.Equal(t, 1051.0, bench)

	overloaded := subtasks("A", 2, 600*3600)
	project, bench = ProjectVsBench(overloaded)
	assert.Equal(t, 1200.0, project)
	assert.Equal(t, 0.0, bench, "bench time never goes negative")
}
