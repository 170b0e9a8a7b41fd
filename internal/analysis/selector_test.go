package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelector_Qualifies(t *testing.T) {
	selector := NewSelector(DefaultEligibility())

	noTime := func(in []IssueRecord) []IssueRecord {
		for i := range in {
			in[i].TimeSpentSeconds = OptionalFloat{}
		}
		return in
	}

	tests := []struct {
		name     string
		group    []IssueRecord
		expected bool
	}{
		{
			name:     "five bugs with logged time",
			group:    bugSet("Alice", "Low", "Low", "Low", "Low", "Low"),
			expected: true,
		},
		{
			name:     "four issues is below threshold",
			group:    bugSet("Alice", "Low", "Low", "Low", "Low"),
			expected: false,
		},
		{
			name:     "no logged time",
			group:    noTime(subtasks("Alice", 6, 3600)),
			expected: false,
		},
		{
			name:     "zero logged time everywhere",
			group:    subtasks("Alice", 6, 0),
			expected: false,
		},
		{
			name:     "mixed subtasks and bugs",
			group:    append(subtasks("Alice", 3, 0), bugSet("Alice", "High", "Low")...),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, selector.Qualifies(tt.group))
		})
	}
}

func TestSelector_Select(t *testing.T) {
	issues := append(subtasks("Zed", 5, 3600), bugSet("Amy", "Low", "Low", "Low", "Low", "Low")...)
	issues = append(issues, subtasks("Bob", 2, 3600)...)
	issues = append(issues, IssueRecord{CreatorName: "Amy", IssueType: "Story", TimeSpentSeconds: Float(3600)})
	issues = append(issues, IssueRecord{IssueType: IssueTypeBug, TimeSpentSeconds: Float(3600)})

	developers, groups := NewSelector(DefaultEligibility()).Select(issues)

	assert.Equal(t, []string{"Amy", "Zed"}, developers)
	assert.Len(t, groups["Amy"], 5, "stories are not counted")
	assert.NotContains(t, groups, "")
}

func TestSelector_CustomThreshold(t *testing.T) {
	issues := subtasks("Alice", 2, 3600)

	developers, _ := NewSelector(Eligibility{MinIssueCount: 2}).Select(issues)
	assert.Equal(t, []string{"Alice"}, developers)

	developers, _ = NewSelector(Eligibility{}).Select(issues)
	assert.Empty(t, developers, "zero threshold falls back to the default")
}
