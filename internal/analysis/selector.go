package analysis

import "sort"

// DefaultMinIssueCount is the number of relevant issues a creator needs to be ranked.
const DefaultMinIssueCount = 5

// Eligibility holds the developer qualification thresholds.
type Eligibility struct {
	MinIssueCount int `json:"min_issue_count" yaml:"min_issue_count"`
}

// DefaultEligibility returns the stock thresholds.
func DefaultEligibility() Eligibility {
	return Eligibility{MinIssueCount: DefaultMinIssueCount}
}

// Selector decides which issue creators count as developers.
type Selector struct {
	rules Eligibility
}

// NewSelector creates a selector. Non-positive thresholds fall back to the default.
func NewSelector(rules Eligibility) *Selector {
	if rules.MinIssueCount <= 0 {
		rules.MinIssueCount = DefaultMinIssueCount
	}
	return &Selector{rules: rules}
}

// GroupByCreator partitions the Sub-task and Bug issues by creator name.
// Issues without a creator are dropped.
func GroupByCreator(issues []IssueRecord) map[string][]IssueRecord {
	groups := make(map[string][]IssueRecord)
	for _, issue := range issues {
		if issue.CreatorName == "" || !issue.IssueType.Relevant() {
			continue
		}
		groups[issue.CreatorName] = append(groups[issue.CreatorName], issue)
	}
	return groups
}

// Qualifies reports whether one creator's relevant issues make them a developer.
func (s *Selector) Qualifies(group []IssueRecord) bool {
	if len(group) < s.rules.MinIssueCount {
		return false
	}

	hasSubtask, hasBug, hasLoggedTime := false, false, false
	for _, issue := range group {
		switch issue.IssueType {
		case IssueTypeSubTask:
			hasSubtask = true
		case IssueTypeBug:
			hasBug = true
		}
		if issue.TimeSpentSeconds.Valid && issue.TimeSpentSeconds.Value > 0 {
			hasLoggedTime = true
		}
	}

	return (hasSubtask || hasBug) && hasLoggedTime
}

// Select returns the qualifying developers in lexical order together with their issues.
func (s *Selector) Select(issues []IssueRecord) ([]string, map[string][]IssueRecord) {
	groups := GroupByCreator(issues)

	developers := make([]string, 0, len(groups))
	for name, group := range groups {
		if s.Qualifies(group) {
			developers = append(developers, name)
		}
	}
	sort.Strings(developers)

	return developers, groups
}
