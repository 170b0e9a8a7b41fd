package ingest

import (
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

// ColumnMap names the source columns each IssueRecord field is read from.
type ColumnMap struct {
	Creator      string `yaml:"creator"`
	IssueType    string `yaml:"issue_type"`
	Priority     string `yaml:"priority"`
	Created      string `yaml:"created"`
	Resolved     string `yaml:"resolved"`
	TimeSpent    string `yaml:"time_spent"`
	TimeEstimate string `yaml:"time_estimate"`
}

// DefaultColumnMap reads the flattened JIRA export columns.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		Creator:      types.FieldCreatorName,
		IssueType:    types.FieldIssueType,
		Priority:     types.FieldPriority,
		Created:      types.FieldCreated,
		Resolved:     types.FieldResolutionDate,
		TimeSpent:    types.FieldTimeSpent,
		TimeEstimate: types.FieldTimeOriginalEstimate,
	}
}

// MissingColumns lists the mapped columns no batch in c carried. Unmapped
// fields are ignored.
func (c *Collection) MissingColumns(m ColumnMap) []string {
	var missing []string
	for _, col := range []string{m.Creator, m.IssueType, m.Priority, m.Created, m.Resolved, m.TimeSpent, m.TimeEstimate} {
		if col != "" && !c.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Record converts one row. Unparseable cells become invalid values.
func (m ColumnMap) Record(row types.Row) analysis.IssueRecord {
	creator, _ := row.Get(m.Creator)
	issueType, _ := row.Get(m.IssueType)
	priority, _ := row.Get(m.Priority)
	created, _ := row.Get(m.Created)
	resolved, _ := row.Get(m.Resolved)
	spent, _ := row.Get(m.TimeSpent)
	estimate, _ := row.Get(m.TimeEstimate)

	return analysis.IssueRecord{
		CreatorName:         creator,
		IssueType:           analysis.IssueType(issueType),
		Priority:            priority,
		CreatedAt:           ParseTimestamp(created),
		ResolvedAt:          ParseTimestamp(resolved),
		TimeSpentSeconds:    ParseSeconds(spent),
		TimeEstimateSeconds: ParseSeconds(estimate),
	}
}

// Records converts every row in the collection.
func (c *Collection) Records(m ColumnMap) []analysis.IssueRecord {
	records := make([]analysis.IssueRecord, 0, len(c.Rows))
	for _, row := range c.Rows {
		records = append(records, m.Record(row))
	}
	return records
}
