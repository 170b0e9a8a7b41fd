package types

import "strings"

// Flattened JIRA issue columns, as produced by the extractor.
const (
	FieldKey                  = "key"
	FieldProjectKey           = "fields.project.key"
	FieldCreatorName          = "fields.creator.displayName"
	FieldIssueType            = "fields.issuetype.name"
	FieldPriority             = "fields.priority.name"
	FieldCreated              = "fields.created"
	FieldUpdated              = "fields.updated"
	FieldResolutionDate       = "fields.resolutiondate"
	FieldTimeSpent            = "fields.timespent"
	FieldTimeOriginalEstimate = "fields.timeoriginalestimate"
)

// Row is one flattened issue. A missing key and an empty value both mean null.
type Row map[string]string

// Get returns the trimmed value for column and whether it is non-null.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// IssueBatch is one tabular slice of issues, typically one project's export.
type IssueBatch struct {
	Source  string   `json:"source"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows in the batch.
func (b IssueBatch) Len() int { return len(b.Rows) }
