package analysis

import "time"

// IssueType identifies the JIRA issue types the engine cares about.
type IssueType string

const (
	IssueTypeSubTask IssueType = "Sub-task"
	IssueTypeBug     IssueType = "Bug"
)

// Relevant reports whether the issue type takes part in ranking.
func (t IssueType) Relevant() bool {
	return t == IssueTypeSubTask || t == IssueTypeBug
}

// OptionalFloat is a numeric cell that may be missing or unparseable.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Float returns a valid OptionalFloat.
func Float(v float64) OptionalFloat { return OptionalFloat{Value: v, Valid: true} }

// OrZero returns the value, or 0 when the cell is invalid.
func (f OptionalFloat) OrZero() float64 {
	if !f.Valid {
		return 0
	}
	return f.Value
}

// Timestamp is a parsed-or-invalid instant, normalized to UTC when valid.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// At returns a valid Timestamp in UTC.
func At(t time.Time) Timestamp { return Timestamp{Time: t.UTC(), Valid: true} }

// IssueRecord is one issue as seen by the engine. Absent text fields are empty strings.
type IssueRecord struct {
	CreatorName         string
	IssueType           IssueType
	Priority            string
	CreatedAt           Timestamp
	ResolvedAt          Timestamp
	TimeSpentSeconds    OptionalFloat
	TimeEstimateSeconds OptionalFloat
}

// DeveloperRecord carries the computed metrics for one ranked developer.
type DeveloperRecord struct {
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	BugTime            float64 `json:"bug_time"`
	SubtaskTime        float64 `json:"subtask_time"`
	BugCount           int     `json:"bug_count"`
	CriticalBugCount   int     `json:"critical_bug_count"`
	BlockerBugCount    int     `json:"blocker_bug_count"`
	AvgCompletionTime  float64 `json:"avg_completion_time"`
	DaysLogged8Hours   float64 `json:"days_logged_8_hours"`
	EstimationAccuracy float64 `json:"estimation_accuracy"`
	ProjectTime        float64 `json:"project_time"`
	BenchTime          float64 `json:"bench_time"`
	TotalScore         float64 `json:"total_score"`
	Rank               int     `json:"rank"`
}

// Ranked table column names.
const (
	ColumnName               = "Name"
	ColumnEmail              = "Email"
	ColumnBugTime            = "BugTime"
	ColumnSubtaskTime        = "SubtaskTime"
	ColumnBugCount           = "BugCount"
	ColumnCriticalBugCount   = "CriticalBugCount"
	ColumnBlockerBugCount    = "BlockerBugCount"
	ColumnAvgCompletionTime  = "AvgCompletionTime"
	ColumnDaysLogged8Hours   = "DaysLogged8Hours"
	ColumnEstimationAccuracy = "EstimationAccuracy"
	ColumnProjectTime        = "ProjectTime"
	ColumnBenchTime          = "BenchTime"
	ColumnTotalScore         = "TotalScore"
	ColumnRank               = "Rank"
)

// RankingColumns is the fixed schema of a ranked table, in order.
var RankingColumns = []string{
	ColumnName,
	ColumnEmail,
	ColumnBugTime,
	ColumnSubtaskTime,
	ColumnBugCount,
	ColumnCriticalBugCount,
	ColumnBlockerBugCount,
	ColumnAvgCompletionTime,
	ColumnDaysLogged8Hours,
	ColumnEstimationAccuracy,
	ColumnProjectTime,
	ColumnBenchTime,
	ColumnTotalScore,
	ColumnRank,
}

// Value returns the record's value for a ranked table column.
func (d DeveloperRecord) Value(column string) (any, bool) {
	switch column {
	case ColumnName:
		return d.Name, true
	case ColumnEmail:
		return d.Email, true
	case ColumnBugTime:
		return d.BugTime, true
	case ColumnSubtaskTime:
		return d.SubtaskTime, true
	case ColumnBugCount:
		return d.BugCount, true
	case ColumnCriticalBugCount:
		return d.CriticalBugCount, true
	case ColumnBlockerBugCount:
		return d.BlockerBugCount, true
	case ColumnAvgCompletionTime:
		return d.AvgCompletionTime, true
	case ColumnDaysLogged8Hours:
		return d.DaysLogged8Hours, true
	case ColumnEstimationAccuracy:
		return d.EstimationAccuracy, true
	case ColumnProjectTime:
		return d.ProjectTime, true
	case ColumnBenchTime:
		return d.BenchTime, true
	case ColumnTotalScore:
		return d.TotalScore, true
	case ColumnRank:
		return d.Rank, true
	}
	return nil, false
}

// RankingState tracks how far a Ranking has progressed.
type RankingState int

const (
	StateEmpty RankingState = iota
	StatePopulated
	StateScored
	StateSorted
	StateRanked
)

func (s RankingState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateScored:
		return "scored"
	case StateSorted:
		return "sorted"
	case StateRanked:
		return "ranked"
	}
	return "unknown"
}

// Ranking is the ordered output of the engine.
type Ranking struct {
	State      RankingState      `json:"-"`
	Columns    []string          `json:"columns"`
	Developers []DeveloperRecord `json:"developers"`
}

// Len returns the number of ranked developers.
func (r *Ranking) Len() int { return len(r.Developers) }

// Table is a projected, column-ordered view of a ranking.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}
