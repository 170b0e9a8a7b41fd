package analysis

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoOutputColumns is returned when none of the requested columns exist in the ranking.
var ErrNoOutputColumns = errors.New("none of the requested output columns are present")

// DefaultOutputColumns is the published ranking layout.
var DefaultOutputColumns = []string{
	ColumnName,
	ColumnEmail,
	ColumnBugTime,
	ColumnSubtaskTime,
	ColumnBugCount,
	ColumnCriticalBugCount,
	ColumnBlockerBugCount,
	ColumnAvgCompletionTime,
	ColumnDaysLogged8Hours,
	ColumnProjectTime,
	ColumnBenchTime,
	ColumnTotalScore,
	ColumnRank,
}

// DailyOutputColumns is the reduced layout published by the daily update.
var DailyOutputColumns = []string{
	ColumnName,
	ColumnEmail,
	ColumnBugTime,
	ColumnSubtaskTime,
	ColumnAvgCompletionTime,
	ColumnDaysLogged8Hours,
	ColumnProjectTime,
	ColumnBenchTime,
	ColumnTotalScore,
	ColumnRank,
}

// Project narrows a ranking to the desired columns, keeping their order.
// Missing columns are reported and skipped; if none remain the projection fails.
func Project(r *Ranking, desired []string, reporter Reporter) (*Table, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}

	columns := make([]string, 0, len(desired))
	var missing []string
	for _, col := range desired {
		switch {
		case slices.Contains(columns, col):
			continue
		case slices.Contains(r.Columns, col):
			columns = append(columns, col)
		default:
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		reporter.Warn("requested output columns not present", "missing", missing)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: requested %v", ErrNoOutputColumns, desired)
	}

	table := &Table{Columns: columns, Rows: make([][]any, 0, len(r.Developers))}
	for _, d := range r.Developers {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i], _ = d.Value(col)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
