package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	ranking, err := NewEngine(Config{}).Rank(context.Background(), subtasks("Alice", 5, 3600))
	require.NoError(t, err)

	t.Run("keeps requested order", func(t *testing.T) {
		table, err := Project(ranking, []string{ColumnRank, ColumnName, ColumnTotalScore}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{ColumnRank, ColumnName, ColumnTotalScore}, table.Columns)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, []any{1, "Alice", ranking.Developers[0].TotalScore}, table.Rows[0])
	})

	t.Run("default layout drops estimation accuracy", func(t *testing.T) {
		table, err := Project(ranking, DefaultOutputColumns, nil)
		require.NoError(t, err)
		assert.NotContains(t, table.Columns, ColumnEstimationAccuracy)
		assert.Len(t, table.Rows[0], len(DefaultOutputColumns))
	})

	t.Run("daily layout drops bug counts", func(t *testing.T) {
		table, err := Project(ranking, DailyOutputColumns, nil)
		require.NoError(t, err)
		assert.NotContains(t, table.Columns, ColumnBugCount)
		assert.NotContains(t, table.Columns, ColumnCriticalBugCount)
		assert.NotContains(t, table.Columns, ColumnBlockerBugCount)
	})

	t.Run("missing columns are reported and skipped", func(t *testing.T) {
		reporter := &RecordingReporter{}
		table, err := Project(ranking, []string{ColumnName, "Velocity", ColumnName}, reporter)
		require.NoError(t, err)
		assert.Equal(t, []string{ColumnName}, table.Columns)

		diags := reporter.Diagnostics()
		require.Len(t, diags, 1)
		assert.Equal(t, "warn", diags[0].Level)
		assert.Equal(t, []any{"missing", []string{"Velocity"}}, diags[0].Args)
	})

	t.Run("no usable columns fails", func(t *testing.T) {
		_, err := Project(ranking, []string{"Velocity", "Happiness"}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoOutputColumns))

		_, err = Project(ranking, nil, nil)
		assert.True(t, errors.Is(err, ErrNoOutputColumns))
	})
}
