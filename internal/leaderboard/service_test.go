package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/database"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, keepRuns int) (*Service, *monitoring.Metrics) {
	t.Helper()
	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := monitoring.NewMetrics()
	lc := NewLeaderboardCache(time.Hour, metrics)
	t.Cleanup(lc.Close)

	return NewService(database.NewRepository(db), lc, keepRuns), metrics
}

func testRanking() *analysis.Ranking {
	return &analysis.Ranking{
		State:   analysis.StateRanked,
		Columns: analysis.RankingColumns,
		Developers: []analysis.DeveloperRecord{
			{Name: "Bob", Email: "bob@kiwitech.com", BugTime: 2, SubtaskTime: 10, BugCount: 3, CriticalBugCount: 1, TotalScore: 249.69, Rank: 1},
			{Name: "Alice", Email: "alice@kiwitech.com", BugTime: 5, SubtaskTime: 0, BugCount: 4, CriticalBugCount: 1, BlockerBugCount: 2, TotalScore: 194.11, Rank: 2},
			{Name: "Carol", Email: "carol@kiwitech.com", SubtaskTime: 3, TotalScore: 50, Rank: 3},
		},
	}
}

func saveTestRanking(t *testing.T, s *Service, columns []string) *database.RankingRun {
	t.Helper()
	ranking := testRanking()
	table, err := analysis.Project(ranking, columns, nil)
	require.NoError(t, err)

	run, err := s.SaveRanking(context.Background(), ranking, table, database.TriggerCLI, 120)
	require.NoError(t, err)
	return run
}

func ptr(v float64) *float64 { return &v }

func TestService_NoRanking(t *testing.T) {
	s, _ := newTestService(t, 0)

	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoRanking)

	runs, err := s.Runs(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_LatestIsCached(t *testing.T) {
	s, metrics := newTestService(t, 0)
	run := saveTestRanking(t, s, analysis.DefaultOutputColumns)
	ctx := context.Background()

	first, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, first.RunID)
	assert.Equal(t, analysis.DefaultOutputColumns, first.Columns)
	require.Len(t, first.Rows, 3)
	assert.Equal(t, "Bob", first.Rows[0].Name)
	assert.Equal(t, 2.0, first.Rows[0].Values[analysis.ColumnBugTime])

	second, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(1), stats["cache_misses"])
}

func TestService_SaveInvalidatesCache(t *testing.T) {
	s, _ := newTestService(t, 0)
	ctx := context.Background()

	saveTestRanking(t, s, analysis.DefaultOutputColumns)
	_, err := s.Latest(ctx)
	require.NoError(t, err)

	newer := saveTestRanking(t, s, analysis.DailyOutputColumns)
	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.RunID)
	assert.Equal(t, analysis.DailyOutputColumns, latest.Columns)
}

func TestService_Rankings(t *testing.T) {
	s, _ := newTestService(t, 0)
	saveTestRanking(t, s, analysis.DefaultOutputColumns)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "no filter", filter: Filter{}, want: []string{"Bob", "Alice", "Carol"}},
		{name: "names", filter: Filter{Names: []string{"Carol", "Alice"}}, want: []string{"Alice", "Carol"}},
		{name: "inclusive min", filter: Filter{MinScore: ptr(194.11)}, want: []string{"Bob", "Alice"}},
		{name: "inclusive max", filter: Filter{MaxScore: ptr(194.11)}, want: []string{"Alice", "Carol"}},
		{name: "range and names", filter: Filter{Names: []string{"Bob", "Carol"}, MinScore: ptr(40), MaxScore: ptr(100)}, want: []string{"Carol"}},
		{name: "empty range", filter: Filter{MinScore: ptr(300)}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot, err := s.Rankings(context.Background(), tt.filter)
			require.NoError(t, err)

			names := make([]string, 0, len(snapshot.Rows))
			for _, row := range snapshot.Rows {
				names = append(names, row.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestService_Top(t *testing.T) {
	s, _ := newTestService(t, 0)
	saveTestRanking(t, s, analysis.DefaultOutputColumns)
	ctx := context.Background()

	top, err := s.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "Alice", top[1].Name)

	all, err := s.Top(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_Charts(t *testing.T) {
	t.Run("full columns", func(t *testing.T) {
		s, _ := newTestService(t, 0)
		saveTestRanking(t, s, analysis.DefaultOutputColumns)

		charts, err := s.Charts(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, []ScorePoint{{Name: "Bob", Score: 249.69}, {Name: "Alice", Score: 194.11}}, charts.Top)
		assert.Len(t, charts.BugVsSubtask, 3)
		assert.Equal(t, Criticality{Normal: 7, Critical: 2, Blocker: 2}, charts.Criticality)
	})

	t.Run("missing count columns contribute zero", func(t *testing.T) {
		s, _ := newTestService(t, 0)
		saveTestRanking(t, s, analysis.DailyOutputColumns)

		charts, err := s.Charts(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, charts.Top, 3)
		assert.Equal(t, Criticality{}, charts.Criticality)
	})
}

func TestService_Developer(t *testing.T) {
	s, _ := newTestService(t, 0)
	saveTestRanking(t, s, analysis.DefaultOutputColumns)
	ctx := context.Background()

	row, err := s.Developer(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@kiwitech.com", row.Email)
	assert.Equal(t, 2, row.Rank)

	_, err = s.Developer(ctx, "Mallory")
	assert.ErrorIs(t, err, ErrDeveloperNotFound)

	// warm cache answers from the snapshot
	_, err = s.Latest(ctx)
	require.NoError(t, err)
	cached, err := s.Developer(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, row, cached)

	_, err = s.Developer(ctx, "Mallory")
	assert.ErrorIs(t, err, ErrDeveloperNotFound)
}

func TestService_RunsArePruned(t *testing.T) {
	s, _ := newTestService(t, 2)
	for i := 0; i < 3; i++ {
		saveTestRanking(t, s, analysis.DefaultOutputColumns)
	}

	runs, err := s.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].DeveloperCount)
}

func TestService_SaveRankingRejectsMismatchedTable(t *testing.T) {
	s, _ := newTestService(t, 0)
	table := &analysis.Table{Columns: []string{analysis.ColumnName}}

	_, err := s.SaveRanking(context.Background(), testRanking(), table, database.TriggerAPI, 0)
	assert.Error(t, err)
}
