package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/database"
	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/extract"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/leaderboard"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/storage"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

const jiraLayout = "2006-01-02T15:04:05.000-0700"

var created = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func exportRow(key, creator, issueType, priority string, resolvedAfter time.Duration) types.Row {
	return types.Row{
		types.FieldKey:                  key,
		types.FieldCreatorName:          creator,
		types.FieldIssueType:            issueType,
		types.FieldPriority:             priority,
		types.FieldCreated:              created.Format(jiraLayout),
		types.FieldResolutionDate:       created.Add(resolvedAfter).Format(jiraLayout),
		types.FieldTimeSpent:            "3600",
		types.FieldTimeOriginalEstimate: "3600",
	}
}

// writeExports stores one bug-heavy and one subtask-heavy developer, plus a
// creator with too few issues to qualify.
func writeExports(t *testing.T, store *storage.CSVStore) {
	t.Helper()
	var alpha, beta []types.Row
	for i, p := range []string{"Medium", "Medium", "Medium", "Medium", "High"} {
		alpha = append(alpha, exportRow("ALPHA-"+string(rune('1'+i)), "Alice Smith", "Bug", p, 2*time.Hour))
	}
	for i := 0; i < 5; i++ {
		beta = append(beta, exportRow("BETA-"+string(rune('1'+i)), "Bob Jones", "Sub-task", "Medium", 4*time.Hour))
	}
	beta = append(beta, exportRow("BETA-9", "Carol White", "Bug", "Highest", time.Hour))

	dir, err := store.TempDir()
	require.NoError(t, err)
	require.NoError(t, store.WriteBatch(dir, storage.IssuesFileName("ALPHA"), types.IssueBatch{Rows: alpha}))
	require.NoError(t, store.WriteBatch(dir, storage.IssuesFileName("BETA"), types.IssueBatch{Rows: beta}))
	require.NoError(t, store.ReplaceIssuesDir(dir))
}

type fakeExtractor struct {
	calls   int
	err     error
	summary *extract.Summary
}

func (f *fakeExtractor) Run(context.Context) (*extract.Summary, error) {
	f.calls++
	return f.summary, f.err
}

type fixture struct {
	runner      *Runner
	store       *storage.CSVStore
	leaderboard *leaderboard.Service
	metrics     *monitoring.Metrics
	extractor   *fakeExtractor
	rankingFile string
}

func newFixture(t *testing.T, columns []string) *fixture {
	t.Helper()
	root := t.TempDir()

	db, err := database.NewDB(root)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithConfig(monitoring.LogConfig{Level: "error"}, io.Discard)
	lc := leaderboard.NewLeaderboardCache(time.Hour, metrics)
	t.Cleanup(lc.Close)

	f := &fixture{
		store:       storage.NewCSVStore(filepath.Join(root, "issues"), logger),
		leaderboard: leaderboard.NewService(database.NewRepository(db), lc, 0),
		metrics:     metrics,
		extractor:   &fakeExtractor{summary: &extract.Summary{Projects: 2, ProjectsWritten: 2, Issues: 11}},
		rankingFile: filepath.Join(root, "out", storage.RankingFileName),
	}
	reporter := monitoring.NewReporter(logger, metrics)
	f.runner = NewRunner(Options{
		Store:         f.store,
		Engine:        analysis.NewEngine(analysis.Config{Reporter: reporter, LogScoringFailures: true}),
		Reporter:      reporter,
		Leaderboard:   f.leaderboard,
		Updater:       f.extractor,
		OutputColumns: columns,
		RankingFile:   f.rankingFile,
		Logger:        logger,
		Metrics:       metrics,
	})
	return f
}

func TestRunner_Rank(t *testing.T) {
	f := newFixture(t, nil)
	writeExports(t, f.store)
	ctx := context.Background()

	result, err := f.runner.Rank(ctx, TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, 11, result.Issues)
	assert.Equal(t, 2, result.Developers)
	assert.Equal(t, 249.69, result.TopScore)
	assert.Equal(t, analysis.DefaultOutputColumns, result.Columns)
	assert.Zero(t, result.Fallbacks)
	assert.Zero(t, result.Warnings)

	table, err := storage.ReadTable(f.rankingFile)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Bob Jones", table.Rows[0][0])
	assert.Equal(t, "alice.smith@kiwitech.com", table.Rows[1][1])

	snapshot, err := f.leaderboard.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, snapshot.RunID)
	assert.Equal(t, 194.11, snapshot.Rows[1].TotalScore)

	stats := f.metrics.GetStats()
	assert.Equal(t, int64(1), stats["ranking_runs"])
	assert.Equal(t, int64(2), stats["developers_ranked"])
}

func TestRunner_RankWithoutExports(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.runner.Rank(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Zero(t, result.Developers)
	assert.Zero(t, result.TopScore)

	table, err := storage.ReadTable(f.rankingFile)
	require.NoError(t, err)
	assert.Equal(t, analysis.DefaultOutputColumns, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestRunner_RankNoOutputColumns(t *testing.T) {
	f := newFixture(t, []string{"Velocity"})
	writeExports(t, f.store)

	_, err := f.runner.Rank(context.Background(), TriggerCLI)
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrNoOutputColumns)
	assert.Equal(t, apperrors.CategoryConfiguration, apperrors.ToAppError(err).Category)
	assert.Equal(t, int64(1), f.metrics.GetStats()["ranking_failures"])
}

func TestRunner_Update(t *testing.T) {
	f := newFixture(t, nil)
	writeExports(t, f.store)

	result, err := f.runner.Update(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 1, f.extractor.calls)
	assert.Equal(t, analysis.DailyOutputColumns, result.Columns)
	require.NotNil(t, result.Extract)
	assert.Equal(t, 11, result.Extract.Issues)

	runs, err := f.leaderboard.Runs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.TriggerSchedule, runs[0].Trigger)
}

func TestRunner_UpdateSkipsRankingOnExtractFailure(t *testing.T) {
	f := newFixture(t, nil)
	writeExports(t, f.store)
	f.extractor.err = errors.New("jira down")

	_, err := f.runner.Update(context.Background(), TriggerSchedule)
	assert.ErrorContains(t, err, "ranking skipped")

	runs, err := f.leaderboard.Runs(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunner_RejectsOverlappingRuns(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()

	_, err := f.runner.Rank(context.Background(), TriggerAPI)
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = f.runner.Update(context.Background(), TriggerSchedule)
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRunner_CountsScoringFallbacks(t *testing.T) {
	f := newFixture(t, nil)
	writeExports(t, f.store)

	logger := monitoring.NewLoggerWithConfig(monitoring.LogConfig{Level: "error"}, io.Discard)
	reporter := monitoring.NewReporter(logger, f.metrics)
	f.runner.opts.Reporter = reporter
	f.runner.opts.Engine = analysis.NewEngine(analysis.Config{
		Reporter:           reporter,
		LogScoringFailures: true,
		Scorer:             func(analysis.DeveloperRecord) float64 { panic("boom") },
	})

	result, err := f.runner.Rank(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fallbacks)
	assert.Zero(t, result.TopScore)
	assert.Equal(t, int64(2), f.metrics.GetStats()["scoring_fallbacks"])
}

func TestRunner_CountsMissingColumnWarnings(t *testing.T) {
	f := newFixture(t, []string{analysis.ColumnName, analysis.ColumnTotalScore, "Velocity"})
	writeExports(t, f.store)

	result, err := f.runner.Rank(context.Background(), TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Warnings)
	assert.Equal(t, []string{analysis.ColumnName, analysis.ColumnTotalScore}, result.Columns)
}
