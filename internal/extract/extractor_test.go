package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/storage"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

type fakeSource struct {
	projects   []map[string]any
	projectErr error
	issues     map[string][]map[string]any
	failing    map[string]bool

	mu   sync.Mutex
	jqls []string
}

func (f *fakeSource) FetchProjects(context.Context) ([]map[string]any, error) {
	return f.projects, f.projectErr
}

func (f *fakeSource) SearchIssues(_ context.Context, jql string, _ []string) ([]map[string]any, error) {
	f.mu.Lock()
	f.jqls = append(f.jqls, jql)
	f.mu.Unlock()

	for key, issues := range f.issues {
		if strings.HasPrefix(jql, BuildJQL(key, time.Time{})) {
			if f.failing[key] {
				return nil, errors.New("search failed")
			}
			return issues, nil
		}
	}
	return nil, nil
}

func issue(key, creator string) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"creator":   map[string]any{"displayName": creator},
			"issuetype": map[string]any{"name": "Bug"},
			"timespent": "3600",
		},
	}
}

func newTestExtractor(t *testing.T, source Source, cfg Config) (*Extractor, *storage.CSVStore, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithConfig(monitoring.LogConfig{Level: "error"}, io.Discard)
	store := storage.NewCSVStore(filepath.Join(t.TempDir(), "issues"), logger)
	return NewExtractor(source, store, cfg, logger, metrics), store, metrics
}

func TestBuildJQL(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		since time.Time
		want  string
	}{
		{name: "full history", key: "ALPHA", want: `project = "ALPHA"`},
		{name: "lookback", key: "ALPHA", since: time.Date(2024, 5, 1, 9, 30, 45, 0, time.UTC), want: `project = "ALPHA" AND updated >= "2024-05-01 09:30"`},
		{name: "quoted key", key: `A"B`, want: `project = "A\"B"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildJQL(tt.key, tt.since))
		})
	}
}

func TestExtractor_Run(t *testing.T) {
	source := &fakeSource{
		projects: []map[string]any{
			{"key": "ALPHA", "name": "Alpha"},
			{"key": "BETA", "name": "Beta"},
			{"key": "EMPTY", "name": "Empty"},
		},
		issues: map[string][]map[string]any{
			"ALPHA": {issue("ALPHA-1", "Alice"), issue("ALPHA-2", "Bob")},
			"BETA":  {issue("BETA-1", "Alice")},
		},
	}
	ex, store, metrics := newTestExtractor(t, source, Config{Workers: 2})

	summary, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Projects)
	assert.Equal(t, 2, summary.ProjectsWritten)
	assert.Equal(t, 3, summary.Issues)
	assert.Empty(t, summary.Failed)

	files, err := os.ReadDir(store.IssuesDir())
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.ElementsMatch(t, []string{"ALPHA_issues.csv", "BETA_issues.csv", storage.ProjectsFile}, names)

	batches, err := store.LoadBatches()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	creator, ok := batches[0].Rows[1].Get(types.FieldCreatorName)
	assert.True(t, ok)
	assert.Equal(t, "Bob", creator)

	assert.Equal(t, int64(3), metrics.GetStats()["issues_extracted"])
}

func TestExtractor_LookbackJQL(t *testing.T) {
	source := &fakeSource{
		projects: []map[string]any{{"key": "ALPHA"}},
		issues:   map[string][]map[string]any{"ALPHA": {issue("ALPHA-1", "Alice")}},
	}
	ex, _, _ := newTestExtractor(t, source, Config{Lookback: 24 * time.Hour})
	ex.now = func() time.Time { return time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC) }

	_, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`project = "ALPHA" AND updated >= "2024-05-01 08:00"`}, source.jqls)
}

func TestExtractor_FailedProjectIsSkipped(t *testing.T) {
	source := &fakeSource{
		projects: []map[string]any{{"key": "ALPHA"}, {"key": "BETA"}},
		issues: map[string][]map[string]any{
			"ALPHA": {issue("ALPHA-1", "Alice")},
			"BETA":  {issue("BETA-1", "Bob")},
		},
		failing: map[string]bool{"BETA": true},
	}
	ex, store, _ := newTestExtractor(t, source, Config{})

	summary, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BETA"}, summary.Failed)
	assert.Equal(t, 1, summary.ProjectsWritten)

	batches, err := store.LoadBatches()
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "ALPHA_issues.csv", batches[0].Source)
}

func TestExtractor_KeepsPreviousExportsOnTotalFailure(t *testing.T) {
	good := &fakeSource{
		projects: []map[string]any{{"key": "ALPHA"}},
		issues:   map[string][]map[string]any{"ALPHA": {issue("ALPHA-1", "Alice")}},
	}
	ex, store, _ := newTestExtractor(t, good, Config{})
	_, err := ex.Run(context.Background())
	require.NoError(t, err)

	ex.source = &fakeSource{
		projects: []map[string]any{{"key": "ALPHA"}},
		issues:   map[string][]map[string]any{"ALPHA": nil},
		failing:  map[string]bool{"ALPHA": true},
	}
	_, err = ex.Run(context.Background())
	assert.ErrorIs(t, err, ErrAllProjectsFailed)

	batches, err := store.LoadBatches()
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	leftovers, err := os.ReadDir(filepath.Dir(store.IssuesDir()))
	require.NoError(t, err)
	assert.Len(t, leftovers, 1, "staging directory is removed")
}

func TestExtractor_ProjectListFailure(t *testing.T) {
	ex, _, _ := newTestExtractor(t, &fakeSource{projectErr: errors.New("boom")}, Config{})

	_, err := ex.Run(context.Background())
	assert.ErrorContains(t, err, "failed to list projects")
}
