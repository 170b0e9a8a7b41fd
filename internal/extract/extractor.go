package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/adapters"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/storage"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

// DefaultWorkers is how many projects are searched concurrently
const DefaultWorkers = 5

// jqlTimeLayout is the minute-precision format JQL accepts for date comparisons
const jqlTimeLayout = "2006-01-02 15:04"

// ErrAllProjectsFailed is returned when every project search failed; the
// previous exports are left in place.
var ErrAllProjectsFailed = errors.New("issue search failed for every project")

// Source is the subset of the JIRA adapter the extractor needs
type Source interface {
	FetchProjects(ctx context.Context) ([]map[string]any, error)
	SearchIssues(ctx context.Context, jql string, fields []string) ([]map[string]any, error)
}

// Config tunes an extraction run
type Config struct {
	Workers int
	// Lookback limits the search to issues updated within the window; zero fetches everything
	Lookback time.Duration
	Fields   []string
}

// Summary reports what a run fetched
type Summary struct {
	Projects        int           `json:"projects"`
	ProjectsWritten int           `json:"projects_written"`
	Issues          int           `json:"issues"`
	Failed          []string      `json:"failed,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Extractor pulls every project's issues and stores them as CSV exports
type Extractor struct {
	source  Source
	store   *storage.CSVStore
	config  Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewExtractor creates an extractor writing into store
func NewExtractor(source Source, store *storage.CSVStore, config Config, logger *monitoring.Logger, metrics *monitoring.Metrics) *Extractor {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = monitoring.NewLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Extractor{
		source:  source,
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// BuildJQL selects a project's issues, optionally only those updated since a time
func BuildJQL(projectKey string, since time.Time) string {
	jql := fmt.Sprintf(`project = "%s"`, strings.ReplaceAll(projectKey, `"`, `\"`))
	if !since.IsZero() {
		jql += fmt.Sprintf(` AND updated >= "%s"`, since.Format(jqlTimeLayout))
	}
	return jql
}

type projectResult struct {
	key    string
	issues int
	err    error
}

// Run fetches all projects and their issues. Exports are staged in a
// temporary directory and swapped in only when the run succeeds.
func (e *Extractor) Run(ctx context.Context) (*Summary, error) {
	start := e.now()

	projects, err := e.source.FetchProjects(ctx)
	if err != nil {
		e.metrics.RecordExtraction(0, 1)
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	staged, err := e.store.TempDir()
	if err != nil {
		return nil, err
	}
	swapped := false
	defer func() {
		if !swapped {
			if err := os.RemoveAll(staged); err != nil {
				slog.Warn("Failed to remove staging directory", "path", staged, "error", err)
			}
		}
	}()

	projectRows := make([]types.Row, 0, len(projects))
	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		row := adapters.FlattenIssue(p)
		projectRows = append(projectRows, row)
		if key, ok := row.Get("key"); ok {
			keys = append(keys, key)
		}
	}
	if err := e.store.WriteBatch(staged, storage.ProjectsFile, types.IssueBatch{Rows: projectRows}); err != nil {
		return nil, err
	}

	var since time.Time
	if e.config.Lookback > 0 {
		since = e.now().Add(-e.config.Lookback)
	}

	var mu sync.Mutex
	results := make([]projectResult, 0, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for _, key := range keys {
		g.Go(func() error {
			n, err := e.extractProject(gctx, staged, key, since)
			mu.Lock()
			results = append(results, projectResult{key: key, issues: n, err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &Summary{Projects: len(keys)}
	for _, r := range results {
		if r.err != nil {
			summary.Failed = append(summary.Failed, r.key)
			continue
		}
		summary.Issues += r.issues
		if r.issues > 0 {
			summary.ProjectsWritten++
		}
	}
	e.metrics.RecordExtraction(summary.Issues, len(summary.Failed))
	summary.Duration = e.now().Sub(start)

	if len(keys) > 0 && len(summary.Failed) == len(keys) {
		return summary, ErrAllProjectsFailed
	}

	if err := e.store.ReplaceIssuesDir(staged); err != nil {
		return summary, err
	}
	swapped = true

	slog.Info("Extraction completed",
		"projects", summary.Projects,
		"projects_written", summary.ProjectsWritten,
		"issues", summary.Issues,
		"failed", len(summary.Failed),
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

// extractProject searches one project and writes its export when it has issues.
func (e *Extractor) extractProject(ctx context.Context, dir, key string, since time.Time) (int, error) {
	start := time.Now()

	issues, err := e.source.SearchIssues(ctx, BuildJQL(key, since), e.config.Fields)
	if err != nil {
		e.logger.ExtractionLogger(key, 0, time.Since(start), err)
		return 0, err
	}

	if len(issues) > 0 {
		rows := make([]types.Row, 0, len(issues))
		for _, issue := range issues {
			rows = append(rows, adapters.FlattenIssue(issue))
		}
		batch := types.IssueBatch{Source: key, Rows: rows}
		if err := e.store.WriteBatch(dir, storage.IssuesFileName(key), batch); err != nil {
			e.logger.ExtractionLogger(key, 0, time.Since(start), err)
			return 0, err
		}
	}

	e.logger.ExtractionLogger(key, len(issues), time.Since(start), nil)
	return len(issues), nil
}
