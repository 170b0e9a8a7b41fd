package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/database"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/resilience"
)

// DefaultTopN is the size of the top-developers series when none is requested
const DefaultTopN = 10

// ErrNoRanking is returned before the first ranking has been saved
var ErrNoRanking = errors.New("no ranking available")

// ErrDeveloperNotFound is returned when a developer is absent from the latest ranking
var ErrDeveloperNotFound = errors.New("developer not found in latest ranking")

// DeveloperRow is one developer as shown on the dashboard
type DeveloperRow struct {
	Rank       int            `json:"rank"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	TotalScore float64        `json:"total_score"`
	Values     map[string]any `json:"values"`
}

// Snapshot is the latest ranking as published
type Snapshot struct {
	RunID       string         `json:"run_id"`
	LastUpdated time.Time      `json:"last_updated"`
	Columns     []string       `json:"columns"`
	Rows        []DeveloperRow `json:"rows"`
}

// Filter narrows the latest snapshot. Nil bounds are open; bounds are inclusive.
type Filter struct {
	Names    []string
	MinScore *float64
	MaxScore *float64
}

func (f Filter) match(row DeveloperRow) bool {
	if len(f.Names) > 0 && !slices.Contains(f.Names, row.Name) {
		return false
	}
	if f.MinScore != nil && row.TotalScore < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && row.TotalScore > *f.MaxScore {
		return false
	}
	return true
}

// ScorePoint is one bar of the top-developers chart
type ScorePoint struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TimePoint is one point of the bug-versus-subtask scatter
type TimePoint struct {
	Name        string  `json:"name"`
	BugTime     float64 `json:"bug_time"`
	SubtaskTime float64 `json:"subtask_time"`
	Score       float64 `json:"score"`
}

// Criticality sums bug counts across all developers
type Criticality struct {
	Normal   float64 `json:"normal"`
	Critical float64 `json:"critical"`
	Blocker  float64 `json:"blocker"`
}

// Charts carries the dashboard chart series
type Charts struct {
	Top          []ScorePoint `json:"top"`
	BugVsSubtask []TimePoint  `json:"bug_vs_subtask"`
	Criticality  Criticality  `json:"criticality"`
}

// Service handles leaderboard operations
type Service struct {
	repo     *database.Repository
	cache    *LeaderboardCache
	keepRuns int
	retry    resilience.RetryConfig
}

// NewService creates a new leaderboard service. keepRuns <= 0 keeps every run.
func NewService(repo *database.Repository, cache *LeaderboardCache, keepRuns int) *Service {
	retry := resilience.DefaultRetryConfig()
	retry.RetryableErrors = database.IsBusy

	return &Service{
		repo:     repo,
		cache:    cache,
		keepRuns: keepRuns,
		retry:    retry,
	}
}

// SaveRanking persists a projected ranking as a new run and invalidates cached reads.
// table rows must be in the same order as ranking.Developers.
func (s *Service) SaveRanking(ctx context.Context, ranking *analysis.Ranking, table *analysis.Table, trigger string, issueCount int) (*database.RankingRun, error) {
	if len(table.Rows) != len(ranking.Developers) {
		return nil, fmt.Errorf("table has %d rows for %d developers", len(table.Rows), len(ranking.Developers))
	}

	run := database.NewRankingRun(trigger, issueCount, table.Columns)
	entries := make([]database.RankingEntry, 0, len(table.Rows))
	for i, d := range ranking.Developers {
		record := make(map[string]any, len(table.Columns))
		for j, col := range table.Columns {
			record[col] = table.Rows[i][j]
		}
		entries = append(entries, database.NewRankingEntry(run.ID, d.Rank, d.Name, d.Email, d.TotalScore, record))
	}

	err := resilience.RetryWithConfig(ctx, s.retry, func() error {
		return s.repo.SaveRun(ctx, run, entries)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save ranking: %w", err)
	}

	if s.keepRuns > 0 {
		if removed, err := s.repo.PruneRuns(ctx, s.keepRuns); err != nil {
			slog.Warn("Failed to prune ranking history", "error", err)
		} else if removed > 0 {
			slog.Info("Pruned ranking history", "removed", removed, "kept", s.keepRuns)
		}
	}

	s.cache.InvalidateAll()

	slog.Info("Ranking saved to leaderboard",
		"run_id", run.ID,
		"developers", run.DeveloperCount,
		"trigger", trigger,
	)
	return run, nil
}

// Latest returns the most recent snapshot, from cache when possible
func (s *Service) Latest(ctx context.Context) (*Snapshot, error) {
	if snapshot, found := s.cache.GetSnapshot(); found {
		return snapshot, nil
	}

	run, err := s.repo.LatestRun(ctx)
	if errors.Is(err, database.ErrNoRuns) {
		return nil, ErrNoRanking
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}

	entries, err := s.repo.Entries(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries for run %s: %w", run.ID, err)
	}

	snapshot := &Snapshot{
		RunID:       run.ID,
		LastUpdated: run.CreatedAt,
		Columns:     run.Columns,
		Rows:        make([]DeveloperRow, 0, len(entries)),
	}
	for _, e := range entries {
		snapshot.Rows = append(snapshot.Rows, rowFromEntry(e))
	}

	s.cache.SetSnapshot(snapshot)
	return snapshot, nil
}

// Rankings returns the latest snapshot restricted to rows matching f
func (s *Service) Rankings(ctx context.Context, f Filter) (*Snapshot, error) {
	snapshot, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}

	filtered := *snapshot
	filtered.Rows = make([]DeveloperRow, 0, len(snapshot.Rows))
	for _, row := range snapshot.Rows {
		if f.match(row) {
			filtered.Rows = append(filtered.Rows, row)
		}
	}
	return &filtered, nil
}

// Top returns the n highest ranked developers
func (s *Service) Top(ctx context.Context, n int) ([]DeveloperRow, error) {
	snapshot, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultTopN
	}
	return snapshot.Rows[:min(n, len(snapshot.Rows))], nil
}

// Charts builds the dashboard chart series from the latest snapshot
func (s *Service) Charts(ctx context.Context, topN int) (*Charts, error) {
	snapshot, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	charts := &Charts{
		Top:          make([]ScorePoint, 0, topN),
		BugVsSubtask: make([]TimePoint, 0, len(snapshot.Rows)),
	}
	for i, row := range snapshot.Rows {
		if i < topN {
			charts.Top = append(charts.Top, ScorePoint{Name: row.Name, Score: row.TotalScore})
		}

		bug, okBug := number(row.Values[analysis.ColumnBugTime])
		sub, okSub := number(row.Values[analysis.ColumnSubtaskTime])
		if okBug && okSub {
			charts.BugVsSubtask = append(charts.BugVsSubtask, TimePoint{
				Name:        row.Name,
				BugTime:     bug,
				SubtaskTime: sub,
				Score:       row.TotalScore,
			})
		}

		normal, _ := number(row.Values[analysis.ColumnBugCount])
		critical, _ := number(row.Values[analysis.ColumnCriticalBugCount])
		blocker, _ := number(row.Values[analysis.ColumnBlockerBugCount])
		charts.Criticality.Normal += normal
		charts.Criticality.Critical += critical
		charts.Criticality.Blocker += blocker
	}
	return charts, nil
}

// Developer returns one developer's row from the latest ranking. A cold
// cache reads the single entry instead of the whole run.
func (s *Service) Developer(ctx context.Context, name string) (*DeveloperRow, error) {
	if snapshot, found := s.cache.GetSnapshot(); found {
		for _, row := range snapshot.Rows {
			if row.Name == name {
				return &row, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrDeveloperNotFound, name)
	}

	run, err := s.repo.LatestRun(ctx)
	if errors.Is(err, database.ErrNoRuns) {
		return nil, ErrNoRanking
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}

	entry, err := s.repo.EntryByName(ctx, run.ID, name)
	if errors.Is(err, database.ErrEntryNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeveloperNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	row := rowFromEntry(*entry)
	return &row, nil
}

// Runs lists recent ranking runs, newest first
func (s *Service) Runs(ctx context.Context, limit int) ([]database.RankingRun, error) {
	runs, err := s.repo.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []database.RankingRun{}
	}
	return runs, nil
}

// GetCacheStats returns leaderboard cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

func rowFromEntry(e database.RankingEntry) DeveloperRow {
	values := e.Record
	if values == nil {
		values = map[string]any{}
	}
	return DeveloperRow{
		Rank:       e.Rank,
		Name:       e.Name,
		Email:      e.Email,
		TotalScore: e.TotalScore,
		Values:     values,
	}
}

// number reads a JSON-decoded or in-memory numeric cell
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
