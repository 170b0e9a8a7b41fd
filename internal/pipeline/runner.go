package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/database"
	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/extract"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/ingest"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/leaderboard"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/storage"
)

// ErrRunInProgress is returned when a ranking or update is already running
var ErrRunInProgress = errors.New("a ranking run is already in progress")

// Extractor refreshes the issue exports
type Extractor interface {
	Run(ctx context.Context) (*extract.Summary, error)
}

// Options wires a Runner
type Options struct {
	Store       *storage.CSVStore
	Engine      *analysis.Engine
	Reporter    *monitoring.Reporter
	Leaderboard *leaderboard.Service
	// Updater is the incremental extractor used by Update
	Updater Extractor

	ColumnMap          ingest.ColumnMap
	OutputColumns      []string
	DailyOutputColumns []string
	RankingFile        string

	Logger  *monitoring.Logger
	Metrics *monitoring.Metrics
}

// Result summarizes one run
type Result struct {
	RunID       string           `json:"run_id"`
	Trigger     string           `json:"trigger"`
	Issues      int              `json:"issues"`
	Developers  int              `json:"developers"`
	Columns     []string         `json:"columns"`
	TopScore    float64          `json:"top_score"`
	Fallbacks   int              `json:"scoring_fallbacks"`
	Warnings    int              `json:"warnings"`
	RankingFile string           `json:"ranking_file"`
	Duration    time.Duration    `json:"duration"`
	Extract     *extract.Summary `json:"extract,omitempty"`
}

// Runner drives "extract then rank" for the CLI, the scheduler and the API
type Runner struct {
	opts Options
	mu   sync.Mutex
}

// NewRunner creates a runner, filling optional collaborators with defaults
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = monitoring.NewLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.Reporter == nil {
		opts.Reporter = monitoring.NewReporter(opts.Logger, opts.Metrics)
	}
	if opts.Engine == nil {
		opts.Engine = analysis.NewEngine(analysis.Config{Reporter: opts.Reporter, LogScoringFailures: true})
	}
	if opts.ColumnMap == (ingest.ColumnMap{}) {
		opts.ColumnMap = ingest.DefaultColumnMap()
	}
	if len(opts.OutputColumns) == 0 {
		opts.OutputColumns = analysis.DefaultOutputColumns
	}
	if len(opts.DailyOutputColumns) == 0 {
		opts.DailyOutputColumns = analysis.DailyOutputColumns
	}
	return &Runner{opts: opts}
}

// Rank ranks the current exports with the full column layout
func (r *Runner) Rank(ctx context.Context, trigger string) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	return r.rank(ctx, trigger, r.opts.OutputColumns)
}

// Update refreshes the exports and ranks them with the daily layout.
// When extraction fails nothing is ranked.
func (r *Runner) Update(ctx context.Context, trigger string) (*Result, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	if r.opts.Updater == nil {
		return nil, apperrors.NewConfigurationError("no extractor configured for updates", nil)
	}

	summary, err := r.opts.Updater.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("extraction failed, ranking skipped: %w", err)
	}

	result, err := r.rank(ctx, trigger, r.opts.DailyOutputColumns)
	if err != nil {
		return nil, err
	}
	result.Extract = summary
	return result, nil
}

func (r *Runner) rank(ctx context.Context, trigger string, columns []string) (result *Result, err error) {
	start := time.Now()
	defer func() { r.opts.Metrics.RecordRankingRun(resultDevelopers(result), err) }()

	batches, err := r.opts.Store.LoadBatches()
	if err != nil {
		return nil, fmt.Errorf("failed to load issue exports: %w", err)
	}
	collection := ingest.Concat(batches...)
	issues := collection.Records(r.opts.ColumnMap)

	fallbacksBefore := r.opts.Reporter.Errors()
	warningsBefore := r.opts.Reporter.Warnings()
	if collection.Len() > 0 {
		if missing := collection.MissingColumns(r.opts.ColumnMap); len(missing) > 0 {
			r.opts.Reporter.Warn("issue exports lack mapped columns", "missing", missing)
		}
	}
	ranking, err := r.opts.Engine.Rank(ctx, issues)
	if err != nil {
		return nil, fmt.Errorf("failed to rank developers: %w", err)
	}

	table, err := analysis.Project(ranking, columns, r.opts.Reporter)
	if errors.Is(err, analysis.ErrNoOutputColumns) {
		return nil, apperrors.NewConfigurationError("none of the configured output columns exist", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to project ranking: %w", err)
	}

	if r.opts.RankingFile != "" {
		if err := storage.WriteTable(r.opts.RankingFile, table); err != nil {
			return nil, fmt.Errorf("failed to write ranking file: %w", err)
		}
	}

	result = &Result{
		Trigger:     trigger,
		Issues:      len(issues),
		Developers:  ranking.Len(),
		Columns:     table.Columns,
		Fallbacks:   int(r.opts.Reporter.Errors() - fallbacksBefore),
		Warnings:    int(r.opts.Reporter.Warnings() - warningsBefore),
		RankingFile: r.opts.RankingFile,
	}
	if ranking.Len() > 0 {
		result.TopScore = ranking.Developers[0].TotalScore
	}

	if r.opts.Leaderboard != nil {
		run, err := r.opts.Leaderboard.SaveRanking(ctx, ranking, table, trigger, len(issues))
		if err != nil {
			return nil, err
		}
		result.RunID = run.ID
	} else {
		result.RunID = uuid.New().String()
	}

	result.Duration = time.Since(start)
	r.opts.Logger.RankingLogger(result.RunID, result.Issues, result.Developers, result.Fallbacks, result.TopScore, result.Duration)
	return result, nil
}

func resultDevelopers(r *Result) int {
	if r == nil {
		return 0
	}
	return r.Developers
}

// Trigger names accepted by Rank and Update
const (
	TriggerCLI      = database.TriggerCLI
	TriggerSchedule = database.TriggerSchedule
	TriggerAPI      = database.TriggerAPI
)
