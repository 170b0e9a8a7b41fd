package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/adapters"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/config"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/database"
	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/extract"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/ingest"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/leaderboard"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/pipeline"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/storage"
)

// app holds the collaborators shared by every command
type app struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	store       *storage.CSVStore
	db          *database.DB
	leaderboard *leaderboard.Service
	lbCache     *leaderboard.LeaderboardCache
	jira        *adapters.JiraAdapter
	runner      *pipeline.Runner
}

// newApp wires storage, persistence and the ranking pipeline. The JIRA
// adapter is only built when credentials are configured.
func newApp(cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(),
		store:   storage.NewCSVStore(cfg.Storage.IssuesDir, logger),
	}

	db, err := database.NewDB(cfg.Storage.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open ranking history: %w", err)
	}
	a.db = db
	a.lbCache = leaderboard.NewLeaderboardCache(cfg.Dashboard.CacheTTL, a.metrics)
	a.leaderboard = leaderboard.NewService(database.NewRepository(db), a.lbCache, cfg.Storage.KeepRuns)

	var updater pipeline.Extractor
	if cfg.ValidateJira() == nil {
		a.jira = adapters.NewJiraAdapter(adapters.JiraConfig{
			BaseURL:      cfg.Jira.BaseURL,
			Email:        cfg.Jira.Email,
			APIToken:     cfg.Jira.APIToken,
			PageSize:     cfg.Jira.PageSize,
			PageInterval: cfg.Jira.PageInterval,
			Timeout:      cfg.Jira.Timeout,
		}, logger, a.metrics)
		updater = a.extractor(cfg.Jira.DailyLookback)
	}

	eligibility := analysis.DefaultEligibility()
	if cfg.Ranking.MinIssueCount > 0 {
		eligibility.MinIssueCount = cfg.Ranking.MinIssueCount
	}

	reporter := monitoring.NewReporter(logger, a.metrics)
	engine := analysis.NewEngine(analysis.Config{
		Eligibility:        eligibility,
		EmailPolicy:        analysis.DomainEmailPolicy{Domain: cfg.Ranking.EmailDomain},
		Reporter:           reporter,
		LogScoringFailures: cfg.Ranking.LogScoringFailures,
		Workers:            cfg.Ranking.Workers,
	})

	a.runner = pipeline.NewRunner(pipeline.Options{
		Store:              a.store,
		Engine:             engine,
		Reporter:           reporter,
		Leaderboard:        a.leaderboard,
		Updater:            updater,
		ColumnMap:          ingest.DefaultColumnMap(),
		OutputColumns:      cfg.Ranking.OutputColumns,
		DailyOutputColumns: cfg.Ranking.DailyOutputColumns,
		RankingFile:        cfg.Storage.RankingFile,
		Logger:             logger,
		Metrics:            a.metrics,
	})

	return a, nil
}

// extractor builds an extraction run over the configured JIRA instance
func (a *app) extractor(lookback time.Duration) *extract.Extractor {
	return extract.NewExtractor(a.jira, a.store, extract.Config{
		Workers:  a.cfg.Jira.Workers,
		Lookback: lookback,
		Fields:   a.cfg.Jira.Fields,
	}, a.logger, a.metrics)
}

// requireJira fails with the missing credentials when extraction is impossible
func (a *app) requireJira() error {
	if a.jira == nil {
		if err := a.cfg.ValidateJira(); err != nil {
			return err
		}
		return apperrors.NewConfigurationError("JIRA adapter is not configured", nil)
	}
	return nil
}

func (a *app) Close() {
	if a.jira != nil {
		apperrors.SafeClose(a.jira, "jira adapter")
	}
	a.lbCache.Close()
	apperrors.SafeClose(a.db, "ranking database")
	slog.Debug("Application resources released")
}
