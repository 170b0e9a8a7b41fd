package analysis

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Config wires the engine's policies and collaborators.
type Config struct {
	Eligibility Eligibility
	EmailPolicy EmailPolicy
	Reporter    Reporter

	// LogScoringFailures reports developers whose score fell back to zero.
	LogScoringFailures bool

	// Workers bounds concurrent per-developer computation. Zero means GOMAXPROCS.
	Workers int

	// Scorer overrides Score. Used in tests.
	Scorer func(DeveloperRecord) float64
}

// Engine turns issue records into a ranked developer table.
type Engine struct {
	selector           *Selector
	emails             EmailPolicy
	reporter           Reporter
	logScoringFailures bool
	workers            int
	scorer             func(DeveloperRecord) float64
}

// NewEngine creates an engine, filling unset collaborators with defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		selector:           NewSelector(cfg.Eligibility),
		emails:             cfg.EmailPolicy,
		reporter:           cfg.Reporter,
		logScoringFailures: cfg.LogScoringFailures,
		workers:            cfg.Workers,
		scorer:             cfg.Scorer,
	}
	if e.emails == nil {
		e.emails = NewDomainEmailPolicy(DefaultEmailDomain)
	}
	if e.reporter == nil {
		e.reporter = NopReporter{}
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	if e.scorer == nil {
		e.scorer = Score
	}
	return e
}

// Rank selects developers, computes their metrics and scores, and orders them
// by descending score. Ties keep lexical name order. An input without any
// qualifying developer yields an empty ranking, not an error.
func (e *Engine) Rank(ctx context.Context, issues []IssueRecord) (*Ranking, error) {
	ranking := &Ranking{State: StateEmpty, Columns: append([]string(nil), RankingColumns...)}

	developers, groups := e.selector.Select(issues)
	if len(developers) == 0 {
		return ranking, nil
	}

	records := make([]DeveloperRecord, len(developers))
	ranking.State = StatePopulated

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, name := range developers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = e.scoreDeveloper(e.assemble(name, groups[name]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to score developers: %w", err)
	}
	ranking.State = StateScored

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].TotalScore > records[j].TotalScore
	})
	ranking.State = StateSorted

	for i := range records {
		records[i].Rank = i + 1
	}
	ranking.Developers = records
	ranking.State = StateRanked

	return ranking, nil
}

// assemble computes every metric for one developer.
func (e *Engine) assemble(name string, issues []IssueRecord) DeveloperRecord {
	bugTime, subtaskTime := TimeSplit(issues)
	normal, critical, blocker := BugCriticality(issues)
	projectTime, benchTime := ProjectVsBench(issues)

	return DeveloperRecord{
		Name:               name,
		Email:              e.emails.Email(name),
		BugTime:            bugTime,
		SubtaskTime:        subtaskTime,
		BugCount:           normal,
		CriticalBugCount:   critical,
		BlockerBugCount:    blocker,
		AvgCompletionTime:  AverageCompletionHours(issues),
		DaysLogged8Hours:   DaysLogged8Hours(issues),
		EstimationAccuracy: EstimationAccuracy(issues),
		ProjectTime:        projectTime,
		BenchTime:          benchTime,
	}
}

func (e *Engine) scoreDeveloper(d DeveloperRecord) DeveloperRecord {
	score, err := e.safeScore(d)
	if err != nil {
		if e.logScoringFailures {
			e.reporter.Error("scoring failed, using zero score", err, "developer", d.Name)
		}
		score = 0
	}
	d.TotalScore = score
	return d
}

func (e *Engine) safeScore(d DeveloperRecord) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score, err = 0, fmt.Errorf("scoring panicked: %v", r)
		}
	}()

	score = e.scorer(d)
	if !finite(score) {
		return 0, fmt.Errorf("non-finite score %v", score)
	}
	return score, nil
}
