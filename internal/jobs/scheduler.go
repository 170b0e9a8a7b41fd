package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/pipeline"
)

// Updater runs the daily extract-then-rank update
type Updater interface {
	Update(ctx context.Context, trigger string) (*pipeline.Result, error)
}

// Scheduler runs the daily update on a cron spec. A tick that fires while the
// previous update is still running is skipped.
type Scheduler struct {
	updater Updater
	timeout time.Duration
	c       *cron.Cron
	entry   cron.EntryID

	mu      sync.Mutex
	skipped int
}

// NewScheduler parses spec (five standard fields) in loc
func NewScheduler(spec string, loc *time.Location, timeout time.Duration, updater Updater) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = time.Hour
	}

	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	s := &Scheduler{updater: updater, timeout: timeout, c: c}

	id, err := c.AddFunc(spec, s.tick)
	if err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("invalid schedule %q", spec), err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing the schedule in the background
func (s *Scheduler) Start() {
	s.c.Start()
	slog.Info("Daily update scheduled", "next_run", s.Next())
}

// Stop halts the schedule and waits for a running update to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out with an update still running")
	}
}

// Next returns the next scheduled run
func (s *Scheduler) Next() time.Time {
	return s.c.Entry(s.entry).Next
}

// Skipped returns how many ticks were dropped because an update was running
func (s *Scheduler) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

func (s *Scheduler) tick() {
	apperrors.SafeExecute(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}, func(r interface{}) {
		slog.Error("Scheduled update panicked", "panic", r)
	})
}

// RunOnce performs one update now, reporting whether it ran
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	slog.Info("Scheduled update starting")

	result, err := s.updater.Update(ctx, pipeline.TriggerSchedule)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		slog.Info("Scheduled update skipped, previous run still in progress")
		return false
	case err != nil:
		slog.Error("Scheduled update failed", "error", err)
		return true
	}

	slog.Info("Scheduled update finished",
		"run_id", result.RunID,
		"developers", result.Developers,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return true
}
