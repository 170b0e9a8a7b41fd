package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/pipeline"
)

type fakeUpdater struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (f *fakeUpdater) Update(_ context.Context, trigger string) (*pipeline.Result, error) {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{Trigger: trigger, RunID: "run-1", Developers: 3}, nil
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("every morning", time.UTC, time.Minute, &fakeUpdater{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryConfiguration, apperrors.ToAppError(err).Category)
}

func TestScheduler_Next(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	s, err := NewScheduler("30 2 * * *", loc, time.Minute, &fakeUpdater{})
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	next := s.Next().In(loc)
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestScheduler_RunOnce(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantRan     bool
		wantSkipped int
	}{
		{name: "success", wantRan: true},
		{name: "failure is logged", err: errors.New("jira down"), wantRan: true},
		{name: "overlap is skipped", err: pipeline.ErrRunInProgress, wantSkipped: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &fakeUpdater{err: tt.err}
			s, err := NewScheduler("0 2 * * *", time.UTC, time.Minute, updater)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRan, s.RunOnce(context.Background()))
			assert.Equal(t, tt.wantSkipped, s.Skipped())
			assert.Equal(t, int32(1), updater.calls.Load())
		})
	}
}

func TestScheduler_TickRecoversPanics(t *testing.T) {
	updater := &fakeUpdater{panic: true}
	s, err := NewScheduler("0 2 * * *", time.UTC, time.Minute, updater)
	require.NoError(t, err)

	assert.NotPanics(t, s.tick)
	assert.Equal(t, int32(1), updater.calls.Load())
}
