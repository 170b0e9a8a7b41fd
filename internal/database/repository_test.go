package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func saveTestRun(t *testing.T, repo *Repository, createdAt time.Time, names ...string) *RankingRun {
	t.Helper()
	run := NewRankingRun(TriggerCLI, 42, []string{"Name", "Email", "TotalScore", "Rank"})
	run.CreatedAt = createdAt
	entries := make([]RankingEntry, 0, len(names))
	for i, name := range names {
		entries = append(entries, NewRankingEntry(run.ID, i+1, name, name+"@kiwitech.com", float64(100-i), map[string]any{
			"Name":       name,
			"TotalScore": float64(100 - i),
		}))
	}
	require.NoError(t, repo.SaveRun(context.Background(), run, entries))
	return run
}

func TestRepository_LatestRunEmpty(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	saveTestRun(t, repo, base, "Alice")
	latest := saveTestRun(t, repo, base.Add(time.Hour), "Bob", "Carol")

	run, err := repo.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, run.ID)
	assert.Equal(t, 2, run.DeveloperCount)
	assert.Equal(t, 42, run.IssueCount)
	assert.Equal(t, []string{"Name", "Email", "TotalScore", "Rank"}, run.Columns)

	entries, err := repo.Entries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Bob", entries[0].Name)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Carol", entries[1].Name)
	assert.Equal(t, 99.0, entries[1].Record["TotalScore"])

	entry, err := repo.EntryByName(ctx, run.ID, "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Carol@kiwitech.com", entry.Email)

	_, err = repo.EntryByName(ctx, run.ID, "Alice")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRepository_ListAndPrune(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, saveTestRun(t, repo, base.Add(time.Duration(i)*time.Hour), "Dev").ID)
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[3], runs[0].ID)
	assert.Equal(t, ids[2], runs[1].ID)

	removed, err := repo.PruneRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	runs, err = repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[3], runs[0].ID)

	entries, err := repo.Entries(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDB_PoolStats(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	stats := db.GetPoolStats()
	assert.Equal(t, 4, stats["max_open_connections"])

	_, err = db.GetPreparedStatement("missing")
	assert.Error(t, err)
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "locked and wrapped", err: fmt.Errorf("failed to insert run: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), want: true},
		{name: "constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "plain", err: errors.New("disk full"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusy(tt.err))
		})
	}
}
