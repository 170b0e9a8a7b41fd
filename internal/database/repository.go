package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoRuns is returned when no ranking has been persisted yet
var ErrNoRuns = errors.New("no ranking runs recorded")

// ErrEntryNotFound is returned when a developer is absent from a run
var ErrEntryNotFound = errors.New("ranking entry not found")

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveRun stores a run and its entries in one transaction
func (r *Repository) SaveRun(ctx context.Context, run *RankingRun, entries []RankingEntry) error {
	columns, err := json.Marshal(run.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}

	insertRun, err := r.db.GetPreparedStatement(stmtInsertRun)
	if err != nil {
		return err
	}
	insertEntry, err := r.db.GetPreparedStatement(stmtInsertEntry)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	run.DeveloperCount = len(entries)
	if _, err := tx.StmtContext(ctx, insertRun).ExecContext(ctx,
		run.ID, run.Trigger, run.IssueCount, run.DeveloperCount, string(columns), run.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	entryStmt := tx.StmtContext(ctx, insertEntry)
	for _, entry := range entries {
		record, err := json.Marshal(entry.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record for %s: %w", entry.Name, err)
		}
		if _, err := entryStmt.ExecContext(ctx,
			entry.ID, run.ID, entry.Rank, entry.Name, entry.Email, entry.TotalScore, string(record),
		); err != nil {
			return fmt.Errorf("failed to insert entry for %s: %w", entry.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent run
func (r *Repository) LatestRun(ctx context.Context) (*RankingRun, error) {
	stmt, err := r.db.GetPreparedStatement(stmtLatestRun)
	if err != nil {
		return nil, err
	}

	run, err := scanRun(stmt.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RankingRun, error) {
	if limit <= 0 {
		limit = 20
	}

	stmt, err := r.db.GetPreparedStatement(stmtListRuns)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RankingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Entries returns every entry of a run in rank order
func (r *Repository) Entries(ctx context.Context, runID string) ([]RankingEntry, error) {
	stmt, err := r.db.GetPreparedStatement(stmtRunEntries)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]RankingEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// EntryByName returns one developer's entry within a run
func (r *Repository) EntryByName(ctx context.Context, runID, name string) (*RankingEntry, error) {
	stmt, err := r.db.GetPreparedStatement(stmtEntryByName)
	if err != nil {
		return nil, err
	}

	entry, err := scanEntry(stmt.QueryRowContext(ctx, runID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	return entry, nil
}

// PruneRuns deletes all but the newest keep runs and returns how many were removed
func (r *Repository) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM ranking_runs
		WHERE id NOT IN (SELECT id FROM ranking_runs ORDER BY created_at DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RankingRun, error) {
	var run RankingRun
	var columns string
	if err := row.Scan(&run.ID, &run.Trigger, &run.IssueCount, &run.DeveloperCount, &columns, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(columns), &run.Columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns: %w", err)
	}
	return &run, nil
}

func scanEntry(row scanner) (*RankingEntry, error) {
	var entry RankingEntry
	var record string
	if err := row.Scan(&entry.ID, &entry.RunID, &entry.Rank, &entry.Name, &entry.Email, &entry.TotalScore, &record); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(record), &entry.Record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &entry, nil
}
