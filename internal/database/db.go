package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// FileName is the SQLite file created inside the database directory
const FileName = "devrank.db"

// SQLite allows one writer at a time, so the pool stays small
const (
	maxOpenConns    = 4
	maxIdleConns    = 2
	connMaxLifetime = 5 * time.Minute
)

// IsBusy reports whether err is SQLite refusing a write because another
// connection holds the lock. Such writes can be retried.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// DB is the ranking history store: a pooled SQLite handle plus the
// statements the repository runs on every save and read.
type DB struct {
	*sql.DB

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// NewDB opens (creating if needed) the ranking history database in dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, FileName)
	dsn := "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000"

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxLifetime(connMaxLifetime)

	db := &DB{DB: conn, stmts: make(map[string]*sql.Stmt, len(statements))}
	for _, step := range []struct {
		what string
		fn   func() error
	}{
		{"ping database", conn.Ping},
		{"run migrations", db.migrate},
		{"prepare statements", db.prepare},
	} {
		if err := step.fn(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", step.what, err)
		}
	}

	slog.Info("Database initialized", "path", path, "max_open_conns", maxOpenConns)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ranking_runs (
		id TEXT PRIMARY KEY,
		trigger TEXT NOT NULL, -- 'cli', 'schedule', 'api'
		issue_count INTEGER NOT NULL,
		developer_count INTEGER NOT NULL,
		columns TEXT NOT NULL, -- JSON array of projected columns
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ranking_entries (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		total_score REAL NOT NULL,
		record TEXT NOT NULL, -- JSON developer record
		FOREIGN KEY (run_id) REFERENCES ranking_runs(id) ON DELETE CASCADE,
		UNIQUE(run_id, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ranking_runs_created ON ranking_runs(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ranking_entries_run ON ranking_entries(run_id, rank)`,
	`CREATE INDEX IF NOT EXISTS idx_ranking_entries_name ON ranking_entries(name)`,
}

func (db *DB) migrate() error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, ddl := range schema {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("schema step %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// statement names used by the repository
const (
	stmtInsertRun   = "insert_run"
	stmtInsertEntry = "insert_entry"
	stmtLatestRun   = "latest_run"
	stmtListRuns    = "list_runs"
	stmtRunEntries  = "run_entries"
	stmtEntryByName = "entry_by_name"
)

const (
	runColumns   = `id, trigger, issue_count, developer_count, columns, created_at`
	entryColumns = `id, run_id, rank, name, email, total_score, record`
)

var statements = map[string]string{
	stmtInsertRun:   `INSERT INTO ranking_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?)`,
	stmtInsertEntry: `INSERT INTO ranking_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	stmtLatestRun:   `SELECT ` + runColumns + ` FROM ranking_runs ORDER BY created_at DESC LIMIT 1`,
	stmtListRuns:    `SELECT ` + runColumns + ` FROM ranking_runs ORDER BY created_at DESC LIMIT ?`,
	stmtRunEntries:  `SELECT ` + entryColumns + ` FROM ranking_entries WHERE run_id = ? ORDER BY rank ASC`,
	stmtEntryByName: `SELECT ` + entryColumns + ` FROM ranking_entries WHERE run_id = ? AND name = ?`,
}

func (db *DB) prepare() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("statement %s: %w", name, err)
		}
		db.stmts[name] = stmt
	}
	return nil
}

// GetPreparedStatement returns the named statement prepared at open time
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if stmt, ok := db.stmts[name]; ok {
		return stmt, nil
	}
	return nil, fmt.Errorf("prepared statement %s not found", name)
}

// GetPoolStats reports sql.DB pool usage for /metrics
func (db *DB) GetPoolStats() map[string]interface{} {
	s := db.Stats()
	return map[string]interface{}{
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"max_open_connections": s.MaxOpenConnections,
		"max_idle_connections": maxIdleConns,
		"max_lifetime_seconds": connMaxLifetime.Seconds(),
		"wait_count":           s.WaitCount,
		"wait_duration_ms":     s.WaitDuration.Milliseconds(),
	}
}

// Close releases the prepared statements and the connection pool
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, stmt := range db.stmts {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.stmts = map[string]*sql.Stmt{}
	return db.DB.Close()
}
