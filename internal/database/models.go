package database

import (
	"time"

	"github.com/google/uuid"
)

// Run triggers
const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// RankingRun is one persisted execution of the ranking pipeline
type RankingRun struct {
	ID             string    `json:"id" db:"id"`
	Trigger        string    `json:"trigger" db:"trigger"`
	IssueCount     int       `json:"issue_count" db:"issue_count"`
	DeveloperCount int       `json:"developer_count" db:"developer_count"`
	Columns        []string  `json:"columns" db:"columns"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// RankingEntry is one developer's row within a run
type RankingEntry struct {
	ID         string         `json:"id" db:"id"`
	RunID      string         `json:"run_id" db:"run_id"`
	Rank       int            `json:"rank" db:"rank"`
	Name       string         `json:"name" db:"name"`
	Email      string         `json:"email" db:"email"`
	TotalScore float64        `json:"total_score" db:"total_score"`
	Record     map[string]any `json:"record" db:"record"`
}

// NewRankingRun creates a run with a fresh ID
func NewRankingRun(trigger string, issueCount int, columns []string) *RankingRun {
	return &RankingRun{
		ID:         uuid.New().String(),
		Trigger:    trigger,
		IssueCount: issueCount,
		Columns:    columns,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewRankingEntry creates an entry belonging to runID
func NewRankingEntry(runID string, rank int, name, email string, score float64, record map[string]any) RankingEntry {
	return RankingEntry{
		ID:         uuid.New().String(),
		RunID:      runID,
		Rank:       rank,
		Name:       name,
		Email:      email,
		TotalScore: score,
		Record:     record,
	}
}
