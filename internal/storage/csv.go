package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

// Export file naming
const (
	IssuesSuffix    = "_issues.csv"
	ProjectsFile    = "all_projects.csv"
	RankingFileName = "developer_rankings.csv"
)

// CSVStore reads and writes the issue exports kept in one directory
type CSVStore struct {
	issuesDir string
	logger    *monitoring.Logger
}

// NewCSVStore creates a store rooted at issuesDir. A nil logger gets the
// default stdout logger.
func NewCSVStore(issuesDir string, logger *monitoring.Logger) *CSVStore {
	if logger == nil {
		logger = monitoring.NewLogger()
	}
	return &CSVStore{issuesDir: issuesDir, logger: logger}
}

// IssuesDir returns the directory holding the exports
func (s *CSVStore) IssuesDir() string {
	return s.issuesDir
}

// IssuesFileName returns the export file name for a project key
func IssuesFileName(projectKey string) string {
	return projectKey + IssuesSuffix
}

// LoadBatches reads every issues export, ordered by file name.
// A missing directory yields no batches.
func (s *CSVStore) LoadBatches() ([]types.IssueBatch, error) {
	paths, err := filepath.Glob(filepath.Join(s.issuesDir, "*"+IssuesSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list issue files: %w", err)
	}
	slices.Sort(paths)

	if len(paths) == 0 {
		s.logger.Warn("No issue exports found", "dir", s.issuesDir)
		return nil, nil
	}

	batches := make([]types.IssueBatch, 0, len(paths))
	for _, path := range paths {
		batch, err := readBatch(path)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func readBatch(path string) (types.IssueBatch, error) {
	header, records, err := readCSV(path)
	if err != nil {
		return types.IssueBatch{}, err
	}

	batch := types.IssueBatch{
		Source:  filepath.Base(path),
		Columns: header,
		Rows:    make([]types.Row, 0, len(records)),
	}
	for _, record := range records {
		row := make(types.Row, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

// WriteBatch writes batch as dir/name with its own header. Rows missing a
// column get an empty cell.
func (s *CSVStore) WriteBatch(dir, name string, batch types.IssueBatch) error {
	columns := batch.Columns
	if len(columns) == 0 {
		columns = rowColumns(batch.Rows)
	}

	records := make([][]string, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = row[col]
		}
		records = append(records, record)
	}
	return writeCSV(filepath.Join(dir, name), columns, records)
}

func rowColumns(rows []types.Row) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	slices.Sort(columns)
	return columns
}

// TempDir creates a staging directory next to the issues directory so the
// final swap is a same-filesystem rename.
func (s *CSVStore) TempDir() (string, error) {
	parent := filepath.Dir(s.issuesDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	dir, err := os.MkdirTemp(parent, ".issues-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

// ReplaceIssuesDir swaps staged into place as the issues directory and
// removes the previous contents.
func (s *CSVStore) ReplaceIssuesDir(staged string) error {
	backup := fmt.Sprintf("%s.old-%d", s.issuesDir, time.Now().UnixNano())

	hadPrevious := true
	if err := os.Rename(s.issuesDir, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to move previous issues directory: %w", err)
		}
		hadPrevious = false
	}

	if err := os.Rename(staged, s.issuesDir); err != nil {
		if hadPrevious {
			if rerr := os.Rename(backup, s.issuesDir); rerr != nil {
				s.logger.Error("Failed to restore previous issues directory", "error", rerr, "backup", backup)
			}
		}
		return fmt.Errorf("failed to install new issues directory: %w", err)
	}

	if hadPrevious {
		if err := os.RemoveAll(backup); err != nil {
			s.logger.Warn("Failed to remove previous issues directory", "error", err, "path", backup)
		}
	}
	return nil
}

// WriteTable writes a projected ranking. Floats use the shortest exact
// representation so reading the file back yields the same values.
func WriteTable(path string, table *analysis.Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	records := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatCell(v)
		}
		records = append(records, record)
	}
	return writeCSV(path, table.Columns, records)
}

// ReadTable reads a file written by WriteTable. Known ranking columns are
// decoded to their Go types; other columns stay strings.
func ReadTable(path string) (*analysis.Table, error) {
	header, records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	table := &analysis.Table{Columns: header, Rows: make([][]any, 0, len(records))}
	for line, record := range records {
		row := make([]any, len(header))
		for i, col := range header {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			v, err := parseCell(col, cell)
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %s: %w", filepath.Base(path), line+2, col, err)
			}
			row[i] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

var intColumns = map[string]bool{
	analysis.ColumnBugCount:         true,
	analysis.ColumnCriticalBugCount: true,
	analysis.ColumnBlockerBugCount:  true,
	analysis.ColumnRank:             true,
}

var floatColumns = map[string]bool{
	analysis.ColumnBugTime:            true,
	analysis.ColumnSubtaskTime:        true,
	analysis.ColumnAvgCompletionTime:  true,
	analysis.ColumnDaysLogged8Hours:   true,
	analysis.ColumnEstimationAccuracy: true,
	analysis.ColumnProjectTime:        true,
	analysis.ColumnBenchTime:          true,
	analysis.ColumnTotalScore:         true,
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprint(v)
}

func parseCell(column, cell string) (any, error) {
	switch {
	case intColumns[column]:
		return strconv.Atoi(strings.TrimSpace(cell))
	case floatColumns[column]:
		return strconv.ParseFloat(strings.TrimSpace(cell), 64)
	}
	return cell, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

func writeCSV(path string, header []string, records [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
