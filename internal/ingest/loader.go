package ingest

import (
	"slices"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

// Collection is the concatenation of every loaded issue batch.
type Collection struct {
	Columns []string
	Rows    []types.Row
}

// Len returns the number of issues in the collection.
func (c *Collection) Len() int { return len(c.Rows) }

// HasColumn reports whether any batch carried column.
func (c *Collection) HasColumn(column string) bool {
	return slices.Contains(c.Columns, column)
}

// Concat merges batches into one collection. The column set is the union of
// every batch's columns in first-seen order; rows keep their batch order and
// hold null for columns their batch lacked.
func Concat(batches ...types.IssueBatch) *Collection {
	c := &Collection{}
	seen := make(map[string]bool)

	addColumn := func(col string) {
		if !seen[col] {
			seen[col] = true
			c.Columns = append(c.Columns, col)
		}
	}

	for _, batch := range batches {
		for _, col := range batch.Columns {
			addColumn(col)
		}
		for _, row := range batch.Rows {
			// columns only present in rows still join the union
			keys := make([]string, 0, len(row))
			for k := range row {
				if !seen[k] {
					keys = append(keys, k)
				}
			}
			slices.Sort(keys)
			for _, k := range keys {
				addColumn(k)
			}
			c.Rows = append(c.Rows, row)
		}
	}

	return c
}
