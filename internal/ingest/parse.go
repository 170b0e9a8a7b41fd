package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
)

// Layouts seen in JIRA responses and in re-exported CSV files, tried before
// falling back to dateparse.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s in any supported format. Values without a zone are
// read as UTC; values with one are converted to UTC.
func ParseTimestamp(s string) analysis.Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return analysis.Timestamp{}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return analysis.At(t)
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return analysis.Timestamp{}
	}
	return analysis.At(t)
}

// ParseSeconds parses a duration cell holding a number of seconds.
func ParseSeconds(s string) analysis.OptionalFloat {
	s = strings.TrimSpace(s)
	if s == "" {
		return analysis.OptionalFloat{}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return analysis.OptionalFloat{}
	}
	return analysis.Float(v)
}
