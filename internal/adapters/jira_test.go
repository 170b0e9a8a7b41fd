package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/resilience"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

func newTestAdapter(t *testing.T, handler http.Handler) (*JiraAdapter, *monitoring.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	retry := resilience.DefaultRetryConfig()
	retry.InitialDelay = time.Millisecond
	retry.MaxDelay = 5 * time.Millisecond
	retry.JitterEnabled = false

	metrics := monitoring.NewMetrics()
	adapter := NewJiraAdapter(JiraConfig{
		BaseURL:  srv.URL + "/",
		Email:    "bot@kiwitech.com",
		APIToken: "secret",
		PageSize: 2,
		Retry:    retry,
	}, monitoring.NewLoggerWithConfig(monitoring.LogConfig{Level: "error"}, io.Discard), metrics)
	t.Cleanup(func() { adapter.Close() })
	return adapter, metrics
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestJiraAdapter_FetchProjects(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/project", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@kiwitech.com", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		writeJSON(t, w, []map[string]any{
			{"id": "10000", "key": "ALPHA", "name": "Alpha"},
			{"id": "10001", "key": "BETA", "name": "Beta"},
		})
	}))

	projects, err := adapter.FetchProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "BETA", projects[1]["key"])
}

func TestJiraAdapter_SearchIssuesPages(t *testing.T) {
	const total = 5
	var pages atomic.Int32

	adapter, metrics := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		q := r.URL.Query()
		assert.Equal(t, `project = "ALPHA"`, q.Get("jql"))
		assert.Equal(t, "2", q.Get("maxResults"))
		assert.Contains(t, q.Get("fields"), "timespent")

		startAt, err := strconv.Atoi(q.Get("startAt"))
		require.NoError(t, err)

		var issues []map[string]any
		for i := startAt; i < min(startAt+2, total); i++ {
			issues = append(issues, map[string]any{"key": "ALPHA-" + strconv.Itoa(i+1)})
		}
		writeJSON(t, w, map[string]any{"startAt": startAt, "maxResults": 2, "total": total, "issues": issues})
	}))

	issues, err := adapter.SearchIssues(context.Background(), `project = "ALPHA"`, nil)
	require.NoError(t, err)
	require.Len(t, issues, total)
	assert.Equal(t, "ALPHA-5", issues[4]["key"])
	assert.Equal(t, int32(3), pages.Load())
	assert.Equal(t, int64(3), metrics.GetStats()["jira_api_calls"])
}

func TestJiraAdapter_SearchStopsOnEmptyPage(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"startAt": 0, "total": 50, "issues": []any{}})
	}))

	issues, err := adapter.SearchIssues(context.Background(), `project = "EMPTY"`, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestJiraAdapter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, []map[string]any{{"key": "ALPHA"}})
	}))

	projects, err := adapter.FetchProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestJiraAdapter_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category apperrors.ErrorCategory
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, category: apperrors.CategoryAuth},
		{name: "forbidden", status: http.StatusForbidden, category: apperrors.CategoryAuth},
		{name: "bad request", status: http.StatusBadRequest, category: apperrors.CategoryExternalAPI},
		{name: "server error after retries", status: http.StatusBadGateway, category: apperrors.CategoryExternalAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))

			_, err := adapter.FetchProjects(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.category, apperrors.ToAppError(err).Category)
		})
	}
}

func TestJiraAdapter_CancelledContext(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"issues": []any{}})
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.SearchIssues(ctx, `project = "ALPHA"`, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlattenIssue(t *testing.T) {
	raw := `{
		"key": "ALPHA-1",
		"fields": {
			"project": {"key": "ALPHA"},
			"creator": {"displayName": "Alice", "active": true},
			"issuetype": {"name": "Bug"},
			"priority": null,
			"timespent": 3600,
			"timeoriginalestimate": 1800.5,
			"resolutiondate": null,
			"labels": ["backend", "urgent"]
		}
	}`

	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&obj))

	row := FlattenIssue(obj)
	assert.Equal(t, types.Row{
		types.FieldKey:                  "ALPHA-1",
		types.FieldProjectKey:           "ALPHA",
		types.FieldCreatorName:          "Alice",
		"fields.creator.active":         "true",
		types.FieldIssueType:            "Bug",
		types.FieldTimeSpent:            "3600",
		types.FieldTimeOriginalEstimate: "1800.5",
		"fields.labels":                 `["backend","urgent"]`,
	}, row)
}
