package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/resilience"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/types"
)

const (
	jiraAPIName     = "jira"
	projectEndpoint = "/rest/api/2/project"
	searchEndpoint  = "/rest/api/2/search"

	// DefaultPageSize is the largest page JIRA Cloud serves for search
	DefaultPageSize = 100
)

// DefaultSearchFields are the issue fields the ranking needs
var DefaultSearchFields = []string{
	"project",
	"creator",
	"issuetype",
	"priority",
	"created",
	"updated",
	"resolutiondate",
	"timeoriginalestimate",
	"timespent",
}

// JiraConfig holds connection settings for a JIRA instance
type JiraConfig struct {
	BaseURL  string
	Email    string
	APIToken string

	// PageSize is maxResults per search page
	PageSize int
	// PageInterval is the minimum spacing between page requests; zero disables pacing
	PageInterval time.Duration
	Timeout      time.Duration

	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

// JiraAdapter fetches projects and issues from the JIRA REST API
type JiraAdapter struct {
	config  JiraConfig
	auth    string
	pool    *resilience.ConnectionPool
	limiter *rate.Limiter
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
}

// NewJiraAdapter creates a new JIRA adapter with connection pooling
func NewJiraAdapter(config JiraConfig, logger *monitoring.Logger, metrics *monitoring.Metrics) *JiraAdapter {
	if config.PageSize <= 0 || config.PageSize > DefaultPageSize {
		config.PageSize = DefaultPageSize
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = resilience.ExternalAPIRetryConfig()
	}
	if config.Retry.RetryableErrors == nil {
		config.Retry.RetryableErrors = apperrors.IsRetryableError
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	cb := resilience.NewCircuitBreaker(config.Breaker)

	poolConfig := resilience.DefaultPoolConfig()
	if config.Timeout > 0 {
		poolConfig.RequestTimeout = config.Timeout
	}

	limit := rate.Inf
	if config.PageInterval > 0 {
		limit = rate.Every(config.PageInterval)
	}

	if logger == nil {
		logger = monitoring.NewLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	return &JiraAdapter{
		config:  config,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(config.Email+":"+config.APIToken)),
		pool:    resilience.NewConnectionPool(poolConfig, cb),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: metrics,
	}
}

// FetchProjects lists every project visible to the configured account
func (j *JiraAdapter) FetchProjects(ctx context.Context) ([]map[string]any, error) {
	var projects []map[string]any
	if err := j.getJSON(ctx, projectEndpoint, nil, &projects); err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}
	return projects, nil
}

type searchPage struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	Issues     []map[string]any `json:"issues"`
}

// SearchIssues runs jql and returns every matching issue, following pages
// until total is reached or a page comes back empty.
func (j *JiraAdapter) SearchIssues(ctx context.Context, jql string, fields []string) ([]map[string]any, error) {
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}

	var issues []map[string]any
	startAt := 0
	for {
		if err := j.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		query := url.Values{}
		query.Set("jql", jql)
		query.Set("fields", strings.Join(fields, ","))
		query.Set("startAt", strconv.Itoa(startAt))
		query.Set("maxResults", strconv.Itoa(j.config.PageSize))

		var page searchPage
		if err := j.getJSON(ctx, searchEndpoint, query, &page); err != nil {
			return nil, fmt.Errorf("failed to search issues at offset %d: %w", startAt, err)
		}

		issues = append(issues, page.Issues...)
		startAt += len(page.Issues)

		if len(page.Issues) == 0 || startAt >= page.Total {
			return issues, nil
		}
	}
}

// getJSON performs an authenticated GET with retries and decodes the body into out.
// Numbers decode as json.Number so their text survives flattening unchanged.
func (j *JiraAdapter) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	target := j.config.BaseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": j.auth,
		"User-Agent":    "jira-dev-ranking/1.0",
	}

	start := time.Now()
	resp, err := resilience.RetryHTTP(ctx, j.config.Retry, func() (*http.Response, error) {
		j.metrics.IncrementJiraCalls()
		return j.pool.DoRequest(ctx, http.MethodGet, target, headers, nil)
	})
	duration := time.Since(start)

	if err != nil && resp == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		j.metrics.RecordExternalAPIRequest(jiraAPIName, false)
		j.logger.ExternalAPILogger(jiraAPIName, http.MethodGet, endpoint, 0, duration, false)
		return apperrors.NewExternalAPIError(jiraAPIName, err)
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	j.metrics.RecordExternalAPIRequest(jiraAPIName, success)
	j.logger.ExternalAPILogger(jiraAPIName, http.MethodGet, endpoint, resp.StatusCode, duration, success)

	if !success {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("jira API error: status %d, body: %s", resp.StatusCode, bytes.TrimSpace(body))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.NewUnauthorizedError("JIRA rejected the configured credentials", cause)
		case http.StatusTooManyRequests:
			return apperrors.NewRateLimitError(resp.Header.Get("Retry-After"))
		}
		return apperrors.NewExternalAPIError(jiraAPIName, cause)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// GetPoolStats returns connection pool statistics
func (j *JiraAdapter) GetPoolStats() map[string]interface{} {
	return j.pool.GetStats()
}

// Close closes the connection pool
func (j *JiraAdapter) Close() error {
	return j.pool.Close()
}

// FlattenIssue flattens a decoded JSON object into dotted columns
// (fields.creator.displayName, ...). Arrays are stored JSON-encoded and
// nulls are omitted.
func FlattenIssue(obj map[string]any) types.Row {
	row := make(types.Row)
	flatten(row, "", obj)
	return row
}

func flatten(row types.Row, prefix string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case map[string]any:
		for key, child := range v {
			name := key
			if prefix != "" {
				name = prefix + "." + key
			}
			flatten(row, name, child)
		}
	case []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return
		}
		row[prefix] = string(encoded)
	case string:
		row[prefix] = v
	case json.Number:
		row[prefix] = v.String()
	case bool:
		row[prefix] = strconv.FormatBool(v)
	case float64:
		row[prefix] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		row[prefix] = fmt.Sprint(v)
	}
}
