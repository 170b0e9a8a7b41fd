package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/leaderboard"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/pipeline"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/security"
)

const maxRunsLimit = 100

// HealthResponse reports liveness and the age of the published ranking
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	LastRankingAt *time.Time        `json:"last_ranking_at,omitempty"`
	NextUpdateAt  *time.Time        `json:"next_update_at,omitempty"`
	SkippedTicks  int               `json:"skipped_ticks"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// TopResponse is the top-N leaderboard
type TopResponse struct {
	RunID       string                     `json:"run_id"`
	LastUpdated time.Time                  `json:"last_updated"`
	Rows        []leaderboard.DeveloperRow `json:"rows"`
}

// health godoc
// @Summary      Service health
// @Tags         system
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   s.opts.Version,
	}

	if runs, err := s.opts.Leaderboard.Runs(c.Request.Context(), 1); err == nil && len(runs) > 0 {
		resp.LastRankingAt = &runs[0].CreatedAt
	} else if err != nil {
		resp.Status = "degraded"
	}

	for name, check := range s.opts.Checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(s.opts.Checks))
		}
		if err := check(c.Request.Context()); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if s.opts.Schedule != nil {
		next := s.opts.Schedule.Next()
		resp.NextUpdateAt = &next
		resp.SkippedTicks = s.opts.Schedule.Skipped()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// metrics godoc
// @Summary      Runtime metrics
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /metrics [get]
func (s *Server) metrics(c *gin.Context) {
	pools := make(map[string]interface{}, len(s.opts.Pools))
	for name, stats := range s.opts.Pools {
		pools[name] = stats()
	}

	resp := gin.H{
		"app":               s.opts.Metrics.GetStats(),
		"rate_limit":        s.opts.Metrics.GetRateLimitStats(),
		"leaderboard_cache": s.opts.Leaderboard.GetCacheStats(),
		"compression":       s.compression.GetStats(),
		"pools":             pools,
	}
	if s.opts.RateLimiter != nil {
		resp["limiter"] = s.opts.RateLimiter.GetStats()
	}
	c.JSON(http.StatusOK, resp)
}

// rankings godoc
// @Summary      Latest ranking
// @Description  Rows of the latest ranking, optionally filtered by developer names and an inclusive score range.
// @Tags         rankings
// @Produce      json
// @Param        names      query  string  false  "Comma separated developer names"
// @Param        min_score  query  number  false  "Minimum TotalScore (inclusive)"
// @Param        max_score  query  number  false  "Maximum TotalScore (inclusive)"
// @Success      200  {object}  leaderboard.Snapshot
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/rankings [get]
func (s *Server) rankings(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		abortWith(c, err)
		return
	}

	snapshot, err := s.opts.Leaderboard.Rankings(c.Request.Context(), filter)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// top godoc
// @Summary      Top developers
// @Tags         rankings
// @Produce      json
// @Param        n  query  int  false  "How many developers to return"
// @Success      200  {object}  TopResponse
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/rankings/top [get]
func (s *Server) top(c *gin.Context) {
	n, err := positiveInt(c, "n", s.opts.TopN)
	if err != nil {
		abortWith(c, err)
		return
	}

	ctx := c.Request.Context()
	rows, err := s.opts.Leaderboard.Top(ctx, n)
	if err != nil {
		abortWith(c, err)
		return
	}
	snapshot, err := s.opts.Leaderboard.Latest(ctx)
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, TopResponse{
		RunID:       snapshot.RunID,
		LastUpdated: snapshot.LastUpdated,
		Rows:        rows,
	})
}

// charts godoc
// @Summary      Dashboard chart series
// @Tags         rankings
// @Produce      json
// @Param        n  query  int  false  "Size of the top developers series"
// @Success      200  {object}  leaderboard.Charts
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/rankings/charts [get]
func (s *Server) charts(c *gin.Context) {
	n, err := positiveInt(c, "n", s.opts.TopN)
	if err != nil {
		abortWith(c, err)
		return
	}

	charts, err := s.opts.Leaderboard.Charts(c.Request.Context(), n)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, charts)
}

// developer godoc
// @Summary      One developer
// @Tags         developers
// @Produce      json
// @Param        name  path  string  true  "Developer display name"
// @Success      200  {object}  leaderboard.DeveloperRow
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/developers/{name} [get]
func (s *Server) developer(c *gin.Context) {
	row, err := s.opts.Leaderboard.Developer(c.Request.Context(), security.DeveloperName(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// runs godoc
// @Summary      Recent ranking runs
// @Tags         rankings
// @Produce      json
// @Param        limit  query  int  false  "Maximum number of runs"
// @Success      200  {array}  database.RankingRun
// @Router       /api/runs [get]
func (s *Server) runs(c *gin.Context) {
	limit, err := positiveInt(c, "limit", 20)
	if err != nil {
		abortWith(c, err)
		return
	}

	runs, err := s.opts.Leaderboard.Runs(c.Request.Context(), min(limit, maxRunsLimit))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// refresh godoc
// @Summary      Re-rank the current exports
// @Description  Runs the ranking pipeline over the current issue exports and republishes the dashboard.
// @Tags         rankings
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  pipeline.Result
// @Failure      401  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Failure      429  {object}  map[string]interface{}
// @Router       /api/rankings/refresh [post]
func (s *Server) refresh(c *gin.Context) {
	if s.opts.Ranker == nil {
		abortWith(c, apperrors.NewConfigurationError("ranking pipeline is not configured", nil))
		return
	}

	// a refresh outlives the request deadline and client disconnects
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.RefreshTimeout)
	defer cancel()

	result, err := s.opts.Ranker.Rank(ctx, pipeline.TriggerAPI)
	if err != nil {
		abortWith(c, err)
		return
	}

	s.opts.Logger.SecurityLogger("ranking_refreshed", c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
		"admin":  security.AdminSubject(c),
		"run_id": result.RunID,
	})
	c.JSON(http.StatusOK, result)
}

func parseFilter(c *gin.Context) (leaderboard.Filter, error) {
	var filter leaderboard.Filter
	invalid := map[string]string{}

	if raw := c.Query("names"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter.Names = append(filter.Names, name)
			}
		}
	}

	for param, target := range map[string]**float64{"min_score": &filter.MinScore, "max_score": &filter.MaxScore} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			invalid[param] = "must be a number"
			continue
		}
		*target = &v
	}

	if filter.MinScore != nil && filter.MaxScore != nil && *filter.MinScore > *filter.MaxScore {
		invalid["min_score"] = "must not exceed max_score"
	}

	if len(invalid) > 0 {
		return filter, apperrors.NewValidationErrorWithMap(invalid)
	}
	return filter, nil
}

func positiveInt(c *gin.Context, param string, fallback int) (int, error) {
	raw := c.Query(param)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.NewValidationError(param + " must be a positive integer")
	}
	return n, nil
}
