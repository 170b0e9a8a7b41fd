package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
)

// IPRateLimitMiddleware limits dashboard requests per client IP
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return rl.enforce(
		func(ctx context.Context, ip string) (*Result, error) { return rl.AllowIP(ctx, ip) },
		func(c *gin.Context, res *Result) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		},
		func(res *Result) string {
			rl.count((*monitoring.Metrics).IncrementRateLimitIPBlock)
			return fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", res.Limit)
		},
	)
}

// EndpointRateLimitMiddleware applies a tighter per-IP limit to one endpoint
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limitPerMin int) gin.HandlerFunc {
	return rl.enforce(
		func(ctx context.Context, ip string) (*Result, error) {
			return rl.AllowEndpoint(ctx, endpoint, ip, limitPerMin)
		},
		func(c *gin.Context, res *Result) {
			c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(res.Remaining))
		},
		func(res *Result) string {
			rl.count(func(m *monitoring.Metrics) { m.IncrementRateLimitEndpoint(endpoint) })
			return fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for %s", res.Limit, endpoint)
		},
	)
}

// enforce runs check for the client IP, lets headers describe the result and
// rejects with 429 when the request is over the limit. blocked returns the
// message for the response body. A failing check never blocks the request.
func (rl *RateLimiter) enforce(
	check func(ctx context.Context, ip string) (*Result, error),
	headers func(c *gin.Context, res *Result),
	blocked func(res *Result) string,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		res, err := check(c.Request.Context(), ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "path", c.FullPath(), "error", err)
			c.Next()
			return
		}

		headers(c, res)
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(res.RetryAfter.Seconds())
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"message":     blocked(res),
			"retry_after": retryAfter,
			"reset_at":    res.ResetAt.Unix(),
		})
	}
}
