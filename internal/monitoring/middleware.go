package monitoring

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request identifier in both directions
const RequestIDHeader = "X-Request-ID"

const (
	maxRequestIDLen  = 64
	slowRequest      = 5 * time.Second
	largeRequestBody = 10000
)

// RequestIDMiddleware keeps a caller-supplied request ID or assigns a fresh
// UUID, and echoes it back on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
			c.Request.Header.Set(RequestIDHeader, id)
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// MonitoringMiddleware counts and logs every request once the handler chain
// has finished.
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.IncrementRequest()
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		req := c.Request

		metrics.RecordResponseTime(elapsed)
		metrics.RecordRequestByStatus(status)
		if status >= http.StatusBadRequest {
			metrics.IncrementError()
		}

		logger.RequestLogger(req.Method, req.URL.Path, c.ClientIP(), req.UserAgent(), status, elapsed)
		for _, ginErr := range c.Errors {
			logger.APIErrorLogger(ginErr.Err, req.Method, req.URL.Path, c.ClientIP(), status)
		}

		if elapsed > slowRequest {
			logger.PerformanceLogger("slow_request", elapsed.Seconds(), "seconds")
		}
		if status >= http.StatusInternalServerError {
			logger.SystemLogger("server_error", req.Method+" "+req.URL.Path+" returned "+http.StatusText(status))
		}
	}
}

// SecurityMonitoringMiddleware logs requests that look like scanning or
// injection attempts. Requests are never blocked here.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if kind, details := classifySuspicious(c.Request); kind != "" {
			details["type"] = kind
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), c.Request.UserAgent(), details)
		}
		c.Next()
	}
}

// classifySuspicious returns the strongest signal found on r. The user agent
// wins over body size, which wins over the query string.
func classifySuspicious(r *http.Request) (string, map[string]interface{}) {
	switch ua := r.UserAgent(); {
	case containsSuspiciousUserAgent(ua):
		return "suspicious_user_agent", map[string]interface{}{"user_agent": ua}
	case r.Method == http.MethodPost && r.ContentLength > largeRequestBody:
		return "large_request_body", map[string]interface{}{"size_bytes": r.ContentLength}
	case containsSQLInjectionPatterns(r.URL.RawQuery):
		return "potential_sql_injection", map[string]interface{}{"query": r.URL.RawQuery}
	}
	return "", nil
}

var sqlInjectionPatterns = []string{
	"union select", "union all", "select * from", "drop table", "delete from",
	"';--", "/*", "*/", " xp_", " sp_",
}

var scannerAgents = []string{
	"sqlmap", "nmap", "masscan", "zmap", "dirbuster",
	"gobuster", "nikto", "acunetix", "openvas", "nessus",
}

func containsSQLInjectionPatterns(query string) bool {
	return containsAny(strings.ToLower(query), sqlInjectionPatterns)
}

func containsSuspiciousUserAgent(userAgent string) bool {
	return containsAny(strings.ToLower(userAgent), scannerAgents)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
