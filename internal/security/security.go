package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
)

const developerNameKey = "developer_name"

var (
	scriptPattern  = regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	spacePattern   = regexp.MustCompile(`\s+`)

	suspiciousPatterns = []string{
		`<script`, `</script>`, `javascript:`,
		`union select`, `drop table`, `alter table`,
		`--`, `/*`, `*/`,
	}

	htmlEntities = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#x27;", "'",
		"&#39;", "'",
	)
)

// SecurityConfig holds request hardening settings
type SecurityConfig struct {
	MaxInputLength int           `json:"max_input_length"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxInputLength: 200,
		RequestTimeout: 30 * time.Second,
	}
}

// SecurityMiddleware validates inbound dashboard requests
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.MaxInputLength <= 0 {
		config.MaxInputLength = DefaultSecurityConfig().MaxInputLength
	}
	return &SecurityMiddleware{config: config}
}

// ValidateInput rejects oversized, malformed, or injection-shaped input
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	if input == "" {
		return fmt.Errorf("input is empty")
	}
	if len(input) > sm.config.MaxInputLength {
		return fmt.Errorf("input exceeds maximum length of %d characters", sm.config.MaxInputLength)
	}
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("input contains invalid characters")
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}

	inputLower := strings.ToLower(input)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(inputLower, pattern) {
			return fmt.Errorf("input contains suspicious patterns")
		}
	}
	return nil
}

// SanitizeInput strips markup and collapses whitespace
func (sm *SecurityMiddleware) SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = scriptPattern.ReplaceAllString(input, "")
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = spacePattern.ReplaceAllString(input, " ")
	return htmlEntities.Replace(input)
}

// ValidateDeveloperParam sanitizes and validates the named path parameter
// and stores the result for DeveloperName.
func (sm *SecurityMiddleware) ValidateDeveloperParam(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := sm.SanitizeInput(c.Param(param))
		if err := sm.ValidateInput(name); err != nil {
			_ = c.Error(apperrors.NewValidationError(fmt.Sprintf("invalid developer name: %v", err)))
			c.Abort()
			return
		}
		c.Set(developerNameKey, name)
		c.Next()
	}
}

// DeveloperName returns the name validated by ValidateDeveloperParam
func DeveloperName(c *gin.Context) string {
	return c.GetString(developerNameKey)
}

// ValidateContentType rejects bodies that are not JSON or form encoded
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType == "" {
		c.Next()
		return
	}

	for _, allowed := range []string{"application/json", "application/x-www-form-urlencoded"} {
		if strings.Contains(contentType, allowed) {
			c.Next()
			return
		}
	}

	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
}

// RequestTimeout bounds the request context
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	if sm.config.RequestTimeout <= 0 {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))
	c.Next()
}
