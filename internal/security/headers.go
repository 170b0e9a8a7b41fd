package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiCSP     = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	swaggerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'"
)

// SecurityHeadersMiddleware adds security headers to every response.
// The swagger UI under swaggerPrefix gets a CSP that lets its bundle run.
func SecurityHeadersMiddleware(enableHSTS bool, swaggerPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if swaggerPrefix != "" && strings.HasPrefix(c.Request.URL.Path, swaggerPrefix) {
			c.Header("Content-Security-Policy", swaggerCSP)
		} else {
			c.Header("Content-Security-Policy", apiCSP)
		}

		if enableHSTS {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
