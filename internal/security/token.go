package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
)

const (
	// RoleAdmin is the only role allowed to trigger ranking runs over HTTP
	RoleAdmin = "admin"

	adminSubjectKey = "admin_subject"
	defaultTokenTTL = 24 * time.Hour
)

var (
	ErrAdminDisabled = errors.New("admin endpoints are disabled: no admin secret configured")
	ErrNotAdmin      = errors.New("token does not carry the admin role")
)

// TokenService issues and verifies HS256 admin tokens
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a token service. An empty secret disables admin access.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether admin tokens can be issued and verified
func (s *TokenService) Enabled() bool {
	return len(s.secret) > 0
}

// GenerateAdminToken signs a token for subject carrying the admin role
func (s *TokenService) GenerateAdminToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrAdminDisabled
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": RoleAdmin,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies tokenString and returns its subject
func (s *TokenService) ValidateToken(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", ErrAdminDisabled
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if role, _ := claims["role"].(string); role != RoleAdmin {
		return "", ErrNotAdmin
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("subject not found in token")
	}
	return subject, nil
}

// RequireAdmin rejects requests without a valid admin bearer token
func (s *TokenService) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			_ = c.Error(apperrors.NewForbiddenError(ErrAdminDisabled.Error()))
			c.Abort()
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			_ = c.Error(apperrors.NewUnauthorizedError("Missing bearer token", nil))
			c.Abort()
			return
		}

		subject, err := s.ValidateToken(tokenString)
		switch {
		case errors.Is(err, ErrNotAdmin):
			_ = c.Error(apperrors.NewForbiddenError(err.Error()))
			c.Abort()
			return
		case err != nil:
			_ = c.Error(apperrors.NewUnauthorizedError("Invalid bearer token", err))
			c.Abort()
			return
		}

		c.Set(adminSubjectKey, subject)
		c.Next()
	}
}

// AdminSubject returns the subject authenticated by RequireAdmin
func AdminSubject(c *gin.Context) string {
	return c.GetString(adminSubjectKey)
}
