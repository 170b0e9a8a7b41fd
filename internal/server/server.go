package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/leaderboard"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/middleware"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/pipeline"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/ratelimit"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/security"
)

const (
	swaggerPrefix   = "/swagger/"
	refreshEndpoint = "rankings_refresh"
)

// Ranker runs the ranking pipeline on demand
type Ranker interface {
	Rank(ctx context.Context, trigger string) (*pipeline.Result, error)
}

// Schedule exposes the daily update job to the health endpoint
type Schedule interface {
	Next() time.Time
	Skipped() int
}

// StatsFunc reports statistics for one pooled resource
type StatsFunc func() map[string]interface{}

// CheckFunc probes one dependency for the health endpoint
type CheckFunc func(ctx context.Context) error

// Options wires the dashboard API
type Options struct {
	Leaderboard *leaderboard.Service
	Ranker      Ranker
	Tokens      *security.TokenService
	// RateLimiter is optional; nil disables rate limiting
	RateLimiter *ratelimit.RateLimiter
	Schedule    Schedule
	Pools       map[string]StatsFunc
	Checks      map[string]CheckFunc

	Metrics *monitoring.Metrics
	Logger  *monitoring.Logger

	Version            string
	AllowedOrigins     []string
	TopN               int
	RefreshLimitPerMin int
	RequestTimeout     time.Duration
	RefreshTimeout     time.Duration
	EnableHSTS         bool
}

// Server serves dashboard data over HTTP
type Server struct {
	opts        Options
	compression *middleware.CompressionMiddleware
	router      *gin.Engine
}

// New builds the router and registers every route
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = monitoring.NewLogger()
	}
	if opts.Tokens == nil {
		opts.Tokens = security.NewTokenService("")
	}
	if opts.TopN <= 0 {
		opts.TopN = leaderboard.DefaultTopN
	}
	if opts.RefreshLimitPerMin <= 0 {
		opts.RefreshLimitPerMin = 2
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Minute
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		opts:        opts,
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// HTTPServer wraps the router in an http.Server listening on addr
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()

	securityMiddleware := security.NewSecurityMiddleware(security.SecurityConfig{
		RequestTimeout: s.opts.RequestTimeout,
	})

	// monitoring first so every request is counted
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.opts.Metrics, s.opts.Logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.opts.Logger))

	// recovery wraps the error handler so a failed render still answers 500
	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())

	r.Use(security.SecurityHeadersMiddleware(s.opts.EnableHSTS, swaggerPrefix))
	r.Use(cors.New(s.corsConfig()))
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(s.compression.Handler())

	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)
	r.GET(swaggerPrefix+"*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	if s.opts.RateLimiter != nil {
		api.Use(s.opts.RateLimiter.IPRateLimitMiddleware())
	}

	api.GET("/rankings", s.rankings)
	api.GET("/rankings/top", s.top)
	api.GET("/rankings/charts", s.charts)
	api.GET("/developers/:name", securityMiddleware.ValidateDeveloperParam("name"), s.developer)
	api.GET("/runs", s.runs)

	refresh := []gin.HandlerFunc{s.opts.Tokens.RequireAdmin()}
	if s.opts.RateLimiter != nil {
		refresh = append(refresh, s.opts.RateLimiter.EndpointRateLimitMiddleware(refreshEndpoint, s.opts.RefreshLimitPerMin))
	}
	refresh = append(refresh, s.refresh)
	api.POST("/rankings/refresh", refresh...)

	return r
}

func (s *Server) corsConfig() cors.Config {
	config := cors.DefaultConfig()
	if len(s.opts.AllowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.AllowedOrigins
	}
	config.AllowHeaders = append(config.AllowHeaders, "Authorization", monitoring.RequestIDHeader)
	config.ExposeHeaders = []string{monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	config.MaxAge = 12 * time.Hour
	return config
}

// abortWith maps domain errors onto API errors and hands them to the error handler
func abortWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, leaderboard.ErrNoRanking):
		err = apperrors.NewNotFoundError("ranking", "latest")
	case errors.Is(err, leaderboard.ErrDeveloperNotFound):
		err = apperrors.NewNotFoundError("developer", security.DeveloperName(c))
	case errors.Is(err, pipeline.ErrRunInProgress):
		err = apperrors.NewConflictError("A ranking run is already in progress", err)
	}
	_ = c.Error(err)
	c.Abort()
}
