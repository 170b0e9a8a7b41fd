package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/ZanzyTHEbar/jira-dev-ranking/docs"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/jobs"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/ratelimit"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/security"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/server"
)

func (h *Handler) serveCmd() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and run the daily update schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.serve(cmd.Context(), !noSchedule)
		},
	}

	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Do not run the daily update schedule")

	return cmd
}

func (h *Handler) serve(ctx context.Context, withSchedule bool) error {
	cfg := h.cfg

	a, err := newApp(cfg, h.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := server.Options{
		Leaderboard: a.leaderboard,
		Ranker:      a.runner,
		Tokens:      security.NewTokenService(cfg.Server.AdminSecret),
		Pools: map[string]server.StatsFunc{
			"database": a.db.GetPoolStats,
		},
		Metrics:            a.metrics,
		Logger:             a.logger,
		Version:            h.version,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		TopN:               cfg.Dashboard.TopN,
		RefreshLimitPerMin: cfg.RateLimit.RefreshLimitPerMin,
		RequestTimeout:     cfg.Server.RequestTimeout,
		RefreshTimeout:     cfg.Server.RefreshTimeout,
		EnableHSTS:         cfg.IsProduction(),
	}
	if a.jira != nil {
		opts.Pools["jira"] = a.jira.GetPoolStats
	}
	if !opts.Tokens.Enabled() {
		slog.Warn("No admin secret configured, ranking refresh endpoint is disabled")
	}

	if cfg.RateLimit.Enabled {
		redisClient, err := ratelimit.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("Redis unavailable, rate limiting in memory", "error", err)
		}
		defer redisClient.Close()

		limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
			IPLimitPerMin:   cfg.RateLimit.IPLimitPerMin,
			BurstMultiplier: cfg.RateLimit.BurstMultiplier,
		}, a.metrics)
		defer limiter.Close()
		opts.RateLimiter = limiter
		opts.Pools["redis"] = redisClient.GetPoolStats
		if redisClient.IsEnabled() {
			opts.Checks = map[string]server.CheckFunc{"redis": redisClient.HealthCheck}
		}
	}

	var scheduler *jobs.Scheduler
	if withSchedule && cfg.Schedule.Enabled {
		if err := a.requireJira(); err != nil {
			return fmt.Errorf("daily update schedule needs JIRA credentials: %w", err)
		}
		scheduler, err = jobs.NewScheduler(cfg.Schedule.Spec, cfg.Location(), cfg.Schedule.Timeout, a.runner)
		if err != nil {
			return err
		}
		opts.Schedule = scheduler
		scheduler.Start()
	}

	srv := server.New(opts).HTTPServer(":" + cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exited")
	return nil
}
