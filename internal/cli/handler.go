package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/config"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
)

// Handler handles CLI commands
type Handler struct {
	cfg        *config.Config
	configPath string
	version    string
	logger     *monitoring.Logger
	rootCmd    *cobra.Command
}

// New creates a new CLI handler
func New(version string) *Handler {
	h := &Handler{version: version}
	h.setupCommands()
	return h
}

func (h *Handler) setupCommands() {
	h.rootCmd = &cobra.Command{
		Use:           "devrank",
		Short:         "JIRA developer productivity ranking",
		Long:          "Extracts JIRA issues, ranks developers by a weighted productivity score and serves the dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return h.loadConfig()
		},
	}

	h.rootCmd.PersistentFlags().StringVarP(&h.configPath, "config", "c", "",
		"Path to configuration file")

	h.rootCmd.AddCommand(h.serveCmd())
	h.rootCmd.AddCommand(h.extractCmd())
	h.rootCmd.AddCommand(h.rankCmd())
	h.rootCmd.AddCommand(h.updateCmd())
	h.rootCmd.AddCommand(h.tokenCmd())
	h.rootCmd.AddCommand(h.versionCmd())
}

func (h *Handler) loadConfig() error {
	cfg, err := config.Load(h.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	h.cfg = cfg

	h.logger = monitoring.NewLoggerWithConfig(cfg.Logging, os.Stdout)
	slog.SetDefault(h.logger.Logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Debug("Configuration loaded", "env", cfg.App.Env, "log_level", cfg.Logging.Level)
	return nil
}

// Execute runs the CLI
func (h *Handler) Execute() error {
	return h.rootCmd.Execute()
}

// Run is the main entry point
func Run(version string) {
	handler := New(version)
	if err := handler.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
