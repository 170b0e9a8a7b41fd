package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/pipeline"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/security"
)

func (h *Handler) extractCmd() *cobra.Command {
	var (
		since   time.Duration
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Export every project's JIRA issues to CSV",
		Long:  "Fetches all projects and their issues and atomically replaces the issue export directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(h.cfg, h.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireJira(); err != nil {
				return err
			}

			lookback := h.cfg.Jira.Lookback
			if cmd.Flags().Changed("since") {
				lookback = since
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			summary, err := a.extractor(lookback).Run(ctx)
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
			return printJSON(summary)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only fetch issues updated within this window (0 fetches everything)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Hour, "Extraction timeout")

	return cmd
}

func (h *Handler) rankCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank developers from the current issue exports",
		Long:  "Loads every *_issues.csv export, scores developers and writes the ranking CSV and history",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(h.cfg, h.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := a.runner.Rank(ctx, pipeline.TriggerCLI)
			if err != nil {
				return fmt.Errorf("ranking failed: %w", err)
			}
			return printJSON(result)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Minute, "Ranking timeout")

	return cmd
}

func (h *Handler) updateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run the daily update: incremental extract, then rank",
		Long:  "Extracts issues updated within the daily lookback window and ranks them; ranking is skipped when extraction fails",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(h.cfg, h.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireJira(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := a.runner.Update(ctx, pipeline.TriggerCLI)
			if err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			return printJSON(result)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Hour, "Update timeout")

	return cmd
}

func (h *Handler) tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token for the refresh endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := security.NewTokenService(h.cfg.Server.AdminSecret).GenerateAdminToken(subject, ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "admin", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}

func (h *Handler) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("devrank %s\n", h.version)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
