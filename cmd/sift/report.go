package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/storage"
)

var (
	reportFormat   string
	reportSince    time.Duration
	reportQuery    string
	reportStrategy string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise the stored retrieval attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		backend, err := openBackend(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		if backend == nil {
			return errors.New("no storage backend configured (set storage.backend)")
		}
		defer backend.Close()

		filter := storage.Filter{Query: reportQuery, Strategy: reportStrategy}
		if reportSince > 0 {
			since := time.Now().Add(-reportSince)
			filter.Since = &since
		}
		attempts, err := backend.Query(ctx, filter)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}
		return report.Write(os.Stdout, reportFormat, report.GenerateSummary(attempts))
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text, json or html")
	reportCmd.Flags().DurationVar(&reportSince, "since", 0, "Only attempts newer than this (e.g. 24h)")
	reportCmd.Flags().StringVar(&reportQuery, "query", "", "Only attempts for this query")
	reportCmd.Flags().StringVar(&reportStrategy, "strategy", "", "Only attempts by this strategy (http or browser)")
}
