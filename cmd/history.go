package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/observability"
)

// newHistoryCmd creates the `history` command.
func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Lists the most recent outcomes from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			backend, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := backend.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			printHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of outcomes to show")
	return historyCmd
}

// newPruneCmd creates the `prune` command.
func newPruneCmd(provider storeProvider) *cobra.Command {
	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Deletes outcomes older than the retention window",
		Long: `Deletes stored outcomes that finished before the retention window
(run.retention, 30 days by default). Meant to run once a day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			window := cfg.Run().Retention
			if olderThan > 0 {
				window = olderThan
			}
			backend, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			cutoff := time.Now().Add(-window)
			n, err := backend.Prune(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune outcomes: %w", err)
			}
			observability.GetLogger().Info("Outcomes pruned.", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d outcome(s) finished before %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Override the retention window (e.g. 2160h)")
	return pruneCmd
}
