package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
)

// newProbeCmd creates the `probe` command.
func newProbeCmd(factory browserFactory) *cobra.Command {
	probeCmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Shows how a page is scored, which links and forms are found and how fields are classified",
		Long: `Loads a single page and prints the relevance score, ranked contact links,
detected form groups with the semantic type of every field, and any
verification widgets. Nothing is filled or submitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runProbe(ctx, cfg, factory, normalizeTargetURL(args[0]), cmd, observability.GetLogger())
		},
	}
	probeCmd.Flags().Bool("headless", true, "Run the browser without a window")
	return probeCmd
}

func runProbe(ctx context.Context, cfg config.Interface, factory browserFactory, rawURL string, cmd *cobra.Command, logger *zap.Logger) error {
	mgr, err := factory.NewBrowser(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	defer (&runComponents{Browser: mgr}).Shutdown(logger)

	page, err := mgr.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open a tab: %w", err)
	}

	processor, err := orchestrator.NewProcessor(cfg, logger, nil)
	if err != nil {
		return err
	}
	report, err := processor.Probe(ctx, page, rawURL)
	if err != nil {
		return fmt.Errorf("probe of %s failed: %w", rawURL, err)
	}
	printProbe(cmd.OutOrStdout(), report)
	return nil
}

// normalizeTargetURL adds a scheme to bare host names.
func normalizeTargetURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}
