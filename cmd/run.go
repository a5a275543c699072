package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/ingest"
	"github.com/xkilldash9x/formpilot/internal/metrics"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/reporting"
)

// newRunCmd creates the `run` command.
func newRunCmd(factory componentFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <targets.csv>",
		Short: "Finds, fills and submits the contact form of every target in a CSV file",
		Long: `Reads company_name, url, contact_url and message columns from a CSV file
(UTF-8, Shift_JIS or EUC-JP) and processes the targets one at a time.

In sequential mode every tab is closed after its target. In supervised mode
tabs that were not confirmed stay open for an operator, and the command
waits until they are closed.

The first interrupt finishes the current target and skips the rest. A second
interrupt closes the browser immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			batch, err := ingest.Load(args[0])
			if err != nil {
				return err
			}
			logger.Info("Targets loaded.",
				zap.Int("targets", len(batch.Targets)),
				zap.String("encoding", batch.Encoding),
				zap.Bool("header", batch.HasHeader),
				zap.Int("duplicates_dropped", batch.Duplicates),
			)

			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			_, err = runBatch(ctx, cfg, batch.Targets, factory, runIO{
				Out:      cmd.OutOrStdout(),
				Progress: cmd.ErrOrStderr(),
				Signals:  sigs,
			}, logger)
			return err
		},
	}

	runCmd.Flags().String("mode", string(schemas.ModeSequential), "Run mode: 'sequential' or 'supervised'")
	runCmd.Flags().StringP("output", "o", "", "Write the run report to this path")
	runCmd.Flags().StringP("format", "f", "json", "Report format: 'json' or 'csv'")
	runCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address during the run (e.g. ':9090')")
	runCmd.Flags().Duration("min-delay", 0, "Minimum time between two processed targets")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
	runCmd.Flags().Bool("humanoid", true, "Emulate human pointer and keyboard input")

	return runCmd
}

// runIO carries the terminal plumbing of a run.
type runIO struct {
	Out      io.Writer
	Progress io.Writer
	Signals  <-chan os.Signal
}

// runBatch processes targets and writes the summary and report. It fails
// only when the run could not start.
func runBatch(ctx context.Context, cfg config.Interface, targets []schemas.TargetRecord, factory componentFactory, rio runIO, logger *zap.Logger) (*schemas.RunSummary, error) {
	rc := cfg.Run()

	comps, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer comps.Shutdown(logger)

	m := metrics.New()
	processor, err := orchestrator.NewProcessor(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	bar := newProgressBar(rio.Progress, len(targets))
	runner, err := orchestrator.NewRunner(comps.Browser, processor,
		orchestrator.RunnerConfig{Mode: rc.Mode, Retention: rc.Retention}, logger,
		orchestrator.WithStore(comps.Store),
		orchestrator.WithPacer(orchestrator.NewPacer(rc.MinDelay)),
		orchestrator.WithNotifier(progressNotifier(bar)),
		orchestrator.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	var summary schemas.RunSummary
	var g errgroup.Group
	g.Go(func() error {
		defer stopWatching()
		summary = runner.Run(ctx, runID, targets)
		return nil
	})
	g.Go(func() error {
		watchInterrupts(watchCtx, rio.Signals, runner, comps.Browser, logger)
		return nil
	})
	if rc.MetricsAddr != "" {
		g.Go(func() error {
			if err := m.Serve(watchCtx, rc.MetricsAddr, logger); err != nil {
				logger.Warn("Metrics server stopped.", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()

	printSummary(rio.Out, summary)
	if rc.Output != "" {
		if err := writeReport(rc.Format, rc.Output, &summary); err != nil {
			logger.Error("Failed to write report.", zap.Error(err))
		} else {
			fmt.Fprintf(rio.Out, "\nReport written to %s\n", rc.Output)
		}
	}

	if pending := runner.State().Pending; len(pending) > 0 && comps.WaitTabs != nil {
		printPending(rio.Out, pending)
		waitForTabs(ctx, rio.Signals, comps.WaitTabs, logger)
	}
	return &summary, nil
}

// stopper is the part of the runner the interrupt watcher drives.
type stopper interface {
	Stop()
}

// watchInterrupts turns the first signal into a graceful stop and the second
// into a browser shutdown. It returns when ctx ends or after the shutdown.
func watchInterrupts(ctx context.Context, sigs <-chan os.Signal, runner stopper, browser schemas.BrowserManager, logger *zap.Logger) {
	interrupts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			interrupts++
			if interrupts == 1 {
				logger.Warn("Interrupt received. Finishing the current target. Interrupt again to abort.", zap.String("signal", sig.String()))
				runner.Stop()
				continue
			}
			logger.Warn("Second interrupt. Closing the browser.", zap.String("signal", sig.String()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := browser.Shutdown(shutdownCtx); err != nil {
				logger.Error("Browser shutdown failed.", zap.Error(err))
			}
			cancel()
			return
		}
	}
}

// waitForTabs blocks until the operator has closed every pending tab or
// sends an interrupt.
func waitForTabs(ctx context.Context, sigs <-chan os.Signal, wait func(context.Context) error, logger *zap.Logger) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	logger.Info("Waiting for pending tabs to be closed.")
	if err := wait(waitCtx); err != nil {
		logger.Info("Stopped waiting for pending tabs.", zap.Error(err))
		return
	}
	logger.Info("All pending tabs closed.")
}

func writeReport(format, path string, summary *schemas.RunSummary) error {
	reporter, err := reporting.New(format, path)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(summary); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return reporter.Close()
}
