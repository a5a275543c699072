package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

// newLogsCmd creates the `logs` command.
func newLogsCmd() *cobra.Command {
	var (
		follow bool
		file   string
	)
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the log file, optionally following new lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			path := file
			if path == "" {
				path = cfg.Logger().LogFile
			}
			if path == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}
			return tailLog(ctx, path, follow, cmd.OutOrStdout())
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	logsCmd.Flags().StringVar(&file, "file", "", "Log file to read (defaults to logger.log_file)")
	return logsCmd
}

// tailLog copies path to w. With follow it keeps going across rotations
// until ctx ends.
func tailLog(ctx context.Context, path string, follow bool, w io.Writer) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand path %s: %w", path, err)
	}
	t, err := tail.TailFile(expanded, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}
