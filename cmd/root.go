package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// NewRootCommand builds the command tree. A fresh tree is built for every
// execution so flag state never leaks between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "formpilot",
		Short:         "formpilot finds and fills Japanese corporate contact forms.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formpilot"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formpilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting formpilot", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(defaultComponentFactory{}))
	rootCmd.AddCommand(newProbeCmd(defaultBrowserFactory{}))
	rootCmd.AddCommand(newHistoryCmd(NewStoreProvider()))
	rootCmd.AddCommand(newPruneCmd(NewStoreProvider()))
	rootCmd.AddCommand(newLogsCmd())
	return rootCmd
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger := observability.GetLogger()
		logger.Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig layers the config file, FORMPILOT_ environment variables
// and the flags of the executing command onto v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path %s: %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FORMPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return bindFlags(cmd, v)
}

// flagKeys maps command flags onto their config keys.
var flagKeys = map[string]string{
	"mode":         "run.mode",
	"output":       "run.output",
	"format":       "run.format",
	"metrics-addr": "run.metrics_addr",
	"min-delay":    "run.min_delay",
	"headless":     "browser.headless",
	"humanoid":     "browser.humanoid.enabled",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}
	return nil
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}
