// Package cli defines the scoreboard and loadgen commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/pkg/logger"
)

// RootOptions holds global flags and the state loaded before any subcommand.
type RootOptions struct {
	ConfigPath string

	Config *config.Config
	Log    logger.Logger
}

// NewRootCommand creates the root command for the scoreboard binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "scoreboard",
		Short: "Per-user score ranking service",
		Long: `scoreboard keeps one score per user and answers ranking queries:
top-K, a user's position and paginated full rankings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"YAML config file (overrides "+config.FileEnv+")")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewProvisionCommand(opts))
	return cmd
}

// load reads configuration and initializes the global logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.ConfigPath != "" {
		if err := os.Setenv(config.FileEnv, o.ConfigPath); err != nil {
			return fmt.Errorf("set %s: %w", config.FileEnv, err)
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithJSON(cfg.LogFormat == "json")); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	o.Config = cfg
	o.Log = log
	return nil
}
