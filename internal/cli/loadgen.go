package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/scoreboard/internal/loadgen"
	"github.com/okian/scoreboard/pkg/logger"
)

// NewLoadgenCommand creates the root command for the load generator binary.
func NewLoadgenCommand() *cobra.Command {
	var (
		cfg      loadgen.Config
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Send concurrent score traffic and verify the ranking",
		Long: `loadgen discovers the users of a running service, sends add-points
requests from many workers, replays some idempotency keys and then checks
that the reported ranking is ordered, additive and self-consistent.

Assumes it is the only writer for the duration of the run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Secret == "" {
				cfg.Secret = os.Getenv("SCOREBOARD_JWT_SECRET")
			}
			if cfg.Secret == "" {
				return errors.New("--secret or SCOREBOARD_JWT_SECRET is required")
			}
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runLoadgen(ctx, cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "service base URL")
	f.StringVar(&cfg.Secret, "secret", "", "HS256 token secret (defaults to SCOREBOARD_JWT_SECRET)")
	f.IntVarP(&cfg.Requests, "requests", "r", 1000, "add-points requests to send")
	f.Int64Var(&cfg.MaxPoints, "max-points", 50, "largest single award")
	f.IntVar(&cfg.Replays, "replays", 100, "requests re-sent with the same idempotency key")
	f.IntVarP(&cfg.Workers, "workers", "w", 8, "concurrent senders")
	f.IntVar(&cfg.TopK, "top", 10, "leaderboard size to verify")
	f.IntVar(&cfg.PageSize, "page-size", 100, "page size used to read the full ranking")
	f.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "per-request timeout")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every failed request")
	f.StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func runLoadgen(ctx context.Context, cmd *cobra.Command, cfg loadgen.Config) error {
	report, err := loadgen.Run(ctx, cfg, logger.Get().Named("loadgen"))
	if report != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if eerr := enc.Encode(report); eerr != nil && err == nil {
			err = eerr
		}
	}
	if err != nil {
		return fmt.Errorf("load run failed: %w", err)
	}
	return nil
}
