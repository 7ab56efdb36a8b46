package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/syssam/tether/config"
	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/dialect/memory"
	"github.com/syssam/tether/dialect/sql"
)

// NewPingCommand creates the ping command.
func NewPingCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Open the configured storage and run an empty transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.Config, opts.EnvFiles...)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runPing(ctx, cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "time allowed for the round trip")
	return cmd
}

func runPing(ctx context.Context, w io.Writer, cfg *config.Config) error {
	var store dialect.Storage
	if cfg.Dialect == dialect.Memory {
		store = memory.New()
	} else {
		s, _, err := sql.OpenConfig(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}
	start := time.Now()
	tx, err := store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ping %s: %w", cfg.Dialect, err)
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("ping %s: %w", cfg.Dialect, err)
	}
	green.Fprint(w, "ok ")
	fmt.Fprintf(w, "%s %s\n", cfg.Dialect, time.Since(start).Round(time.Millisecond))
	return nil
}
