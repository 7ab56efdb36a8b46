package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/tether/config"
	"github.com/syssam/tether/dialect"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(opts *RootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved storage configuration",
		Long: `Print the storage configuration after applying the configuration
file, dotenv files and TETHER_* environment variables. Passwords in the
DSN are redacted.

With --watch the configuration is printed again every time the file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watch && opts.Config == "" {
				return errors.New("--watch requires --config")
			}
			cfg, err := config.Load(opts.Config, opts.EnvFiles...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printConfig(out, cfg); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			err = config.Watch(ctx, opts.Config, func(cfg *config.Config, err error) {
				if err != nil {
					red.Fprintln(cmd.ErrOrStderr(), err)
					return
				}
				faint.Fprintln(out, "---")
				if err := printConfig(out, cfg); err != nil {
					red.Fprintln(cmd.ErrOrStderr(), err)
				}
			}, opts.EnvFiles...)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "print the configuration again when the file changes")
	return cmd
}

func printConfig(w io.Writer, cfg *config.Config) error {
	c := *cfg
	c.DSN = redactDSN(c.Dialect, c.DSN)
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// redactDSN masks the password of a MySQL or URL style DSN.
func redactDSN(name, dsn string) string {
	if name == dialect.MySQL {
		mc, err := mysql.ParseDSN(dsn)
		if err != nil || mc.Passwd == "" {
			return dsn
		}
		mc.Passwd = "xxxxx"
		return mc.FormatDSN()
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
