package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/syssam/tether/config"
	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/dialect/sql"
	"github.com/syssam/tether/dialect/sql/ddl"
	"github.com/syssam/tether/schema/load"
)

// NewDDLCommand creates the ddl command.
func NewDDLCommand(opts *RootOptions) *cobra.Command {
	var (
		name  string
		apply bool
	)
	cmd := &cobra.Command{
		Use:   "ddl <schema.yaml>...",
		Short: "Print or apply the CREATE TABLE statements of a schema",
		Long: `Print the CREATE TABLE statements of the schema files for a SQL
dialect. With --apply the tables are created on the configured storage
instead, and the dialect is taken from the configuration.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !apply {
				return printDDL(cmd.Context(), cmd.OutOrStdout(), name, args)
			}
			cfg, err := config.Load(opts.Config, opts.EnvFiles...)
			if err != nil {
				return err
			}
			return applyDDL(cmd.Context(), cmd.OutOrStdout(), cfg, args)
		},
	}
	cmd.Flags().StringVarP(&name, "dialect", "d", dialect.SQLite, "SQL dialect of the statements")
	cmd.Flags().BoolVar(&apply, "apply", false, "create the tables on the configured storage")
	return cmd
}

func printDDL(ctx context.Context, w io.Writer, name string, paths []string) error {
	name, err := dialect.Normalize(name)
	if err != nil {
		return err
	}
	s, err := load.Files(ctx, paths...)
	if err != nil {
		return err
	}
	stmts, err := ddl.Statements(ctx, name, s)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		fmt.Fprintf(w, "%s;\n", stmt)
	}
	return nil
}

func applyDDL(ctx context.Context, w io.Writer, cfg *config.Config, paths []string) error {
	s, err := load.Files(ctx, paths...)
	if err != nil {
		return err
	}
	store, _, err := sql.OpenConfig(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := ddl.Create(ctx, store.Driver(), s); err != nil {
		return err
	}
	n := 0
	for _, t := range s.Tables {
		if !t.View {
			n++
		}
	}
	green.Fprintf(w, "created %d tables on %s\n", n, cfg.Dialect)
	return nil
}
