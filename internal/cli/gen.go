package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/syssam/tether/schema/gen"
	"github.com/syssam/tether/schema/load"
)

// NewGenCommand creates the gen command.
func NewGenCommand(*RootOptions) *cobra.Command {
	var (
		pkg string
		out string
	)
	cmd := &cobra.Command{
		Use:   "gen <schema.yaml>...",
		Short: "Generate Go constants for the tables, fields and relations of a schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load.Files(cmd.Context(), args...)
			if err != nil {
				return err
			}
			name := "schema.go"
			if out != "" {
				name = filepath.Base(out)
			}
			src, err := gen.Generate(s, gen.Config{Package: pkg, Filename: name})
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(src)
				return err
			}
			if err := os.WriteFile(out, src, 0o644); err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&pkg, "package", "p", "schema", "package name of the generated file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout if empty")
	return cmd
}
