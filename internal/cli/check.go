package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/schema/field"
	"github.com/syssam/tether/schema/load"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(*RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <schema.yaml>...",
		Short: "Load schema files and print the resolved tables and relations",
		Long: `Load YAML schema files, resolve mixins and relation defaults, and
build the runtime graph. Any schema error is reported and the command fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

func runCheck(ctx context.Context, w io.Writer, paths []string) error {
	s, err := load.Files(ctx, paths...)
	if err != nil {
		return err
	}
	g, err := graph.New(s)
	if err != nil {
		return err
	}
	for _, t := range g.Tables() {
		kind := "table"
		if t.IsView() {
			kind = "view"
		}
		bold.Fprint(w, t.Name())
		faint.Fprintf(w, " (%s)\n", kind)
		for _, f := range t.Fields() {
			fmt.Fprintf(w, "  %-16s %-8s %s\n", f.Name, f.Type, strings.Join(fieldFlags(f), ","))
		}
	}
	if rels := g.Relations(); len(rels) > 0 {
		bold.Fprintln(w, "relations")
		for _, rel := range rels {
			card := "one-to-one"
			if rel.IsOneToMany() {
				card = "one-to-many"
			}
			fmt.Fprintf(w, "  %s %s on delete %s, on update %s (%s/%s)\n",
				rel.Name(), card, rel.OnDelete(), rel.OnUpdate(), rel.OwningAlias(), rel.ReferencedAlias())
		}
	}
	green.Fprintf(w, "ok: %d tables, %d relations\n", len(g.Tables()), len(g.Relations()))
	return nil
}

func fieldFlags(f *field.Descriptor) []string {
	var flags []string
	for _, fl := range []struct {
		set  bool
		name string
	}{
		{f.Identifier, "identifier"},
		{f.Generated, "generated"},
		{f.Optional, "optional"},
		{f.Immutable, "immutable"},
		{f.HasDefault(), "default"},
		{f.UpdateDefault != nil, "update_default"},
	} {
		if fl.set {
			flags = append(flags, fl.name)
		}
	}
	return flags
}
