// Package cli implements the tether command line.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config   string   // YAML configuration file
	EnvFiles []string // dotenv files consulted for TETHER_* variables
	NoColor  bool
}

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	faint = color.New(color.Faint)
	red   = color.New(color.FgRed)
)

// NewRootCommand creates the root command of the tether CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:   "tether",
		Short: "Inspect tether schemas and storage",
		Long: `tether checks YAML schema files and the storage configuration
used by a unit of work.

Examples:
  tether check schema.yaml
  tether ddl --dialect postgres schema.yaml
  tether gen --package model --out model/schema.go schema.yaml
  tether config --config tether.yaml --env .env
  tether ping --config tether.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.NoColor {
				color.NoColor = true
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "configuration file")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env", nil, "dotenv files with TETHER_* variables")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewGenCommand(opts))
	cmd.AddCommand(NewPingCommand(opts))
	return cmd
}
