// Command tether checks schema files and storage configuration.
package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/syssam/tether/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
