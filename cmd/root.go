// Package cmd wires the engine's components into a cobra CLI: add,
// list, start, pause, remove, queue, archive, engine and discover.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set via ldflags during build.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "surge",
	Short:   "A persistent, concurrent download queue manager",
	Long:    `Surge maintains an ordered download queue, runs a background engine against it, and supports pause, resume, reorder and archival.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("surge version {{.Version}} (built %s)\n", BuildTime))
}
