// Package main implements the opprof CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"opprof/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "opprof",
	Short: "Computation graph profiler",
	Long: "opprof aggregates per-step execution traces of a computation graph\n" +
		"and reports where time and memory go, organized by graph topology,\n" +
		"name scope or operation type.",
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
