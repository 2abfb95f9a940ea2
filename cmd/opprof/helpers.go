package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// readColorMode resolves the --color flag against the terminal.
func readColorMode(cmd *cobra.Command) (bool, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return false, err
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return isTerminal(os.Stdout), nil
	default:
		return false, fmt.Errorf("invalid color mode: %q (expected: auto|on|off)", mode)
	}
}

// newLogger builds the CLI logger. Quiet drops everything below error;
// verbose enables debug output.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	switch {
	case quiet:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
