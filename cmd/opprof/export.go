package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"opprof/internal/export"
	"opprof/internal/observ"
	"opprof/internal/profile"
)

var exportCmd = &cobra.Command{
	Use:   "export [flags] [trace files...]",
	Short: "Export accumulated statistics to a SQLite database",
	Long: "Aggregate traces (or load a saved raw profile) and write per-operation\n" +
		"and per-step totals to a SQLite database for ad-hoc SQL analysis.",
	Args: cobra.ArbitraryArgs,
	RunE: exportExecution,
}

func init() {
	exportCmd.Flags().String("topology", "", "declared graph topology (JSON)")
	exportCmd.Flags().String("profile", "", "load a saved raw profile instead of traces")
	exportCmd.Flags().String("sqlite", "", "path of the SQLite database to write")
	exportCmd.Flags().String("merge-policy", "", "same-step merge policy (sum|average)")
}

func exportExecution(cmd *cobra.Command, args []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dbPath, err := cmd.Flags().GetString("sqlite")
	if err != nil {
		return err
	}
	if dbPath == "" {
		return fmt.Errorf("--sqlite is required")
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}

	policy := profile.PolicySum
	if cmd.Flags().Changed("merge-policy") {
		raw, err := cmd.Flags().GetString("merge-policy")
		if err != nil {
			return err
		}
		if policy, err = profile.ParseMergePolicy(raw); err != nil {
			return err
		}
	}

	timer := observ.NewTimer()
	p, err := loadProfiler(cmd, args, log, timer, policy)
	if err != nil {
		return err
	}

	done := timer.Track("export sqlite")
	if err := export.SQLite(cmd.Context(), dbPath, p.State()); err != nil {
		return err
	}
	done(dbPath)

	log.Info("export finished",
		zap.String("session", p.SessionID()),
		zap.String("path", dbPath),
		zap.Int("ops", p.NumOps()))
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return nil
}
