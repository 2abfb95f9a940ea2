package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"opprof/internal/observ"
	"opprof/internal/profile"
	"opprof/internal/report"
	"opprof/internal/tracein"
)

// loadProfiler builds the accumulated profiler a subcommand operates on:
// either restored from a saved raw profile (--profile) or assembled from
// a topology file plus trace batch arguments.
func loadProfiler(cmd *cobra.Command, args []string, log *zap.Logger, timer *observ.Timer, policy profile.MergePolicy) (*profile.Profiler, error) {
	profilePath, err := cmd.Flags().GetString("profile")
	if err != nil {
		return nil, err
	}
	topoPath, err := cmd.Flags().GetString("topology")
	if err != nil {
		return nil, err
	}

	if profilePath != "" {
		if topoPath != "" || len(args) > 0 {
			return nil, fmt.Errorf("--profile cannot be combined with --topology or trace files")
		}
		done := timer.Track("load profile")
		data, err := os.ReadFile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("read profile: %w", err)
		}
		st, err := report.UnmarshalState(data)
		if err != nil {
			return nil, err
		}
		p, err := profile.FromState(st)
		if err != nil {
			return nil, err
		}
		done(profilePath)
		log.Debug("profile restored",
			zap.String("session", p.SessionID()),
			zap.Int("ops", p.NumOps()),
			zap.Int("steps", len(p.Steps())))
		return p, nil
	}

	if topoPath == "" {
		return nil, fmt.Errorf("either --topology or --profile is required")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no trace files given (pass capture files or use --profile)")
	}

	done := timer.Track("load topology")
	topo, err := tracein.ReadTopology(topoPath)
	if err != nil {
		return nil, err
	}
	done(fmt.Sprintf("%d ops", len(topo.Ops)))

	p, err := profile.New(topo, profile.WithLogger(log), profile.WithMergePolicy(policy))
	if err != nil {
		return nil, err
	}

	done = timer.Track("ingest traces")
	var batches, records int
	for _, path := range args {
		loaded, err := tracein.ReadBatches(path)
		if err != nil {
			return nil, err
		}
		for _, b := range loaded {
			p.AddStep(profile.StepKey(b.Step), b.TraceRecords())
			batches++
			records += len(b.Records)
		}
	}
	done(fmt.Sprintf("%d batches, %d records", batches, records))

	if unknown := p.UnknownRecords(); unknown > 0 {
		log.Warn("trace records outside the declared topology",
			zap.Int64("records", unknown),
			zap.Strings("ops", p.UnknownNames()))
	}
	return p, nil
}
