package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"opprof/internal/config"
	"opprof/internal/observ"
	"opprof/internal/profile"
	"opprof/internal/report"
	"opprof/internal/view"
)

var reportCmd = &cobra.Command{
	Use:   "report [flags] [trace files...]",
	Short: "Aggregate trace batches and print a profile report",
	Long: "Aggregate per-step trace batches against a declared graph topology and\n" +
		"print one of the three report views. Defaults for the view options can\n" +
		"live in opprof.toml; flags override the file.",
	Args: cobra.ArbitraryArgs,
	RunE: reportExecution,
}

func init() {
	reportCmd.Flags().String("topology", "", "declared graph topology (JSON)")
	reportCmd.Flags().String("profile", "", "load a saved raw profile instead of traces")
	reportCmd.Flags().String("view", "scope", "report view (graph|scope|op|all)")
	reportCmd.Flags().String("order", "", "sort criterion (time|memory|count)")
	reportCmd.Flags().Int("max-nodes", 0, "maximum nodes to emit (0 = unlimited)")
	reportCmd.Flags().Float64("min-time-ms", 0, "drop nodes below this aggregate time")
	reportCmd.Flags().Int64("min-bytes", 0, "drop nodes below this aggregate allocation")
	reportCmd.Flags().String("device", "", "restrict aggregation to devices containing this substring")
	reportCmd.Flags().Int64Slice("steps", nil, "restrict aggregation to these step keys")
	reportCmd.Flags().String("merge-policy", "", "same-step merge policy (sum|average)")
	reportCmd.Flags().String("out", "", "write serialized output to this file instead of text")
	reportCmd.Flags().Bool("save-profile", false, "serialize the raw accumulated profile to --out")
}

// reportViews maps the --view value to the builders to run.
func reportViews(value string) ([]string, error) {
	switch value {
	case "graph", "scope", "op":
		return []string{value}, nil
	case "all":
		return []string{"graph", "scope", "op"}, nil
	default:
		return nil, fmt.Errorf("invalid view: %q (expected: graph|scope|op|all)", value)
	}
}

func buildView(p *profile.Profiler, name string, opts view.Options) (*view.Result, error) {
	switch name {
	case "graph":
		return view.Graph(p, opts)
	case "scope":
		return view.NameScope(p, opts), nil
	case "op":
		return view.OpTypes(p, opts), nil
	default:
		return nil, fmt.Errorf("invalid view: %q", name)
	}
}

func viewTitle(name string) string {
	switch name {
	case "graph":
		return "graph view (cumulative over upstream closure)"
	case "scope":
		return "name scope view"
	case "op":
		return "operation type view"
	default:
		return name
	}
}

// readReportOptions resolves view options: opprof.toml defaults first,
// then every flag the user actually set.
func readReportOptions(cmd *cobra.Command) (view.Options, profile.MergePolicy, error) {
	opts := view.Options{}
	policy := profile.PolicySum

	cfg, found, err := config.Load(".")
	if err != nil {
		return opts, policy, err
	}
	if found {
		opts, err = cfg.Options()
		if err != nil {
			return opts, policy, err
		}
		policy, err = cfg.MergePolicy()
		if err != nil {
			return opts, policy, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("order") {
		raw, err := flags.GetString("order")
		if err != nil {
			return opts, policy, err
		}
		opts.Order, err = view.ParseOrderBy(raw)
		if err != nil {
			return opts, policy, err
		}
	}
	if flags.Changed("max-nodes") {
		if opts.MaxNodes, err = flags.GetInt("max-nodes"); err != nil {
			return opts, policy, err
		}
	}
	if flags.Changed("min-time-ms") {
		ms, err := flags.GetFloat64("min-time-ms")
		if err != nil {
			return opts, policy, err
		}
		opts.MinTime = time.Duration(ms * float64(time.Millisecond))
	}
	if flags.Changed("min-bytes") {
		if opts.MinBytes, err = flags.GetInt64("min-bytes"); err != nil {
			return opts, policy, err
		}
	}
	if flags.Changed("device") {
		if opts.Device, err = flags.GetString("device"); err != nil {
			return opts, policy, err
		}
	}
	if flags.Changed("steps") {
		raw, err := flags.GetInt64Slice("steps")
		if err != nil {
			return opts, policy, err
		}
		opts.Steps = opts.Steps[:0]
		for _, s := range raw {
			opts.Steps = append(opts.Steps, profile.StepKey(s))
		}
	}
	if flags.Changed("merge-policy") {
		raw, err := flags.GetString("merge-policy")
		if err != nil {
			return opts, policy, err
		}
		policy, err = profile.ParseMergePolicy(raw)
		if err != nil {
			return opts, policy, err
		}
	}
	sort.Slice(opts.Steps, func(i, j int) bool { return opts.Steps[i] < opts.Steps[j] })
	return opts, policy, nil
}

func reportExecution(cmd *cobra.Command, args []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	colorize, err := readColorMode(cmd)
	if err != nil {
		return err
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}
	viewValue, err := cmd.Flags().GetString("view")
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	saveProfile, err := cmd.Flags().GetBool("save-profile")
	if err != nil {
		return err
	}
	if saveProfile && outPath == "" {
		return fmt.Errorf("--save-profile requires --out")
	}

	opts, policy, err := readReportOptions(cmd)
	if err != nil {
		return err
	}
	names, err := reportViews(viewValue)
	if err != nil {
		return err
	}

	timer := observ.NewTimer()
	p, err := loadProfiler(cmd, args, log, timer, policy)
	if err != nil {
		return err
	}

	if saveProfile {
		done := timer.Track("save profile")
		data, err := report.MarshalState(p.State())
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		done(outPath)
		log.Info("raw profile saved",
			zap.String("path", outPath),
			zap.Int("bytes", len(data)))
		if showTimings {
			fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
		}
		return nil
	}

	// Ingestion is done; the builders below are pure reads and may run
	// in parallel.
	done := timer.Track("build views")
	results := make([]*view.Result, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			res, err := buildView(p, name, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	done(fmt.Sprintf("%d views", len(names)))

	if outPath != "" {
		if len(names) != 1 {
			return fmt.Errorf("--out supports a single view, not %q", viewValue)
		}
		data, err := report.MarshalView(names[0], p.SessionID(), results[0])
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info("report saved", zap.String("path", outPath), zap.Int("bytes", len(data)))
	} else {
		out := cmd.OutOrStdout()
		for i, name := range names {
			if err := report.Render(out, viewTitle(name), results[i], colorize); err != nil {
				return err
			}
			if i < len(names)-1 {
				fmt.Fprintln(out)
			}
		}
	}

	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}
	return nil
}
