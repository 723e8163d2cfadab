package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/bench"
	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/engine"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Database   string
	Changes    string
	Iterations int

	TTFFBound     time.Duration
	SpeedupTarget float64
	OverheadBound time.Duration

	// Runner allows overriding rule execution (for testing).
	Runner engine.Runner
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench <registry-dir>",
		Short: "Compare fixed and prioritized rule ordering",
		Long: `Replay the same change set through fixed and prioritized ordering and
compare time-to-first-failure, total time, and prediction overhead.

Benchmark runs are never recorded in history. When bounds are set
(--ttff-bound, --speedup-target, --overhead-bound), a miss exits non-zero.

Example:
  triage bench --db ./triage.db --changes change.yaml --iterations 10 ./rules
  triage bench --db ./triage.db --changes change.yaml --speedup-target 2.0 ./rules`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.Changes, "changes", "", "YAML change-set file (required)")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 5, "iterations per mode")
	cmd.Flags().DurationVar(&opts.TTFFBound, "ttff-bound", 0, "max acceptable prioritized mean time-to-first-failure")
	cmd.Flags().Float64Var(&opts.SpeedupTarget, "speedup-target", 0, "min acceptable speedup factor")
	cmd.Flags().DurationVar(&opts.OverheadBound, "overhead-bound", 0, "max acceptable mean prediction overhead")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("changes")

	return cmd
}

// benchReport is the payload for bench output.
type benchReport struct {
	*bench.Summary
	Verdict *bench.Verdict `json:"verdict,omitempty"`
}

func runBench(opts *BenchOptions, registryDir string, cmd *cobra.Command) error {
	log := setupLogging(opts.Verbose)

	rules, err := loadRules(registryDir)
	if err != nil {
		return err
	}

	cfg := core.DefaultConfig()
	cfg.DatabasePath = opts.Database
	// Fail-fast would truncate fixed-mode runs and skew the comparison.
	cfg.FailFast = false

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	predictor, err := buildPredictor(ctx, st, cfg, log)
	if err != nil {
		return err
	}

	runner := opts.Runner
	if runner == nil {
		runner = engine.CommandRunner{}
	}

	// Benchmark iterations must not feed the history they measure.
	orch := engine.New(rules, predictor, runner, engine.DiscardRecorder{}, cfg, log)
	provider := buildProvider(opts.Changes, "", "")

	summary, err := bench.New(orch, provider, opts.Iterations).Run(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "benchmark failed", err)
	}

	criteria := bench.Criteria{
		TTFFBound:     opts.TTFFBound,
		SpeedupTarget: opts.SpeedupTarget,
		OverheadBound: opts.OverheadBound,
	}
	report := &benchReport{Summary: summary}
	if criteria != (bench.Criteria{}) {
		verdict := summary.Evaluate(criteria)
		report.Verdict = &verdict
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if err := formatter.Success(report); err != nil {
		return err
	}

	if report.Verdict != nil && !report.Verdict.Met {
		return NewExitError(ExitFailure, "benchmark criteria not met")
	}
	return nil
}

// String renders the text-mode report.
func (r *benchReport) String() string {
	out := strings.TrimRight(r.Summary.Render(), "\n")
	if r.Verdict == nil {
		return out
	}

	var b strings.Builder
	b.WriteString(out)
	if r.Verdict.Met {
		b.WriteString("\ncriteria: met")
	} else {
		b.WriteString("\ncriteria: NOT met")
		for _, f := range r.Verdict.Failures {
			b.WriteString("\n  " + f)
		}
	}
	return b.String()
}
