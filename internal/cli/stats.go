package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/features"
	"github.com/roach88/triage/internal/store"
	"github.com/roach88/triage/internal/training"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history and model statistics",
		Long: `Show aggregate statistics over the recorded validation history:
run totals, time-to-first-failure, the top-failing rules, the published
model snapshot, and suggested retrain thresholds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// statsReport is the payload for stats output.
type statsReport struct {
	*store.Stats
	SuggestedThresholds *training.Thresholds `json:"suggested_thresholds,omitempty"`
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	log := setupLogging(opts.Verbose)

	cfg := core.DefaultConfig()
	cfg.DatabasePath = opts.Database

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	stats, err := st.AggregateStats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to aggregate stats", err)
	}

	report := &statsReport{Stats: stats}
	if stats.Latest != nil {
		manager := training.NewManager(st, features.NewExtractor(st, cfg), cfg, log)
		thresholds, err := manager.SuggestThresholds(ctx)
		if err != nil {
			log.Warn("threshold suggestion unavailable", "error", err)
		} else {
			report.SuggestedThresholds = thresholds
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return formatter.Success(report)
}

// String renders the text-mode report.
func (r *statsReport) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "runs: %d (%d with failures)\n", r.TotalRuns, r.FailedRuns)
	fmt.Fprintf(&b, "rule outcomes: %d\n", r.TotalOutcomes)
	if r.FailedRuns > 0 {
		fmt.Fprintf(&b, "avg time to first failure: %s\n", r.AvgTimeToFail)
	}

	if len(r.TopFailing) > 0 {
		b.WriteString("top failing rules:\n")
		for _, rfc := range r.TopFailing {
			fmt.Fprintf(&b, "  %-24s %d\n", rfc.RuleID, rfc.Failures)
		}
	}

	if r.Latest == nil {
		b.WriteString("model: none published")
		return b.String()
	}

	fmt.Fprintf(&b, "model: %s (%s, %d samples)\n", r.Latest.Version, r.Latest.Strategy, r.Latest.SampleCount)
	fmt.Fprintf(&b, "  accuracy: %.3f  f1: %.3f  fnr: %.3f",
		r.Latest.Metrics.Accuracy, r.Latest.Metrics.F1, r.Latest.Metrics.FalseNegativeRate)
	if r.SuggestedThresholds != nil {
		fmt.Fprintf(&b, "\n  suggested thresholds: accuracy >= %.3f, fnr <= %.3f",
			r.SuggestedThresholds.Accuracy, r.SuggestedThresholds.FNR)
	}
	return b.String()
}
