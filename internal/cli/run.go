package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Changes  string
	GitDir   string
	GitBase  string
	Mode     string
	FailFast bool
	Persist  bool
	Model    string

	// Runner allows overriding rule execution (for testing).
	// If nil, defaults to engine.CommandRunner.
	Runner engine.Runner
}

// validModes defines the allowed --mode values.
var validModes = []string{"fixed", "prioritized", "both"}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <registry-dir>",
		Short: "Execute validation rules against a change set",
		Long: `Execute the registered validation rules against a change set.

The change set comes from --changes (a YAML file) or from git discovery in
--git-dir. In prioritized mode, rules likely to fail run first; in fixed
mode they run in registration order; "both" runs each once for comparison.

Example:
  triage run --db ./triage.db ./rules
  triage run --db ./triage.db --changes change.yaml --mode prioritized ./rules`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.Changes, "changes", "", "YAML change-set file (default: discover from git)")
	cmd.Flags().StringVar(&opts.GitDir, "git-dir", ".", "repository to discover changes from")
	cmd.Flags().StringVar(&opts.GitBase, "base", "", "git base ref for change discovery (default HEAD~1)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "prioritized", "rule order: fixed|prioritized|both")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", true, "halt the run on the first CRITICAL failure")
	cmd.Flags().BoolVar(&opts.Persist, "persist", true, "record the run in history")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model artifact path (default: published latest)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// runReport is the per-mode payload for run output.
type runReport struct {
	RunID        string        `json:"run_id"`
	Mode         string        `json:"mode"`
	Order        []string      `json:"order"`
	TotalRules   int           `json:"total_rules"`
	Executed     int           `json:"executed"`
	Failed       int           `json:"failed"`
	FailedRules  []string      `json:"failed_rules,omitempty"`
	TotalTime    time.Duration `json:"total_time"`
	TimeToFirst  time.Duration `json:"time_to_first_failure"`
	StoppedEarly bool          `json:"stopped_early"`
	ModelVersion string        `json:"model_version,omitempty"`
	Passed       bool          `json:"passed"`
}

func runValidation(opts *RunOptions, registryDir string, cmd *cobra.Command) error {
	log := setupLogging(opts.Verbose)

	modes, err := resolveModes(opts.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}

	rules, err := loadRules(registryDir)
	if err != nil {
		return err
	}
	log.Info("registry compiled", "rules", len(rules))

	cfg := core.DefaultConfig()
	cfg.DatabasePath = opts.Database
	cfg.ModelPath = opts.Model
	cfg.FailFast = opts.FailFast

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

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
	var recorder engine.Recorder = st
	if !opts.Persist {
		recorder = engine.DiscardRecorder{}
	}
	orch := engine.New(rules, predictor, runner, recorder, cfg, log)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	provider := buildProvider(opts.Changes, opts.GitDir, opts.GitBase)

	allPassed := true
	for _, mode := range modes {
		res, err := orch.Execute(ctx, provider, mode)
		if err != nil {
			if !core.IsPersistenceError(err) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("%s run failed", mode), err)
			}
			log.Warn("run finished but was not recorded", "error", err)
		}

		if err := formatter.Success(reportOf(res)); err != nil {
			return err
		}
		if !res.Run.Passed() {
			allPassed = false
		}
	}

	if !allPassed {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func resolveModes(mode string) ([]core.RunMode, error) {
	switch mode {
	case "fixed":
		return []core.RunMode{core.ModeFixed}, nil
	case "prioritized":
		return []core.RunMode{core.ModePrioritized}, nil
	case "both":
		return []core.RunMode{core.ModeFixed, core.ModePrioritized}, nil
	default:
		return nil, fmt.Errorf("mode %q: must be one of %v", mode, validModes)
	}
}

func reportOf(res *engine.Result) *runReport {
	r := &runReport{
		RunID:        res.Run.ID,
		Mode:         string(res.Run.Mode),
		TotalRules:   res.Run.TotalRules,
		Executed:     len(res.Run.Outcomes),
		Failed:       res.Run.FailedRules,
		TotalTime:    res.Run.TotalTime,
		TimeToFirst:  res.Run.TimeToFirst,
		StoppedEarly: res.Run.StoppedEarly,
		ModelVersion: res.ModelVersion,
		Passed:       res.Run.Passed(),
	}
	for _, rule := range res.Order {
		r.Order = append(r.Order, rule.ID)
	}
	for _, o := range res.Run.Outcomes {
		if !o.Passed {
			r.FailedRules = append(r.FailedRules, o.RuleID)
		}
	}
	return r
}

// String renders the text-mode report.
func (r *runReport) String() string {
	var b strings.Builder

	verdict := "PASSED"
	if !r.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "%s run %s: %s (%d/%d rules executed, %d failed, %s)",
		r.Mode, r.RunID, verdict, r.Executed, r.TotalRules, r.Failed, r.TotalTime)
	if r.StoppedEarly {
		b.WriteString("\n  halted early on critical failure")
	}
	if len(r.FailedRules) > 0 {
		fmt.Fprintf(&b, "\n  failed: %s (first failure at %s)",
			strings.Join(r.FailedRules, ", "), r.TimeToFirst)
	}
	if r.ModelVersion != "" {
		fmt.Fprintf(&b, "\n  model: %s", r.ModelVersion)
	}
	return b.String()
}

// signalContext derives a context cancelled by SIGINT/SIGTERM so an
// interrupted run still records what it executed.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	return signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
}
