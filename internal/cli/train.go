package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/features"
	"github.com/roach88/triage/internal/model"
	"github.com/roach88/triage/internal/training"
)

// TrainOptions holds flags for the train command.
type TrainOptions struct {
	*RootOptions
	Database    string
	ArtifactDir string
	MinSamples  int
	Force       bool
	Strategy    string
}

// NewTrainCommand creates the train command.
func NewTrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and publish a failure-prediction model",
		Long: `Train a model on the recorded validation history and publish it.

Training is skipped when the published model is still healthy, unless
--force is set. A corpus below --min-samples reports insufficient data and
exits successfully; collect more history and rerun.

Example:
  triage train --db ./triage.db --strategy linear
  triage train --db ./triage.db --strategy ensemble --force`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraining(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.ArtifactDir, "artifact-dir", "artifacts", "directory for model artifacts")
	cmd.Flags().IntVar(&opts.MinSamples, "min-samples", 0, "minimum corpus size (default from config)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "retrain even if the published model is healthy")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "linear", "model strategy: linear|ensemble")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// trainReport is the payload for train output.
type trainReport struct {
	Status      string  `json:"status"` // "published" | "skipped" | "insufficient_data"
	Reason      string  `json:"reason,omitempty"`
	Version     string  `json:"version,omitempty"`
	Strategy    string  `json:"strategy,omitempty"`
	SampleCount int     `json:"sample_count,omitempty"`
	Accuracy    float64 `json:"accuracy,omitempty"`
	F1          float64 `json:"f1,omitempty"`
	FNR         float64 `json:"fnr,omitempty"`

	TopFeatures []core.FeatureWeight `json:"top_features,omitempty"`
}

func runTraining(opts *TrainOptions, cmd *cobra.Command) error {
	log := setupLogging(opts.Verbose)

	kind := model.Kind(opts.Strategy)
	if kind != model.KindLinear && kind != model.KindEnsemble {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid strategy %q: must be linear or ensemble", opts.Strategy))
	}

	cfg := core.DefaultConfig()
	cfg.DatabasePath = opts.Database
	cfg.ArtifactDir = opts.ArtifactDir
	if opts.MinSamples > 0 {
		cfg.MinSamples = opts.MinSamples
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	extractor := features.NewExtractor(st, cfg)
	manager := training.NewManager(st, extractor, cfg, log)

	if !opts.Force {
		need, reason, err := manager.ShouldRetrain(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "retrain check failed", err)
		}
		if !need {
			return formatter.Success(&trainReport{
				Status: "skipped",
				Reason: "published model is healthy; use --force to retrain",
			})
		}
		log.Info("retraining", "reason", reason)
	}

	snap, err := manager.TrainAndPublish(ctx, kind)
	if err != nil {
		// Too little history is an expected state for young projects.
		if core.IsInsufficientData(err) {
			return formatter.Success(&trainReport{
				Status: "insufficient_data",
				Reason: err.Error(),
			})
		}
		return WrapExitError(ExitCommandError, "training failed", err)
	}

	report := &trainReport{
		Status:      "published",
		Version:     snap.Version,
		Strategy:    snap.Strategy,
		SampleCount: snap.SampleCount,
		Accuracy:    snap.Metrics.Accuracy,
		F1:          snap.Metrics.F1,
		FNR:         snap.Metrics.FalseNegativeRate,
	}
	if n := len(snap.Metrics.FeatureImportance); n > 0 {
		if n > 5 {
			n = 5
		}
		report.TopFeatures = snap.Metrics.FeatureImportance[:n]
	}
	return formatter.Success(report)
}

// String renders the text-mode report.
func (r *trainReport) String() string {
	switch r.Status {
	case "skipped", "insufficient_data":
		return fmt.Sprintf("%s: %s", r.Status, r.Reason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "published %s model %s\n", r.Strategy, r.Version)
	fmt.Fprintf(&b, "  samples: %d  accuracy: %.3f  f1: %.3f  fnr: %.3f",
		r.SampleCount, r.Accuracy, r.F1, r.FNR)
	if len(r.TopFeatures) > 0 {
		b.WriteString("\n  top features:")
		for _, fw := range r.TopFeatures {
			fmt.Fprintf(&b, "\n    %-24s %.3f", fw.Name, fw.Weight)
		}
	}
	return b.String()
}
