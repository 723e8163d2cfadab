package core

import "time"

// Config carries every tunable the engine, trainer, and benchmark harness
// need. It is constructed once at the CLI boundary and passed down
// explicitly; nothing in this module reads ambient global state.
//
// The heuristic defaults (neutral prior, threshold buffer, FNR ceiling) are
// operational knobs with no claimed derivation.
type Config struct {
	// DatabasePath locates the SQLite history store.
	DatabasePath string

	// ArtifactDir is where model artifacts are written.
	ArtifactDir string

	// ModelPath, when set, overrides the latest-snapshot lookup.
	ModelPath string

	// NeutralPrior is the failure probability assumed for rules with no
	// recorded history.
	NeutralPrior float64

	// LatencyPrior is the execution time assumed for rules with no history.
	LatencyPrior time.Duration

	// HistoryWindow bounds the per-rule outcome window for failure rates.
	HistoryWindow int

	// RecentWindow bounds the short-term failure-rate window.
	RecentWindow int

	// MinSamples is the training corpus floor below which training reports
	// InsufficientData.
	MinSamples int

	// AccuracyThreshold triggers retraining when the latest snapshot's
	// accuracy falls below it.
	AccuracyThreshold float64

	// FNRCeiling triggers retraining when the latest snapshot's
	// false-negative rate exceeds it. False negatives are the dangerous
	// mode: a failing rule predicted safe runs late.
	FNRCeiling float64

	// ThresholdBuffer is the multiplier applied to observed metric floors
	// when suggesting operational thresholds.
	ThresholdBuffer float64

	// FailFast halts a run on the first CRITICAL failure.
	FailFast bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:      "triage.db",
		ArtifactDir:       "artifacts",
		NeutralPrior:      0.5,
		LatencyPrior:      100 * time.Millisecond,
		HistoryWindow:     100,
		RecentWindow:      10,
		MinSamples:        20,
		AccuracyThreshold: 0.85,
		FNRCeiling:        0.05,
		ThresholdBuffer:   1.1,
		FailFast:          true,
	}
}
