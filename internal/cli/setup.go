package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/roach88/triage/internal/changeset"
	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/features"
	"github.com/roach88/triage/internal/model"
	"github.com/roach88/triage/internal/registry"
	"github.com/roach88/triage/internal/store"
)

// setupLogging configures the default slog handler based on the verbose flag.
// Diagnostics always go to stderr so JSON output on stdout stays parseable.
func setupLogging(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// openStore opens the history store with the configured priors.
func openStore(cfg core.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath, store.Priors{
		FailureRate: cfg.NeutralPrior,
		Latency:     cfg.LatencyPrior,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	return st, nil
}

// loadRules compiles the rule registry from a directory of CUE files.
func loadRules(dir string) ([]core.Rule, error) {
	rules, err := registry.Load(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load rule registry", err)
	}
	return rules, nil
}

// buildPredictor resolves the model for prioritized runs: an explicit
// --model path wins, then the published latest snapshot, then the
// failure-rate fallback. A broken artifact degrades to the fallback with a
// warning rather than blocking the run.
func buildPredictor(ctx context.Context, st *store.Store, cfg core.Config, log *slog.Logger) (*model.Predictor, error) {
	path := cfg.ModelPath
	if path == "" {
		snap, err := st.LatestSnapshot(ctx)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read latest snapshot", err)
		}
		if snap != nil {
			path = snap.ArtifactPath
		}
	}

	if path == "" {
		log.Info("no trained model, ordering by historical failure rates")
		return model.NewFallbackPredictor(st, cfg), nil
	}

	extractor := features.NewExtractor(st, cfg)
	p, err := model.LoadPredictor(path, extractor, st, cfg)
	if err != nil {
		log.Warn("model unavailable, falling back to failure rates", "path", path, "error", err)
		return p, nil
	}
	log.Info("model loaded", "path", path, "version", p.Version())
	return p, nil
}

// buildProvider picks the change source: an explicit YAML change file wins
// over git discovery.
func buildProvider(changesPath, gitDir, gitBase string) changeset.Provider {
	if changesPath != "" {
		return changeset.FileProvider{Path: changesPath}
	}
	return changeset.NewGitProvider(gitDir, gitBase)
}
