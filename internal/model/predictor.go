package model

import (
	"context"
	"fmt"

	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/features"
)

// Predictor scores rules for a change set. With a loaded artifact it runs
// the trained classifier; without one it falls back to historical failure
// rates, so prioritization degrades rather than breaking.
type Predictor struct {
	clf       Classifier
	scaler    Scaler
	extractor *features.Extractor
	history   features.History
	cfg       core.Config
	version   string
}

// NewPredictor wraps a verified artifact.
func NewPredictor(a *Artifact, extractor *features.Extractor, history features.History, cfg core.Config) (*Predictor, error) {
	clf, err := a.Classifier()
	if err != nil {
		return nil, err
	}
	return &Predictor{
		clf:       clf,
		scaler:    a.ScalerValue(),
		extractor: extractor,
		history:   history,
		cfg:       cfg,
		version:   a.Version,
	}, nil
}

// NewFallbackPredictor scores rules by their historical failure rate alone.
func NewFallbackPredictor(history features.History, cfg core.Config) *Predictor {
	return &Predictor{history: history, cfg: cfg}
}

// LoadPredictor loads the artifact at path. On any load failure it returns
// a fallback predictor together with the core.ModelLoadError, so the caller
// can warn and keep going.
func LoadPredictor(path string, extractor *features.Extractor, history features.History, cfg core.Config) (*Predictor, error) {
	a, err := LoadArtifact(path, features.FeatureNames)
	if err != nil {
		return NewFallbackPredictor(history, cfg), err
	}
	p, err := NewPredictor(a, extractor, history, cfg)
	if err != nil {
		return NewFallbackPredictor(history, cfg), err
	}
	return p, nil
}

// Trained reports whether a classifier is loaded, as opposed to the
// failure-rate fallback.
func (p *Predictor) Trained() bool {
	return p.clf != nil
}

// Version returns the loaded snapshot version, or "" for the fallback.
func (p *Predictor) Version() string {
	return p.version
}

// Predict returns a failure probability per rule id for the change set.
func (p *Predictor) Predict(ctx context.Context, change core.ChangeContext, rules []core.Rule) (map[string]float64, error) {
	scores := make(map[string]float64, len(rules))
	for _, rule := range rules {
		score, err := p.predictOne(ctx, change, rule)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", rule.ID, err)
		}
		scores[rule.ID] = score
	}
	return scores, nil
}

func (p *Predictor) predictOne(ctx context.Context, change core.ChangeContext, rule core.Rule) (float64, error) {
	if p.clf == nil {
		rate, _, err := p.history.RuleFailureRate(ctx, rule.ID, p.cfg.HistoryWindow)
		if err != nil {
			return 0, err
		}
		return rate, nil
	}

	vec, err := p.extractor.Extract(ctx, change, rule)
	if err != nil {
		return 0, err
	}
	scaled, err := p.scaler.Transform(vec)
	if err != nil {
		return 0, err
	}
	return p.clf.PredictProba(scaled), nil
}
