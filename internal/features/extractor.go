// Package features maps a change context and a rule to a fixed-length
// numeric vector. Extraction is deterministic: identical inputs against
// identical history always produce a bit-identical vector, which is what
// makes model artifacts portable and round-trip testable.
package features

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/triage/internal/core"
)

// History is the read surface the extractor needs from the history store.
// Implementations must degrade to priors on missing data, never error on
// unknown rule ids.
type History interface {
	RuleFailureRate(ctx context.Context, ruleID string, limit int) (rate float64, avgTime time.Duration, err error)
	FilePatternCorrelation(ctx context.Context, extensions []string, ruleID string) (float64, error)
	CoOccurringFailures(ctx context.Context, ruleID string, limit int) ([]core.CoFailure, error)
}

// FeatureNames is the ordered schema of the vector. The order is part of the
// model artifact contract: an artifact trained against one ordering refuses
// to load against another.
var FeatureNames = []string{
	// Change-shape
	"file_count",
	"has_config",
	"has_source",
	"has_markup",
	"has_workflow",
	"has_test",
	"ratio_config",
	"ratio_source",
	"ratio_markup",
	// Rule-history
	"failure_rate_window",
	"mean_latency_scaled",
	"failure_rate_recent",
	"severity_critical",
	"severity_high",
	// Temporal
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	// Correlation
	"extension_correlation",
	"cooccurrence_risk",
}

// Count is the fixed vector length.
var Count = len(FeatureNames)

// latencyScale bounds the latency feature into [0,1): ms / (ms + scale).
const latencyScale = 1000.0

// coOccurrenceScale smooths the aggregate co-failure count into [0,1):
// total / (total + scale).
const coOccurrenceScale = 10.0

// coOccurrenceLimit bounds the co-failure query.
const coOccurrenceLimit = 10

// Extractor computes feature vectors against a history store.
type Extractor struct {
	history History
	cfg     core.Config
}

// NewExtractor returns an extractor reading history through h.
func NewExtractor(h History, cfg core.Config) *Extractor {
	return &Extractor{history: h, cfg: cfg}
}

// Extract computes the feature vector for one rule in one change context.
// Pure with respect to its inputs and the history state: no randomness, no
// wall-clock reads. An empty change set degrades to zero shape features.
func (e *Extractor) Extract(ctx context.Context, change core.ChangeContext, rule core.Rule) ([]float64, error) {
	v := make([]float64, 0, Count)

	v = append(v, changeShape(change)...)

	history, err := e.ruleHistory(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rule.ID, err)
	}
	v = append(v, history...)

	v = append(v, temporal(change.Timestamp)...)

	correlation, err := e.correlation(ctx, change, rule)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rule.ID, err)
	}
	v = append(v, correlation...)

	if len(v) != Count {
		return nil, fmt.Errorf("extract %s: vector length %d, schema expects %d", rule.ID, len(v), Count)
	}
	return v, nil
}

func changeShape(change core.ChangeContext) []float64 {
	records := core.ClassifyFiles(change.Files)

	var nConfig, nSource, nMarkup, nWorkflow, nTest int
	for _, r := range records {
		if r.IsConfig {
			nConfig++
		}
		if r.IsSource {
			nSource++
		}
		if r.IsMarkup {
			nMarkup++
		}
		if r.IsWorkflow {
			nWorkflow++
		}
		if r.IsTest {
			nTest++
		}
	}

	total := float64(len(records))
	ratio := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) / total
	}

	return []float64{
		total,
		indicator(nConfig > 0),
		indicator(nSource > 0),
		indicator(nMarkup > 0),
		indicator(nWorkflow > 0),
		indicator(nTest > 0),
		ratio(nConfig),
		ratio(nSource),
		ratio(nMarkup),
	}
}

func (e *Extractor) ruleHistory(ctx context.Context, rule core.Rule) ([]float64, error) {
	rate, avgTime, err := e.history.RuleFailureRate(ctx, rule.ID, e.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	recentRate, _, err := e.history.RuleFailureRate(ctx, rule.ID, e.cfg.RecentWindow)
	if err != nil {
		return nil, err
	}

	ms := float64(avgTime.Milliseconds())
	return []float64{
		rate,
		ms / (ms + latencyScale),
		recentRate,
		indicator(rule.Severity == core.SeverityCritical),
		indicator(rule.Severity == core.SeverityHigh),
	}, nil
}

func temporal(ts time.Time) []float64 {
	ts = ts.UTC()
	weekday := ts.Weekday()
	return []float64{
		float64(ts.Hour()) / 23.0,
		float64(weekday) / 6.0,
		indicator(weekday == time.Saturday || weekday == time.Sunday),
	}
}

func (e *Extractor) correlation(ctx context.Context, change core.ChangeContext, rule core.Rule) ([]float64, error) {
	extCorr, err := e.history.FilePatternCorrelation(ctx, extensions(change.Files), rule.ID)
	if err != nil {
		return nil, err
	}

	cofailures, err := e.history.CoOccurringFailures(ctx, rule.ID, coOccurrenceLimit)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, cf := range cofailures {
		total += float64(cf.Count)
	}

	return []float64{
		extCorr,
		total / (total + coOccurrenceScale),
	}, nil
}

// extensions returns the distinct extensions of the changed files, in first
// occurrence order for determinism.
func extensions(files []string) []string {
	seen := make(map[string]bool)
	var exts []string
	for _, f := range files {
		ext := core.ClassifyFile(f).Extension
		if ext != "" && !seen[ext] {
			seen[ext] = true
			exts = append(exts, ext)
		}
	}
	return exts
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
