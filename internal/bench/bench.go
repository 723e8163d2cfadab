// Package bench measures whether prioritization actually pays: it replays
// the same change set through fixed and prioritized ordering for N
// iterations and compares time-to-first-failure, total time, and the
// prediction overhead the model adds.
package bench

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/triage/internal/changeset"
	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/engine"
)

// Executor runs one validation pass. Satisfied by engine.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, provider changeset.Provider, mode core.RunMode) (*engine.Result, error)
}

// ModeStats aggregates timing over the iterations of one mode.
type ModeStats struct {
	Runs     int `json:"runs"`
	Failures int `json:"failures"`

	MeanTotal   time.Duration `json:"mean_total"`
	MedianTotal time.Duration `json:"median_total"`
	StddevTotal time.Duration `json:"stddev_total"`

	// TTFF stats cover only iterations in which at least one rule failed.
	MeanTTFF   time.Duration `json:"mean_ttff"`
	MedianTTFF time.Duration `json:"median_ttff"`
	StddevTTFF time.Duration `json:"stddev_ttff"`
}

// Summary is one complete benchmark comparison.
type Summary struct {
	Iterations  int       `json:"iterations"`
	Fixed       ModeStats `json:"fixed"`
	Prioritized ModeStats `json:"prioritized"`

	// TTFFImprovement is the percent reduction in mean time-to-first-failure
	// under prioritization. Negative when prioritization made it worse.
	TTFFImprovement float64 `json:"ttff_improvement_pct"`

	// Speedup is fixed mean TTFF over prioritized mean TTFF.
	Speedup float64 `json:"speedup"`

	// Prediction overhead is reported separately from rule execution time
	// so the cost of ordering stays visible.
	MeanOverhead time.Duration `json:"mean_overhead"`
	MaxOverhead  time.Duration `json:"max_overhead"`

	ModelVersion string `json:"model_version,omitempty"`
}

// Harness replays one change set through both modes.
type Harness struct {
	exec       Executor
	provider   changeset.Provider
	iterations int
}

// New constructs a harness. Iterations below 1 are rejected at Run time.
func New(exec Executor, provider changeset.Provider, iterations int) *Harness {
	return &Harness{exec: exec, provider: provider, iterations: iterations}
}

// Run executes the comparison. Fixed-mode iterations run first, then
// prioritized, so the prioritized half observes the same history growth
// pattern on every invocation.
func (h *Harness) Run(ctx context.Context) (*Summary, error) {
	if h.iterations < 1 {
		return nil, fmt.Errorf("bench: iterations must be >= 1, got %d", h.iterations)
	}

	fixed, _, err := h.runMode(ctx, core.ModeFixed)
	if err != nil {
		return nil, fmt.Errorf("bench fixed mode: %w", err)
	}
	prioritized, overheads, err := h.runMode(ctx, core.ModePrioritized)
	if err != nil {
		return nil, fmt.Errorf("bench prioritized mode: %w", err)
	}

	s := &Summary{
		Iterations:  h.iterations,
		Fixed:       statsOf(fixed),
		Prioritized: statsOf(prioritized),
	}

	if s.Fixed.MeanTTFF > 0 && s.Prioritized.MeanTTFF > 0 {
		f := float64(s.Fixed.MeanTTFF)
		p := float64(s.Prioritized.MeanTTFF)
		s.TTFFImprovement = (f - p) / f * 100
		s.Speedup = f / p
	}

	var sum time.Duration
	for _, o := range overheads {
		sum += o
		if o > s.MaxOverhead {
			s.MaxOverhead = o
		}
	}
	if len(overheads) > 0 {
		s.MeanOverhead = sum / time.Duration(len(overheads))
	}

	if len(prioritized) > 0 {
		s.ModelVersion = prioritized[len(prioritized)-1].ModelVersion
	}
	return s, nil
}

func (h *Harness) runMode(ctx context.Context, mode core.RunMode) ([]*engine.Result, []time.Duration, error) {
	results := make([]*engine.Result, 0, h.iterations)
	overheads := make([]time.Duration, 0, h.iterations)

	for i := 0; i < h.iterations; i++ {
		res, err := h.exec.Execute(ctx, h.provider, mode)
		if err != nil {
			// A persistence warning still carries a usable result.
			if res == nil || !core.IsPersistenceError(err) {
				return nil, nil, fmt.Errorf("iteration %d: %w", i, err)
			}
		}
		results = append(results, res)
		if mode == core.ModePrioritized {
			overheads = append(overheads, res.PredictionTime)
		}
	}
	return results, overheads, nil
}

func statsOf(results []*engine.Result) ModeStats {
	stats := ModeStats{Runs: len(results)}

	var totals, ttffs []time.Duration
	for _, res := range results {
		totals = append(totals, res.Run.TotalTime)
		if !res.Run.Passed() {
			stats.Failures++
			ttffs = append(ttffs, res.Run.TimeToFirst)
		}
	}

	stats.MeanTotal, stats.MedianTotal, stats.StddevTotal = describe(totals)
	stats.MeanTTFF, stats.MedianTTFF, stats.StddevTTFF = describe(ttffs)
	return stats
}

// describe returns mean, median, and population standard deviation.
func describe(samples []time.Duration) (mean, median, stddev time.Duration) {
	if len(samples) == 0 {
		return 0, 0, 0
	}

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	mean = sum / time.Duration(len(samples))

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	var variance float64
	for _, s := range samples {
		d := float64(s - mean)
		variance += d * d
	}
	variance /= float64(len(samples))
	stddev = time.Duration(math.Sqrt(variance))
	return mean, median, stddev
}
