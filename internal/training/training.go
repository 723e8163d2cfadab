// Package training decides when a model needs retraining and drives the
// pipeline end to end: corpus extraction, fitting, artifact persistence,
// snapshot recording, and the atomic latest-pointer publish. A training
// failure at any step leaves the previously published model serving.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/features"
	"github.com/roach88/triage/internal/model"
	"github.com/roach88/triage/internal/store"
)

// Manager owns the retrain policy and the training pipeline.
type Manager struct {
	store     *store.Store
	extractor *features.Extractor
	cfg       core.Config
	log       *slog.Logger

	now func() time.Time
}

// NewManager constructs a training manager over the history store.
func NewManager(st *store.Store, extractor *features.Extractor, cfg core.Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:     st,
		extractor: extractor,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// ShouldRetrain reports whether the published model warrants retraining,
// with a human-readable reason. No snapshot, degraded accuracy, or an
// elevated false-negative rate all qualify.
func (m *Manager) ShouldRetrain(ctx context.Context) (bool, string, error) {
	snap, err := m.store.LatestSnapshot(ctx)
	if err != nil {
		return false, "", fmt.Errorf("should retrain: %w", err)
	}
	if snap == nil {
		return true, "no published model snapshot", nil
	}
	if snap.Metrics.Accuracy < m.cfg.AccuracyThreshold {
		return true, fmt.Sprintf("accuracy %.3f below threshold %.3f",
			snap.Metrics.Accuracy, m.cfg.AccuracyThreshold), nil
	}
	if snap.Metrics.FalseNegativeRate > m.cfg.FNRCeiling {
		return true, fmt.Sprintf("false-negative rate %.3f above ceiling %.3f",
			snap.Metrics.FalseNegativeRate, m.cfg.FNRCeiling), nil
	}
	return false, "", nil
}

// TrainAndPublish runs the full pipeline for the given strategy. Steps are
// strictly ordered: the artifact is written before the snapshot is recorded,
// and the latest pointer moves only after both succeed. It returns the
// published snapshot.
//
// Below the minimum sample count it returns core.InsufficientDataError;
// callers treat that as a status, not a failure.
func (m *Manager) TrainAndPublish(ctx context.Context, kind model.Kind) (*core.ModelSnapshot, error) {
	corpus, err := m.store.TrainingCorpus(ctx, m.cfg.MinSamples)
	if err != nil {
		return nil, err
	}

	ds, err := m.dataset(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("build training dataset: %w", err)
	}
	m.log.Info("training corpus extracted",
		"runs", corpus.SampleCount(),
		"samples", ds.Len(),
		"strategy", string(kind),
	)

	res, err := model.Train(kind, ds, m.cfg.MinSamples)
	if err != nil {
		return nil, err
	}

	trainedAt := m.now().UTC()
	artifact, err := model.NewArtifact(res, ds.FeatureNames, ds.Len(), trainedAt)
	if err != nil {
		return nil, fmt.Errorf("assemble artifact: %w", err)
	}

	path := filepath.Join(m.cfg.ArtifactDir, artifact.Version+".json")
	if err := artifact.Save(path); err != nil {
		return nil, err
	}

	snap := &core.ModelSnapshot{
		Version:      artifact.Version,
		Strategy:     string(kind),
		SampleCount:  ds.Len(),
		Metrics:      res.Metrics,
		ArtifactPath: path,
		TrainedAt:    trainedAt,
	}
	if err := m.store.RecordSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	if err := m.store.PublishLatest(ctx, snap.Version); err != nil {
		return nil, err
	}

	m.log.Info("model published",
		"version", snap.Version,
		"accuracy", res.Metrics.Accuracy,
		"f1", res.Metrics.F1,
		"fnr", res.Metrics.FalseNegativeRate,
	)
	return snap, nil
}

// dataset re-extracts one labeled feature row per recorded rule outcome.
// Features come from the current history state, not the state at run time;
// the corpus stores outcomes, not frozen vectors.
func (m *Manager) dataset(ctx context.Context, corpus *core.Corpus) (model.Dataset, error) {
	ds := model.Dataset{FeatureNames: features.FeatureNames}

	for _, run := range corpus.Runs {
		change := core.ChangeContext{
			Files:     filePaths(run.Files),
			Author:    run.Author,
			CommitID:  run.CommitID,
			Timestamp: run.Timestamp,
		}
		for _, outcome := range run.Outcomes {
			rule := core.Rule{ID: outcome.RuleID, Severity: outcome.Severity}
			vec, err := m.extractor.Extract(ctx, change, rule)
			if err != nil {
				return model.Dataset{}, err
			}
			label := 0
			if !outcome.Passed {
				label = 1
			}
			ds.X = append(ds.X, vec)
			ds.Y = append(ds.Y, label)
		}
	}
	return ds, nil
}

func filePaths(files []core.FileChangeRecord) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// Thresholds is a suggested operational threshold pair derived from observed
// model performance with slack applied.
type Thresholds struct {
	Accuracy float64 `json:"accuracy"`
	FNR      float64 `json:"fnr"`
}

// SuggestThresholds derives retrain thresholds from the published snapshot:
// the accuracy floor sits below the observed accuracy and the FNR ceiling
// above the observed rate by the configured buffer, so routine variance does
// not trigger retraining.
func (m *Manager) SuggestThresholds(ctx context.Context) (*Thresholds, error) {
	snap, err := m.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest thresholds: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("suggest thresholds: no published snapshot")
	}
	return &Thresholds{
		Accuracy: snap.Metrics.Accuracy / m.cfg.ThresholdBuffer,
		FNR:      snap.Metrics.FalseNegativeRate * m.cfg.ThresholdBuffer,
	}, nil
}
