package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/triage/internal/core"
)

// artifactSchemaVersion guards against loading bundles written by an
// incompatible release.
const artifactSchemaVersion = 1

// Artifact is the portable on-disk form of a trained model: everything a
// reader needs to reproduce predictions, with no runtime-specific encoding.
type Artifact struct {
	SchemaVersion int    `json:"schema_version"`
	Version       string `json:"version"`
	Strategy      string `json:"strategy"`

	// FeatureNames fixes the column order the parameters were fitted
	// against. Loading against a different schema is an error.
	FeatureNames []string `json:"feature_names"`

	ScalerMin []float64 `json:"scaler_min"`
	ScalerMax []float64 `json:"scaler_max"`

	Params Params `json:"params"`

	SampleCount int          `json:"sample_count"`
	Metrics     core.Metrics `json:"metrics"`
	TrainedAt   time.Time    `json:"trained_at"`

	// Checksum covers the serialized params payload.
	Checksum string `json:"checksum"`
}

// NewArtifact assembles the bundle for a training result. The version id is
// content-derived, so identical results produce an identical artifact.
func NewArtifact(res *TrainResult, featureNames []string, sampleCount int, trainedAt time.Time) (*Artifact, error) {
	version, err := core.SnapshotVersion(sampleCount, res.Metrics.Accuracy, res.Metrics.F1, trainedAt)
	if err != nil {
		return nil, err
	}

	params := res.Classifier.Params()
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("artifact: marshal params: %w", err)
	}

	return &Artifact{
		SchemaVersion: artifactSchemaVersion,
		Version:       version,
		Strategy:      string(res.Classifier.Kind()),
		FeatureNames:  append([]string(nil), featureNames...),
		ScalerMin:     append([]float64(nil), res.Scaler.Min...),
		ScalerMax:     append([]float64(nil), res.Scaler.Max...),
		Params:        params,
		SampleCount:   sampleCount,
		Metrics:       res.Metrics,
		TrainedAt:     trainedAt.UTC(),
		Checksum:      core.ArtifactChecksum(payload),
	}, nil
}

// Save writes the artifact as indented JSON via a temp-file rename, so a
// crash mid-write never leaves a truncated bundle at path.
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("artifact: create dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("artifact: rename: %w", err)
	}
	return nil
}

// LoadArtifact reads and verifies a bundle. Every failure mode is a
// core.ModelLoadError so callers can fall back uniformly.
func LoadArtifact(path string, featureNames []string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ModelLoadError{Path: path, Reason: "read artifact", Err: err}
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &core.ModelLoadError{Path: path, Reason: "corrupt artifact", Err: err}
	}

	if a.SchemaVersion != artifactSchemaVersion {
		return nil, &core.ModelLoadError{
			Path:   path,
			Reason: fmt.Sprintf("schema version %d, want %d", a.SchemaVersion, artifactSchemaVersion),
		}
	}

	payload, err := json.Marshal(a.Params)
	if err != nil {
		return nil, &core.ModelLoadError{Path: path, Reason: "re-marshal params", Err: err}
	}
	if sum := core.ArtifactChecksum(payload); sum != a.Checksum {
		return nil, &core.ModelLoadError{Path: path, Reason: "checksum mismatch"}
	}

	if !equalStrings(a.FeatureNames, featureNames) {
		return nil, &core.ModelLoadError{
			Path:   path,
			Reason: fmt.Sprintf("feature schema mismatch: artifact has %d features, extractor has %d", len(a.FeatureNames), len(featureNames)),
		}
	}

	return &a, nil
}

// Classifier reconstructs the trained classifier from the bundle.
func (a *Artifact) Classifier() (Classifier, error) {
	clf, err := New(Kind(a.Strategy))
	if err != nil {
		return nil, &core.ModelLoadError{Reason: fmt.Sprintf("unknown strategy %q", a.Strategy), Err: err}
	}
	if err := clf.SetParams(a.Params); err != nil {
		return nil, &core.ModelLoadError{Reason: "restore params", Err: err}
	}
	return clf, nil
}

// ScalerValue reconstructs the input scaler from the bundle.
func (a *Artifact) ScalerValue() Scaler {
	return Scaler{
		Min: append([]float64(nil), a.ScalerMin...),
		Max: append([]float64(nil), a.ScalerMax...),
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
