// Package model implements the trainable failure classifiers: a linear
// (logistic) strategy and a bagged-tree ensemble strategy behind one
// interface. Both serialize to a portable artifact of ordered feature names
// and flat parameter arrays, so a model trained anywhere reproduces
// identical predictions anywhere the feature schema matches.
package model

import (
	"fmt"

	"github.com/roach88/triage/internal/core"
)

// Kind identifies a classifier strategy.
type Kind string

const (
	KindLinear   Kind = "linear"
	KindEnsemble Kind = "ensemble"
)

// New returns an untrained classifier of the given kind.
func New(kind Kind) (Classifier, error) {
	switch kind {
	case KindLinear:
		return NewLinear(), nil
	case KindEnsemble:
		return NewEnsemble(), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
}

// Params is the portable, flat parameter representation of a fitted
// classifier. No runtime-specific blobs: float and integer arrays only.
type Params struct {
	Floats map[string][]float64 `json:"floats"`
	Ints   map[string][]int64   `json:"ints,omitempty"`
}

// Classifier is one prediction strategy. Fit receives pre-scaled feature
// rows; PredictProba expects rows scaled with the same scaler.
type Classifier interface {
	Kind() Kind

	// Fit trains on rows X with binary labels y (1 = failed) and per-sample
	// weights. Deterministic for identical inputs.
	Fit(X [][]float64, y []int, sampleWeights []float64) error

	// PredictProba returns the failure probability for one scaled row.
	PredictProba(x []float64) float64

	// Params exports the fitted parameters; SetParams restores them.
	Params() Params
	SetParams(p Params) error

	// FeatureImportance returns the ranked importance list, or nil for
	// strategies that do not produce one.
	FeatureImportance(names []string) []core.FeatureWeight
}

// Dataset is a labeled feature matrix ready for training.
type Dataset struct {
	X            [][]float64
	Y            []int // 1 = rule failed
	FeatureNames []string
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.X)
}

// classWeights compensates for class imbalance: each class contributes
// equally to the loss regardless of its sample count.
func classWeights(y []int) []float64 {
	var pos, neg int
	for _, label := range y {
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}

	n := float64(len(y))
	wPos, wNeg := 1.0, 1.0
	if pos > 0 && neg > 0 {
		wPos = n / (2.0 * float64(pos))
		wNeg = n / (2.0 * float64(neg))
	}

	weights := make([]float64, len(y))
	for i, label := range y {
		if label == 1 {
			weights[i] = wPos
		} else {
			weights[i] = wNeg
		}
	}
	return weights
}
