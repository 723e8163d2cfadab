package model

import (
	"fmt"
	"math/rand"

	"github.com/roach88/triage/internal/core"
)

// Decision threshold for mapping predicted probabilities to labels when
// computing holdout metrics.
const decisionThreshold = 0.5

// Holdout split parameters. The shuffle seed is fixed so a given dataset
// always splits the same way.
const (
	holdoutFraction = 0.2
	splitSeed       = 7
)

// TrainResult bundles a fitted classifier with its input scaler and holdout
// metrics.
type TrainResult struct {
	Classifier Classifier
	Scaler     Scaler
	Metrics    core.Metrics
}

// Train fits a classifier of the given kind on ds: stratified 80/20 split,
// scaler fitted on the training rows only, class-weighted loss, metrics
// computed on the holdout rows.
func Train(kind Kind, ds Dataset, minSamples int) (*TrainResult, error) {
	if ds.Len() < minSamples {
		return nil, &core.InsufficientDataError{Have: ds.Len(), Need: minSamples}
	}
	if len(ds.X) != len(ds.Y) {
		return nil, fmt.Errorf("train: %d rows but %d labels", len(ds.X), len(ds.Y))
	}

	trainIdx, testIdx := stratifiedSplit(ds.Y)
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, fmt.Errorf("train: degenerate split (%d train, %d holdout)", len(trainIdx), len(testIdx))
	}

	trainX := rows(ds.X, trainIdx)
	trainY := labels(ds.Y, trainIdx)

	scaler, err := FitScaler(trainX)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	scaledX, err := scaler.TransformAll(trainX)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	clf, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(scaledX, trainY, classWeights(trainY)); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	metrics := evaluate(clf, scaler, rows(ds.X, testIdx), labels(ds.Y, testIdx))
	metrics.FeatureImportance = clf.FeatureImportance(ds.FeatureNames)

	return &TrainResult{Classifier: clf, Scaler: *scaler, Metrics: metrics}, nil
}

// stratifiedSplit partitions row indices into train and holdout sets,
// holding out holdoutFraction of each class. Classes too small to split
// contribute all rows to training.
func stratifiedSplit(y []int) (train, test []int) {
	var pos, neg []int
	for i, label := range y {
		if label == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	rng := rand.New(rand.NewSource(splitSeed))
	for _, class := range [][]int{neg, pos} {
		idx := append([]int(nil), class...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		hold := int(float64(len(idx)) * holdoutFraction)
		if hold == 0 && len(idx) >= 5 {
			hold = 1
		}
		test = append(test, idx[:hold]...)
		train = append(train, idx[hold:]...)
	}
	return train, test
}

func rows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func labels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// evaluate computes the confusion matrix and derived rates on the holdout
// rows. Undefined rates (zero denominators) report as 0.
func evaluate(clf Classifier, scaler *Scaler, X [][]float64, y []int) core.Metrics {
	var m core.Metrics
	for i, row := range X {
		scaled, err := scaler.Transform(row)
		if err != nil {
			continue
		}
		predicted := 0
		if clf.PredictProba(scaled) >= decisionThreshold {
			predicted = 1
		}
		switch {
		case predicted == 1 && y[i] == 1:
			m.TruePositives++
		case predicted == 0 && y[i] == 0:
			m.TrueNegatives++
		case predicted == 1 && y[i] == 0:
			m.FalsePositives++
		default:
			m.FalseNegatives++
		}
	}

	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		m.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	if m.TruePositives+m.FalsePositives > 0 {
		m.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		m.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
		m.FalseNegativeRate = float64(m.FalseNegatives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if m.FalsePositives+m.TrueNegatives > 0 {
		m.FalsePositiveRate = float64(m.FalsePositives) / float64(m.FalsePositives+m.TrueNegatives)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
