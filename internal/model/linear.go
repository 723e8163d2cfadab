package model

import (
	"fmt"
	"math"

	"github.com/roach88/triage/internal/core"
)

// Linear hyperparameters. Fixed rather than tuned: the training sets here
// are small and the point of this strategy is speed and interpretability.
const (
	linearEpochs       = 500
	linearLearningRate = 0.1
	linearL2           = 1e-4
)

// Linear is a logistic-regression classifier fitted with batch gradient
// descent and L2 regularization.
type Linear struct {
	weights []float64
	bias    float64
}

// NewLinear returns an untrained linear classifier.
func NewLinear() *Linear {
	return &Linear{}
}

// Kind implements Classifier.
func (l *Linear) Kind() Kind {
	return KindLinear
}

// Fit implements Classifier. Weights start at zero, so fitting is
// deterministic for identical inputs.
func (l *Linear) Fit(X [][]float64, y []int, sampleWeights []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("linear fit: empty training set")
	}
	if len(X) != len(y) || len(X) != len(sampleWeights) {
		return fmt.Errorf("linear fit: size mismatch (%d rows, %d labels, %d weights)", len(X), len(y), len(sampleWeights))
	}

	cols := len(X[0])
	l.weights = make([]float64, cols)
	l.bias = 0

	n := float64(len(X))
	grad := make([]float64, cols)

	for epoch := 0; epoch < linearEpochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64

		for i, row := range X {
			p := l.PredictProba(row)
			// Weighted cross-entropy gradient: w * (p - y) * x.
			err := sampleWeights[i] * (p - float64(y[i]))
			for j, v := range row {
				grad[j] += err * v
			}
			gradBias += err
		}

		for j := range l.weights {
			l.weights[j] -= linearLearningRate * (grad[j]/n + linearL2*l.weights[j])
		}
		l.bias -= linearLearningRate * gradBias / n
	}

	return nil
}

// PredictProba implements Classifier.
func (l *Linear) PredictProba(x []float64) float64 {
	z := l.bias
	for j, w := range l.weights {
		if j < len(x) {
			z += w * x[j]
		}
	}
	return sigmoid(z)
}

// Params implements Classifier.
func (l *Linear) Params() Params {
	weights := make([]float64, len(l.weights))
	copy(weights, l.weights)
	return Params{
		Floats: map[string][]float64{
			"weights": weights,
			"bias":    {l.bias},
		},
	}
}

// SetParams implements Classifier.
func (l *Linear) SetParams(p Params) error {
	weights, ok := p.Floats["weights"]
	if !ok {
		return fmt.Errorf("linear params: missing weights")
	}
	bias, ok := p.Floats["bias"]
	if !ok || len(bias) != 1 {
		return fmt.Errorf("linear params: missing or malformed bias")
	}

	l.weights = make([]float64, len(weights))
	copy(l.weights, weights)
	l.bias = bias[0]
	return nil
}

// FeatureImportance implements Classifier. The linear strategy reports none;
// coefficients are inspectable through Params for the curious.
func (l *Linear) FeatureImportance(names []string) []core.FeatureWeight {
	return nil
}

func sigmoid(z float64) float64 {
	// Clamp to keep exp finite; probabilities saturate well before this.
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1.0 / (1.0 + math.Exp(-z))
}
