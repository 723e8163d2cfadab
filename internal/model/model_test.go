package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/core"
)

// separableDataset builds n rows over three features where the label
// depends on the first feature only.
func separableDataset(n int) Dataset {
	ds := Dataset{FeatureNames: []string{"signal", "noise_a", "noise_b"}}
	for i := 0; i < n; i++ {
		signal := float64(i%10) / 10.0
		noiseA := float64((i*7)%13) / 13.0
		noiseB := float64((i*3)%5) / 5.0
		label := 0
		if signal > 0.5 {
			label = 1
		}
		ds.X = append(ds.X, []float64{signal, noiseA, noiseB})
		ds.Y = append(ds.Y, label)
	}
	return ds
}

// imbalancedDataset has roughly one failure per ten rows.
func imbalancedDataset(n int) Dataset {
	ds := Dataset{FeatureNames: []string{"signal", "noise"}}
	for i := 0; i < n; i++ {
		label := 0
		signal := 0.1
		if i%10 == 0 {
			label = 1
			signal = 0.9
		}
		ds.X = append(ds.X, []float64{signal, float64(i%4) / 4.0})
		ds.Y = append(ds.Y, label)
	}
	return ds
}

func TestLinearLearnsSeparableData(t *testing.T) {
	ds := separableDataset(100)
	res, err := Train(KindLinear, ds, 20)
	require.NoError(t, err)

	assert.Greater(t, res.Metrics.Accuracy, 0.9)

	high, err := res.Scaler.Transform([]float64{0.9, 0.5, 0.5})
	require.NoError(t, err)
	low, err := res.Scaler.Transform([]float64{0.1, 0.5, 0.5})
	require.NoError(t, err)
	assert.Greater(t, res.Classifier.PredictProba(high), res.Classifier.PredictProba(low))
}

func TestEnsembleLearnsSeparableData(t *testing.T) {
	ds := separableDataset(100)
	res, err := Train(KindEnsemble, ds, 20)
	require.NoError(t, err)

	assert.Greater(t, res.Metrics.Accuracy, 0.9)

	high, err := res.Scaler.Transform([]float64{0.9, 0.5, 0.5})
	require.NoError(t, err)
	low, err := res.Scaler.Transform([]float64{0.1, 0.5, 0.5})
	require.NoError(t, err)
	assert.Greater(t, res.Classifier.PredictProba(high), res.Classifier.PredictProba(low))
}

func TestTrainingIsDeterministic(t *testing.T) {
	ds := separableDataset(80)

	for _, kind := range []Kind{KindLinear, KindEnsemble} {
		first, err := Train(kind, ds, 20)
		require.NoError(t, err)
		second, err := Train(kind, ds, 20)
		require.NoError(t, err)

		assert.Equal(t, first.Classifier.Params(), second.Classifier.Params(), "kind %s", kind)
		assert.Equal(t, first.Metrics, second.Metrics, "kind %s", kind)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	ds := separableDataset(100)

	for _, kind := range []Kind{KindLinear, KindEnsemble} {
		res, err := Train(kind, ds, 20)
		require.NoError(t, err)

		restored, err := New(kind)
		require.NoError(t, err)
		require.NoError(t, restored.SetParams(res.Classifier.Params()))

		for _, row := range ds.X {
			scaled, err := res.Scaler.Transform(row)
			require.NoError(t, err)
			assert.InDelta(t, res.Classifier.PredictProba(scaled), restored.PredictProba(scaled), 1e-9, "kind %s", kind)
		}
	}
}

func TestTrainInsufficientData(t *testing.T) {
	ds := separableDataset(10)
	_, err := Train(KindLinear, ds, 20)
	require.Error(t, err)
	assert.True(t, core.IsInsufficientData(err))

	var ide *core.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 10, ide.Have)
	assert.Equal(t, 20, ide.Need)
}

func TestClassWeightsCompensateImbalance(t *testing.T) {
	ds := imbalancedDataset(200)
	res, err := Train(KindLinear, ds, 20)
	require.NoError(t, err)

	// Without class weighting the model would predict the majority class
	// everywhere; with it the minority (failure) pattern must still score
	// above the decision threshold.
	failing, err := res.Scaler.Transform([]float64{0.9, 0.25})
	require.NoError(t, err)
	assert.Greater(t, res.Classifier.PredictProba(failing), 0.5)
}

func TestClassWeightsUniformWhenSingleClass(t *testing.T) {
	weights := classWeights([]int{0, 0, 0, 0})
	for _, w := range weights {
		assert.Equal(t, 1.0, w)
	}
}

func TestSingleClassFitDoesNotError(t *testing.T) {
	X := [][]float64{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}, {0.2, 0.1}}
	y := []int{0, 0, 0, 0}

	for _, kind := range []Kind{KindLinear, KindEnsemble} {
		clf, err := New(kind)
		require.NoError(t, err)
		require.NoError(t, clf.Fit(X, y, classWeights(y)))
		p := clf.PredictProba([]float64{0.2, 0.3})
		assert.Less(t, p, 0.5, "kind %s", kind)
	}
}

func TestEnsembleFeatureImportance(t *testing.T) {
	ds := separableDataset(100)
	res, err := Train(KindEnsemble, ds, 20)
	require.NoError(t, err)

	ranked := res.Metrics.FeatureImportance
	require.NotEmpty(t, ranked)
	assert.Equal(t, "signal", ranked[0].Name)

	var sum float64
	for _, fw := range ranked {
		sum += fw.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRestoredEnsembleHasNoImportance(t *testing.T) {
	ds := separableDataset(60)
	res, err := Train(KindEnsemble, ds, 20)
	require.NoError(t, err)

	restored := NewEnsemble()
	require.NoError(t, restored.SetParams(res.Classifier.Params()))
	assert.Nil(t, restored.FeatureImportance(ds.FeatureNames))
}

func TestStratifiedSplitPreservesClasses(t *testing.T) {
	ds := imbalancedDataset(100)

	trainIdx, testIdx := stratifiedSplit(ds.Y)
	assert.Len(t, trainIdx, 100-len(testIdx))

	var trainPos, testPos int
	for _, i := range trainIdx {
		trainPos += ds.Y[i]
	}
	for _, i := range testIdx {
		testPos += ds.Y[i]
	}
	assert.Greater(t, trainPos, 0, "training split lost the minority class")
	assert.Greater(t, testPos, 0, "holdout split lost the minority class")
}

func TestScalerDegenerateColumn(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 3}, {1, 7}})
	require.NoError(t, err)

	out, err := s.Transform([]float64{1, 5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, out[0])
	assert.Equal(t, 0.5, out[1])
}

func TestScalerClampsOutOfRange(t *testing.T) {
	s, err := FitScaler([][]float64{{0}, {10}})
	require.NoError(t, err)

	out, err := s.Transform([]float64{-5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0])

	out, err = s.Transform([]float64{25})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[0])
}

func TestSigmoidBounded(t *testing.T) {
	assert.InDelta(t, 1.0, sigmoid(1000), 1e-9)
	assert.InDelta(t, 0.0, sigmoid(-1000), 1e-9)
	assert.False(t, math.IsNaN(sigmoid(math.MaxFloat64)))
}
