package model

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/roach88/triage/internal/core"
)

// Ensemble hyperparameters. Bagging seeds are fixed so that training on an
// identical dataset yields an identical forest.
const (
	ensembleTrees = 25
	treeMaxDepth  = 4
	treeMinLeaf   = 2
	baggingSeed   = 1
)

// leafFeature marks a leaf node in the flat representation.
const leafFeature = -1

// treeNode is one node in the flat array encoding of a decision tree.
// Feature == leafFeature means Value holds the leaf probability; otherwise
// rows with x[Feature] <= Threshold descend Left, the rest Right.
type treeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

type tree struct {
	nodes []treeNode
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.Feature == leafFeature {
			return n.Value
		}
		if n.Feature < len(x) && x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Ensemble is a bagged forest of depth-limited decision trees. Slower to
// train than the linear strategy but better on nonlinear failure patterns.
type Ensemble struct {
	trees []tree

	// importanceSums accumulates weighted impurity decrease per feature
	// during Fit. Not part of the portable parameters; it feeds the
	// training metrics only.
	importanceSums []float64
}

// NewEnsemble returns an untrained ensemble classifier.
func NewEnsemble() *Ensemble {
	return &Ensemble{}
}

// Kind implements Classifier.
func (e *Ensemble) Kind() Kind {
	return KindEnsemble
}

// Fit implements Classifier. Each tree trains on a bootstrap sample drawn
// from a per-tree fixed seed, so the forest is deterministic.
func (e *Ensemble) Fit(X [][]float64, y []int, sampleWeights []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("ensemble fit: empty training set")
	}
	if len(X) != len(y) || len(X) != len(sampleWeights) {
		return fmt.Errorf("ensemble fit: size mismatch (%d rows, %d labels, %d weights)", len(X), len(y), len(sampleWeights))
	}

	cols := len(X[0])
	e.trees = make([]tree, 0, ensembleTrees)
	e.importanceSums = make([]float64, cols)

	n := len(X)
	for t := 0; t < ensembleTrees; t++ {
		rng := rand.New(rand.NewSource(baggingSeed + int64(t)))
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}

		b := &treeBuilder{
			X:           X,
			y:           y,
			w:           sampleWeights,
			importances: e.importanceSums,
		}
		b.build(idx, 0)
		e.trees = append(e.trees, tree{nodes: b.nodes})
	}

	return nil
}

// PredictProba implements Classifier: the mean of the tree outputs.
func (e *Ensemble) PredictProba(x []float64) float64 {
	if len(e.trees) == 0 {
		return 0.5
	}
	var sum float64
	for i := range e.trees {
		sum += e.trees[i].predict(x)
	}
	return sum / float64(len(e.trees))
}

// Params implements Classifier: the forest flattened into parallel arrays,
// with per-tree offsets into them.
func (e *Ensemble) Params() Params {
	var features, left, right []int64
	var thresholds, values []float64
	offsets := make([]int64, 0, len(e.trees)+1)

	var total int64
	for i := range e.trees {
		offsets = append(offsets, total)
		for _, n := range e.trees[i].nodes {
			features = append(features, int64(n.Feature))
			left = append(left, int64(n.Left))
			right = append(right, int64(n.Right))
			thresholds = append(thresholds, n.Threshold)
			values = append(values, n.Value)
		}
		total += int64(len(e.trees[i].nodes))
	}
	offsets = append(offsets, total)

	return Params{
		Floats: map[string][]float64{
			"thresholds": thresholds,
			"values":     values,
		},
		Ints: map[string][]int64{
			"features":     features,
			"left":         left,
			"right":        right,
			"tree_offsets": offsets,
		},
	}
}

// SetParams implements Classifier.
func (e *Ensemble) SetParams(p Params) error {
	thresholds := p.Floats["thresholds"]
	values := p.Floats["values"]
	features := p.Ints["features"]
	left := p.Ints["left"]
	right := p.Ints["right"]
	offsets := p.Ints["tree_offsets"]

	if len(offsets) < 2 {
		return fmt.Errorf("ensemble params: missing tree_offsets")
	}
	total := offsets[len(offsets)-1]
	if int64(len(thresholds)) != total || int64(len(values)) != total ||
		int64(len(features)) != total || int64(len(left)) != total || int64(len(right)) != total {
		return fmt.Errorf("ensemble params: array lengths disagree with tree_offsets")
	}

	e.trees = make([]tree, 0, len(offsets)-1)
	for t := 0; t < len(offsets)-1; t++ {
		start, end := offsets[t], offsets[t+1]
		if start < 0 || end < start || end > total {
			return fmt.Errorf("ensemble params: invalid offsets [%d,%d)", start, end)
		}
		nodes := make([]treeNode, 0, end-start)
		for i := start; i < end; i++ {
			nodes = append(nodes, treeNode{
				Feature:   int(features[i]),
				Threshold: thresholds[i],
				Left:      int(left[i]),
				Right:     int(right[i]),
				Value:     values[i],
			})
		}
		e.trees = append(e.trees, tree{nodes: nodes})
	}
	e.importanceSums = nil
	return nil
}

// FeatureImportance implements Classifier: impurity-decrease importances
// normalized to sum to 1, ranked highest first. Available after Fit only;
// a restored ensemble has no importances.
func (e *Ensemble) FeatureImportance(names []string) []core.FeatureWeight {
	if e.importanceSums == nil {
		return nil
	}

	var total float64
	for _, v := range e.importanceSums {
		total += v
	}
	if total == 0 {
		return nil
	}

	ranked := make([]core.FeatureWeight, 0, len(e.importanceSums))
	for j, v := range e.importanceSums {
		name := fmt.Sprintf("f%d", j)
		if j < len(names) {
			name = names[j]
		}
		ranked = append(ranked, core.FeatureWeight{Name: name, Weight: v / total})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}

// treeBuilder grows one tree over bootstrap indices.
type treeBuilder struct {
	X           [][]float64
	y           []int
	w           []float64
	nodes       []treeNode
	importances []float64
}

// build appends the subtree for idx and returns its node index.
func (b *treeBuilder) build(idx []int, depth int) int {
	value := b.weightedMean(idx)

	if depth >= treeMaxDepth || len(idx) < 2*treeMinLeaf || value == 0 || value == 1 {
		return b.leaf(value)
	}

	feature, threshold, decrease, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(value)
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	if len(leftIdx) < treeMinLeaf || len(rightIdx) < treeMinLeaf {
		return b.leaf(value)
	}

	b.importances[feature] += decrease

	// Reserve this node's slot before recursing so child indices are known.
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{})

	leftNode := b.build(leftIdx, depth+1)
	rightNode := b.build(rightIdx, depth+1)
	b.nodes[nodeIdx] = treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      leftNode,
		Right:     rightNode,
	}
	return nodeIdx
}

func (b *treeBuilder) leaf(value float64) int {
	b.nodes = append(b.nodes, treeNode{Feature: leafFeature, Value: value})
	return len(b.nodes) - 1
}

// weightedMean returns the weighted failure fraction over idx.
func (b *treeBuilder) weightedMean(idx []int) float64 {
	var sum, total float64
	for _, i := range idx {
		total += b.w[i]
		if b.y[i] == 1 {
			sum += b.w[i]
		}
	}
	if total == 0 {
		return 0.5
	}
	return sum / total
}

// gini returns the weighted Gini impurity over idx.
func (b *treeBuilder) gini(idx []int) (impurity, totalWeight float64) {
	p := b.weightedMean(idx)
	var total float64
	for _, i := range idx {
		total += b.w[i]
	}
	return 2 * p * (1 - p), total
}

// bestSplit scans features in schema order and candidate thresholds in
// ascending order, keeping the first split with the strictly largest
// impurity decrease. The deterministic scan order makes tree growth
// reproducible.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold, decrease float64, ok bool) {
	parentImpurity, parentWeight := b.gini(idx)
	if parentWeight == 0 || parentImpurity == 0 {
		return 0, 0, 0, false
	}

	cols := len(b.X[idx[0]])
	bestDecrease := 0.0

	for j := 0; j < cols; j++ {
		for _, t := range b.candidateThresholds(idx, j) {
			var leftIdx, rightIdx []int
			for _, i := range idx {
				if b.X[i][j] <= t {
					leftIdx = append(leftIdx, i)
				} else {
					rightIdx = append(rightIdx, i)
				}
			}
			if len(leftIdx) < treeMinLeaf || len(rightIdx) < treeMinLeaf {
				continue
			}

			leftImp, leftW := b.gini(leftIdx)
			rightImp, rightW := b.gini(rightIdx)
			childImpurity := (leftW*leftImp + rightW*rightImp) / parentWeight

			d := (parentImpurity - childImpurity) * parentWeight
			if d > bestDecrease {
				bestDecrease = d
				feature = j
				threshold = t
				ok = true
			}
		}
	}

	return feature, threshold, bestDecrease, ok
}

// candidateThresholds returns midpoints between consecutive distinct values
// of feature j over idx.
func (b *treeBuilder) candidateThresholds(idx []int, j int) []float64 {
	values := make([]float64, 0, len(idx))
	for _, i := range idx {
		values = append(values, b.X[i][j])
	}
	sort.Float64s(values)

	var thresholds []float64
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1] {
			thresholds = append(thresholds, (values[i]+values[i-1])/2)
		}
	}
	return thresholds
}
