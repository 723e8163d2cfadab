package model

import "fmt"

// Scaler normalizes features to [0,1] per column (min-max). Fitted on the
// training split only; saved alongside the classifier so predictions at
// serving time see the same scale as training did.
type Scaler struct {
	Min []float64
	Max []float64
}

// FitScaler computes per-column bounds over X.
func FitScaler(X [][]float64) (*Scaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit scaler: empty matrix")
	}

	cols := len(X[0])
	s := &Scaler{
		Min: make([]float64, cols),
		Max: make([]float64, cols),
	}
	copy(s.Min, X[0])
	copy(s.Max, X[0])

	for _, row := range X[1:] {
		if len(row) != cols {
			return nil, fmt.Errorf("fit scaler: ragged row (%d vs %d columns)", len(row), cols)
		}
		for j, v := range row {
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
		}
	}

	return s, nil
}

// Transform scales one row. Degenerate columns (min == max) map to 0.5 so a
// constant feature carries no signal instead of exploding.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Min) {
		return nil, fmt.Errorf("transform: row has %d columns, scaler has %d", len(x), len(s.Min))
	}

	out := make([]float64, len(x))
	for j, v := range x {
		span := s.Max[j] - s.Min[j]
		if span == 0 {
			out[j] = 0.5
			continue
		}
		scaled := (v - s.Min[j]) / span
		// Serving-time values may fall outside the training bounds.
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 1 {
			scaled = 1
		}
		out[j] = scaled
	}
	return out, nil
}

// TransformAll scales a matrix.
func (s *Scaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
