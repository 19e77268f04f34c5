// Package aggregate combines client weight vectors into a new global model.
package aggregate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrEmptyInput is returned when there is nothing to aggregate.
	ErrEmptyInput = errors.New("no updates to aggregate")

	// ErrLengthMismatch is returned when vectors differ in length.
	ErrLengthMismatch = errors.New("weight vector length mismatch")

	// ErrNonPositiveWeight is returned when a sample count is not strictly positive.
	ErrNonPositiveWeight = errors.New("non-positive sample weight")

	// ErrAggregation wraps failures of external aggregation programs.
	ErrAggregation = errors.New("aggregation failed")
)

// WeightVector is a flat model parameter vector.
type WeightVector = []float64

// Weighted is one vector and its sample weight.
type Weighted struct {
	Vector WeightVector
	Size   float64 // Size is the client's declared sample count
}

// WeightedAverage computes the sample-weighted mean of the vectors.
// Each vector contributes with coefficient Size / sum(Size); accumulation is float64.
func WeightedAverage(in []Weighted) (WeightVector, error) {
	if len(in) == 0 {
		return nil, ErrEmptyInput
	}

	n := len(in[0].Vector)
	total := 0.0

	for i, w := range in {
		if len(w.Vector) != n {
			return nil, fmt.Errorf("vector %d has length %d, want %d: %w", i, len(w.Vector), n, ErrLengthMismatch)
		}

		if !(w.Size > 0) || math.IsInf(w.Size, 0) {
			return nil, fmt.Errorf("vector %d has size %v: %w", i, w.Size, ErrNonPositiveWeight)
		}

		total += w.Size
	}

	out := make(WeightVector, n)
	for _, w := range in {
		floats.AddScaled(out, w.Size/total, w.Vector)
	}

	return out, nil
}
