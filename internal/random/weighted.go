package random

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Weighted draws outcomes with probability proportional to their weight.
// Zero-weight outcomes are never drawn. The outcome order is fixed at
// construction so draws are reproducible for a given source and seed.
type Weighted[T comparable] struct {
	outcomes []T
	bounds   []float64
	total    float64
}

// NewWeighted builds a sampler from a weight table. Weights must be
// non-negative and at least one must be positive.
func NewWeighted[T comparable](weights map[T]float64, less func(a, b T) int) (*Weighted[T], error) {
	outcomes := make([]T, 0, len(weights))
	for outcome := range weights {
		outcomes = append(outcomes, outcome)
	}
	slices.SortFunc(outcomes, less)

	w := &Weighted[T]{}
	for _, outcome := range outcomes {
		weight := weights[outcome]
		if weight < 0 {
			return nil, fmt.Errorf("negative weight %v for outcome %v", weight, outcome)
		}
		if weight == 0 {
			continue
		}
		w.total += weight
		w.outcomes = append(w.outcomes, outcome)
		w.bounds = append(w.bounds, w.total)
	}
	if w.total <= 0 {
		return nil, fmt.Errorf("no positive weights")
	}
	return w, nil
}

// Draw returns one outcome using the supplied source.
func (w *Weighted[T]) Draw(r *rand.Rand) T {
	v := r.Float64() * w.total
	for i, bound := range w.bounds {
		if v < bound {
			return w.outcomes[i]
		}
	}
	// Float64 is in [0,1); the last bound equals total and is never reached.
	return w.outcomes[len(w.outcomes)-1]
}
