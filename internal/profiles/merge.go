// Package profiles implements the population model shared by the profile
// pool and the token upgrade path: merging an incoming batch into a bounded
// pool with probabilistic deduplication, and accumulating a 0-100 scale
// token amount across repeated top-ups without double counting.
package profiles

import (
	"maps"
	"slices"
)

// Population is a pool of entries distributed over named categories.
// Shares are on the 0-100 scale: a share of 25 means a quarter of Size.
type Population struct {
	Size   float64
	Shares map[string]float64
}

// Result is the outcome of merging an incoming batch into a pool.
type Result struct {
	Population
	// Increment is the pool growth; zero when the pool is at capacity.
	Increment float64
	// Duplicates is the part of the batch that did not grow the pool,
	// either wasted on overlap or rejected by the capacity pressure.
	Duplicates float64
}

// Merge folds batch b into pool a, bounded by capacity. Only categorized
// entries of b enter the pool; each is discounted twice, by the capacity
// pressure (the fuller the pool, the fewer land) and by the overlap with
// a's existing share of the same category. fullDuplicate disables both
// discounts for plain additive updates. An empty batch leaves a untouched.
// When no category ends non-zero the result keeps one zero-amount category
// so the shape of the pool stays stable.
func Merge(a, b Population, capacity float64, fullDuplicate bool) Result {
	if b.Size <= 0 {
		return Result{Population: copyPopulation(a)}
	}

	acceptance := 1.0
	if !fullDuplicate {
		if capacity <= 0 {
			acceptance = 0
		} else {
			acceptance = clampUnit(1 - a.Size/capacity)
		}
	}

	categories := make(map[string]struct{}, len(a.Shares)+len(b.Shares))
	for t := range a.Shares {
		categories[t] = struct{}{}
	}
	for t := range b.Shares {
		categories[t] = struct{}{}
	}

	absolute := make(map[string]float64, len(categories))
	var accepted float64
	for t := range categories {
		existing := a.Size * a.Shares[t] / 100
		incoming := b.Size * b.Shares[t] / 100
		waste := 1.0
		if !fullDuplicate {
			waste = clampUnit(1 - a.Shares[t]/100)
		}
		landed := incoming * acceptance * waste
		absolute[t] = existing + landed
		accepted += landed
	}

	newSize := a.Size + accepted
	if newSize > capacity {
		newSize = capacity
	}
	if newSize < a.Size {
		newSize = a.Size
	}

	shares := make(map[string]float64, len(absolute))
	nonzero := false
	for t, n := range absolute {
		if n <= 0 || newSize <= 0 {
			continue
		}
		share := 100 * n / newSize
		if share > 100 {
			share = 100
		}
		shares[t] = share
		nonzero = true
	}
	if !nonzero {
		if t, ok := placeholderCategory(categories); ok {
			shares[t] = 0
		}
	}

	increment := newSize - a.Size
	return Result{
		Population: Population{Size: newSize, Shares: shares},
		Increment:  increment,
		Duplicates: b.Size - increment,
	}
}

// placeholderCategory picks a deterministic category for the empty result.
func placeholderCategory(categories map[string]struct{}) (string, bool) {
	if len(categories) == 0 {
		return "", false
	}
	return slices.Min(slices.Collect(maps.Keys(categories))), true
}

func copyPopulation(p Population) Population {
	out := Population{Size: p.Size}
	if p.Shares != nil {
		out.Shares = maps.Clone(p.Shares)
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
