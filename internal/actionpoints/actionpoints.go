// Package actionpoints recomputes the regenerating action point balance
// from its stored snapshot pair. The computation is a pure function of the
// snapshot and the clock so the in-process gate and the store-side write
// guard always agree on the same inputs.
package actionpoints

import "time"

// Rate describes how action points regenerate for one player level.
type Rate struct {
	// IntervalMS is the regeneration period in milliseconds.
	IntervalMS int64
	// Increment is the amount gained per full elapsed interval.
	Increment int
	// Max caps the regenerated balance.
	Max int
}

// Compute derives the current action point value and the snapshot time to
// store with it. Elapsed time rounds up to whole milliseconds before the
// integer division, so any fraction of a millisecond counts as elapsed but
// a partial interval never yields an increment. The returned snapshot time
// advances only by whole intervals, keeping the remainder of a partial
// interval for the next call.
func Compute(snapshot int, snapshotTime time.Time, rate Rate, now time.Time) (int, time.Time) {
	if rate.IntervalMS <= 0 {
		return clamp(snapshot, rate.Max), snapshotTime
	}
	elapsed := now.Sub(snapshotTime)
	if elapsed <= 0 {
		return clamp(snapshot, rate.Max), snapshotTime
	}
	ms := int64(elapsed / time.Millisecond)
	if elapsed%time.Millisecond != 0 {
		ms++
	}
	increments := ms / rate.IntervalMS
	next := snapshotTime.Add(time.Duration(increments*rate.IntervalMS) * time.Millisecond)
	value := clamp(snapshot+int(increments)*rate.Increment, rate.Max)
	return value, next
}

// Affordable reports whether the regenerated balance covers a cost. The
// comparison is a monotonic "at least", never an equality, so a later
// re-evaluation with a larger elapsed time can only keep it true.
func Affordable(snapshot int, snapshotTime time.Time, rate Rate, now time.Time, cost int) bool {
	value, _ := Compute(snapshot, snapshotTime, rate, now)
	return value >= cost
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
