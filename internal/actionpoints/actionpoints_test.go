package actionpoints

import (
	"testing"
	"time"
)

var testRate = Rate{IntervalMS: 1000, Increment: 1, Max: 10}

func TestComputePartialInterval(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	value, next := Compute(0, t0, testRate, t0.Add(2500*time.Millisecond))
	if value != 2 {
		t.Fatalf("value: got %d, want 2", value)
	}
	if want := t0.Add(2 * time.Second); !next.Equal(want) {
		t.Fatalf("next snapshot: got %v, want %v", next, want)
	}
}

func TestComputeFractionalMillisecondRoundsUp(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 999.9999ms elapsed counts as 1000ms, one full interval.
	value, next := Compute(0, t0, testRate, t0.Add(time.Second-100*time.Nanosecond))
	if value != 1 {
		t.Fatalf("value: got %d, want 1", value)
	}
	if want := t0.Add(time.Second); !next.Equal(want) {
		t.Fatalf("next snapshot: got %v, want %v", next, want)
	}
}

func TestComputeClamp(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	value, _ := Compute(8, t0, testRate, t0.Add(time.Hour))
	if value != testRate.Max {
		t.Fatalf("value: got %d, want max %d", value, testRate.Max)
	}

	value, _ = Compute(-5, t0, testRate, t0.Add(2*time.Second))
	if value < 0 {
		t.Fatalf("value must not be negative, got %d", value)
	}
}

func TestComputeIdempotentAtSnapshot(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(4700 * time.Millisecond)

	value, next := Compute(1, t0, testRate, now)
	again, nextAgain := Compute(value, next, testRate, next)
	if again != value || !nextAgain.Equal(next) {
		t.Fatalf("re-invoking at the snapshot changed the result: (%d,%v) -> (%d,%v)",
			value, next, again, nextAgain)
	}
}

func TestComputeMonotonic(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := -1
	for ms := int64(0); ms <= 10*testRate.IntervalMS; ms += 137 {
		value, _ := Compute(0, t0, testRate, t0.Add(time.Duration(ms)*time.Millisecond))
		if value < prev {
			t.Fatalf("value decreased at %dms: %d -> %d", ms, prev, value)
		}
		if value < 0 || value > testRate.Max {
			t.Fatalf("value out of range at %dms: %d", ms, value)
		}
		prev = value
	}
}

func TestComputeClockSkew(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A now before the snapshot (reader clock behind the writer clock)
	// leaves the snapshot untouched rather than going negative.
	value, next := Compute(3, t0, testRate, t0.Add(-5*time.Second))
	if value != 3 || !next.Equal(t0) {
		t.Fatalf("got (%d,%v), want (3,%v)", value, next, t0)
	}
}

func TestAffordable(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if Affordable(0, t0, testRate, t0.Add(1500*time.Millisecond), 2) {
		t.Fatal("1 regenerated point should not afford cost 2")
	}
	if !Affordable(0, t0, testRate, t0.Add(2*time.Second), 2) {
		t.Fatal("2 regenerated points should afford cost 2")
	}
	// Once affordable, more elapsed time keeps it affordable.
	if !Affordable(0, t0, testRate, t0.Add(time.Hour), 2) {
		t.Fatal("affordability must be monotonic in elapsed time")
	}
}
