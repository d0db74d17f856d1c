package upload

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBackoff_DoublesUpToCap(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)
	b.rng = nil // jitterless for exact assertions

	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped
	}
	for i, want := range expected {
		if got := b.Next(); got != want {
			t.Errorf("Next() #%d = %v, expected %v", i, got, want)
		}
	}
}

func TestBackoff_ResetReturnsToSeed(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)
	b.rng = nil

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, expected seed %v", got, time.Second)
	}
}

// Monotonicity property: for any seed/cap pair and failure count, the
// base delay sequence is non-decreasing and never exceeds the cap.
func TestBackoff_MonotonicityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("base delays are non-decreasing and capped", prop.ForAll(
		func(seedMs int, capFactor int, failures int) bool {
			seed := time.Duration(seedMs) * time.Millisecond
			cap := seed * time.Duration(capFactor)
			b := NewBackoff(seed, cap)

			prev := time.Duration(0)
			for i := 0; i < failures; i++ {
				base := b.Base()
				if base < prev || base > cap {
					return false
				}
				prev = base
				b.Next()
			}
			return true
		},
		gen.IntRange(1, 10_000),
		gen.IntRange(1, 64),
		gen.IntRange(1, 40),
	))

	properties.Property("jittered wait is at least the base", prop.ForAll(
		func(seedMs int, failures int) bool {
			seed := time.Duration(seedMs) * time.Millisecond
			b := NewBackoff(seed, seed*1024)

			for i := 0; i < failures; i++ {
				base := b.Base()
				wait := b.Next()
				if wait < base || wait > base+base/4 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10_000),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
