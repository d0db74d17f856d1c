package upload

import (
	"math/rand"
	"time"
)

// Backoff computes the wait between drain cycles after transient
// delivery failures. The base delay starts at seed, doubles per
// consecutive failure, and is capped; each returned wait adds up to 25%
// jitter so a fleet of clients recovering together does not stampede
// the collector. A successful delivery resets the base to the seed.
//
// Not safe for concurrent use; the scheduler owns one instance and
// touches it only inside its drain mutex.
type Backoff struct {
	seed time.Duration
	cap  time.Duration
	base time.Duration
	rng  *rand.Rand
}

// NewBackoff creates a backoff starting at seed and capped at cap.
func NewBackoff(seed, cap time.Duration) *Backoff {
	return &Backoff{
		seed: seed,
		cap:  cap,
		base: seed,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the wait for the failure just observed and advances the
// base for the next one.
func (b *Backoff) Next() time.Duration {
	wait := b.base
	if b.rng != nil {
		wait += time.Duration(b.rng.Int63n(int64(b.base)/4 + 1))
	}
	b.base *= 2
	if b.base > b.cap {
		b.base = b.cap
	}
	return wait
}

// Reset returns the base delay to the seed. Called after any
// successful delivery.
func (b *Backoff) Reset() {
	b.base = b.seed
}

// Base exposes the current jitterless base delay. The monotonicity
// property tests assert on this, since jitter is deliberately random.
func (b *Backoff) Base() time.Duration {
	return b.base
}
