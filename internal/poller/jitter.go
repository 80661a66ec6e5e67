package poller

import (
	"math/rand/v2"
	"time"
)

// JitterFactor is the maximum relative deviation applied by [Jitter].
const JitterFactor = 0.1

// Jitter returns a duration drawn uniformly from [base-10%, base+10%].
// A zero or negative base is returned unchanged.
func Jitter(base time.Duration) time.Duration {
	return jitterWith(rand.Float64, base)
}

// NewJitter returns a jitter function backed by its own seeded source, for
// reproducible schedules in tests.
func NewJitter(seed uint64) func(time.Duration) time.Duration {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(base time.Duration) time.Duration {
		return jitterWith(r.Float64, base)
	}
}

// jitterWith maps a [0,1) sample onto [-1,1) and scales it by 10% of base.
// The conversion to Duration truncates toward zero, so the result never
// leaves the bound.
func jitterWith(sample func() float64, base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	spread := float64(base) * JitterFactor
	offset := (sample()*2 - 1) * spread
	return base + time.Duration(offset)
}
