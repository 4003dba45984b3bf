package behavior

import (
	"context"
	"time"
)

// BoundedNormal draws from a normal distribution centred on the middle of
// [min, max] with σ = (max-min)/6, clamped to the interval.
func BoundedNormal(r Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	mean := float64(min+max) / 2
	stdDev := float64(max-min) / 6
	d := time.Duration(mean + r.NormFloat64()*stdDev)
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// Uniform draws uniformly from [min, max].
func Uniform(r Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.Float64()*float64(max-min))
}

// Source bundles the random and time sources of one run.
type Source struct {
	Rand  Rand
	Clock Clock
}

// NewSource returns a Source backed by a time-seeded Rand and the wall clock.
func NewSource() Source {
	return Source{Rand: NewRand(0), Clock: RealClock{}}
}

// Draw picks a bounded-normal delay inside rg.
func (s Source) Draw(rg Range) time.Duration {
	return BoundedNormal(s.Rand, rg.Min, rg.Max)
}

// Pause sleeps for a delay drawn from rg.
func (s Source) Pause(ctx context.Context, rg Range) error {
	return s.Clock.Sleep(ctx, s.Draw(rg))
}

// PauseBetween sleeps for a uniform delay in [min, max].
func (s Source) PauseBetween(ctx context.Context, min, max time.Duration) error {
	return s.Clock.Sleep(ctx, Uniform(s.Rand, min, max))
}

// Chance returns true with probability p.
func (s Source) Chance(p float64) bool {
	return s.Rand.Float64() < p
}

// Intn returns a value in [0, n).
func (s Source) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return s.Rand.Intn(n)
}

// Jitter returns a uniform value in [-amp, amp].
func (s Source) Jitter(amp float64) float64 {
	return (s.Rand.Float64()*2 - 1) * amp
}
