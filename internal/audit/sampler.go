package audit

import "math/rand"

// Sampler decides whether a successful authorization is recorded.
type Sampler func() bool

// RateSampler returns a Sampler that fires with the given probability.
func RateSampler(rate float64) Sampler {
	switch {
	case rate <= 0:
		return func() bool { return false }
	case rate >= 1:
		return func() bool { return true }
	}
	return func() bool { return rand.Float64() < rate }
}
