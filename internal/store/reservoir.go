package store

import "math/rand"

// ReservoirCap is k in spec.md §4.1's "reservoir samples (k=256) for CV
// computations".
const ReservoirCap = 256

// Reservoir implements Algorithm R reservoir sampling: a uniform random
// sample of up to ReservoirCap values from an arbitrarily long stream,
// without needing to retain the whole stream.
type Reservoir struct {
	samples []float64
	seen    int64
	rnd     *rand.Rand
}

// NewReservoir returns an empty reservoir. rnd may be nil, in which case
// a new source with the fixed seed 1 is used.
func NewReservoir(rnd *rand.Rand) *Reservoir {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	return &Reservoir{rnd: rnd}
}

// Add folds one more observation into the sample.
func (r *Reservoir) Add(x float64) {
	r.seen++
	if int64(len(r.samples)) < ReservoirCap {
		r.samples = append(r.samples, x)
		return
	}
	j := r.rnd.Int63n(r.seen)
	if j < ReservoirCap {
		r.samples[j] = x
	}
}

// Samples returns the current sample set (read-only; caller must not mutate).
func (r *Reservoir) Samples() []float64 { return r.samples }

// Seen returns the total number of observations folded in, including ones
// not retained in the sample.
func (r *Reservoir) Seen() int64 { return r.seen }
