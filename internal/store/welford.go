package store

import "math"

// Welford implements Welford's online algorithm for mean/variance,
// exactly as spec.md §4.1 requires for the prompt-length and
// token-budget distributions. It is recomputed from each window's bounded
// ring buffer at snapshot time (see window.go) rather than maintained as
// a strictly incremental running total, so that time-based eviction stays
// exact; the algorithm itself is unchanged.
type Welford struct {
	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64
}

// NewWelford returns a zero-value accumulator.
func NewWelford() Welford {
	return Welford{}
}

// Add folds one sample into the accumulator.
func (w *Welford) Add(x float64) {
	w.count++
	if w.count == 1 {
		w.min, w.max = x, x
	} else {
		if x < w.min {
			w.min = x
		}
		if x > w.max {
			w.max = x
		}
	}
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// Count returns the number of samples folded in.
func (w *Welford) Count() int64 { return w.count }

// Mean returns the running mean, 0 if no samples.
func (w *Welford) Mean() float64 { return w.mean }

// Variance returns the population variance, 0 if fewer than 2 samples.
func (w *Welford) Variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count)
}

// StdDev returns the population standard deviation.
func (w *Welford) StdDev() float64 {
	v := w.Variance()
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// CV returns the coefficient of variation (stddev/mean), 0 if mean is 0.
func (w *Welford) CV() float64 {
	if w.mean == 0 {
		return 0
	}
	return w.StdDev() / w.mean
}

// Min and Max return the sample bounds seen.
func (w *Welford) Min() float64 { return w.min }
func (w *Welford) Max() float64 { return w.max }
