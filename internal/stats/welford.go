package stats

import "math"

// Welford keeps a running mean and variance in constant space.
type Welford struct {
	Count int
	Mean  float64
	M2    float64
}

func (w *Welford) Update(v float64) {
	w.Count++
	delta := v - w.Mean
	w.Mean += delta / float64(w.Count)
	w.M2 += delta * (v - w.Mean)
}

// StdDev is the population standard deviation, zero below two observations.
func (w *Welford) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}
