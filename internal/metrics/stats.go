package metrics

import (
	"math"

	"golang.org/x/exp/slices"
)

// Summary describes a sample distribution.
type Summary struct {
	Count int
	Sum   float64
	Mean  float64
	P1    float64
	P50   float64
	P99   float64
}

// Summarize computes count, sum, mean and the 1st, 50th and 99th
// percentiles of values. values is not modified.
func Summarize(values []float64) Summary {
	s := Summary{Count: len(values)}
	if len(values) == 0 {
		return s
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	for _, v := range sorted {
		s.Sum += v
	}
	s.Mean = s.Sum / float64(len(sorted))
	s.P1 = Percentile(sorted, 1)
	s.P50 = Percentile(sorted, 50)
	s.P99 = Percentile(sorted, 99)
	return s
}

// Percentile returns the p-th percentile of sorted values using linear
// interpolation between closest ranks. sorted must be ascending.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
