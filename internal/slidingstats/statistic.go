package slidingstats

import "math"

// Minimum live counts below which a statistic is undefined.
const (
	minCountPopulation = 1
	minCountSample     = 2
)

// Statistic identifies one of the four derived statistics. The set is
// closed; dispatch is a switch over it, not a function table.
type Statistic int

const (
	VarianceSample Statistic = iota
	VariancePopulation
	StddevSample
	StddevPopulation
)

// MinCount is the smallest number of live values for which the
// statistic is defined: 2 for sample variants, 1 for population.
func (s Statistic) MinCount() int {
	switch s {
	case VarianceSample, StddevSample:
		return minCountSample
	default:
		return minCountPopulation
	}
}

// String returns the canonical SQL name of the statistic.
func (s Statistic) String() string {
	switch s {
	case VarianceSample:
		return "var_samp"
	case VariancePopulation:
		return "var_pop"
	case StddevSample:
		return "stddev_samp"
	case StddevPopulation:
		return "stddev_pop"
	default:
		return "unknown"
	}
}

// compute evaluates the statistic from the running aggregates,
// returning NaN when undefined.
func (s Statistic) compute(sum, sumSquares float64, count int) float64 {
	switch s {
	case VarianceSample:
		return varianceSample(sum, sumSquares, count)
	case VariancePopulation:
		return variancePopulation(sum, sumSquares, count)
	case StddevSample:
		return stddevSample(sum, sumSquares, count)
	case StddevPopulation:
		return stddevPopulation(sum, sumSquares, count)
	default:
		return math.NaN()
	}
}

// value is the boundary form of compute: undefined results (too few
// values, NaN, Inf) come back as ok == false instead of a sentinel.
func (s Statistic) value(sum, sumSquares float64, count int) (float64, bool) {
	if count < s.MinCount() {
		return 0, false
	}
	v := s.compute(sum, sumSquares, count)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func mean(sum float64, count int) float64 {
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// variancePopulation is sumSquares/n - mean^2. Cancellation on
// near-constant input can push the result a hair below zero; that is
// clamped so constant sequences report exactly 0. NaN passes through
// (the comparison is false for NaN).
func variancePopulation(sum, sumSquares float64, count int) float64 {
	if count < minCountPopulation {
		return math.NaN()
	}
	m := sum / float64(count)
	v := sumSquares/float64(count) - m*m
	if v < 0 {
		v = 0
	}
	return v
}

// varianceSample applies Bessel's correction to the population variance.
func varianceSample(sum, sumSquares float64, count int) float64 {
	if count < minCountSample {
		return math.NaN()
	}
	pop := variancePopulation(sum, sumSquares, count)
	return pop * float64(count) / float64(count-1)
}

func stddevSample(sum, sumSquares float64, count int) float64 {
	return math.Sqrt(varianceSample(sum, sumSquares, count))
}

func stddevPopulation(sum, sumSquares float64, count int) float64 {
	return math.Sqrt(variancePopulation(sum, sumSquares, count))
}
