// Package slidingstats implements an incremental variance/stddev engine
// over a stream of float64 values. Values enter at the tail and leave at
// the head (strict FIFO), so the same accumulator serves both whole-group
// aggregates and sliding windows with row eviction. Insert, Evict and
// every derived statistic are O(1); statistics are computed from a
// running sum and sum of squares, never by rescanning the buffer.
//
// An Accumulator is single-owner: concurrent use of one instance is not
// supported. Give each group or window partition its own.
package slidingstats

// initialCapacity is the buffer size allocated on the first insert.
const initialCapacity = 100

// Accumulator keeps the live values in a growable circular buffer plus
// running aggregates. capacity is len(values); head is the oldest live
// value, tail the slot the next insert lands in.
type Accumulator struct {
	values     []float64
	count      int
	head       int
	tail       int
	sum        float64
	sumSquares float64
}

// New returns an empty accumulator. The buffer itself is allocated
// lazily on the first Insert.
func New() *Accumulator {
	return &Accumulator{}
}

// Insert appends v as the newest value. The buffer doubles when full;
// growth is amortized O(1) per insert.
func (a *Accumulator) Insert(v float64) {
	if a.count == len(a.values) {
		a.grow()
	}
	a.values[a.tail] = v
	a.tail = (a.tail + 1) % len(a.values)
	a.count++
	a.sum += v
	a.sumSquares += v * v
}

// Evict removes and returns the oldest value. ok is false when the
// accumulator is empty; a correct driver evicts only values it
// previously inserted, so ok == false signals a caller bug, not data.
func (a *Accumulator) Evict() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	v := a.values[a.head]
	a.head = (a.head + 1) % len(a.values)
	a.count--
	a.sum -= v
	a.sumSquares -= v * v
	return v, true
}

// grow unrolls the circular buffer into a fresh contiguous slice of
// double the capacity, so head is 0 and tail is count afterwards.
// Capacity never shrinks.
func (a *Accumulator) grow() {
	capacity := initialCapacity
	if len(a.values) > 0 {
		capacity = len(a.values) * 2
	}
	next := make([]float64, capacity)
	for i := 0; i < a.count; i++ {
		next[i] = a.at(i)
	}
	a.values = next
	a.head = 0
	a.tail = a.count
}

// at maps logical position i (0 = oldest) to its physical slot.
func (a *Accumulator) at(i int) float64 {
	return a.values[(a.head+i)%len(a.values)]
}

// Count reports the number of live values.
func (a *Accumulator) Count() int {
	return a.count
}

// Sum reports the running sum over the live values.
func (a *Accumulator) Sum() float64 {
	return a.sum
}

// Mean is sum/count, or NaN when empty.
func (a *Accumulator) Mean() float64 {
	return mean(a.sum, a.count)
}

// VarianceSample returns the sample variance (Bessel's correction),
// or NaN when fewer than two values are live.
func (a *Accumulator) VarianceSample() float64 {
	return varianceSample(a.sum, a.sumSquares, a.count)
}

// VariancePopulation returns the population variance, or NaN when empty.
func (a *Accumulator) VariancePopulation() float64 {
	return variancePopulation(a.sum, a.sumSquares, a.count)
}

// StddevSample returns the sample standard deviation, propagating NaN.
func (a *Accumulator) StddevSample() float64 {
	return stddevSample(a.sum, a.sumSquares, a.count)
}

// StddevPopulation returns the population standard deviation,
// propagating NaN.
func (a *Accumulator) StddevPopulation() float64 {
	return stddevPopulation(a.sum, a.sumSquares, a.count)
}

// Value computes stat over the live values. ok is false when the
// statistic is undefined (too few values, or a NaN/Inf result); an
// undefined statistic never surfaces as a numeric value here.
func (a *Accumulator) Value(stat Statistic) (float64, bool) {
	return stat.value(a.sum, a.sumSquares, a.count)
}

// Reset empties the accumulator. The buffer is kept for reuse.
func (a *Accumulator) Reset() {
	a.count = 0
	a.head = 0
	a.tail = 0
	a.sum = 0
	a.sumSquares = 0
}
