package slidingstats

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestKnownSequence(t *testing.T) {
	a := New()
	for _, v := range []float64{10, 12, 15, 13, 18, 20, 22, 25, 23, 28} {
		a.Insert(v)
	}

	if a.Count() != 10 {
		t.Fatalf("expected count 10, got %d", a.Count())
	}
	// sum 186, mean 18.6, sum of squares 3784:
	// population variance 3784/10 - 18.6^2 = 32.44, sample 32.44*10/9.
	if !almostEqual(a.VariancePopulation(), 32.44, 1e-2) {
		t.Errorf("population variance: expected ~32.44, got %f", a.VariancePopulation())
	}
	if !almostEqual(a.VarianceSample(), 36.044, 1e-2) {
		t.Errorf("sample variance: expected ~36.044, got %f", a.VarianceSample())
	}
	if !almostEqual(a.StddevPopulation(), 5.696, 1e-2) {
		t.Errorf("population stddev: expected ~5.696, got %f", a.StddevPopulation())
	}
	if !almostEqual(a.StddevSample(), 6.004, 1e-2) {
		t.Errorf("sample stddev: expected ~6.004, got %f", a.StddevSample())
	}
}

func TestUndefinedBelowMinCount(t *testing.T) {
	a := New()
	if !math.IsNaN(a.VariancePopulation()) {
		t.Errorf("empty population variance should be NaN, got %f", a.VariancePopulation())
	}
	if !math.IsNaN(a.VarianceSample()) {
		t.Errorf("empty sample variance should be NaN, got %f", a.VarianceSample())
	}

	a.Insert(5)
	if !math.IsNaN(a.VarianceSample()) {
		t.Errorf("single-value sample variance should be NaN, got %f", a.VarianceSample())
	}
	if !math.IsNaN(a.StddevSample()) {
		t.Errorf("single-value sample stddev should be NaN, got %f", a.StddevSample())
	}
	if a.VariancePopulation() != 0 {
		t.Errorf("single-value population variance should be 0, got %f", a.VariancePopulation())
	}

	a.Insert(5)
	if a.VarianceSample() != 0 {
		t.Errorf("two identical values: sample variance should be 0, got %f", a.VarianceSample())
	}
	if a.StddevSample() != 0 {
		t.Errorf("two identical values: sample stddev should be 0, got %f", a.StddevSample())
	}
}

func TestEvictFIFO(t *testing.T) {
	a := New()
	for _, v := range []float64{1, 2, 3, 4, 5} {
		a.Insert(v)
	}

	v, ok := a.Evict()
	if !ok || v != 1 {
		t.Fatalf("expected to evict 1, got %f (ok=%v)", v, ok)
	}
	if a.Count() != 4 {
		t.Fatalf("expected count 4 after evict, got %d", a.Count())
	}
	// Remaining window is {2,3,4,5}.
	if !almostEqual(a.VariancePopulation(), 1.25, 1e-9) {
		t.Errorf("population variance over {2,3,4,5}: expected 1.25, got %f", a.VariancePopulation())
	}
}

func TestEvictEmpty(t *testing.T) {
	a := New()
	if v, ok := a.Evict(); ok || v != 0 {
		t.Fatalf("evict on empty: expected (0, false), got (%f, %v)", v, ok)
	}

	a.Insert(7)
	if _, ok := a.Evict(); !ok {
		t.Fatal("evict after insert should succeed")
	}
	if _, ok := a.Evict(); ok {
		t.Fatal("second evict should report empty")
	}
}

func TestInsertEvictReturnsToZero(t *testing.T) {
	a := New()
	a.Insert(3.25)
	a.Evict()

	if a.Count() != 0 {
		t.Fatalf("expected count 0, got %d", a.Count())
	}
	if a.Sum() != 0 {
		t.Errorf("expected sum 0, got %g", a.Sum())
	}
	if a.sumSquares != 0 {
		t.Errorf("expected sum of squares 0, got %g", a.sumSquares)
	}
}

func TestConstantSequenceZeroVariance(t *testing.T) {
	a := New()
	for i := 0; i < 250; i++ {
		a.Insert(0.1)
	}
	if a.VariancePopulation() != 0 {
		t.Errorf("constant sequence population variance: expected 0, got %g", a.VariancePopulation())
	}
	if a.VarianceSample() != 0 {
		t.Errorf("constant sequence sample variance: expected 0, got %g", a.VarianceSample())
	}
}

func TestGrowthPreservesOrder(t *testing.T) {
	a := New()
	const n = 1000 // forces several doublings past the initial capacity
	for i := 0; i < n; i++ {
		a.Insert(float64(i))
	}
	if len(a.values) < n {
		t.Fatalf("expected capacity >= %d, got %d", n, len(a.values))
	}
	for i := 0; i < n; i++ {
		v, ok := a.Evict()
		if !ok {
			t.Fatalf("evict %d: unexpected empty", i)
		}
		if v != float64(i) {
			t.Fatalf("evict %d: expected %d, got %f", i, i, v)
		}
	}
}

func TestGrowthWithWrappedHead(t *testing.T) {
	a := New()
	// Advance head so the buffer wraps before the first growth.
	for i := 0; i < 60; i++ {
		a.Insert(float64(i))
	}
	for i := 0; i < 60; i++ {
		a.Evict()
	}
	for i := 0; i < 150; i++ {
		a.Insert(float64(1000 + i))
	}
	for i := 0; i < 150; i++ {
		v, _ := a.Evict()
		if v != float64(1000+i) {
			t.Fatalf("evict %d: expected %d, got %f", i, 1000+i, v)
		}
	}
}

// TestAgainstGonum drives random insert/evict sequences and checks every
// statistic against gonum computed fresh over the currently live values.
func TestAgainstGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := New()
	var live []float64

	for step := 0; step < 5000; step++ {
		if len(live) > 0 && rng.Float64() < 0.4 {
			want := live[0]
			live = live[1:]
			got, ok := a.Evict()
			if !ok || got != want {
				t.Fatalf("step %d: evicted %f (ok=%v), want %f", step, got, ok, want)
			}
		} else {
			v := rng.NormFloat64()*50 + 10
			live = append(live, v)
			a.Insert(v)
		}

		if a.Count() != len(live) {
			t.Fatalf("step %d: count %d, want %d", step, a.Count(), len(live))
		}
		if len(live) < 2 {
			continue
		}

		wantPop := stat.PopVariance(live, nil)
		wantSamp := stat.Variance(live, nil)
		tol := 1e-6 * (1 + math.Abs(wantPop))
		if !almostEqual(a.VariancePopulation(), wantPop, tol) {
			t.Fatalf("step %d: population variance %f, want %f", step, a.VariancePopulation(), wantPop)
		}
		if !almostEqual(a.VarianceSample(), wantSamp, tol) {
			t.Fatalf("step %d: sample variance %f, want %f", step, a.VarianceSample(), wantSamp)
		}
		if !almostEqual(a.StddevPopulation(), math.Sqrt(wantPop), tol) {
			t.Fatalf("step %d: population stddev %f, want %f", step, a.StddevPopulation(), math.Sqrt(wantPop))
		}
	}
}

func TestMeanAndSum(t *testing.T) {
	a := New()
	if !math.IsNaN(a.Mean()) {
		t.Errorf("empty mean should be NaN, got %f", a.Mean())
	}
	a.Insert(2)
	a.Insert(4)
	if a.Mean() != 3 {
		t.Errorf("expected mean 3, got %f", a.Mean())
	}
	if a.Sum() != 6 {
		t.Errorf("expected sum 6, got %f", a.Sum())
	}
}

func TestReset(t *testing.T) {
	a := New()
	for i := 0; i < 10; i++ {
		a.Insert(float64(i))
	}
	a.Reset()

	if a.Count() != 0 || a.Sum() != 0 {
		t.Fatalf("reset: expected empty, got count=%d sum=%f", a.Count(), a.Sum())
	}
	a.Insert(9)
	if a.Count() != 1 || a.Sum() != 9 {
		t.Fatalf("insert after reset: count=%d sum=%f", a.Count(), a.Sum())
	}
}
