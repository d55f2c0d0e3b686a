package persistence

import (
	"context"
	"math"
	"testing"

	"github.com/mrkyc/sqlite-stddev-extension/internal/model"
)

func openTestDB(t *testing.T) *SampleDB {
	t.Helper()
	db, err := OpenSampleDB(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func appendValue(t *testing.T, db *SampleDB, series string, v float64) {
	t.Helper()
	if err := db.Append(context.Background(), model.Sample{SeriesID: series, Value: &v, Timestamp: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestSampleDBAggregate(t *testing.T) {
	db := openTestDB(t)
	for _, v := range []float64{10, 12, 15, 13, 18, 20, 22, 25, 23, 28} {
		appendValue(t, db, "cpu", v)
	}

	agg, err := db.Aggregate(context.Background(), "cpu")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 10 {
		t.Fatalf("count: got %d, want 10", agg.Count)
	}
	if agg.VariancePopulation == nil || math.Abs(*agg.VariancePopulation-32.44) > 1e-2 {
		t.Errorf("var_pop: got %v, want ~32.44", agg.VariancePopulation)
	}
	if agg.StddevSample == nil || math.Abs(*agg.StddevSample-6.004) > 1e-2 {
		t.Errorf("stddev_samp: got %v, want ~6.004", agg.StddevSample)
	}
}

func TestSampleDBNullValues(t *testing.T) {
	db := openTestDB(t)
	appendValue(t, db, "cpu", 2)
	if err := db.Append(context.Background(), model.Sample{SeriesID: "cpu", Timestamp: 2}); err != nil {
		t.Fatalf("append null: %v", err)
	}
	appendValue(t, db, "cpu", 4)

	agg, err := db.Aggregate(context.Background(), "cpu")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// count(value) skips the NULL row, as do the statistics.
	if agg.Count != 2 {
		t.Fatalf("count: got %d, want 2", agg.Count)
	}
	if agg.VariancePopulation == nil || math.Abs(*agg.VariancePopulation-1) > 1e-9 {
		t.Errorf("var_pop over {2,4}: got %v, want 1", agg.VariancePopulation)
	}
}

func TestSampleDBUndefinedStats(t *testing.T) {
	db := openTestDB(t)

	agg, err := db.Aggregate(context.Background(), "empty")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 0 {
		t.Fatalf("count: got %d, want 0", agg.Count)
	}
	if agg.VariancePopulation != nil || agg.VarianceSample != nil || agg.Mean != nil {
		t.Error("statistics over an empty series should be absent")
	}

	appendValue(t, db, "one", 5)
	agg, err = db.Aggregate(context.Background(), "one")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.VarianceSample != nil {
		t.Error("var_samp over one row should be absent")
	}
	if agg.VariancePopulation == nil || *agg.VariancePopulation != 0 {
		t.Errorf("var_pop over one row: got %v, want 0", agg.VariancePopulation)
	}
}

func TestSampleDBSeriesIsolation(t *testing.T) {
	db := openTestDB(t)
	appendValue(t, db, "a", 1)
	appendValue(t, db, "a", 3)
	appendValue(t, db, "b", 100)

	agg, err := db.Aggregate(context.Background(), "a")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 2 {
		t.Fatalf("count: got %d, want 2", agg.Count)
	}
	if agg.VariancePopulation == nil || math.Abs(*agg.VariancePopulation-1) > 1e-9 {
		t.Errorf("var_pop over {1,3}: got %v, want 1", agg.VariancePopulation)
	}
}
