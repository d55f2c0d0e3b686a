package analytics

import (
	"sync"
	"time"

	"github.com/mrkyc/sqlite-stddev-extension/internal/model"
	"github.com/mrkyc/sqlite-stddev-extension/internal/slidingstats"
)

// Snapshot is the published running state of one series window. The
// statistic fields are nil while undefined (too few samples) so they
// serialize as absent rather than as NaN.
type Snapshot struct {
	SeriesID           string   `json:"series_id"`
	TimeUnix           int64    `json:"timestamp"`
	Count              int      `json:"window_count"`
	Mean               float64  `json:"mean"`
	VarianceSample     *float64 `json:"variance_sample,omitempty"`
	VariancePopulation *float64 `json:"variance_population,omitempty"`
	StddevSample       *float64 `json:"stddev_sample,omitempty"`
	StddevPopulation   *float64 `json:"stddev_population,omitempty"`
	ZScore             float64  `json:"zscore"`
	Anomaly            bool     `json:"anomaly"`
}

// Analyzer keeps one sliding accumulator per series. Process must be
// called from a single goroutine (each accumulator is single-owner);
// only the published snapshots are shared and they are mutex-guarded.
type Analyzer struct {
	windowSize int
	threshold  float64
	windows    map[string]*slidingstats.Accumulator

	mu     sync.RWMutex
	latest map[string]Snapshot
}

func NewAnalyzer(windowSize int, threshold float64) *Analyzer {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &Analyzer{
		windowSize: windowSize,
		threshold:  threshold,
		windows:    make(map[string]*slidingstats.Accumulator),
		latest:     make(map[string]Snapshot),
	}
}

// Process feeds one sample into its series window and publishes the
// resulting snapshot. Null-valued samples never reach the accumulator:
// ok is false and the window is untouched.
func (a *Analyzer) Process(s model.Sample) (Snapshot, bool) {
	if s.Value == nil {
		return Snapshot{}, false
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().Unix()
	}

	acc, exists := a.windows[s.SeriesID]
	if !exists {
		acc = slidingstats.New()
		a.windows[s.SeriesID] = acc
	}

	acc.Insert(*s.Value)
	// Oldest row leaves the frame once the window is over capacity.
	if acc.Count() > a.windowSize {
		acc.Evict()
	}

	z := 0.0
	if std, ok := acc.Value(slidingstats.StddevPopulation); ok && std > 0 {
		z = (*s.Value - acc.Mean()) / std
	}

	snap := Snapshot{
		SeriesID:           s.SeriesID,
		TimeUnix:           s.Timestamp,
		Count:              acc.Count(),
		Mean:               acc.Mean(),
		VarianceSample:     optional(acc, slidingstats.VarianceSample),
		VariancePopulation: optional(acc, slidingstats.VariancePopulation),
		StddevSample:       optional(acc, slidingstats.StddevSample),
		StddevPopulation:   optional(acc, slidingstats.StddevPopulation),
		ZScore:             z,
		Anomaly:            absFloat(z) >= a.threshold,
	}

	a.mu.Lock()
	a.latest[s.SeriesID] = snap
	a.mu.Unlock()

	return snap, true
}

// Latest returns the last published snapshot for a series.
func (a *Analyzer) Latest(seriesID string) (Snapshot, bool) {
	a.mu.RLock()
	snap, ok := a.latest[seriesID]
	a.mu.RUnlock()
	return snap, ok
}

// All returns the last published snapshot of every series.
func (a *Analyzer) All() []Snapshot {
	a.mu.RLock()
	out := make([]Snapshot, 0, len(a.latest))
	for _, snap := range a.latest {
		out = append(out, snap)
	}
	a.mu.RUnlock()
	return out
}

func optional(acc *slidingstats.Accumulator, stat slidingstats.Statistic) *float64 {
	v, ok := acc.Value(stat)
	if !ok {
		return nil
	}
	return &v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
