package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mrkyc/sqlite-stddev-extension/internal/model"
	"github.com/mrkyc/sqlite-stddev-extension/internal/sqlitestats"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	series_id TEXT NOT NULL,
	value     REAL,
	ts        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_series_idx ON samples (series_id);
`

// SampleDB is the append-only sample history in sqlite. It opens
// through the sqlitestats driver, so whole-history statistics are
// answered by SQL with the registered aggregate functions.
type SampleDB struct {
	db *sql.DB
}

func OpenSampleDB(path string) (*SampleDB, error) {
	db, err := sql.Open(sqlitestats.DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: keeps :memory: databases coherent and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SampleDB{db: db}, nil
}

func (d *SampleDB) Close() error {
	return d.db.Close()
}

// Append stores one sample. A null value is stored as SQL NULL and is
// ignored by the aggregate functions, matching the ingest-side filter.
func (d *SampleDB) Append(ctx context.Context, m model.Sample) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO samples (series_id, value, ts) VALUES (?, ?, ?)`,
		m.SeriesID, m.Value, m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// SeriesAggregate holds whole-history statistics for one series.
// Undefined statistics (NULL in SQL) stay nil.
type SeriesAggregate struct {
	SeriesID           string   `json:"series_id"`
	Count              int64    `json:"count"`
	Mean               *float64 `json:"mean,omitempty"`
	VarianceSample     *float64 `json:"variance_sample,omitempty"`
	VariancePopulation *float64 `json:"variance_population,omitempty"`
	StddevSample       *float64 `json:"stddev_sample,omitempty"`
	StddevPopulation   *float64 `json:"stddev_population,omitempty"`
}

// Aggregate computes whole-history statistics for a series in SQL.
func (d *SampleDB) Aggregate(ctx context.Context, seriesID string) (*SeriesAggregate, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT count(value), avg(value),
		       var_samp(value), var_pop(value),
		       stddev_samp(value), stddev_pop(value)
		FROM samples WHERE series_id = ?`, seriesID)

	agg := &SeriesAggregate{SeriesID: seriesID}
	var mean, varSamp, varPop, stdSamp, stdPop sql.NullFloat64
	if err := row.Scan(&agg.Count, &mean, &varSamp, &varPop, &stdSamp, &stdPop); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", seriesID, err)
	}

	agg.Mean = nullableFloat(mean)
	agg.VarianceSample = nullableFloat(varSamp)
	agg.VariancePopulation = nullableFloat(varPop)
	agg.StddevSample = nullableFloat(stdSamp)
	agg.StddevPopulation = nullableFloat(stdPop)
	return agg, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
