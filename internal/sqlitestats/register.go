// Package sqlitestats exposes the sliding statistics engine to SQL as a
// family of aggregate functions (stddev, variance and their aliases),
// registered on a dedicated database/sql driver. SQLite resolves
// function names case-insensitively, so only the lowercase aliases are
// registered.
//
// Each aggregate evaluation gets its own accumulator, created by the
// constructor the driver calls per aggregate context and released with
// that context, whether or not the query runs to completion. The driver
// has no window-function (inverse) hook, so evicting windows are driven
// from Go (see the analytics package) rather than from SQL frames.
package sqlitestats

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/mattn/go-sqlite3"

	"github.com/mrkyc/sqlite-stddev-extension/internal/slidingstats"
)

// DriverName is the database/sql driver carrying the statistics
// functions. Open with sql.Open(sqlitestats.DriverName, dsn).
const DriverName = "sqlite3_stats"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: RegisterFunctions,
	})
}

// functionAliases maps every registered SQL name to its statistic,
// mirroring the alias groups of the C extension this replaces.
func functionAliases() map[string]slidingstats.Statistic {
	aliases := map[string]slidingstats.Statistic{}
	groups := []struct {
		names []string
		stat  slidingstats.Statistic
	}{
		{[]string{"stddev_samp", "stddev_sample", "stdev_samp", "stdev_sample", "stddev", "stdev", "std_dev", "standard_deviation"}, slidingstats.StddevSample},
		{[]string{"stddev_pop", "stddev_population", "stdev_pop", "stdev_population"}, slidingstats.StddevPopulation},
		{[]string{"variance_samp", "variance_sample", "var_samp", "var_sample", "variance", "var"}, slidingstats.VarianceSample},
		{[]string{"variance_pop", "variance_population", "var_pop", "var_population"}, slidingstats.VariancePopulation},
	}
	for _, g := range groups {
		for _, name := range g.names {
			aliases[name] = g.stat
		}
	}
	return aliases
}

// RegisterFunctions registers every statistic alias on conn. It is the
// ConnectHook of the DriverName driver and can also be set on a custom
// sqlite3.SQLiteDriver directly.
func RegisterFunctions(conn *sqlite3.SQLiteConn) error {
	for name, stat := range functionAliases() {
		stat := stat
		constructor := func() *aggregator {
			return &aggregator{stat: stat, acc: slidingstats.New()}
		}
		if err := conn.RegisterAggregator(name, constructor, true); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// aggregator adapts one accumulator to the driver's Step/Done aggregate
// protocol.
type aggregator struct {
	stat slidingstats.Statistic
	acc  *slidingstats.Accumulator
}

// Step feeds one row into the accumulator. SQL NULL is ignored;
// non-numeric arguments abort the query.
func (g *aggregator) Step(v any) error {
	switch x := v.(type) {
	case nil:
	case []byte:
		// The driver boxes SQL NULL as a nil []byte.
		if x != nil {
			return fmt.Errorf("%s: expected numeric argument, got blob", g.stat)
		}
	case int64:
		g.acc.Insert(float64(x))
	case float64:
		g.acc.Insert(x)
	default:
		return fmt.Errorf("%s: expected numeric argument, got %T", g.stat, v)
	}
	return nil
}

// Done returns the statistic over all stepped rows. Undefined results
// come back as NaN, which SQLite renders as SQL NULL.
func (g *aggregator) Done() float64 {
	v, ok := g.acc.Value(g.stat)
	if !ok {
		return math.NaN()
	}
	return v
}
