package database

import (
	"fmt"
	"strings"
)

// Dialect captures the per-engine differences the rest of the pipeline cares
// about: how the prompt names the engine, how identifiers are quoted and
// whether read-only transactions are available.
type Dialect struct {
	Driver     Driver
	Name       string
	sqlDriver  string
	quote      string
	ReadOnlyTx bool
}

var dialects = map[Driver]Dialect{
	DriverMySQL:    {Driver: DriverMySQL, Name: "MySQL", sqlDriver: "mysql", quote: "`", ReadOnlyTx: true},
	DriverPostgres: {Driver: DriverPostgres, Name: "PostgreSQL", sqlDriver: "pgx", quote: `"`, ReadOnlyTx: true},
	DriverDuckDB:   {Driver: DriverDuckDB, Name: "DuckDB", sqlDriver: "duckdb", quote: `"`, ReadOnlyTx: false},
}

func DialectFor(driver Driver) (Dialect, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
	return dialect, nil
}

func (d Dialect) QuoteIdent(value string) string {
	return d.quote + strings.ReplaceAll(value, d.quote, d.quote+d.quote) + d.quote
}
