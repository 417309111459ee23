// Package sqlite implements a SQLite-backed document sink.
package sqlite

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "documents"

// Config holds SQLite sink configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:docs.db?cache=shared"
	//   "docs.db" (interpreted by the driver)
	DSN string

	// Table holds one row per document keyed by (idx, typ, id). "main.docs"
	// style names are accepted and quoted per segment.
	Table string

	// BatchSize is the number of actions written per transaction.
	BatchSize int
}

func (c Config) table() string {
	if c.Table == "" {
		return DefaultTable
	}
	return c.Table
}
