// Package sqlite registers the SQLite source dialect backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"docpump/internal/source"
)

// Recoverable reports SQLITE_BUSY and SQLITE_LOCKED, including their
// extended variants.
func Recoverable(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func validateDSN(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("empty DSN")
	}
	return nil
}

func init() {
	source.Register(source.Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		ValidateDSN: validateDSN,
		Recoverable: Recoverable,
		ReadOnlyTx:  true,
	})
}
