// Package postgres registers the PostgreSQL source dialect backed by the pgx
// database/sql driver.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"docpump/internal/source"
)

// retryable SQLSTATE codes outside the connection-exception class.
var retryable = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

// Recoverable reports serialization failures, deadlocks, connection
// exceptions (class 08) and errors pgconn marks safe to retry.
func Recoverable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryable[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err)
}

func validateDSN(dsn string) error {
	_, err := pgx.ParseConfig(dsn)
	return err
}

func init() {
	source.Register(source.Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		ValidateDSN: validateDSN,
		Recoverable: Recoverable,
		ReadOnlyTx:  true,
	})
}
