// Package mysql registers the MySQL source dialect backed by
// go-sql-driver/mysql.
package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"docpump/internal/source"
)

// Recoverable reports deadlocks (1213) and lock wait timeouts (1205).
func Recoverable(err error) bool {
	var e *mysql.MySQLError
	if errors.As(err, &e) {
		return e.Number == 1213 || e.Number == 1205
	}
	return errors.Is(err, mysql.ErrInvalidConn)
}

func validateDSN(dsn string) error {
	_, err := mysql.ParseDSN(dsn)
	return err
}

func init() {
	source.Register(source.Dialect{
		Name:        "mysql",
		Driver:      "mysql",
		ValidateDSN: validateDSN,
		Recoverable: Recoverable,
		ReadOnlyTx:  true,
	})
}
