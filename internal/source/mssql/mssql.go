// Package mssql registers the Microsoft SQL Server source dialect backed by
// go-mssqldb. Stored procedures with output parameters are bound with
// sql.Named and sql.Out, which this driver supports.
package mssql

import (
	"errors"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"docpump/internal/source"
)

// retryable SQL Server error numbers.
var retryable = map[int32]bool{
	1205:  true, // deadlock victim
	1222:  true, // lock request timeout
	4060:  true, // cannot open database
	40197: true, // service error processing request
	40501: true, // service busy
	40613: true, // database unavailable
	49918: true, // not enough resources
}

// Recoverable reports deadlocks, lock timeouts and transient service errors.
func Recoverable(err error) bool {
	var e mssql.Error
	if errors.As(err, &e) {
		return retryable[e.SQLErrorNumber()]
	}
	return false
}

func validateDSN(dsn string) error {
	_, err := msdsn.Parse(dsn)
	return err
}

func init() {
	source.Register(source.Dialect{
		Name:        "mssql",
		Driver:      "sqlserver",
		ValidateDSN: validateDSN,
		Recoverable: Recoverable,
	})
}
