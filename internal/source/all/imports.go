// Package all registers every built-in source dialect: "mssql", "mysql",
// "postgres" and "sqlite". Import it for side effects only.
package all

import (
	_ "docpump/internal/source/mssql"
	_ "docpump/internal/source/mysql"
	_ "docpump/internal/source/postgres"
	_ "docpump/internal/source/sqlite"
)
