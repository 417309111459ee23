// Package source describes the relational engines rows can be pulled from.
// A Dialect names the database/sql driver to open, validates DSNs up front
// and classifies driver errors as recoverable (worth one retry) or not.
//
// Dialects register themselves in init(); import source/all to enable every
// built-in engine.
package source

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Dialect is one source engine.
type Dialect struct {
	// Name is the config kind, e.g. "postgres".
	Name string
	// Driver is the database/sql driver name passed to sql.Open.
	Driver string
	// ValidateDSN rejects malformed connection strings before any dial.
	// Nil accepts everything.
	ValidateDSN func(dsn string) error
	// Recoverable reports engine-specific transient errors such as
	// deadlocks and serialization failures.
	Recoverable func(err error) bool
	// ReadOnlyTx reports whether the driver accepts read-only transactions
	// (sql.TxOptions.ReadOnly). go-mssqldb refuses them outright.
	ReadOnlyTx bool
}

// IsRecoverable reports whether err is worth retrying. Broken connections
// are recoverable on every engine; cancellations never are.
func (d Dialect) IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	return d.Recoverable != nil && d.Recoverable(err)
}

// Validate runs ValidateDSN when set.
func (d Dialect) Validate(dsn string) error {
	if d.ValidateDSN == nil {
		return nil
	}
	if err := d.ValidateDSN(dsn); err != nil {
		return fmt.Errorf("%s dsn: %w", d.Name, err)
	}
	return nil
}

var (
	mu       sync.RWMutex
	dialects = map[string]Dialect{}
)

// Register makes a dialect available to Lookup. It replaces an existing
// registration of the same name.
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[d.Name] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	mu.RLock()
	d, ok := dialects[name]
	mu.RUnlock()
	if !ok {
		return Dialect{}, fmt.Errorf("source: unknown kind %q (registered: %v)", name, ListKinds())
	}
	return d, nil
}

// ListKinds lists registered dialect names, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
