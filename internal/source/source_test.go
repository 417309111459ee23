package source

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
)

var errDeadlock = errors.New("deadlock")

// TestRegisterAndLookup verifies registration, lookup and the unknown-kind
// error.
func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()

	Register(Dialect{Name: "fake", Driver: "fakedrv"})
	d, err := Lookup("fake")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if d.Driver != "fakedrv" {
		t.Fatalf("Driver = %q; want fakedrv", d.Driver)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Fatalf("Lookup(nope) error = nil; want error")
	}
}

// TestIsRecoverable covers the engine-independent rules and delegation.
func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	d := Dialect{Name: "x", Recoverable: func(err error) bool { return errors.Is(err, errDeadlock) }}
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{driver.ErrBadConn, true},
		{fmt.Errorf("query: %w", errDeadlock), true},
		{errors.New("syntax error"), false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		if got := d.IsRecoverable(tt.err); got != tt.want {
			t.Fatalf("IsRecoverable(%v) = %v; want %v", tt.err, got, tt.want)
		}
	}
	if (Dialect{}).IsRecoverable(errDeadlock) {
		t.Fatalf("dialect without classifier reported recoverable")
	}
}

// TestValidate wraps classifier errors with the dialect name.
func TestValidate(t *testing.T) {
	t.Parallel()

	d := Dialect{Name: "x", ValidateDSN: func(string) error { return errors.New("bad") }}
	if err := d.Validate("dsn"); err == nil || err.Error() != "x dsn: bad" {
		t.Fatalf("Validate error = %v; want \"x dsn: bad\"", err)
	}
	if err := (Dialect{}).Validate("anything"); err != nil {
		t.Fatalf("Validate without validator error = %v; want nil", err)
	}
}
