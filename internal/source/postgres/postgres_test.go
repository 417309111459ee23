package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"docpump/internal/source"
)

// TestRecoverable classifies SQLSTATE codes.
func TestRecoverable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want bool
	}{
		{"40001", true},
		{"40P01", true},
		{"08006", true},
		{"57P01", true},
		{"23505", false}, // unique_violation
		{"42601", false}, // syntax_error
	}
	for _, tt := range tests {
		err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code})
		if got := Recoverable(err); got != tt.want {
			t.Fatalf("Recoverable(%s) = %v; want %v", tt.code, got, tt.want)
		}
	}
	if Recoverable(errors.New("plain")) {
		t.Fatalf("Recoverable(plain error) = true; want false")
	}
}

// TestRegistered checks the init registration and DSN validation.
func TestRegistered(t *testing.T) {
	t.Parallel()

	d, err := source.Lookup("postgres")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if d.Driver != "pgx" {
		t.Fatalf("Driver = %q; want pgx", d.Driver)
	}
	if err := d.Validate("postgres://user:pw@localhost:5432/db?sslmode=disable"); err != nil {
		t.Fatalf("Validate(valid) error: %v", err)
	}
	if err := d.Validate("postgres://user:pw@localhost:notaport/db"); err == nil {
		t.Fatalf("Validate(bad port) error = nil; want error")
	}
}
