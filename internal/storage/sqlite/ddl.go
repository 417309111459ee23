package sqlite

import (
	"context"
	"fmt"
	"strings"

	"docpump/internal/storage"
)

// BuildCreateTableSQL returns the CREATE TABLE statement of the document
// table:
//
//	CREATE TABLE IF NOT EXISTS "documents" (
//	  "idx" TEXT NOT NULL,
//	  "typ" TEXT NOT NULL DEFAULT '',
//	  "id" TEXT NOT NULL,
//	  "meta" TEXT,
//	  "body" TEXT,
//	  "updated_at" TEXT NOT NULL,
//	  PRIMARY KEY ("idx", "typ", "id")
//	);
func BuildCreateTableSQL(table string) (string, error) {
	if !storage.ValidTable(table) {
		return "", fmt.Errorf("sqlite ddl: invalid table name %q", table)
	}
	cols := []string{
		quoteIdent("idx") + " TEXT NOT NULL",
		quoteIdent("typ") + " TEXT NOT NULL DEFAULT ''",
		quoteIdent("id") + " TEXT NOT NULL",
		quoteIdent("meta") + " TEXT",
		quoteIdent("body") + " TEXT",
		quoteIdent("updated_at") + " TEXT NOT NULL",
		`PRIMARY KEY ("idx", "typ", "id")`,
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(table),
		strings.Join(cols, ",\n  "),
	), nil
}

// ensureTable is the storage.DDLBootstrapper for the "sqlite" kind.
func ensureTable(ctx context.Context, ex storage.Execer, cfg storage.Config) error {
	stmt, err := BuildCreateTableSQL(Config{Table: cfg.Table}.table())
	if err != nil {
		return err
	}
	if err := ex.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite ddl: create table: %w", err)
	}
	return nil
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}
