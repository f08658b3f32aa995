package audit

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the audit database. driver is "postgres" or "sqlite3".
// SQLite handles are limited to one connection so in-memory databases are
// shared by every query.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	dialect := Dialect(driver)
	if _, ok := schemas[dialect]; !ok {
		return nil, "", fmt.Errorf("unsupported audit driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audit database: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping audit database: %w", err)
	}
	return db, dialect, nil
}
