package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// sqlitePragmas are applied to every pooled connection through the DSN, so
// cascading deletes work no matter which connection runs them.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

// sqliteDialect targets modernc.org/sqlite.
type sqliteDialect struct{}

func (sqliteDialect) Name() DialectType  { return DialectSQLite }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) DSN(cfg Config) (string, error) {
	if cfg.SQLitePath == "" {
		return "", fmt.Errorf("sqlite path is required")
	}
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return cfg.SQLitePath + "?" + q.Encode(), nil
}

func (sqliteDialect) Configure(db *sql.DB, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return nil
}

func (sqliteDialect) Schema() []string {
	return schemaStatements("id INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP")
}

func (sqliteDialect) Rebind(query string) string {
	return query
}

func (sqliteDialect) InsertRun(tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
