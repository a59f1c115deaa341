package database

import (
	"database/sql"
	"fmt"
)

// Dialect covers what differs between the SQLite and PostgreSQL run stores.
// Queries in this package are written with ? placeholders and passed through
// Rebind before use.
type Dialect interface {
	Name() DialectType

	// DriverName returns the driver name for sql.Open().
	DriverName() string

	// DSN builds the data source name for cfg.
	DSN(cfg Config) (string, error)

	// Configure prepares a freshly opened pool and checks it can connect.
	Configure(db *sql.DB, cfg Config) error

	// Schema returns the CREATE statements for the run history tables.
	Schema() []string

	// Rebind rewrites ? placeholders into the dialect's form.
	Rebind(query string) string

	// InsertRun executes an INSERT into runs and returns the new run ID.
	InsertRun(tx *sql.Tx, query string, args ...any) (int64, error)
}

// DialectType identifies the database dialect.
type DialectType string

const (
	DialectSQLite   DialectType = "sqlite"
	DialectPostgres DialectType = "postgres"
)

// NewDialect returns the Dialect for a config driver name. An empty driver
// selects SQLite.
func NewDialect(driver string) (Dialect, error) {
	switch DialectType(driver) {
	case "", DialectSQLite:
		return sqliteDialect{}, nil
	case DialectPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// schemaStatements fills the dialect's column types into the shared schema.
// seed holds the uint64 seed's int64 bit pattern.
func schemaStatements(idColumn, floatType, timeType string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
			` + idColumn + `,
			seed BIGINT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			cell_size ` + floatType + ` NOT NULL,
			palette TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			collapsed INTEGER NOT NULL DEFAULT 0,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			failure_x INTEGER,
			failure_y INTEGER,
			failure_reason TEXT,
			created_at ` + timeType + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS resolutions (
			run_id BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			artwork TEXT NOT NULL,
			rotation INTEGER NOT NULL,
			forced BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (run_id, seq)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint)`,
	}
}
