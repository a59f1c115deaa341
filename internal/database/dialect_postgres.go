package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// postgresDialect targets github.com/lib/pq.
type postgresDialect struct{}

func (postgresDialect) Name() DialectType  { return DialectPostgres }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) DSN(cfg Config) (string, error) {
	return cfg.Postgres.ConnString(), nil
}

func (postgresDialect) Configure(db *sql.DB, cfg Config) error {
	if cfg.Postgres.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	}
	if cfg.Postgres.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	}
	if cfg.Postgres.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return nil
}

func (postgresDialect) Schema() []string {
	return schemaStatements("id BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ")
}

// Rebind numbers placeholders as $1, $2, ... A ? inside a single-quoted
// literal is left alone.
//
//	in:  SELECT * FROM runs WHERE id = ? AND state <> '?'
//	out: SELECT * FROM runs WHERE id = $1 AND state <> '?'
func (postgresDialect) Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			// '' inside a literal toggles twice and stays in the string.
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// InsertRun appends RETURNING id since lib/pq has no LastInsertId.
func (postgresDialect) InsertRun(tx *sql.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRow(query+" RETURNING id", args...).Scan(&id)
	return id, err
}
