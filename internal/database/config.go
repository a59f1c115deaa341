package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
)

// Config holds database connection configuration.
type Config struct {
	// Driver specifies which database to use: "sqlite" or "postgres"
	Driver string

	// SQLite configuration
	SQLitePath string

	// PostgreSQL configuration
	Postgres PostgresConfig
}

// PostgresConfig holds PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults for SQLite.
func DefaultConfig(sqlitePath string) Config {
	return Config{
		Driver:     "sqlite",
		SQLitePath: sqlitePath,
	}
}

// DefaultPostgresConfig returns PostgresConfig with recommended pool settings.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// FromSettings converts the database section of the YAML config. Pool
// settings keep their defaults.
func FromSettings(s config.DatabaseConfig) Config {
	cfg := DefaultConfig(s.SQLitePath)
	cfg.Driver = s.Driver

	pg := DefaultPostgresConfig()
	if s.Postgres.Host != "" {
		pg.Host = s.Postgres.Host
	}
	if s.Postgres.Port > 0 {
		pg.Port = s.Postgres.Port
	}
	if s.Postgres.SSLMode != "" {
		pg.SSLMode = s.Postgres.SSLMode
	}
	pg.User = s.Postgres.User
	pg.Password = s.Postgres.Password
	pg.Database = s.Postgres.Database
	cfg.Postgres = pg
	return cfg
}

// ConnString renders the settings as a lib/pq keyword/value connection string.
// Empty fields are left out so libpq defaults and PG* environment variables apply.
func (c PostgresConfig) ConnString() string {
	var parts []string
	add := func(key, value string) {
		if value == "" {
			return
		}
		parts = append(parts, key+"="+quoteConnValue(value))
	}
	add("host", c.Host)
	if c.Port > 0 {
		add("port", fmt.Sprint(c.Port))
	}
	add("user", c.User)
	add("password", c.Password)
	add("dbname", c.Database)
	add("sslmode", c.SSLMode)
	return strings.Join(parts, " ")
}

func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
