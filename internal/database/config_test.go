package database

import (
	"testing"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  PostgresConfig
		want string
	}{
		{
			name: "full",
			cfg:  PostgresConfig{Host: "db", Port: 5433, User: "wfc", Password: "secret", Database: "runs", SSLMode: "require"},
			want: "host=db port=5433 user=wfc password=secret dbname=runs sslmode=require",
		},
		{
			name: "empty fields omitted",
			cfg:  PostgresConfig{Host: "localhost", Database: "runs"},
			want: "host=localhost dbname=runs",
		},
		{
			name: "quoted values",
			cfg:  PostgresConfig{Password: `it's a \ pass`},
			want: `password='it\'s a \\ pass'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnString(); got != tt.want {
				t.Errorf("ConnString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.DatabaseConfig{
		Driver:     "postgres",
		SQLitePath: "ignored.db",
		Postgres: config.PostgresConfig{
			Host:     "db.internal",
			User:     "wfc",
			Password: "pw",
			Database: "runs",
		},
	})

	if cfg.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Driver)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Database != "runs" {
		t.Errorf("unexpected postgres settings %+v", cfg.Postgres)
	}
	if cfg.Postgres.Port != 5432 || cfg.Postgres.SSLMode != "disable" {
		t.Errorf("expected default port and sslmode, got %d %q", cfg.Postgres.Port, cfg.Postgres.SSLMode)
	}
	if cfg.Postgres.MaxOpenConns != 25 || cfg.Postgres.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("expected default pool settings, got %+v", cfg.Postgres)
	}
}

func TestFromSettingsSQLite(t *testing.T) {
	cfg := FromSettings(config.DefaultConfig().Database)
	if cfg.Driver != "sqlite" || cfg.SQLitePath != "data/runs.db" {
		t.Errorf("unexpected config %+v", cfg)
	}
}
