package database

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

// getPostgresTestConfig returns PostgreSQL config if available, nil otherwise.
// Set these environment variables to run PostgreSQL tests:
//
//	WFC_TEST_POSTGRES=1
//	WFC_TEST_POSTGRES_HOST (default: localhost)
//	WFC_TEST_POSTGRES_PORT (default: 5432)
//	WFC_TEST_POSTGRES_USER (default: wfc)
//	WFC_TEST_POSTGRES_PASSWORD (default: wfc)
//	WFC_TEST_POSTGRES_DATABASE (default: wfc_test)
func getPostgresTestConfig() *Config {
	if os.Getenv("WFC_TEST_POSTGRES") == "" {
		return nil
	}

	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	port := 5432
	if portStr := os.Getenv("WFC_TEST_POSTGRES_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &port)
	}

	pg := DefaultPostgresConfig()
	pg.Host = env("WFC_TEST_POSTGRES_HOST", "localhost")
	pg.Port = port
	pg.User = env("WFC_TEST_POSTGRES_USER", "wfc")
	pg.Password = env("WFC_TEST_POSTGRES_PASSWORD", "wfc")
	pg.Database = env("WFC_TEST_POSTGRES_DATABASE", "wfc_test")
	pg.MaxOpenConns = 10
	pg.ConnMaxLifetime = time.Minute

	return &Config{Driver: "postgres", Postgres: pg}
}

// setupPostgresTestDB opens a PostgreSQL connection and clears run history.
func setupPostgresTestDB(t *testing.T) (*Database, *Config) {
	cfg := getPostgresTestConfig()
	if cfg == nil {
		t.Skip("Skipping PostgreSQL test: WFC_TEST_POSTGRES not set")
	}

	db, err := OpenWithConfig(*cfg)
	if err != nil {
		t.Fatalf("Failed to open PostgreSQL database: %v", err)
	}

	wipe := func() {
		db.db.Exec("DELETE FROM resolutions")
		db.db.Exec("DELETE FROM runs")
	}
	wipe()
	t.Cleanup(func() {
		wipe()
		db.Close()
	})
	return db, cfg
}

func TestPostgres_OpenWithConfig(t *testing.T) {
	db, cfg := setupPostgresTestDB(t)

	var result int
	if err := db.db.QueryRow("SELECT 1").Scan(&result); err != nil {
		t.Fatalf("Failed to query PostgreSQL: %v", err)
	}
	if result != 1 {
		t.Errorf("Expected 1, got %d", result)
	}

	if stats := db.db.Stats(); stats.MaxOpenConnections != cfg.Postgres.MaxOpenConns {
		t.Errorf("Expected MaxOpenConns %d, got %d", cfg.Postgres.MaxOpenConns, stats.MaxOpenConnections)
	}
}

func TestPostgres_SaveAndLoadRun(t *testing.T) {
	db, _ := setupPostgresTestDB(t)

	rec := sampleRun()
	rec.Seed = 1<<63 + 5
	id, err := db.SaveRun(rec)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Seed != rec.Seed {
		t.Errorf("Seed = %d, want %d", got.Seed, rec.Seed)
	}

	res, err := db.GetResolutions(id)
	if err != nil {
		t.Fatalf("GetResolutions failed: %v", err)
	}
	if len(res) != len(rec.Resolutions) || !res[1].Forced {
		t.Errorf("unexpected resolutions %+v", res)
	}
}

func TestPostgres_ConcurrentSaves(t *testing.T) {
	db, _ := setupPostgresTestDB(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rec := sampleRun()
			rec.Seed = seed
			if _, err := db.SaveRun(rec); err != nil {
				errs <- err
			}
		}(uint64(i + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	count, err := db.CountRuns("")
	if err != nil {
		t.Fatalf("CountRuns failed: %v", err)
	}
	if count != workers {
		t.Errorf("CountRuns = %d, want %d", count, workers)
	}
}
