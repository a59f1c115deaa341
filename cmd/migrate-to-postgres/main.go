// migrate-to-postgres copies run history from SQLite to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/runs.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user wfc \
//	    -pg-password wfc \
//	    -pg-database wfc
package main

import (
	"flag"
	"log"
	"math"

	"github.com/lawnchairsociety/tilecollapse/internal/database"
	"github.com/lawnchairsociety/tilecollapse/internal/host"
)

func main() {
	sqlitePath := flag.String("sqlite", "data/runs.db", "Path to SQLite run history")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "wfc", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "wfc", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "wfc", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Run History Migration")
	log.Println("==========================================")

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	src, err := database.Open(*sqlitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer src.Close()

	var dst *database.Database
	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	} else {
		pg := database.DefaultPostgresConfig()
		pg.Host = *pgHost
		pg.Port = *pgPort
		pg.User = *pgUser
		pg.Password = *pgPassword
		pg.Database = *pgDatabase
		pg.SSLMode = *pgSSLMode

		log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", *pgUser, *pgHost, *pgPort, *pgDatabase)
		dst, err = database.OpenWithConfig(database.Config{Driver: "postgres", Postgres: pg})
		if err != nil {
			log.Fatalf("Failed to open PostgreSQL database: %v", err)
		}
		defer dst.Close()
	}

	runs, cells, err := migrateRuns(src, dst)
	if err != nil {
		log.Fatalf("Migration failed after %d runs: %v", runs, err)
	}

	log.Println("==========================================")
	log.Printf("Migration complete! Runs: %d, resolutions: %d", runs, cells)
	if *dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
}

// migrateRuns copies every run, oldest first, so new IDs keep the original
// order. A nil dst only counts.
func migrateRuns(src, dst *database.Database) (runs, cells int64, err error) {
	recs, err := src.ListRuns(math.MaxInt32)
	if err != nil {
		return 0, 0, err
	}

	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		res, err := src.GetResolutions(rec.ID)
		if err != nil {
			return runs, cells, err
		}
		if dst != nil {
			if err := copyRun(dst, rec, res); err != nil {
				return runs, cells, err
			}
		}
		runs++
		cells += int64(len(res))
	}
	return runs, cells, nil
}

func copyRun(dst *database.Database, rec *host.RunRecord, res []host.Resolution) error {
	oldID := rec.ID
	rec.ID = 0
	rec.Resolutions = res
	newID, err := dst.SaveRun(rec)
	if err != nil {
		return err
	}
	log.Printf("  Run %d -> %d (%s, %d cells)", oldID, newID, rec.State, len(res))
	return nil
}
