package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
	"github.com/lawnchairsociety/tilecollapse/internal/database"
	"github.com/lawnchairsociety/tilecollapse/internal/host"
	"github.com/lawnchairsociety/tilecollapse/internal/render"
	"github.com/lawnchairsociety/tilecollapse/internal/tileset"
)

func main() {
	configFile := flag.String("config", "data/wfc.yaml", "Path to config YAML file (for database settings)")
	dbFile := flag.String("db", "", "Path to SQLite run history (default: config)")
	runID := flag.Int64("run", 0, "Run ID to render (0 for the latest run)")
	list := flag.Int("list", 0, "List the N most recent runs instead of rendering one")
	tilesFile := flag.String("tiles", "", "Path to the palette the run used (default: config, then built-in palette)")
	outputFile := flag.String("output", "", "Output file (empty for stdout)")
	showLegend := flag.Bool("legend", true, "Show legend")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config %s: %v (using defaults)\n", *configFile, err)
	}
	if *dbFile != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLitePath = *dbFile
	}
	if cfg.Database.Driver == "" {
		fmt.Fprintln(os.Stderr, "Error: run history is disabled in the config; pass -db")
		os.Exit(1)
	}

	db, err := database.OpenWithConfig(database.FromSettings(cfg.Database))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var output strings.Builder
	if *list > 0 {
		if err := listRuns(&output, db, *list); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
			os.Exit(1)
		}
	} else {
		paletteFile := *tilesFile
		if paletteFile == "" {
			paletteFile = cfg.Tiles.Palette
		}
		if err := renderRun(&output, db, *runID, paletteFile, *showLegend); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(output.String()), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Map written to %s\n", *outputFile)
	} else {
		fmt.Print(output.String())
	}
}

func listRuns(output *strings.Builder, db *database.Database, limit int) error {
	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "%-6s %-20s %-10s %-8s %-10s %s\n", "ID", "Seed", "State", "Size", "Cells", "Created")
	output.WriteString(strings.Repeat("-", 76) + "\n")
	for _, r := range runs {
		fmt.Fprintf(output, "%-6d %-20d %-10s %-8s %-10s %s\n",
			r.ID, r.Seed, r.State,
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			fmt.Sprintf("%d/%d", r.Collapsed, r.Width*r.Height),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func renderRun(output *strings.Builder, db *database.Database, id int64, paletteFile string, showLegend bool) error {
	rec, err := loadRun(db, id)
	if err != nil {
		return err
	}
	res, err := db.GetResolutions(rec.ID)
	if err != nil {
		return err
	}

	palette := tileset.Default()
	if paletteFile != "" {
		if palette, err = tileset.LoadFromYAML(paletteFile); err != nil {
			return err
		}
	}
	bases, err := palette.Prototypes()
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Run %d (Seed: %d, State: %s, Palette: %s)\n", rec.ID, rec.Seed, rec.State, rec.Palette)
	fmt.Fprintf(output, "Generated: %s  Elapsed: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Elapsed)
	output.WriteString(strings.Repeat("=", 60) + "\n")
	if fp := palette.Fingerprint(); rec.Fingerprint != "" && fp != rec.Fingerprint {
		output.WriteString("WARNING: palette differs from the one this run used; edges may be wrong\n")
	}
	output.WriteString("\n")

	canvas := render.FromResolutions(rec.Width, rec.Height, bases, res, rec.Failure)
	canvas.WriteTo(output)

	placed, total := canvas.Coverage()
	fmt.Fprintf(output, "\n%d/%d cells resolved", placed, total)
	if forced := countForced(res); forced > 0 {
		fmt.Fprintf(output, " (%d by propagation)", forced)
	}
	output.WriteString("\n")
	if rec.Failure != nil {
		fmt.Fprintf(output, "Contradiction at (%d, %d): %s\n", rec.Failure.X, rec.Failure.Y, rec.Failure.Reason)
	}

	if showLegend {
		output.WriteString("\n")
		output.WriteString(canvas.Legend())
	}
	return nil
}

// loadRun returns run id, or the most recent run when id is 0.
func loadRun(db *database.Database, id int64) (*host.RunRecord, error) {
	if id != 0 {
		return db.GetRun(id)
	}
	runs, err := db.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, database.ErrRunNotFound
	}
	return runs[0], nil
}

func countForced(res []host.Resolution) int {
	n := 0
	for _, r := range res {
		if r.Forced {
			n++
		}
	}
	return n
}
