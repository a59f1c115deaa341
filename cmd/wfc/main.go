package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/config"
	"github.com/lawnchairsociety/tilecollapse/internal/database"
	"github.com/lawnchairsociety/tilecollapse/internal/host"
	"github.com/lawnchairsociety/tilecollapse/internal/logger"
	"github.com/lawnchairsociety/tilecollapse/internal/render"
	"github.com/lawnchairsociety/tilecollapse/internal/server"
	"github.com/lawnchairsociety/tilecollapse/internal/tileset"
	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "data/wfc.yaml", "Path to config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	tilesFile := flag.String("tiles", "", "Path to tile palette YAML file (default: config, then built-in palette)")
	width := flag.Int("width", 0, "Grid width in cells (default: config)")
	height := flag.Int("height", 0, "Grid height in cells (default: config)")
	seed := flag.Uint64("seed", 0, "Solver seed (default: config, 0 picks a fresh seed)")
	dbFile := flag.String("db", "", "Path to SQLite run history (default: config)")
	noHistory := flag.Bool("no-history", false, "Do not store runs")
	serve := flag.Bool("serve", false, "Start the watch server instead of running once")
	addr := flag.String("addr", "", "Watch server listen address (default: config)")
	showLegend := flag.Bool("legend", true, "Print the tile legend after the map")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Warning("Failed to load config, using defaults", "path", *configFile, "error", err)
	}
	applyFlags(cfg, *tilesFile, *width, *height, *seed, *dbFile, *addr, *noHistory)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	palette, err := loadPalette(cfg.Tiles.Palette)
	if err != nil {
		log.Fatalf("Failed to load palette: %v", err)
	}
	protos, err := palette.Prototypes()
	if err != nil {
		log.Fatalf("Invalid palette: %v", err)
	}
	set, err := palette.Expand(cfg.Tiles.DedupSymmetric)
	if err != nil {
		log.Fatalf("Failed to expand palette: %v", err)
	}
	logger.Info("Palette loaded",
		"name", palette.Name,
		"base_tiles", len(protos),
		"oriented_tiles", set.Len(),
		"fingerprint", palette.Fingerprint())

	db, err := openHistory(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open run history: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	opts := host.Options{
		Width:       cfg.Grid.Width,
		Height:      cfg.Grid.Height,
		CellSize:    cfg.Grid.CellSize,
		Seed:        cfg.Grid.Seed,
		Palette:     palette.Name,
		Fingerprint: palette.Fingerprint(),
	}
	if db != nil {
		opts.Store = db
	}

	if *serve {
		return runServer(cfg, set, opts, db)
	}
	return runOnce(set, protos, opts, *showLegend)
}

// applyFlags overlays command-line values on the loaded config.
func applyFlags(cfg *config.Config, tiles string, width, height int, seed uint64, dbFile, addr string, noHistory bool) {
	if tiles != "" {
		cfg.Tiles.Palette = tiles
	}
	if width > 0 {
		cfg.Grid.Width = width
	}
	if height > 0 {
		cfg.Grid.Height = height
	}
	if seed != 0 {
		cfg.Grid.Seed = seed
	}
	if dbFile != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLitePath = dbFile
	}
	if noHistory {
		cfg.Database.Driver = ""
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
}

func loadPalette(path string) (*tileset.Palette, error) {
	if path == "" {
		logger.Info("Using built-in palette")
		return tileset.Default(), nil
	}
	return tileset.LoadFromYAML(path)
}

// openHistory opens run storage, or returns nil when history is disabled.
func openHistory(settings config.DatabaseConfig) (*database.Database, error) {
	if settings.Driver == "" {
		logger.Info("Run history disabled")
		return nil, nil
	}
	db, err := database.OpenWithConfig(database.FromSettings(settings))
	if err != nil {
		return nil, err
	}
	logger.Info("Run history opened", "driver", db.Dialect().DriverName())
	return db, nil
}

// runOnce solves one grid and prints it. The exit code is 0 on completion,
// 1 on contradiction and 130 when interrupted.
func runOnce(set *wfc.OrientedTileSet, protos []wfc.TilePrototype, opts host.Options, showLegend bool) int {
	canvas := render.NewCanvas(opts.Width, opts.Height, protos)
	opts.Observer = canvas

	h, err := host.New(set, opts)
	if err != nil {
		logger.Error("Failed to create host", "error", err)
		return 1
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		logger.Error("Failed to start run", "error", err)
		return 1
	}
	res, runErr := h.Wait()

	canvas.WriteTo(os.Stdout)
	if showLegend {
		fmt.Println()
		fmt.Print(canvas.Legend())
	}

	placed, total := canvas.Coverage()
	fmt.Printf("\nseed %d  %s  %d/%d cells  %s\n",
		res.Seed, res.State, placed, total, res.Elapsed.Round(time.Microsecond))
	if id := h.Status().LastRunID; id != 0 {
		fmt.Printf("stored as run %d\n", id)
	}

	switch res.State {
	case wfc.Completed:
		return 0
	case wfc.Cancelled:
		return 130
	default:
		var contradiction *wfc.ContradictionError
		if errors.As(runErr, &contradiction) {
			fmt.Fprintf(os.Stderr, "contradiction at (%d, %d): %v\n", contradiction.X, contradiction.Y, contradiction)
		} else if runErr != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", runErr)
		}
		return 1
	}
}

// runServer hosts the grid behind the watch server until SIGINT or SIGTERM.
func runServer(cfg *config.Config, set *wfc.OrientedTileSet, opts host.Options, db *database.Database) int {
	h, err := host.New(set, opts)
	if err != nil {
		logger.Error("Failed to create host", "error", err)
		return 1
	}
	defer h.Close()

	var runs server.RunReader
	if db != nil {
		runs = db
	}

	if len(cfg.Server.WebSocket.AllowedOrigins) == 0 {
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	} else if len(cfg.Server.WebSocket.AllowedOrigins) == 1 && cfg.Server.WebSocket.AllowedOrigins[0] == "*" {
		logger.Warning("WebSocket CORS allows all origins (not recommended for production)")
	} else {
		logger.Info("WebSocket CORS policy", "allowed_origins", cfg.Server.WebSocket.AllowedOrigins)
	}

	if cfg.Server.TrustProxyHeaders {
		logger.Info("Client IPs taken from proxy headers (X-Forwarded-For, X-Real-IP)")
	}

	srv := server.New(cfg.Server, h, runs)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("Grid ready", "width", opts.Width, "height", opts.Height, "seed", h.Status().Seed)
	logger.Info("Press Ctrl+C to shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	code := 0
	select {
	case <-sigChan:
	case err := <-errCh:
		if err != nil {
			logger.Error("Watch server error", "error", err)
			code = 1
		}
	}

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warning("Shutdown incomplete", "error", err)
	}
	logger.Info("Server stopped")
	return code
}
