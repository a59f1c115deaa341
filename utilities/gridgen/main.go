package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/lawnchairsociety/tilecollapse/internal/tileset"
)

func main() {
	tiles := flag.String("tiles", "", "Palette YAML file (default: built-in palette)")
	seeds := flag.String("seeds", "", "Seed range to solve (e.g., 1-25 or 5)")
	width := flag.Int("width", 16, "Grid width in cells")
	height := flag.Int("height", 12, "Grid height in cells")
	outDir := flag.String("out", "data/grids", "Output directory")
	flag.Parse()

	if *seeds == "" {
		fmt.Fprintln(os.Stderr, "Error: --seeds is required (e.g., --seeds=1-25 or --seeds=5)")
		flag.Usage()
		os.Exit(1)
	}

	start, end, err := parseSeedRange(*seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid seed range: %v\n", err)
		os.Exit(1)
	}

	palette := tileset.Default()
	if *tiles != "" {
		palette, err = tileset.LoadFromYAML(*tiles)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	gen, err := NewGridGenerator(palette, *width, *height, *outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Solving seeds %d-%d on a %dx%d grid (palette: %s)\n", start, end, *width, *height, palette.Name)
	fmt.Printf("Output directory: %s\n\n", *outDir)

	completed := 0
	forEachSeed(start, end, func(seed uint64) bool {
		fmt.Printf("Seed %d... ", seed)
		grid, err := gen.GenerateGrid(ctx, seed)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			os.Exit(1)
		}
		if grid.State == "completed" {
			completed++
			fmt.Printf("OK\n")
			return true
		}
		fmt.Printf("%s (%d/%d cells)\n", strings.ToUpper(grid.State), grid.Collapsed, grid.Width*grid.Height)
		return ctx.Err() == nil
	})

	total := end - start + 1
	fmt.Printf("\n%d of %d seed(s) completed (%.0f%%)\n", completed, total, 100*float64(completed)/float64(total))
}

// forEachSeed calls fn for start..end inclusive until fn returns false.
// The loop stops on end itself so a range ending at MaxUint64 does not wrap.
func forEachSeed(start, end uint64, fn func(seed uint64) bool) {
	for seed := start; ; seed++ {
		if !fn(seed) || seed == end {
			return
		}
	}
}

// parseSeedRange parses a seed range string like "1-25" or "5"
func parseSeedRange(s string) (start, end uint64, err error) {
	if strings.Contains(s, "-") {
		parts := strings.Split(s, "-")
		if len(parts) != 2 {
			return 0, 0, fmt.Errorf("invalid range format, expected 'start-end'")
		}
		start, err = strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid start seed: %w", err)
		}
		end, err = strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid end seed: %w", err)
		}
	} else {
		start, err = strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid seed: %w", err)
		}
		end = start
	}

	if start < 1 {
		return 0, 0, fmt.Errorf("seeds must be >= 1 (seed 0 draws a random seed)")
	}
	if end < start {
		return 0, 0, fmt.Errorf("end seed must be >= start seed")
	}

	return start, end, nil
}
