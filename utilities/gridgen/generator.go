package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/lawnchairsociety/tilecollapse/internal/tileset"
	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

// GridGenerator solves one grid per seed and writes each result to YAML.
type GridGenerator struct {
	set         *wfc.OrientedTileSet
	palette     string
	fingerprint string
	width       int
	height      int
	outputDir   string
}

// NewGridGenerator expands the palette once for every seed it solves.
func NewGridGenerator(palette *tileset.Palette, width, height int, outputDir string) (*GridGenerator, error) {
	set, err := palette.Expand(true)
	if err != nil {
		return nil, err
	}
	return &GridGenerator{
		set:         set,
		palette:     palette.Name,
		fingerprint: palette.Fingerprint(),
		width:       width,
		height:      height,
		outputDir:   outputDir,
	}, nil
}

// GenerateGrid solves the grid for seed and writes grid_<seed>.yaml.
// A contradiction is recorded in the file, not returned as an error.
func (g *GridGenerator) GenerateGrid(ctx context.Context, seed uint64) (*GridYAML, error) {
	grid, err := g.solve(ctx, seed)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(g.outputDir, fmt.Sprintf("grid_%d.yaml", seed))
	if err := WriteGridYAML(grid, path); err != nil {
		return nil, err
	}
	return grid, nil
}

func (g *GridGenerator) solve(ctx context.Context, seed uint64) (*GridYAML, error) {
	rec := &wfc.Recorder{}
	solver, err := wfc.NewSolver(g.set, wfc.Options{Seed: seed, Observer: rec})
	if err != nil {
		return nil, err
	}
	if err := solver.Initialize(g.width, g.height, 1); err != nil {
		return nil, err
	}

	res, err := solver.Run(ctx)
	if err != nil && !errors.Is(err, wfc.ErrNoCandidates) && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	grid := &GridYAML{
		Seed:        seed,
		Palette:     g.palette,
		Fingerprint: g.fingerprint,
		Width:       g.width,
		Height:      g.height,
		State:       res.State.String(),
		Collapsed:   res.Collapsed,
		ElapsedMS:   res.Elapsed.Milliseconds(),
		Cells:       make([][]string, g.height),
	}
	for y := range grid.Cells {
		row := make([]string, g.width)
		for x := range row {
			row[x] = unresolvedCell
		}
		grid.Cells[y] = row
	}
	for _, c := range rec.Resolved() {
		grid.Cells[c.Y][c.X] = cellLabel(c.Artwork, c.Rotation)
	}
	if res.Failure != nil {
		grid.Contradiction = &CellYAML{X: res.Failure.X, Y: res.Failure.Y}
		grid.Cells[res.Failure.Y][res.Failure.X] = failedCell
	}
	return grid, nil
}
