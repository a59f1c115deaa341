package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawnchairsociety/tilecollapse/internal/tileset"
)

const grassPalette = `name: meadow
tiles:
  - artwork: grass.png
    edges: ["G", "G", "G", "G"]
`

func TestParseSeedRange(t *testing.T) {
	tests := []struct {
		in         string
		start, end uint64
		wantErr    bool
	}{
		{"5", 5, 5, false},
		{"1-25", 1, 25, false},
		{" 3 - 4 ", 3, 4, false},
		{"0", 0, 0, true},
		{"9-2", 0, 0, true},
		{"1-2-3", 0, 0, true},
		{"x", 0, 0, true},
		{"1-y", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end, err := parseSeedRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestForEachSeed(t *testing.T) {
	collect := func(start, end uint64, stopAt uint64) []uint64 {
		var seen []uint64
		forEachSeed(start, end, func(seed uint64) bool {
			seen = append(seen, seed)
			return seed != stopAt
		})
		return seen
	}

	assert.Equal(t, []uint64{3, 4, 5}, collect(3, 5, 0))
	assert.Equal(t, []uint64{7}, collect(7, 7, 0))
	assert.Equal(t, []uint64{1, 2}, collect(1, 10, 2))
	assert.Equal(t,
		[]uint64{math.MaxUint64 - 2, math.MaxUint64 - 1, math.MaxUint64},
		collect(math.MaxUint64-2, math.MaxUint64, 0))
}

func TestSeedRangeEndingAtMaxUint64(t *testing.T) {
	start, end, err := parseSeedRange("18446744073709551615")
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), end)

	calls := 0
	forEachSeed(start, end, func(seed uint64) bool {
		calls++
		require.Less(t, calls, 3, "seed loop wrapped past MaxUint64")
		assert.Equal(t, uint64(math.MaxUint64), seed)
		return true
	})
	assert.Equal(t, 1, calls)
}

func TestGenerateGridCompleted(t *testing.T) {
	palette, err := tileset.Parse([]byte(grassPalette))
	require.NoError(t, err)

	dir := t.TempDir()
	gen, err := NewGridGenerator(palette, 4, 3, dir)
	require.NoError(t, err)

	grid, err := gen.GenerateGrid(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "completed", grid.State)
	assert.Equal(t, 12, grid.Collapsed)
	assert.Nil(t, grid.Contradiction)

	path := filepath.Join(dir, "grid_11.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Grid 4x3 - meadow palette\n"))
	assert.Contains(t, string(data), "# Generated with seed: 11\n")

	loaded, err := ReadGridYAML(path)
	require.NoError(t, err)
	assert.Equal(t, grid.Seed, loaded.Seed)
	assert.Equal(t, palette.Fingerprint(), loaded.Fingerprint)
	require.Len(t, loaded.Cells, 3)
	for _, row := range loaded.Cells {
		require.Len(t, row, 4)
		for _, cell := range row {
			assert.Equal(t, "grass.png@0", cell)
		}
	}
}

func TestGenerateGridSameSeedSameCells(t *testing.T) {
	gen, err := NewGridGenerator(tileset.Default(), 8, 6, t.TempDir())
	require.NoError(t, err)

	a, err := gen.GenerateGrid(context.Background(), 99)
	require.NoError(t, err)
	b, err := gen.GenerateGrid(context.Background(), 99)
	require.NoError(t, err)

	assert.Equal(t, a.State, b.State)
	assert.Equal(t, a.Cells, b.Cells)
	assert.Equal(t, a.Contradiction, b.Contradiction)
}

func TestGenerateGridCancelled(t *testing.T) {
	palette, err := tileset.Parse([]byte(grassPalette))
	require.NoError(t, err)
	gen, err := NewGridGenerator(palette, 4, 4, t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grid, err := gen.GenerateGrid(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", grid.State)
	assert.Equal(t, 0, grid.Collapsed)
	assert.Equal(t, unresolvedCell, grid.Cells[0][0])
}

func TestWriteGridYAMLBadPath(t *testing.T) {
	grid := &GridYAML{Width: 1, Height: 1, Cells: [][]string{{"?"}}}
	err := WriteGridYAML(grid, filepath.Join(t.TempDir(), "missing", "grid.yaml"))
	assert.Error(t, err)
}
