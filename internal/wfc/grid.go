package wfc

import "math"

// Neighbor is an adjacent cell and the direction it lies in.
type Neighbor struct {
	Dir   Direction
	Index int
}

// Grid is a row-major array of cells: index = y*Width + x.
type Grid struct {
	Width, Height int
	cells         []*Superposition
	tiles         *OrientedTileSet
}

// NewGrid allocates a grid whose cells all start with the full tile set.
func NewGrid(width, height int, set *OrientedTileSet, cellSize float64) (*Grid, error) {
	g := &Grid{}
	if err := g.Initialize(width, height, set, cellSize); err != nil {
		return nil, err
	}
	return g, nil
}

// Initialize replaces all cell state. Nothing from a previous generation
// survives.
func (g *Grid) Initialize(width, height int, set *OrientedTileSet, cellSize float64) error {
	if width <= 0 || height <= 0 || cellSize <= 0 {
		return ErrInvalidSize
	}
	// width*height must fit in an int.
	if width > math.MaxInt/height {
		return ErrInvalidSize
	}
	if set.Len() == 0 {
		return ErrEmptyTileSet
	}

	cells := make([]*Superposition, width*height)
	for i := range cells {
		cells[i] = newSuperposition(set.Len(), cellSize)
	}

	g.Width = width
	g.Height = height
	g.cells = cells
	g.tiles = set
	return nil
}

// Len returns the number of cells.
func (g *Grid) Len() int {
	return len(g.cells)
}

// Index converts (x, y) to a flat cell index.
func (g *Grid) Index(x, y int) int {
	return y*g.Width + x
}

// Coordinate converts a flat index back to (x, y).
func (g *Grid) Coordinate(index int) (x, y int) {
	return index % g.Width, index / g.Width
}

// InBounds reports whether (x, y) lies inside the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// Cell returns the cell at a flat index.
func (g *Grid) Cell(index int) *Superposition {
	return g.cells[index]
}

// CellAt returns the cell at (x, y), or nil when out of bounds.
func (g *Grid) CellAt(x, y int) *Superposition {
	if !g.InBounds(x, y) {
		return nil
	}
	return g.cells[g.Index(x, y)]
}

// Tiles returns the oriented tile set the grid was seeded with.
func (g *Grid) Tiles() *OrientedTileSet {
	return g.tiles
}

// NeighborIndices returns the 4-connected neighbors of a cell in
// north, east, south, west order. Neighbors off the grid are omitted.
func (g *Grid) NeighborIndices(index int) []Neighbor {
	x, y := g.Coordinate(index)
	out := make([]Neighbor, 0, EdgeCount)
	for _, dir := range AllDirections() {
		dx, dy := dir.Offset()
		nx, ny := x+dx, y+dy
		if !g.InBounds(nx, ny) {
			continue
		}
		out = append(out, Neighbor{Dir: dir, Index: g.Index(nx, ny)})
	}
	return out
}

// Snapshot returns the candidate count of every cell in index order.
func (g *Grid) Snapshot() []int {
	out := make([]int, len(g.cells))
	for i, c := range g.cells {
		out[i] = c.Entropy()
	}
	return out
}
