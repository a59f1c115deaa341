package wfc

// Rules holds the adjacency table for an oriented tile set.
// allowed[dir][a][b] is true when tile b may sit in direction dir of tile a.
type Rules struct {
	allowed [EdgeCount][][]bool
	count   int
}

// NewRules precomputes compatibility for every ordered tile pair and direction.
func NewRules(set *OrientedTileSet) *Rules {
	n := set.Len()
	r := &Rules{count: n}
	for _, dir := range AllDirections() {
		table := make([][]bool, n)
		for a := 0; a < n; a++ {
			row := make([]bool, n)
			ta := set.At(a)
			for b := 0; b < n; b++ {
				row[b] = ta.CompatibleWith(set.At(b), dir)
			}
			table[a] = row
		}
		r.allowed[dir] = table
	}
	return r
}

// Allowed returns true if tile b can be placed in direction dir of tile a
func (r *Rules) Allowed(dir Direction, a, b int) bool {
	return r.allowed[dir][a][b]
}

// Supported returns true if candidate b, placed in direction dir of a cell,
// matches at least one of that cell's candidates.
func (r *Rules) Supported(dir Direction, sources []int, b int) bool {
	for _, a := range sources {
		if r.allowed[dir][a][b] {
			return true
		}
	}
	return false
}

// TileCount returns the number of tiles the table was built for
func (r *Rules) TileCount() int {
	return r.count
}
