package wfc

// Superposition is the state of one grid cell: the indices of the oriented
// tiles it may still become, and whether it has been collapsed.
type Superposition struct {
	candidates []int
	collapsed  bool
	cellSize   float64
}

func newSuperposition(tileCount int, cellSize float64) *Superposition {
	c := make([]int, tileCount)
	for i := range c {
		c[i] = i
	}
	return &Superposition{candidates: c, cellSize: cellSize}
}

// Entropy returns the number of remaining candidates.
func (s *Superposition) Entropy() int {
	return len(s.candidates)
}

// Collapsed reports whether the cell has been resolved to a single tile.
func (s *Superposition) Collapsed() bool {
	return s.collapsed
}

// CellSize returns the placement size of the cell.
func (s *Superposition) CellSize() float64 {
	return s.cellSize
}

// Candidates returns a copy of the remaining tile indices.
func (s *Superposition) Candidates() []int {
	out := make([]int, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Tile returns the resolved tile index, or -1 if not collapsed.
func (s *Superposition) Tile() int {
	if !s.collapsed {
		return -1
	}
	return s.candidates[0]
}

// collapseTo fixes the cell to a single tile index.
func (s *Superposition) collapseTo(tile int) {
	s.candidates = []int{tile}
	s.collapsed = true
}

// retain keeps only the candidates for which keep returns true, preserving
// order. It reports whether anything was removed.
func (s *Superposition) retain(keep func(tile int) bool) bool {
	kept := s.candidates[:0]
	for _, c := range s.candidates {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	changed := len(kept) != len(s.candidates)
	s.candidates = kept
	return changed
}
