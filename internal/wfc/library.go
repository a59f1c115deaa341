package wfc

import "fmt"

// OrientedTileSet is the full list of rotated tile variants every cell
// starts from. It is immutable once built and shared by all cells.
type OrientedTileSet struct {
	tiles []TilePrototype
}

// Len returns the number of oriented tiles.
func (s *OrientedTileSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tiles)
}

// At returns the oriented tile at index i.
func (s *OrientedTileSet) At(i int) TilePrototype {
	return s.tiles[i]
}

// Tiles returns a copy of the oriented tiles in set order.
func (s *OrientedTileSet) Tiles() []TilePrototype {
	out := make([]TilePrototype, len(s.tiles))
	copy(out, s.tiles)
	return out
}

// Expand builds the oriented set: four rotations per base prototype,
// base-major and rotation-minor. Input rotations are ignored.
func Expand(bases []TilePrototype) (*OrientedTileSet, error) {
	return expand(bases, false)
}

// ExpandDistinct is Expand but drops a rotation whose edges repeat an
// earlier rotation of the same base, so symmetric tiles appear once.
func ExpandDistinct(bases []TilePrototype) (*OrientedTileSet, error) {
	return expand(bases, true)
}

func expand(bases []TilePrototype, distinct bool) (*OrientedTileSet, error) {
	for i, base := range bases {
		if err := base.Validate(); err != nil {
			return nil, fmt.Errorf("base tile %d: %w", i, err)
		}
	}

	set := &OrientedTileSet{tiles: make([]TilePrototype, 0, len(bases)*EdgeCount)}
	for _, base := range bases {
		start := len(set.tiles)
		for r := 0; r < EdgeCount; r++ {
			variant := base.Rotate(r)
			if distinct && containsEdges(set.tiles[start:], variant) {
				continue
			}
			set.tiles = append(set.tiles, variant)
		}
	}
	return set, nil
}

func containsEdges(tiles []TilePrototype, t TilePrototype) bool {
	for _, existing := range tiles {
		if existing.sameEdges(t) {
			return true
		}
	}
	return false
}
