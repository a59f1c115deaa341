package wfc

import "fmt"

// Direction represents a cardinal direction in the grid.
// Its value doubles as the edge index of a tile: 0 = north, then clockwise.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// String returns the string representation of a Direction
func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Opposite returns the opposite direction
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case East:
		return West
	case South:
		return North
	case West:
		return East
	default:
		return d
	}
}

// Offset returns the grid delta for one step in the direction.
// Y grows downward, so north is -1.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	}
	return 0, 0
}

// AllDirections returns all four cardinal directions
func AllDirections() []Direction {
	return []Direction{North, East, South, West}
}

// EdgeMarker labels one side of a tile. Markers are written as seen from
// the tile itself, so the neighbor's marker is read reversed when matching.
// The empty marker is a real label, not a wildcard.
type EdgeMarker string

// Reversed returns the marker with its runes in reverse order.
func (m EdgeMarker) Reversed() EdgeMarker {
	r := []rune(m)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return EdgeMarker(r)
}

// ArtworkRef is an opaque handle to a tile's artwork. The solver never
// interprets it; it is passed through on resolution events.
type ArtworkRef string

// EdgeCount is the number of edges every tile prototype carries.
const EdgeCount = 4

// TilePrototype is a tile definition: artwork plus one edge marker per
// direction (indexed by Direction) and the orientation in degrees.
type TilePrototype struct {
	Artwork  ArtworkRef
	Edges    []EdgeMarker
	Rotation int
}

// NewTilePrototype creates an unrotated prototype from edges given in
// north, east, south, west order.
func NewTilePrototype(artwork ArtworkRef, edges ...EdgeMarker) TilePrototype {
	return TilePrototype{
		Artwork: artwork,
		Edges:   append([]EdgeMarker(nil), edges...),
	}
}

// Validate checks the prototype has exactly four edge markers.
func (t TilePrototype) Validate() error {
	if len(t.Edges) != EdgeCount {
		return fmt.Errorf("%w: %q has %d edges, want %d", ErrInvalidTileDefinition, t.Artwork, len(t.Edges), EdgeCount)
	}
	return nil
}

// Edge returns the marker on the given side.
func (t TilePrototype) Edge(dir Direction) EdgeMarker {
	return t.Edges[dir]
}

// Rotate returns a copy rotated clockwise by steps quarter turns: the new
// edge i is the old edge (i+steps) mod 4. Rotation is set to steps*90.
func (t TilePrototype) Rotate(steps int) TilePrototype {
	steps = ((steps % EdgeCount) + EdgeCount) % EdgeCount
	edges := make([]EdgeMarker, EdgeCount)
	for i := 0; i < EdgeCount; i++ {
		edges[i] = t.Edges[(i+steps)%EdgeCount]
	}
	return TilePrototype{
		Artwork:  t.Artwork,
		Edges:    edges,
		Rotation: steps * 90,
	}
}

// CompatibleWith reports whether other may sit next to t in direction dir.
// The facing edges must match with other's marker read reversed.
func (t TilePrototype) CompatibleWith(other TilePrototype, dir Direction) bool {
	return t.Edges[dir] == other.Edges[dir.Opposite()].Reversed()
}

// sameEdges reports whether two prototypes carry identical edge arrays.
func (t TilePrototype) sameEdges(other TilePrototype) bool {
	if len(t.Edges) != len(other.Edges) {
		return false
	}
	for i := range t.Edges {
		if t.Edges[i] != other.Edges[i] {
			return false
		}
	}
	return true
}

// String returns a short description like "road.png@90[A B A B]".
func (t TilePrototype) String() string {
	return fmt.Sprintf("%s@%d%v", t.Artwork, t.Rotation, t.Edges)
}
