package wfc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir      Direction
		expected string
	}{
		{North, "north"},
		{East, "east"},
		{South, "south"},
		{West, "west"},
		{Direction(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.dir.String())
	}
}

func TestDirectionOpposite(t *testing.T) {
	tests := []struct {
		dir      Direction
		expected Direction
	}{
		{North, South},
		{South, North},
		{East, West},
		{West, East},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.dir.Opposite(), "%s.Opposite()", tt.dir)
		assert.Equal(t, tt.dir, tt.dir.Opposite().Opposite())
	}
}

func TestDirectionOffset(t *testing.T) {
	for _, dir := range AllDirections() {
		dx, dy := dir.Offset()
		ox, oy := dir.Opposite().Offset()
		assert.Equal(t, 0, dx+ox, "%s dx", dir)
		assert.Equal(t, 0, dy+oy, "%s dy", dir)
	}
	dx, dy := North.Offset()
	assert.Equal(t, []int{0, -1}, []int{dx, dy})
}

func TestEdgeMarkerReversed(t *testing.T) {
	tests := []struct {
		in, want EdgeMarker
	}{
		{"", ""},
		{"A", "A"},
		{"AB", "BA"},
		{"abc", "cba"},
		{"ÄöZ", "ZöÄ"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Reversed(), "Reversed(%q)", tt.in)
		assert.Equal(t, tt.in, tt.in.Reversed().Reversed())
	}
}

func TestTilePrototypeValidate(t *testing.T) {
	require.NoError(t, NewTilePrototype("ok", "A", "B", "C", "D").Validate())

	err := NewTilePrototype("short", "A", "B", "C").Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTileDefinition))

	err = TilePrototype{Artwork: "none"}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidTileDefinition))
}

func TestTilePrototypeRotate(t *testing.T) {
	base := NewTilePrototype("t", "N", "E", "S", "W")

	r1 := base.Rotate(1)
	assert.Equal(t, []EdgeMarker{"E", "S", "W", "N"}, r1.Edges)
	assert.Equal(t, 90, r1.Rotation)

	r3 := base.Rotate(3)
	assert.Equal(t, []EdgeMarker{"W", "N", "E", "S"}, r3.Edges)
	assert.Equal(t, 270, r3.Rotation)

	// Rotating does not touch the original.
	assert.Equal(t, []EdgeMarker{"N", "E", "S", "W"}, base.Edges)
}

func TestTilePrototypeRotationPeriod(t *testing.T) {
	base := NewTilePrototype("t", "ab", "cd", "", "x")

	tile := base
	for i := 0; i < 4; i++ {
		tile = tile.Rotate(1)
	}
	assert.Equal(t, base.Edges, tile.Edges)
	assert.Equal(t, base.Rotate(0).Edges, base.Rotate(4).Edges)
	assert.Equal(t, base.Rotate(3).Edges, base.Rotate(-1).Edges)
}

func TestTilePrototypeCompatibleWith(t *testing.T) {
	a := NewTilePrototype("a", "N1", "AB", "S1", "W1")
	b := NewTilePrototype("b", "N2", "E2", "S2", "BA")
	c := NewTilePrototype("c", "N3", "E3", "S3", "AB")

	// a's east edge "AB" meets b's west edge "BA" read reversed.
	assert.True(t, a.CompatibleWith(b, East))
	assert.True(t, b.CompatibleWith(a, West))
	assert.False(t, a.CompatibleWith(c, East))

	// Empty markers only match empty markers.
	e1 := NewTilePrototype("e1", "", "", "", "")
	e2 := NewTilePrototype("e2", "", "", "x", "")
	assert.True(t, e1.CompatibleWith(e1, North))
	assert.False(t, e1.CompatibleWith(e2, North))
}

func TestCompatibilityMirrorConsistency(t *testing.T) {
	set, err := Expand([]TilePrototype{
		NewTilePrototype("a", "AB", "A", "BB", "AB"),
		NewTilePrototype("b", "BA", "A", "AB", "B"),
		NewTilePrototype("c", "A", "A", "A", "A"),
	})
	require.NoError(t, err)

	tiles := set.Tiles()
	for _, a := range tiles {
		for _, b := range tiles {
			for _, dir := range AllDirections() {
				want := a.Edges[dir] == b.Edges[dir.Opposite()].Reversed()
				assert.Equal(t, want, a.CompatibleWith(b, dir))
				// Reading from the other side gives the same answer.
				assert.Equal(t, a.CompatibleWith(b, dir), b.CompatibleWith(a, dir.Opposite()))
			}
		}
	}
}
