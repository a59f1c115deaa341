// Package render draws a solver grid as ASCII, one 5x3 block per cell:
//
//	  N
//	W[s]E
//	  S r
//
// N, E, S and W are the centre rune of each edge marker, s is the tile's
// legend symbol and r shows the rotation (^ > v <). Unresolved cells show
// [?] and the contradiction cell [X].
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/lawnchairsociety/tilecollapse/internal/host"
	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

const cellWidth = 5

type placed struct {
	set      bool
	symbol   rune
	rotation int
	edges    [wfc.EdgeCount]wfc.EdgeMarker
}

// Canvas accumulates resolved cells. It implements wfc.Observer so it can be
// attached to a solver directly; it is safe to render from another goroutine.
type Canvas struct {
	mu      sync.Mutex
	width   int
	height  int
	cells   []placed
	failed  bool
	failX   int
	failY   int
	bases   map[wfc.ArtworkRef]wfc.TilePrototype
	symbols map[wfc.ArtworkRef]rune
	order   []wfc.ArtworkRef
}

// NewCanvas creates an empty canvas. bases supplies the edge markers and
// legend symbols for each artwork.
func NewCanvas(width, height int, bases []wfc.TilePrototype) *Canvas {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	c := &Canvas{
		width:   width,
		height:  height,
		cells:   make([]placed, width*height),
		bases:   make(map[wfc.ArtworkRef]wfc.TilePrototype, len(bases)),
		symbols: make(map[wfc.ArtworkRef]rune, len(bases)),
	}
	used := make(map[rune]bool)
	for _, b := range bases {
		if _, dup := c.bases[b.Artwork]; dup {
			continue
		}
		c.bases[b.Artwork] = b
		c.symbols[b.Artwork] = pickSymbol(string(b.Artwork), used)
		c.order = append(c.order, b.Artwork)
	}
	return c
}

// FromResolutions replays a stored run onto a new canvas.
func FromResolutions(width, height int, bases []wfc.TilePrototype, resolutions []host.Resolution, failure *host.FailureInfo) *Canvas {
	c := NewCanvas(width, height, bases)
	for _, r := range resolutions {
		c.Place(r.X, r.Y, wfc.ArtworkRef(r.Artwork), r.Rotation)
	}
	if failure != nil {
		c.MarkFailed(failure.X, failure.Y)
	}
	return c
}

// pickSymbol returns the first letter of name not yet used, falling back to
// digits and then '*'.
func pickSymbol(name string, used map[rune]bool) rune {
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) && r < unicode.MaxASCII && !used[r] {
			used[r] = true
			return r
		}
	}
	for r := '0'; r <= '9'; r++ {
		if !used[r] {
			used[r] = true
			return r
		}
	}
	return '*'
}

// Place records a resolved cell. Cells outside the canvas are ignored.
func (c *Canvas) Place(x, y int, artwork wfc.ArtworkRef, rotation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	p := placed{set: true, symbol: '*', rotation: rotation}
	if sym, ok := c.symbols[artwork]; ok {
		p.symbol = sym
	}
	if base, ok := c.bases[artwork]; ok {
		rotated := base.Rotate(rotation / 90)
		copy(p.edges[:], rotated.Edges)
	}
	c.cells[y*c.width+x] = p
}

// MarkFailed flags (x, y) as the contradiction cell.
func (c *Canvas) MarkFailed(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
	c.failX, c.failY = x, y
}

// Reset clears every cell.
func (c *Canvas) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.cells {
		c.cells[i] = placed{}
	}
	c.failed = false
}

func (c *Canvas) CellResolved(ev wfc.ResolvedCell) {
	c.Place(ev.X, ev.Y, ev.Artwork, ev.Rotation)
}

func (c *Canvas) RunCompleted(wfc.Completion) {}

func (c *Canvas) RunFailed(f wfc.Failure) {
	c.MarkFailed(f.X, f.Y)
}

// Render returns the grid as text, three lines per grid row.
func (c *Canvas) Render() string {
	var b strings.Builder
	c.WriteTo(&b)
	return b.String()
}

// WriteTo writes the rendered grid to w.
func (c *Canvas) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(c.height * 3 * (c.width*cellWidth + 1))
	for y := 0; y < c.height; y++ {
		var top, mid, bot strings.Builder
		for x := 0; x < c.width; x++ {
			t, m, s := c.block(x, y)
			top.WriteString(t)
			mid.WriteString(m)
			bot.WriteString(s)
		}
		b.WriteString(strings.TrimRight(top.String(), " "))
		b.WriteByte('\n')
		b.WriteString(strings.TrimRight(mid.String(), " "))
		b.WriteByte('\n')
		b.WriteString(strings.TrimRight(bot.String(), " "))
		b.WriteByte('\n')
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (c *Canvas) block(x, y int) (string, string, string) {
	if c.failed && x == c.failX && y == c.failY {
		return "     ", " [X] ", "     "
	}
	p := c.cells[y*c.width+x]
	if !p.set {
		return "     ", " [?] ", "     "
	}
	n := edgeRune(p.edges[wfc.North])
	e := edgeRune(p.edges[wfc.East])
	s := edgeRune(p.edges[wfc.South])
	w := edgeRune(p.edges[wfc.West])
	top := fmt.Sprintf("  %c  ", n)
	mid := fmt.Sprintf("%c[%c]%c", w, p.symbol, e)
	bot := fmt.Sprintf("  %c %c", s, rotationGlyph(p.rotation))
	return top, mid, bot
}

// edgeRune is the centre rune of a marker, or space when empty.
func edgeRune(m wfc.EdgeMarker) rune {
	r := []rune(string(m))
	if len(r) == 0 {
		return ' '
	}
	return r[len(r)/2]
}

func rotationGlyph(rotation int) rune {
	switch ((rotation % 360) + 360) % 360 {
	case 90:
		return '>'
	case 180:
		return 'v'
	case 270:
		return '<'
	default:
		return '^'
	}
}

// Legend lists each tile symbol with its artwork, in palette order.
func (c *Canvas) Legend() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("Legend:\n")
	for _, art := range c.order {
		fmt.Fprintf(&b, "  [%c] %s\n", c.symbols[art], art)
	}
	b.WriteString("  [?] Unresolved\n")
	b.WriteString("  [X] Contradiction\n")
	b.WriteString("\n  Rotation: ^ 0  > 90  v 180  < 270\n")
	return b.String()
}

// Coverage returns how many cells have been placed, and the cell count.
func (c *Canvas) Coverage() (placedCells, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.cells {
		if p.set {
			placedCells++
		}
	}
	return placedCells, len(c.cells)
}
