package tileset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

const samplePalette = `name: sample
tiles:
  - artwork: grass.png
    edges: ["G", "G", "G", "G"]
  - artwork: road.png
    edges: ["GRG", "G", "GRG", "G"]
`

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palette.yaml")
	if err := os.WriteFile(path, []byte(samplePalette), 0644); err != nil {
		t.Fatalf("Failed to write palette: %v", err)
	}

	p, err := LoadFromYAML(path)
	if err != nil {
		t.Fatalf("LoadFromYAML failed: %v", err)
	}
	if p.Name != "sample" {
		t.Errorf("Name = %q, want %q", p.Name, "sample")
	}
	if len(p.Tiles) != 2 {
		t.Fatalf("len(Tiles) = %d, want 2", len(p.Tiles))
	}
	if p.Tiles[1].Edges[0] != "GRG" {
		t.Errorf("road north edge = %q, want %q", p.Tiles[1].Edges[0], "GRG")
	}
}

func TestLoadFromYAMLMissingFile(t *testing.T) {
	if _, err := LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("tiles: [")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
	if _, err := Parse([]byte("name: empty\ntiles: []\n")); err == nil {
		t.Error("Expected error for palette without tiles")
	}
}

func TestPrototypes(t *testing.T) {
	p, err := Parse([]byte(samplePalette))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	protos, err := p.Prototypes()
	if err != nil {
		t.Fatalf("Prototypes failed: %v", err)
	}
	if len(protos) != 2 {
		t.Fatalf("len(protos) = %d, want 2", len(protos))
	}
	if protos[1].Artwork != "road.png" {
		t.Errorf("Artwork = %q, want %q", protos[1].Artwork, "road.png")
	}
	if protos[1].Edge(wfc.South) != "GRG" {
		t.Errorf("south edge = %q, want %q", protos[1].Edge(wfc.South), "GRG")
	}
}

func TestPrototypesInvalidTile(t *testing.T) {
	p := &Palette{Name: "bad", Tiles: []TileDefinition{
		{Artwork: "ok", Edges: []string{"A", "A", "A", "A"}},
		{Artwork: "three", Edges: []string{"A", "A", "A"}},
	}}
	_, err := p.Prototypes()
	if !errors.Is(err, wfc.ErrInvalidTileDefinition) {
		t.Fatalf("err = %v, want ErrInvalidTileDefinition", err)
	}
	if _, err := p.Expand(true); !errors.Is(err, wfc.ErrInvalidTileDefinition) {
		t.Errorf("Expand err = %v, want ErrInvalidTileDefinition", err)
	}
}

func TestExpand(t *testing.T) {
	p, err := Parse([]byte(samplePalette))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	all, err := p.Expand(false)
	if err != nil {
		t.Fatalf("Expand(false) failed: %v", err)
	}
	if all.Len() != 8 {
		t.Errorf("Expand(false).Len() = %d, want 8", all.Len())
	}

	distinct, err := p.Expand(true)
	if err != nil {
		t.Fatalf("Expand(true) failed: %v", err)
	}
	// grass once, road twice
	if distinct.Len() != 3 {
		t.Errorf("Expand(true).Len() = %d, want 3", distinct.Len())
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := Parse([]byte(samplePalette))
	b, _ := Parse([]byte(samplePalette))
	b.Name = "renamed"

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Fingerprint should ignore palette name")
	}
	if len(a.Fingerprint()) != 64 {
		t.Errorf("Fingerprint length = %d, want 64", len(a.Fingerprint()))
	}

	b.Tiles[1].Edges[1] = "GG"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Fingerprint should change when an edge changes")
	}

	// Field boundaries are length-prefixed, so shifting text between
	// fields changes the digest.
	c := &Palette{Tiles: []TileDefinition{{Artwork: "ab", Edges: []string{"c", "d", "e", "f"}}}}
	d := &Palette{Tiles: []TileDefinition{{Artwork: "a", Edges: []string{"bc", "d", "e", "f"}}}}
	if c.Fingerprint() == d.Fingerprint() {
		t.Error("Fingerprint should not collide across field boundaries")
	}
}

func TestDefaultPaletteIsValid(t *testing.T) {
	set, err := Default().Expand(true)
	if err != nil {
		t.Fatalf("Default palette failed to expand: %v", err)
	}
	if set.Len() == 0 {
		t.Error("Default palette expanded to no tiles")
	}
}

func TestShippedPalettes(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "data", "palettes", "*.yaml"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(paths) == 0 {
		t.Skip("no shipped palettes")
	}
	for _, path := range paths {
		p, err := LoadFromYAML(path)
		if err != nil {
			t.Errorf("%s: %v", path, err)
			continue
		}
		if _, err := p.Expand(true); err != nil {
			t.Errorf("%s: Expand failed: %v", path, err)
		}
	}
}
