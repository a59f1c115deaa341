// Package tileset loads tile palettes: the base tile prototypes the solver
// expands into oriented variants.
package tileset

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

// TileDefinition represents one base tile in the palette file
type TileDefinition struct {
	Artwork string   `yaml:"artwork"`
	Edges   []string `yaml:"edges"` // north, east, south, west
}

// Palette represents the structure of a palette YAML file
type Palette struct {
	Name  string           `yaml:"name"`
	Tiles []TileDefinition `yaml:"tiles"`
}

// LoadFromYAML loads a palette from a YAML file
func LoadFromYAML(filename string) (*Palette, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read palette file: %w", err)
	}
	return Parse(data)
}

// Parse decodes palette YAML.
func Parse(data []byte) (*Palette, error) {
	var p Palette
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse palette YAML: %w", err)
	}
	if len(p.Tiles) == 0 {
		return nil, fmt.Errorf("palette %q has no tiles", p.Name)
	}
	return &p, nil
}

// Prototypes converts the palette into base tile prototypes. A tile without
// exactly four edges fails with wfc.ErrInvalidTileDefinition.
func (p *Palette) Prototypes() ([]wfc.TilePrototype, error) {
	out := make([]wfc.TilePrototype, 0, len(p.Tiles))
	for i, def := range p.Tiles {
		edges := make([]wfc.EdgeMarker, len(def.Edges))
		for j, e := range def.Edges {
			edges[j] = wfc.EdgeMarker(e)
		}
		tp := wfc.NewTilePrototype(wfc.ArtworkRef(def.Artwork), edges...)
		if err := tp.Validate(); err != nil {
			return nil, fmt.Errorf("palette %q tile %d: %w", p.Name, i, err)
		}
		out = append(out, tp)
	}
	return out, nil
}

// Expand validates the palette and builds the oriented tile set. With
// distinct set, rotationally symmetric variants are kept once.
func (p *Palette) Expand(distinct bool) (*wfc.OrientedTileSet, error) {
	protos, err := p.Prototypes()
	if err != nil {
		return nil, err
	}
	if distinct {
		return wfc.ExpandDistinct(protos)
	}
	return wfc.Expand(protos)
}

// Fingerprint returns a BLAKE2b-256 hex digest of the tile list. Tile order
// and every edge marker count; the palette name does not.
func (p *Palette) Fingerprint() string {
	var b strings.Builder
	for _, def := range p.Tiles {
		fmt.Fprintf(&b, "%d:%s", len(def.Artwork), def.Artwork)
		for _, e := range def.Edges {
			fmt.Fprintf(&b, "|%d:%s", len(e), e)
		}
		b.WriteByte('\n')
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Default returns the built-in road and river palette. Markers are three
// characters read clockwise along the edge: G grass, R road, W water.
func Default() *Palette {
	return &Palette{
		Name: "roads",
		Tiles: []TileDefinition{
			{Artwork: "grass", Edges: []string{"GGG", "GGG", "GGG", "GGG"}},
			{Artwork: "road_straight", Edges: []string{"GRG", "GGG", "GRG", "GGG"}},
			{Artwork: "road_bend", Edges: []string{"GRG", "GRG", "GGG", "GGG"}},
			{Artwork: "road_tee", Edges: []string{"GRG", "GRG", "GGG", "GRG"}},
			{Artwork: "road_cross", Edges: []string{"GRG", "GRG", "GRG", "GRG"}},
			{Artwork: "river", Edges: []string{"GWG", "GGG", "GWG", "GGG"}},
			{Artwork: "bridge", Edges: []string{"GWG", "GRG", "GWG", "GRG"}},
		},
	}
}
