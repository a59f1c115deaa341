package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

const (
	unresolvedCell = "?"
	failedCell     = "X"
)

// GridYAML represents a solved grid in YAML format
type GridYAML struct {
	Seed          uint64     `yaml:"seed"`
	Palette       string     `yaml:"palette"`
	Fingerprint   string     `yaml:"fingerprint"`
	Width         int        `yaml:"width"`
	Height        int        `yaml:"height"`
	State         string     `yaml:"state"`
	Collapsed     int        `yaml:"collapsed"`
	ElapsedMS     int64      `yaml:"elapsed_ms"`
	Contradiction *CellYAML  `yaml:"contradiction,omitempty"`
	Cells         [][]string `yaml:"cells"`
}

// CellYAML is a grid coordinate
type CellYAML struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// cellLabel formats a placed tile as artwork@rotation.
func cellLabel(artwork wfc.ArtworkRef, rotation int) string {
	return string(artwork) + "@" + strconv.Itoa(rotation)
}

// WriteGridYAML writes a grid to a YAML file
func WriteGridYAML(grid *GridYAML, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "# Grid %dx%d - %s palette\n", grid.Width, grid.Height, grid.Palette)
	fmt.Fprintf(f, "# Generated with seed: %d\n", grid.Seed)
	fmt.Fprintf(f, "# Collapsed: %d/%d (%s)\n\n", grid.Collapsed, grid.Width*grid.Height, grid.State)

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	defer encoder.Close()

	// Rows are written in flow style so each grid row stays on one line.
	ordered := &orderedGridYAML{
		Seed:          grid.Seed,
		Palette:       grid.Palette,
		Fingerprint:   grid.Fingerprint,
		Width:         grid.Width,
		Height:        grid.Height,
		State:         grid.State,
		Collapsed:     grid.Collapsed,
		ElapsedMS:     grid.ElapsedMS,
		Contradiction: grid.Contradiction,
		Cells:         rowsNode(grid.Cells),
	}

	if err := encoder.Encode(ordered); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}

// orderedGridYAML is used for serialization with flow-style rows
type orderedGridYAML struct {
	Seed          uint64    `yaml:"seed"`
	Palette       string    `yaml:"palette"`
	Fingerprint   string    `yaml:"fingerprint"`
	Width         int       `yaml:"width"`
	Height        int       `yaml:"height"`
	State         string    `yaml:"state"`
	Collapsed     int       `yaml:"collapsed"`
	ElapsedMS     int64     `yaml:"elapsed_ms"`
	Contradiction *CellYAML `yaml:"contradiction,omitempty"`
	Cells         yaml.Node `yaml:"cells"`
}

// rowsNode returns the cell rows as a sequence of flow sequences
func rowsNode(rows [][]string) yaml.Node {
	node := yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rows {
		rowNode := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, cell := range row {
			rowNode.Content = append(rowNode.Content, &yaml.Node{
				Kind:  yaml.ScalarNode,
				Tag:   "!!str",
				Value: cell,
			})
		}
		node.Content = append(node.Content, rowNode)
	}
	return node
}

// ReadGridYAML loads a grid written by WriteGridYAML
func ReadGridYAML(path string) (*GridYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var grid GridYAML
	if err := yaml.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &grid, nil
}
