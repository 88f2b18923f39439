package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidLevel wraps every level validation failure.
var ErrInvalidLevel = errors.New("invalid level")

// LevelError names the offending field of a malformed level.
type LevelError struct {
	Field  string
	Reason string
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("level validation: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidLevel.
func (e *LevelError) Unwrap() error {
	return ErrInvalidLevel
}

// VehicleSpec is one vehicle as authored in a level file.
type VehicleSpec struct {
	Color    Color `json:"color"`
	Capacity int   `json:"capacity"`
	Order    int   `json:"order"`
}

// LevelData is the read-only level description. Cells are row-major:
// NodeColors[y*Width+x]. Layout is an authoring shorthand of palette symbols,
// one string per row with '.' for empty cells, used when NodeColors is absent.
type LevelData struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Number          int            `json:"number"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	NodeColors      []Color        `json:"node_colors,omitempty"`
	Layout          []string       `json:"layout,omitempty"`
	Vehicles        []VehicleSpec  `json:"vehicles"`
	WaitingCapacity int            `json:"waiting_capacity"`
	TimeLimit       int            `json:"time_limit"`
	Palette         []PaletteEntry `json:"palette,omitempty"`
}

// PaletteOf returns the palette the level declares, or the default one.
func (l *LevelData) PaletteOf() Palette {
	return NewPalette(l.Palette)
}

// Labels returns the row-major cell labels, expanding Layout when NodeColors
// is empty.
func (l *LevelData) Labels() ([]Color, error) {
	if len(l.NodeColors) > 0 || len(l.Layout) == 0 {
		return l.NodeColors, nil
	}

	bySymbol := make(map[rune]Color)
	for _, e := range l.PaletteOf().Entries() {
		for _, r := range e.Symbol {
			bySymbol[r] = e.Name
			break
		}
	}

	labels := make([]Color, 0, l.Width*l.Height)
	for y, row := range l.Layout {
		if len([]rune(row)) != l.Width {
			return nil, &LevelError{Field: "layout", Reason: fmt.Sprintf("row %d has %d cells, want %d", y, len([]rune(row)), l.Width)}
		}
		for x, r := range row {
			if r == '.' || r == ' ' {
				labels = append(labels, EmptyColor)
				continue
			}
			c, ok := bySymbol[r]
			if !ok {
				return nil, &LevelError{Field: "layout", Reason: fmt.Sprintf("unknown symbol %q at (%d,%d)", r, x, y)}
			}
			labels = append(labels, c)
		}
	}
	return labels, nil
}

// ValidateLevel checks a level before simulation. The returned error is a
// *LevelError wrapping ErrInvalidLevel.
func ValidateLevel(l *LevelData) error {
	if l == nil {
		return &LevelError{Field: "level", Reason: "is nil"}
	}
	if l.Name == "" {
		return &LevelError{Field: "name", Reason: "is required"}
	}
	if l.Number < 0 {
		return &LevelError{Field: "number", Reason: fmt.Sprintf("must be >= 0, got %d", l.Number)}
	}
	if l.Width < MinGridSize || l.Width > MaxGridSize {
		return &LevelError{Field: "width", Reason: fmt.Sprintf("must be between %d and %d, got %d", MinGridSize, MaxGridSize, l.Width)}
	}
	if l.Height < MinGridSize || l.Height > MaxGridSize {
		return &LevelError{Field: "height", Reason: fmt.Sprintf("must be between %d and %d, got %d", MinGridSize, MaxGridSize, l.Height)}
	}

	seen := make(map[Color]bool)
	for i, e := range l.Palette {
		if e.Name == EmptyColor {
			return &LevelError{Field: "palette", Reason: fmt.Sprintf("entry %d has no name", i)}
		}
		if seen[e.Name] {
			return &LevelError{Field: "palette", Reason: fmt.Sprintf("duplicate entry %q", e.Name)}
		}
		seen[e.Name] = true
	}
	palette := l.PaletteOf()

	labels, err := l.Labels()
	if err != nil {
		return err
	}
	if len(labels) != l.Width*l.Height {
		return &LevelError{Field: "node_colors", Reason: fmt.Sprintf("has %d entries, want width*height = %d", len(labels), l.Width*l.Height)}
	}
	spawning := 0
	for i, c := range labels {
		if c == EmptyColor {
			continue
		}
		if !palette.Known(c) {
			return &LevelError{Field: "node_colors", Reason: fmt.Sprintf("unknown color %q at index %d", c, i)}
		}
		if palette.Spawns(c) {
			spawning++
		}
	}
	if spawning == 0 {
		return &LevelError{Field: "node_colors", Reason: "no cell spawns a character"}
	}

	if len(l.Vehicles) == 0 {
		return &LevelError{Field: "vehicles", Reason: "at least one vehicle is required"}
	}
	if len(l.Vehicles) > MaxVehicles {
		return &LevelError{Field: "vehicles", Reason: fmt.Sprintf("at most %d vehicles, got %d", MaxVehicles, len(l.Vehicles))}
	}
	for i, v := range l.Vehicles {
		if v.Capacity < 1 || v.Capacity > MaxVehicleCapacity {
			return &LevelError{Field: fmt.Sprintf("vehicles[%d].capacity", i), Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxVehicleCapacity, v.Capacity)}
		}
		if !palette.Spawns(v.Color) {
			return &LevelError{Field: fmt.Sprintf("vehicles[%d].color", i), Reason: fmt.Sprintf("%q is not a boardable color", v.Color)}
		}
	}

	if l.WaitingCapacity < 0 || l.WaitingCapacity > MaxWaitingCapacity {
		return &LevelError{Field: "waiting_capacity", Reason: fmt.Sprintf("must be between 0 and %d, got %d", MaxWaitingCapacity, l.WaitingCapacity)}
	}
	if l.TimeLimit < 0 || l.TimeLimit > MaxTimeLimit {
		return &LevelError{Field: "time_limit", Reason: fmt.Sprintf("must be between 0 and %d seconds, got %d", MaxTimeLimit, l.TimeLimit)}
	}

	return nil
}

// ParseLevel decodes and validates a level from JSON.
func ParseLevel(data []byte) (*LevelData, error) {
	var level LevelData
	if err := json.Unmarshal(data, &level); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	if err := ValidateLevel(&level); err != nil {
		return nil, err
	}
	return &level, nil
}

// LoadLevel reads and validates a level file.
func LoadLevel(filename string) (*LevelData, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	level, err := ParseLevel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return level, nil
}

// DefaultLevel is a small built-in level used when no catalogue is available.
func DefaultLevel() *LevelData {
	return &LevelData{
		Name:        "default",
		Description: "Two colors, four buses, a three-slot waiting area.",
		Number:      1,
		Width:       4,
		Height:      4,
		Layout: []string{
			"RBRB",
			"BRBR",
			"RRBB",
			"BBRR",
		},
		Vehicles: []VehicleSpec{
			{Color: "Red", Capacity: 4, Order: 1},
			{Color: "Blue", Capacity: 4, Order: 2},
			{Color: "Red", Capacity: 4, Order: 3},
			{Color: "Blue", Capacity: 4, Order: 4},
		},
		WaitingCapacity: 3,
		TimeLimit:       60,
	}
}

// cloneLevel copies the mutable slices so callers cannot alter an engine's level.
func cloneLevel(l *LevelData) *LevelData {
	c := *l
	c.NodeColors = append([]Color(nil), l.NodeColors...)
	c.Layout = append([]string(nil), l.Layout...)
	c.Vehicles = append([]VehicleSpec(nil), l.Vehicles...)
	c.Palette = append([]PaletteEntry(nil), l.Palette...)
	return &c
}
