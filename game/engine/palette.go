package engine

import (
	"strings"
	"unicode/utf8"
)

// PaletteEntry describes one color label a level may use.
type PaletteEntry struct {
	Name       Color  `json:"name"`
	Symbol     string `json:"symbol,omitempty"`
	Decorative bool   `json:"decorative,omitempty"` // decorative labels never spawn characters
}

// Palette maps labels to their entries.
type Palette struct {
	entries map[Color]PaletteEntry
	order   []Color
}

// DefaultPaletteEntries is used when a level declares no palette.
var DefaultPaletteEntries = []PaletteEntry{
	{Name: "Red", Symbol: "R"},
	{Name: "Blue", Symbol: "B"},
	{Name: "Green", Symbol: "G"},
	{Name: "Yellow", Symbol: "Y"},
	{Name: "Purple", Symbol: "P"},
	{Name: "Orange", Symbol: "O"},
	{Name: "Pink", Symbol: "K"},
	{Name: "Cyan", Symbol: "C"},
	{Name: "Gray", Symbol: "#", Decorative: true},
}

// NewPalette builds a palette from entries. Missing symbols fall back to the
// upper-cased first letter of the name.
func NewPalette(entries []PaletteEntry) Palette {
	if len(entries) == 0 {
		entries = DefaultPaletteEntries
	}
	p := Palette{
		entries: make(map[Color]PaletteEntry, len(entries)),
		order:   make([]Color, 0, len(entries)),
	}
	for _, e := range entries {
		if e.Symbol == "" && e.Name != "" {
			first, _ := utf8.DecodeRuneInString(string(e.Name))
			e.Symbol = strings.ToUpper(string(first))
		}
		if _, dup := p.entries[e.Name]; !dup {
			p.order = append(p.order, e.Name)
		}
		p.entries[e.Name] = e
	}
	return p
}

// Known reports whether the label is declared in the palette.
func (p Palette) Known(c Color) bool {
	_, ok := p.entries[c]
	return ok
}

// Spawns reports whether a cell with this label receives a character.
func (p Palette) Spawns(c Color) bool {
	if c == EmptyColor {
		return false
	}
	e, ok := p.entries[c]
	return ok && !e.Decorative
}

// Symbol returns the single-character board symbol for a label.
func (p Palette) Symbol(c Color) string {
	if e, ok := p.entries[c]; ok && e.Symbol != "" {
		return e.Symbol
	}
	return "?"
}

// Entries returns the palette in declaration order.
func (p Palette) Entries() []PaletteEntry {
	out := make([]PaletteEntry, 0, len(p.order))
	for _, c := range p.order {
		out = append(out, p.entries[c])
	}
	return out
}
