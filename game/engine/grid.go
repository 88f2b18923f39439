package engine

import (
	"fmt"
	"strings"
)

// Cell is one grid square. A cell is occupied iff it holds an occupant.
type Cell struct {
	Pos      Position
	Color    Color
	occupant *Character
}

// Occupied reports whether a character stands on the cell.
func (c *Cell) Occupied() bool {
	return c.occupant != nil
}

// Occupant returns the character on the cell, or nil.
func (c *Cell) Occupant() *Character {
	return c.occupant
}

// Grid owns the occupancy map, indexed [y][x].
type Grid struct {
	width   int
	height  int
	cells   [][]*Cell
	palette Palette
}

// NewGrid builds a grid from row-major labels (labels[y*width+x]). Callers
// pass validated level data; a length mismatch panics.
func NewGrid(width, height int, labels []Color, palette Palette) *Grid {
	if width <= 0 || height <= 0 || len(labels) != width*height {
		panic(fmt.Sprintf("engine: grid %dx%d needs %d labels, got %d", width, height, width*height, len(labels)))
	}

	cells := make([][]*Cell, height)
	for y := 0; y < height; y++ {
		cells[y] = make([]*Cell, width)
		for x := 0; x < width; x++ {
			cells[y][x] = &Cell{
				Pos:   Position{X: x, Y: y},
				Color: labels[y*width+x],
			}
		}
	}

	return &Grid{
		width:   width,
		height:  height,
		cells:   cells,
		palette: palette,
	}
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Palette returns the palette the grid was built with.
func (g *Grid) Palette() Palette { return g.palette }

// InBounds checks if the coordinate lies on the grid.
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.width && p.Y >= 0 && p.Y < g.height
}

// Get returns the cell at p, or nil when p is out of bounds.
func (g *Grid) Get(p Position) *Cell {
	if !g.InBounds(p) {
		return nil
	}
	return g.cells[p.Y][p.X]
}

// SetOccupied mutates occupancy unconditionally. Callers validate the
// transition; violating the cell invariant is a programming error and panics.
func (g *Grid) SetOccupied(p Position, occupied bool, occupant *Character) {
	cell := g.Get(p)
	if cell == nil {
		panic(fmt.Sprintf("engine: SetOccupied out of bounds at %s", p))
	}
	if !occupied {
		cell.occupant = nil
		return
	}
	if occupant == nil {
		panic(fmt.Sprintf("engine: SetOccupied(%s, true) without occupant", p))
	}
	if !g.palette.Spawns(cell.Color) {
		panic(fmt.Sprintf("engine: cell %s with label %q cannot be occupied", p, cell.Color))
	}
	cell.occupant = occupant
}

// IsBoardableRow reports whether p lies on the boarding edge.
func (g *Grid) IsBoardableRow(p Position) bool {
	return g.InBounds(p) && p.Y == BoardingRow
}

// IsBoardingTarget reports whether a path may end at p: boarding row, free,
// and a spawning label.
func (g *Grid) IsBoardingTarget(p Position) bool {
	cell := g.Get(p)
	return cell != nil && p.Y == BoardingRow && !cell.Occupied() && g.palette.Spawns(cell.Color)
}

// Spawns reports whether the cell's label spawns characters.
func (g *Grid) Spawns(p Position) bool {
	cell := g.Get(p)
	return cell != nil && g.palette.Spawns(cell.Color)
}

// Neighbors returns the in-bounds four-directional neighbors of p in
// up, down, left, right order.
func (g *Grid) Neighbors(p Position) []*Cell {
	out := make([]*Cell, 0, len(neighborOffsets))
	for _, d := range neighborOffsets {
		if cell := g.Get(p.add(d)); cell != nil {
			out = append(out, cell)
		}
	}
	return out
}

// OccupiedCount returns the number of occupied cells.
func (g *Grid) OccupiedCount() int {
	count := 0
	g.each(func(c *Cell) {
		if c.Occupied() {
			count++
		}
	})
	return count
}

// Occupants returns every character on the grid in row-major order.
func (g *Grid) Occupants() []*Character {
	var out []*Character
	g.each(func(c *Cell) {
		if c.Occupied() {
			out = append(out, c.occupant)
		}
	})
	return out
}

// Rows renders the grid as text: occupied cells show their palette symbol,
// free cells '.', and non-spawning cells ' '.
func (g *Grid) Rows() []string {
	rows := make([]string, 0, g.height)
	for y := 0; y < g.height; y++ {
		var b strings.Builder
		for x := 0; x < g.width; x++ {
			b.WriteString(g.symbolAt(g.cells[y][x]))
		}
		rows = append(rows, b.String())
	}
	return rows
}

func (g *Grid) symbolAt(c *Cell) string {
	switch {
	case c.Occupied():
		return g.palette.Symbol(c.occupant.Color)
	case !g.palette.Spawns(c.Color):
		return " "
	default:
		return "."
	}
}

func (g *Grid) each(fn func(*Cell)) {
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			fn(g.cells[y][x])
		}
	}
}
