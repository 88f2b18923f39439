package engine

import "sort"

// ColorBalance compares characters and seats for one color.
type ColorBalance struct {
	Color      Color `json:"color"`
	Characters int   `json:"characters"`
	Seats      int   `json:"seats"`
}

// Surplus is characters minus seats. A positive surplus must fit in the
// waiting area, or the level cannot be finished.
func (b ColorBalance) Surplus() int {
	return b.Characters - b.Seats
}

// CountByColor counts the characters a level spawns per color.
func CountByColor(level *LevelData) map[Color]int {
	counts := make(map[Color]int)
	labels, err := level.Labels()
	if err != nil {
		return counts
	}
	palette := level.PaletteOf()
	for _, c := range labels {
		if palette.Spawns(c) {
			counts[c]++
		}
	}
	return counts
}

// SeatsByColor sums vehicle capacity per color.
func SeatsByColor(level *LevelData) map[Color]int {
	seats := make(map[Color]int)
	for _, v := range level.Vehicles {
		seats[v.Color] += v.Capacity
	}
	return seats
}

// Balance returns the per-color balance sorted by color name.
func Balance(level *LevelData) []ColorBalance {
	counts := CountByColor(level)
	seats := SeatsByColor(level)

	colors := make(map[Color]bool)
	for c := range counts {
		colors[c] = true
	}
	for c := range seats {
		colors[c] = true
	}

	out := make([]ColorBalance, 0, len(colors))
	for c := range colors {
		out = append(out, ColorBalance{Color: c, Characters: counts[c], Seats: seats[c]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Color < out[j].Color })
	return out
}

// InitialRoutable lists the cells whose character can reach the boarding
// edge before any tap.
func InitialRoutable(level *LevelData) ([]Position, error) {
	e, err := NewEngine(level)
	if err != nil {
		return nil, err
	}
	return RoutableCells(e.grid), nil
}
