// Command analyze prints quick, human-readable heuristics about level files:
// per-color passenger and seat balance, the passengers that can be tapped
// before anything moves, and how much slack the waiting area leaves.
//
//	go run ./cmd/analyze                 # every level in ./levels
//	go run ./cmd/analyze levels/level_3.json
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/wricardo/mcp-training/busjam/game/engine"
)

// LevelAnalysis is the summary printed for one level.
type LevelAnalysis struct {
	File            string
	Level           *engine.LevelData
	Balance         []engine.ColorBalance
	Routable        []engine.Position
	Passengers      int
	Seats           int
	WaitingCapacity int
}

// Surplus is the number of passengers without a seat.
func (a *LevelAnalysis) Surplus() int {
	n := 0
	for _, b := range a.Balance {
		if s := b.Surplus(); s > 0 {
			n += s
		}
	}
	return n
}

// Stalled lists colors whose vehicles can never fill.
func (a *LevelAnalysis) Stalled() []engine.Color {
	var out []engine.Color
	for _, b := range a.Balance {
		if b.Seats > b.Characters {
			out = append(out, b.Color)
		}
	}
	return out
}

func main() {
	files := os.Args[1:]
	if len(files) == 0 {
		var err error
		files, err = filepath.Glob(filepath.Join("levels", "*.json"))
		if err != nil || len(files) == 0 {
			fmt.Println("No level files found in ./levels")
			os.Exit(1)
		}
		sort.Strings(files)
	}

	failed := false
	for _, file := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(file))
		analysis, err := analyzeLevel(file)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			failed = true
			continue
		}
		printAnalysis(os.Stdout, analysis)
	}
	if failed {
		os.Exit(1)
	}
}

func analyzeLevel(path string) (*LevelAnalysis, error) {
	level, err := engine.LoadLevel(path)
	if err != nil {
		return nil, err
	}

	routable, err := engine.InitialRoutable(level)
	if err != nil {
		return nil, err
	}

	analysis := &LevelAnalysis{
		File:            filepath.Base(path),
		Level:           level,
		Balance:         engine.Balance(level),
		Routable:        routable,
		WaitingCapacity: level.WaitingCapacity,
	}
	for _, b := range analysis.Balance {
		analysis.Passengers += b.Characters
		analysis.Seats += b.Seats
	}
	return analysis, nil
}

func printAnalysis(w io.Writer, a *LevelAnalysis) {
	level := a.Level
	fmt.Fprintf(w, "Name: %s (#%d)\n", level.Name, level.Number)
	fmt.Fprintf(w, "Grid: %d x %d\n", level.Width, level.Height)
	fmt.Fprintf(w, "Passengers: %d, Seats: %d, Vehicles: %d\n", a.Passengers, a.Seats, len(level.Vehicles))
	fmt.Fprintf(w, "Waiting slots: %d\n", a.WaitingCapacity)
	if level.TimeLimit > 0 {
		fmt.Fprintf(w, "Time limit: %ds\n", level.TimeLimit)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  COLOR\tPASSENGERS\tSEATS\tSURPLUS")
	for _, b := range a.Balance {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%+d\n", b.Color, b.Characters, b.Seats, b.Surplus())
	}
	tw.Flush()

	fmt.Fprintf(w, "Tappable at start: %d", len(a.Routable))
	for i, p := range a.Routable {
		if i == 8 {
			fmt.Fprintf(w, " ... and %d more", len(a.Routable)-8)
			break
		}
		fmt.Fprintf(w, " %s", p)
	}
	fmt.Fprintln(w)

	if stalled := a.Stalled(); len(stalled) > 0 {
		fmt.Fprintf(w, "⚠️  CRITICAL: vehicles that can never fill: %v\n", stalled)
	}
	if surplus := a.Surplus(); surplus > a.WaitingCapacity {
		fmt.Fprintf(w, "⚠️  WARNING: %d passengers have no seat but only %d waiting slots exist\n", surplus, a.WaitingCapacity)
	} else {
		fmt.Fprintf(w, "✅ Waiting slack: %d of %d slots free after every seat is taken\n", a.WaitingCapacity-surplus, a.WaitingCapacity)
	}
	if len(a.Routable) == 0 {
		fmt.Fprintln(w, "⚠️  CRITICAL: no passenger can reach the stop")
	}
}
