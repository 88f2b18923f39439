// Package validate checks level files before they are served. Beyond the
// structural rules enforced by engine.ParseLevel it reports:
//   - colors whose vehicles have more seats than there are passengers, which
//     leaves a vehicle that can never fill
//   - colors with more passengers than seats, when the surplus cannot fit in
//     the waiting area
//   - levels where no passenger can reach the stop before the first tap
package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/mcp-training/busjam/game/engine"
)

// Result captures the outcome of validating a single file. Info holds
// summary lines for valid levels; Warnings never make a level invalid.
type Result struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Info     []string `json:"info,omitempty"`
}

func (r *Result) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// File loads and validates one level file.
func File(path string) Result {
	result := Result{File: filepath.Base(path), Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	level, err := engine.ParseLevel(data)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	Level(level, &result)
	return result
}

// Level runs the playability checks on an already parsed level.
func Level(level *engine.LevelData, result *Result) {
	surplus := 0
	for _, b := range engine.Balance(level) {
		switch {
		case b.Seats > b.Characters:
			result.fail("%s: %d seats but only %d passengers; a %s vehicle can never fill", b.Color, b.Seats, b.Characters, b.Color)
		case b.Characters > b.Seats:
			surplus += b.Surplus()
			result.warn("%s: %d passengers but only %d seats", b.Color, b.Characters, b.Seats)
		}
	}
	if surplus > level.WaitingCapacity {
		result.warn("%d passengers have no seat but the waiting area holds %d", surplus, level.WaitingCapacity)
	}

	routable, err := engine.InitialRoutable(level)
	if err != nil {
		result.fail("%v", err)
		return
	}
	if len(routable) == 0 {
		result.fail("No passenger can reach the stop before the first tap")
	}

	if !result.Valid {
		return
	}

	result.Info = append(result.Info,
		fmt.Sprintf("✓ Level %d: %s", level.Number, level.Name),
		fmt.Sprintf("✓ Grid: %dx%d", level.Width, level.Height),
		fmt.Sprintf("✓ Passengers: %d, vehicles: %d", countPassengers(level), len(level.Vehicles)),
		fmt.Sprintf("✓ Tappable at start: %d", len(routable)),
		fmt.Sprintf("✓ Waiting slots: %d", level.WaitingCapacity),
	)
	if level.TimeLimit > 0 {
		result.Info = append(result.Info, fmt.Sprintf("✓ Time limit: %ds", level.TimeLimit))
	}
}

func countPassengers(level *engine.LevelData) int {
	n := 0
	for _, c := range engine.CountByColor(level) {
		n += c
	}
	return n
}

// Dir validates every *.json file in dir, sorted by name.
func Dir(dir string) ([]Result, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("error finding level files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no level files in %s", dir)
	}
	sort.Strings(files)

	results := make([]Result, 0, len(files))
	for _, file := range files {
		results = append(results, File(file))
	}
	return results, nil
}

// Report prints a concise report and reports whether every level is valid.
func Report(w io.Writer, results []Result) bool {
	allValid := true
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Info {
				fmt.Fprintln(w, "  "+info)
			}
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				fmt.Fprintln(w, "  ❌ "+err)
			}
		}
		for _, warning := range result.Warnings {
			fmt.Fprintln(w, "  ⚠️  "+warning)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All levels are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some levels have errors")
	}
	return allValid
}
