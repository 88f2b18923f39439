package validate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validLevel = `{
	"name": "Two Colors",
	"number": 1,
	"width": 3,
	"height": 2,
	"layout": ["RBR", "BRB"],
	"vehicles": [
		{"color": "Red", "capacity": 3, "order": 1},
		{"color": "Blue", "capacity": 3, "order": 2}
	],
	"waiting_capacity": 3,
	"time_limit": 60
}`

func writeLevel(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write level: %v", err)
	}
	return path
}

func TestFile_Valid(t *testing.T) {
	path := writeLevel(t, t.TempDir(), "level_1.json", validLevel)

	result := File(path)
	if !result.Valid {
		t.Fatalf("Expected valid level, got errors: %v", result.Errors)
	}
	if result.File != "level_1.json" {
		t.Errorf("Expected base file name, got %s", result.File)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Balanced level should have no warnings: %v", result.Warnings)
	}

	info := strings.Join(result.Info, "\n")
	for _, want := range []string{"Level 1: Two Colors", "Grid: 3x2", "Passengers: 6, vehicles: 2", "Tappable at start: 3", "Time limit: 60s"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in info, got:\n%s", want, info)
		}
	}
}

func TestFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "not json",
			content: `{"name":`,
			want:    "invalid level",
		},
		{
			name:    "missing vehicles",
			content: `{"name":"x","width":1,"height":1,"layout":["R"],"vehicles":[],"waiting_capacity":1}`,
			want:    "vehicles",
		},
		{
			name: "vehicle never fills",
			content: `{"name":"x","width":2,"height":1,"layout":["RR"],
				"vehicles":[{"color":"Red","capacity":3,"order":1}],"waiting_capacity":1}`,
			want: "can never fill",
		},
		{
			name: "nobody can move",
			content: `{"name":"x","width":1,"height":2,"layout":["#","R"],
				"vehicles":[{"color":"Red","capacity":1,"order":1}],"waiting_capacity":1}`,
			want: "No passenger can reach the stop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := File(writeLevel(t, t.TempDir(), "level.json", tt.content))
			if result.Valid {
				t.Fatal("Expected invalid level")
			}
			if !strings.Contains(strings.Join(result.Errors, "\n"), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, result.Errors)
			}
		})
	}
}

func TestFile_SurplusWarnings(t *testing.T) {
	content := `{"name":"x","width":4,"height":1,"layout":["RRRB"],
		"vehicles":[{"color":"Red","capacity":1,"order":1},{"color":"Blue","capacity":1,"order":2}],
		"waiting_capacity":1}`

	result := File(writeLevel(t, t.TempDir(), "level.json", content))
	if !result.Valid {
		t.Fatalf("Surplus passengers should only warn: %v", result.Errors)
	}

	warnings := strings.Join(result.Warnings, "\n")
	if !strings.Contains(warnings, "Red: 3 passengers but only 1 seats") {
		t.Errorf("Expected per-color warning, got %v", result.Warnings)
	}
	if !strings.Contains(warnings, "2 passengers have no seat but the waiting area holds 1") {
		t.Errorf("Expected waiting area warning, got %v", result.Warnings)
	}
}

func TestFile_Missing(t *testing.T) {
	result := File(filepath.Join(t.TempDir(), "missing.json"))
	if result.Valid || !strings.Contains(result.Errors[0], "Failed to read file") {
		t.Errorf("Expected read failure, got %+v", result)
	}
}

func TestDirAndReport(t *testing.T) {
	dir := t.TempDir()
	writeLevel(t, dir, "level_2.json", `{"name":"broken"}`)
	writeLevel(t, dir, "level_1.json", validLevel)
	writeLevel(t, dir, "notes.txt", "ignored")

	results, err := Dir(dir)
	if err != nil {
		t.Fatalf("Dir failed: %v", err)
	}
	if len(results) != 2 || results[0].File != "level_1.json" {
		t.Fatalf("Expected 2 sorted results, got %+v", results)
	}

	var buf bytes.Buffer
	if Report(&buf, results) {
		t.Error("Report should fail when one level is invalid")
	}
	out := buf.String()
	if !strings.Contains(out, "✅ VALID") || !strings.Contains(out, "❌ INVALID") || !strings.Contains(out, "Some levels have errors") {
		t.Errorf("Unexpected report:\n%s", out)
	}

	buf.Reset()
	if !Report(&buf, results[:1]) {
		t.Error("Report should pass for valid levels only")
	}
}

func TestDir_Empty(t *testing.T) {
	if _, err := Dir(t.TempDir()); err == nil {
		t.Error("Expected error for a directory without levels")
	}
}
