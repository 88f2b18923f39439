package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/api"
	"github.com/wricardo/mcp-training/busjam/game/config"
	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/game/service"
	"github.com/wricardo/mcp-training/busjam/game/session"
)

func testLevel() *engine.LevelData {
	return &engine.LevelData{
		Name:            "MCP",
		Number:          1,
		Width:           3,
		Height:          2,
		Layout:          []string{"RBR", "BRB"},
		Vehicles:        []engine.VehicleSpec{{Color: "Red", Capacity: 3, Order: 1}, {Color: "Blue", Capacity: 3, Order: 2}},
		WaitingCapacity: 3,
		TimeLimit:       30,
	}
}

// newAPIServer runs the real REST API over a fresh level directory.
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	levelDir := t.TempDir()
	data, _ := json.Marshal(testLevel())
	if err := os.WriteFile(filepath.Join(levelDir, "level_1.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	levels, err := config.NewManager(levelDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create level catalogue: %v", err)
	}

	svc := service.NewGameService(session.NewManager(zerolog.Nop()), levels)
	server := httptest.NewServer(api.NewServer(svc, nil, zerolog.Nop()))
	t.Cleanup(server.Close)
	return server
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()

	request := mcp.CallToolRequest{}
	request.Params.Arguments = args

	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("tool handler returned error: %v", err)
	}
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text, result.IsError
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/", zerolog.Nop())

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash to be trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "abcd"})
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())

	var response map[string]any
	if err := client.apiCall(context.Background(), "GET", "/api", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["id"] != "abcd" {
		t.Errorf("Expected id abcd, got %v", response["id"])
	}
}

func TestClient_apiCall_Errors(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", zerolog.Nop())
		if err := client.apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
			t.Error("Expected error for unreachable server")
		}
	})

	t.Run("status without body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := NewClient(server.URL, zerolog.Nop()).apiCall(context.Background(), "GET", "/api", nil, nil)
		if err == nil || !strings.Contains(err.Error(), "API error: 500") {
			t.Errorf("Expected 'API error: 500', got: %v", err)
		}
	})

	t.Run("error message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "game already started"})
		}))
		defer server.Close()

		err := NewClient(server.URL, zerolog.Nop()).apiCall(context.Background(), "POST", "/api", nil, nil)
		if err == nil || err.Error() != "game already started" {
			t.Errorf("Expected API error message, got: %v", err)
		}
	})
}

func TestClient_PlayLevel(t *testing.T) {
	server := newAPIServer(t)
	client := NewClient(server.URL, zerolog.Nop())

	text, isErr := callTool(t, client.handleCreateSession, map[string]any{"level_id": "level_1"})
	if isErr {
		t.Fatalf("create_session failed: %s", text)
	}
	if !strings.Contains(text, "Created session:") || !strings.Contains(text, "Call start_game") {
		t.Errorf("Unexpected create_session output: %s", text)
	}

	sessionID := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(text, "Created session: "), "\n", 2)[0])

	text, _ = callTool(t, client.handleTap, map[string]any{"session_id": sessionID, "x": float64(0), "y": float64(0)})
	if !strings.Contains(text, "✗") || !strings.Contains(text, "ignored") {
		t.Errorf("Tap before start should be ignored: %s", text)
	}

	text, isErr = callTool(t, client.handleStartGame, map[string]any{"session_id": sessionID})
	if isErr || !strings.Contains(text, "Phase: playing") || !strings.Contains(text, "Tappable:") {
		t.Fatalf("Unexpected start_game output: %s", text)
	}

	text, _ = callTool(t, client.handleStartGame, map[string]any{"session_id": sessionID})
	if !strings.Contains(text, "already") {
		t.Errorf("Second start should report the conflict: %s", text)
	}

	text, _ = callTool(t, client.handleDescribeCell, map[string]any{"session_id": sessionID, "x": float64(1), "y": float64(1)})
	if !strings.Contains(text, "Tappable: no") {
		t.Errorf("Blocked passenger should not be tappable: %s", text)
	}

	text, _ = callTool(t, client.handleDescribeCell, map[string]any{"session_id": sessionID, "x": float64(0), "y": float64(0)})
	if !strings.Contains(text, "Tappable: yes") || !strings.Contains(text, "boards") {
		t.Errorf("Front red passenger should board: %s", text)
	}

	text, _ = callTool(t, client.handleTap, map[string]any{"session_id": sessionID, "x": float64(0), "y": float64(0), "intent": "red bus first"})
	if !strings.Contains(text, "✓ Tap (0,0): boarded (Red)") {
		t.Errorf("Unexpected tap output: %s", text)
	}

	taps := []any{
		map[string]any{"x": float64(2), "y": float64(0)},
		map[string]any{"x": float64(1), "y": float64(0)},
		map[string]any{"x": float64(1), "y": float64(1)},
		map[string]any{"x": float64(0), "y": float64(1)},
		map[string]any{"x": float64(2), "y": float64(1)},
	}
	text, isErr = callTool(t, client.handleBulkTap, map[string]any{"session_id": sessionID, "taps": taps})
	if isErr || !strings.Contains(text, "5 of 5 taps executed") || !strings.Contains(text, "VICTORY") {
		t.Errorf("Unexpected bulk_tap output: %s", text)
	}

	text, _ = callTool(t, client.handleTapHistory, map[string]any{"session_id": sessionID, "limit": float64(3)})
	if !strings.Contains(text, "Total: 7") {
		t.Errorf("Unexpected history output: %s", text)
	}

	text, _ = callTool(t, client.handleReset, map[string]any{"session_id": sessionID})
	if !strings.Contains(text, "Game reset successfully") || !strings.Contains(text, "Phase: start") {
		t.Errorf("Unexpected reset output: %s", text)
	}

	text, _ = callTool(t, client.handleListSessions, nil)
	if !strings.Contains(text, "Active Sessions (1)") || !strings.Contains(text, sessionID) {
		t.Errorf("Unexpected list_sessions output: %s", text)
	}
}

func TestClient_Tick(t *testing.T) {
	server := newAPIServer(t)
	client := NewClient(server.URL, zerolog.Nop())

	var info service.SessionInfo
	if err := client.apiCall(context.Background(), "POST", "/api/sessions", map[string]string{}, &info); err != nil {
		t.Fatal(err)
	}

	_, isErr := callTool(t, client.handleTick, map[string]any{"session_id": info.ID})
	if !isErr {
		t.Error("Tick before start should fail")
	}

	callTool(t, client.handleStartGame, map[string]any{"session_id": info.ID})
	text, isErr := callTool(t, client.handleTick, map[string]any{"session_id": info.ID, "seconds": float64(30)})
	if isErr || !strings.Contains(text, "Clock advanced 30s") || !strings.Contains(text, "GAME OVER") {
		t.Errorf("Unexpected tick output: %s", text)
	}
}

func TestClient_ArgumentErrors(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zerolog.Nop())

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
		want    string
	}{
		{"missing session", client.handleGameState, nil, "session_id is required"},
		{"missing coordinates", client.handleTap, map[string]any{"session_id": "abcd"}, "x and y"},
		{"empty bulk", client.handleBulkTap, map[string]any{"session_id": "abcd", "taps": []any{}}, "at least one"},
		{"bad bulk entry", client.handleBulkTap, map[string]any{"session_id": "abcd", "taps": []any{"up"}}, "taps[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, tt.handler, tt.args)
			if !isErr || !strings.Contains(text, tt.want) {
				t.Errorf("Expected error containing %q, got %q", tt.want, text)
			}
		})
	}
}

func TestClient_LevelsAndProgress(t *testing.T) {
	server := newAPIServer(t)
	client := NewClient(server.URL, zerolog.Nop())

	text, _ := callTool(t, client.handleListLevels, nil)
	if !strings.Contains(text, "level_1 (#1, unlocked) MCP") || !strings.Contains(text, "Buses: 2") {
		t.Errorf("Unexpected list_levels output: %s", text)
	}

	// progression is not configured on this server
	text, isErr := callTool(t, client.handleGetProgress, nil)
	if !isErr {
		t.Errorf("Expected progress error, got %s", text)
	}
}

func TestClient_ServeHTTP(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zerolog.Nop())

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(body))
	w := httptest.NewRecorder()
	client.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	for _, tool := range []string{"create_session", "start_game", "tap", "bulk_tap", "tick", "describe_cell"} {
		if !strings.Contains(w.Body.String(), `"`+tool+`"`) {
			t.Errorf("tools/list should include %s", tool)
		}
	}

	w = httptest.NewRecorder()
	client.ServeHTTP(w, httptest.NewRequest("GET", "/mcp", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestFormatGameState(t *testing.T) {
	state := &engine.GameState{
		Level:            "Demo",
		LevelNumber:      3,
		Phase:            engine.PhaseGameOver,
		Width:            2,
		Height:           1,
		Board:            []string{"R."},
		TimeLimit:        60,
		TimeRemaining:    12,
		CharactersLeft:   1,
		RemainingByColor: map[engine.Color]int{"Red": 1},
		Vehicles: []engine.VehicleView{
			{Order: 1, Color: "Blue", Capacity: 2, SeatsFilled: 2, Status: "retired"},
			{Order: 2, Color: "Red", Capacity: 1, Status: "active"},
		},
		WaitingSlots: []engine.SlotView{{Index: 0, Color: "Blue"}, {Index: 1}},
		Message:      "waiting area is full",
	}

	result := formatGameState(state)

	for _, field := range []string{
		"Level 3: Demo",
		"Phase: game_over (GAME OVER)",
		"Time: 12s of 60s remaining",
		"Passengers left: 1 (Red=1)",
		"> #2 Red",
		"[Blue] [ ]",
		"  0 R.",
		"waiting area is full",
	} {
		if !strings.Contains(result, field) {
			t.Errorf("Expected %q in formatted output, got:\n%s", field, result)
		}
	}
}

func TestDescribeCell_OutOfBounds(t *testing.T) {
	state := &engine.GameState{Width: 2, Height: 2}
	if got := describeCell(state, engine.Position{X: 5, Y: 0}); !strings.Contains(got, "outside the 2x2 grid") {
		t.Errorf("Unexpected description: %s", got)
	}
}

func TestClient_handleGameInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080", zerolog.Nop())

	text, _ := callTool(t, client.handleGameInstructions, nil)
	for _, content := range []string{
		"Bus Jam - Complete Instructions",
		"GAME OBJECTIVE:",
		"BOARDING:",
		"WINNING AND LOSING:",
		"bulk_tap runs up to 100 taps",
	} {
		if !strings.Contains(text, content) {
			t.Errorf("Expected %q in instructions", content)
		}
	}
}
