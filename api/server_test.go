package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/game/config"
	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/game/progress"
	"github.com/wricardo/mcp-training/busjam/game/service"
	"github.com/wricardo/mcp-training/busjam/game/session"
	"github.com/wricardo/mcp-training/busjam/transport/websocket"
)

func testLevel(number int) *engine.LevelData {
	return &engine.LevelData{
		Name:            fmt.Sprintf("API %d", number),
		Number:          number,
		Width:           3,
		Height:          2,
		Layout:          []string{"RBR", "BRB"},
		Vehicles:        []engine.VehicleSpec{{Color: "Red", Capacity: 3, Order: 1}, {Color: "Blue", Capacity: 3, Order: 2}},
		WaitingCapacity: 3,
		TimeLimit:       30,
	}
}

var solution = []engine.Position{
	{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 0},
	{X: 1, Y: 1}, {X: 0, Y: 1}, {X: 2, Y: 1},
}

type testEnv struct {
	server *Server
	store  *progress.Store
}

func newTestEnv(t *testing.T, enforce bool, hub *websocket.Hub) *testEnv {
	t.Helper()

	levelDir := t.TempDir()
	for _, n := range []int{1, 2} {
		data, _ := json.Marshal(testLevel(n))
		if err := os.WriteFile(filepath.Join(levelDir, fmt.Sprintf("level_%d.json", n)), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	levels, err := config.NewManager(levelDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create level catalogue: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	store, err := progress.Open(progress.DriverSQLite, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open progress store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := service.NewGameService(
		session.NewManager(zerolog.Nop()),
		levels,
		service.WithProgress(store, "api", enforce),
	)

	return &testEnv{server: NewServer(svc, hub, zerolog.Nop()), store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func (e *testEnv) createSession(t *testing.T, levelID string) string {
	t.Helper()
	w := e.do(t, "POST", "/api/sessions", map[string]string{"level_id": levelID})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[service.SessionInfo](t, w).ID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["status"]; got != "healthy" {
		t.Errorf("Expected healthy, got %q", got)
	}
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, false, nil)

	t.Run("default level", func(t *testing.T) {
		w := env.do(t, "POST", "/api/sessions", nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		info := decode[service.SessionInfo](t, w)
		if info.ID == "" || info.LevelID != "level_1" {
			t.Errorf("Unexpected session info: %+v", info)
		}
		if info.GameState == nil || info.GameState.Phase != engine.PhaseStart {
			t.Error("New session should be in the start phase")
		}
	})

	t.Run("unknown level", func(t *testing.T) {
		w := env.do(t, "POST", "/api/sessions", map[string]string{"level_id": "level_9"})
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "level_1") {
			t.Errorf("Error should list available levels: %s", w.Body.String())
		}
	})
}

func TestLockedLevel(t *testing.T) {
	env := newTestEnv(t, true, nil)

	w := env.do(t, "POST", "/api/sessions", map[string]string{"level_id": "level_2"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d: %s", w.Code, w.Body.String())
	}

	id := env.createSession(t, "level_1")
	env.do(t, "POST", "/api/sessions/"+id+"/start", nil)
	w = env.do(t, "POST", "/api/sessions/"+id+"/bulk-tap", map[string]any{"taps": solution})
	if !decode[service.BulkTapResult](t, w).Victory {
		t.Fatalf("Expected the solution to finish level 1: %s", w.Body.String())
	}

	env.createSession(t, "level_2")
}

func TestPlayThroughLevel(t *testing.T) {
	env := newTestEnv(t, false, nil)
	id := env.createSession(t, "level_1")
	base := "/api/sessions/" + id

	// taps are ignored before start
	w := env.do(t, "POST", base+"/tap", engine.Position{X: 0, Y: 0})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if decode[service.TapResult](t, w).Success {
		t.Error("Tap before start should not succeed")
	}

	w = env.do(t, "POST", base+"/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode[engine.GameState](t, w).Phase != engine.PhasePlaying {
		t.Error("Expected playing phase after start")
	}

	w = env.do(t, "POST", base+"/start", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Second start: expected status 409, got %d", w.Code)
	}

	w = env.do(t, "POST", base+"/tap", solution[0])
	tap := decode[service.TapResult](t, w)
	if !tap.Success || tap.Tap.Outcome != engine.OutcomeBoarded {
		t.Fatalf("Expected first tap to board, got %+v", tap.Tap)
	}

	w = env.do(t, "POST", base+"/bulk-tap", map[string]any{"taps": solution[1:]})
	bulk := decode[service.BulkTapResult](t, w)
	if !bulk.Victory || bulk.TapsExecuted != 5 || bulk.StoppedReason != "finished" {
		t.Errorf("Unexpected bulk result: executed=%d reason=%q victory=%v", bulk.TapsExecuted, bulk.StoppedReason, bulk.Victory)
	}

	w = env.do(t, "GET", base+"/history?limit=4&order=asc", nil)
	history := decode[service.HistoryResponse](t, w)
	// the ignored tap before start is part of the history
	if history.TotalTaps != 7 || len(history.Taps) != 4 || !history.HasNext {
		t.Fatalf("Unexpected history page: %+v", history)
	}
	if history.Taps[0].Outcome != engine.OutcomeIgnored || history.Taps[1].Outcome != engine.OutcomeBoarded {
		t.Errorf("Ascending history should start with the ignored tap, got %+v", history.Taps[:2])
	}

	w = env.do(t, "POST", base+"/tick", map[string]int{"seconds": 1})
	if w.Code != http.StatusConflict {
		t.Errorf("Tick after finish: expected status 409, got %d", w.Code)
	}

	w = env.do(t, "GET", "/api/progress", nil)
	info := decode[service.ProgressInfo](t, w)
	if info.MaxUnlockedLevel != 2 || len(info.Results) != 1 || info.Results[0].Outcome != "finished" {
		t.Errorf("Unexpected progress: %+v", info)
	}
}

func TestTickEndsLevel(t *testing.T) {
	env := newTestEnv(t, false, nil)
	id := env.createSession(t, "level_1")
	base := "/api/sessions/" + id

	w := env.do(t, "POST", base+"/tick", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Tick before start: expected status 409, got %d", w.Code)
	}

	env.do(t, "POST", base+"/start", nil)
	w = env.do(t, "POST", base+"/tick", map[string]int{"seconds": 10})
	tick := decode[service.TickResult](t, w)
	if tick.Seconds != 10 || tick.GameState.TimeRemaining != 20 {
		t.Errorf("Unexpected tick: seconds=%d remaining=%d", tick.Seconds, tick.GameState.TimeRemaining)
	}

	w = env.do(t, "POST", base+"/tick", map[string]int{"seconds": 60})
	tick = decode[service.TickResult](t, w)
	if tick.GameState.Phase != engine.PhaseGameOver {
		t.Errorf("Expected game over, got %v", tick.GameState.Phase)
	}

	w = env.do(t, "POST", base+"/reset", nil)
	reset := decode[struct {
		State engine.GameState `json:"state"`
	}](t, w)
	if reset.State.Phase != engine.PhaseStart || reset.State.CharactersLeft != 6 {
		t.Errorf("Reset should rebuild the level, got phase=%v left=%d", reset.State.Phase, reset.State.CharactersLeft)
	}
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t, false, nil)

	for _, req := range []struct{ method, path string }{
		{"GET", "/api/sessions/nope"},
		{"DELETE", "/api/sessions/nope"},
		{"GET", "/api/sessions/nope/state"},
		{"POST", "/api/sessions/nope/start"},
		{"POST", "/api/sessions/nope/tick"},
		{"POST", "/api/sessions/nope/reset"},
		{"GET", "/api/sessions/nope/history"},
	} {
		w := env.do(t, req.method, req.path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected status 404, got %d", req.method, req.path, w.Code)
		}
	}
}

func TestInvalidBodies(t *testing.T) {
	env := newTestEnv(t, false, nil)
	id := env.createSession(t, "level_1")

	for _, path := range []string{"/tap", "/bulk-tap"} {
		w := env.do(t, "POST", "/api/sessions/"+id+path, "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
	}

	w := env.do(t, "POST", "/api/levels", "{}")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Level without body: expected status 400, got %d", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t, false, nil)

	first := env.createSession(t, "level_1")
	time.Sleep(5 * time.Millisecond)
	env.createSession(t, "level_2")
	time.Sleep(5 * time.Millisecond)
	third := env.createSession(t, "level_1")

	type listing struct {
		Count    int                    `json:"count"`
		Total    int                    `json:"total"`
		Sessions []*service.SessionInfo `json:"sessions"`
	}

	w := env.do(t, "GET", "/api/sessions?sort=created&order=asc", nil)
	all := decode[listing](t, w)
	if all.Count != 3 || all.Sessions[0].ID != first {
		t.Errorf("Expected 3 sessions oldest first, got %+v", all)
	}

	w = env.do(t, "GET", "/api/sessions?sort=created&limit=1", nil)
	limited := decode[listing](t, w)
	if limited.Count != 1 || limited.Total != 3 || limited.Sessions[0].ID != third {
		t.Errorf("Expected newest session only, got %+v", limited)
	}

	w = env.do(t, "GET", "/api/sessions?level=level_1", nil)
	filtered := decode[listing](t, w)
	if filtered.Total != 2 {
		t.Errorf("Expected 2 sessions on level_1, got %d", filtered.Total)
	}

	w = env.do(t, "DELETE", "/api/sessions/"+first, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = env.do(t, "GET", "/api/sessions", nil)
	if decode[listing](t, w).Total != 2 {
		t.Error("Deleted session should not be listed")
	}
}

func TestLevels(t *testing.T) {
	env := newTestEnv(t, true, nil)

	w := env.do(t, "GET", "/api/levels", nil)
	levels := decode[[]*service.LevelInfo](t, w)
	if len(levels) != 2 {
		t.Fatalf("Expected 2 levels, got %d", len(levels))
	}
	if !levels[0].Unlocked || levels[1].Unlocked {
		t.Errorf("Only level 1 should be unlocked: %+v %+v", levels[0], levels[1])
	}

	w = env.do(t, "GET", "/api/levels/level_2.json", nil)
	if w.Code != http.StatusOK || decode[engine.LevelData](t, w).Number != 2 {
		t.Errorf("Expected level 2 document, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/levels/level_7", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = env.do(t, "POST", "/api/levels", map[string]any{"level": testLevel(3)})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w)["level_id"]; got != "level_3" {
		t.Errorf("Expected generated id level_3, got %v", got)
	}

	broken := testLevel(4)
	broken.WaitingCapacity = engine.MaxWaitingCapacity + 1
	w = env.do(t, "POST", "/api/levels", map[string]any{"level_id": "level_4", "level": broken})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Oversized waiting area: expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("session not found: %w", session.ErrSessionNotFound), http.StatusNotFound},
		{config.ErrLevelNotFound, http.StatusNotFound},
		{service.ErrProgressDisabled, http.StatusNotFound},
		{&engine.LevelError{Field: "width", Reason: "too small"}, http.StatusBadRequest},
		{fmt.Errorf("%w: level 3", service.ErrLevelLocked), http.StatusForbidden},
		{service.ErrNotPlaying, http.StatusConflict},
		{service.ErrAlreadyStarted, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWebSocketEndpoint(t *testing.T) {
	t.Run("requires session", func(t *testing.T) {
		env := newTestEnv(t, false, nil)
		w := env.do(t, "GET", "/ws", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("disabled without hub", func(t *testing.T) {
		env := newTestEnv(t, false, nil)
		id := env.createSession(t, "level_1")
		w := env.do(t, "GET", "/ws?session="+id, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t, false, websocket.NewHub(zerolog.Nop()))
		w := env.do(t, "GET", "/ws?session=nope", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("receives updates", func(t *testing.T) {
		hub := websocket.NewHub(zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go hub.Run(ctx)

		env := newTestEnv(t, false, hub)
		id := env.createSession(t, "level_1")

		ts := httptest.NewServer(env.server)
		defer ts.Close()

		conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?session="+id, nil)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()

		deadline := time.Now().Add(time.Second)
		for hub.ClientCount(id) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		env.do(t, "POST", "/api/sessions/"+id+"/start", nil)

		conn.SetReadDeadline(time.Now().Add(time.Second))
		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			var message websocket.Message
			if err := conn.ReadJSON(&message); err != nil {
				t.Fatalf("Failed to read message: %v", err)
			}
			seen[message.Event] = true
		}
		if !seen[websocket.EventGameEvents] || !seen[websocket.EventStateUpdate] {
			t.Errorf("Expected events and state messages, got %v", seen)
		}

		env.do(t, "DELETE", "/api/sessions/"+id, nil)
		var deleted websocket.Message
		if err := conn.ReadJSON(&deleted); err != nil {
			t.Fatalf("Failed to read delete notice: %v", err)
		}
		if deleted.Event != websocket.EventSessionDeleted || deleted.SessionID != id {
			t.Errorf("Expected session_deleted for %s, got %+v", id, deleted)
		}
	})
}
