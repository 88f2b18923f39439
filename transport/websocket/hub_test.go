package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/game/engine"
)

func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.sessions == nil {
		t.Error("Hub sessions map is nil")
	}
	if hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("Hub channels not initialised")
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(hub, "test-session")

	hub.registerClient(client)

	if !hub.sessions["test-session"][client] {
		t.Error("Client was not registered in session")
	}
	if hub.ClientCount("test-session") != 1 {
		t.Errorf("Expected 1 client in session, got %d", hub.ClientCount("test-session"))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(hub, "test-session")

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["test-session"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}
	if _, ok := <-client.send; ok {
		t.Error("Send channel should be closed")
	}

	// unregistering twice is harmless
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client1 := newTestClient(hub, "multi")
	client2 := newTestClient(hub, "multi")

	hub.registerClient(client1)
	hub.registerClient(client2)
	if hub.ClientCount("multi") != 2 {
		t.Errorf("Expected 2 clients in session, got %d", hub.ClientCount("multi"))
	}

	hub.unregisterClient(client1)
	if !hub.sessions["multi"][client2] {
		t.Error("client2 should still be registered")
	}
}

func TestHubBroadcastToSession(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(hub, "broadcast-test")
	other := newTestClient(hub, "other")
	hub.registerClient(client)
	hub.registerClient(other)

	state := &engine.GameState{
		Phase:          engine.PhasePlaying,
		CharactersLeft: 7,
		Board:          []string{"RB.", "..G"},
	}
	hub.BroadcastToSession("broadcast-test", state)

	// drain the queue the way Run would
	hub.broadcastMessage(<-hub.broadcast)

	select {
	case data := <-client.send:
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if message.SessionID != "broadcast-test" {
			t.Errorf("Expected sessionID broadcast-test, got %s", message.SessionID)
		}
		if message.Event != EventStateUpdate {
			t.Errorf("Expected event %s, got %s", EventStateUpdate, message.Event)
		}
		if message.GameState.Phase != engine.PhasePlaying || message.GameState.CharactersLeft != 7 {
			t.Error("GameState not correctly transmitted")
		}
	default:
		t.Error("No message delivered")
	}

	if len(other.send) != 0 {
		t.Error("Clients of other sessions must not receive the update")
	}
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	hub.BroadcastToSession("nobody", &engine.GameState{})
	hub.BroadcastEvents("nobody", []engine.Event{{Type: engine.EventBoarded}})

	if len(hub.broadcast) != 0 {
		t.Error("Broadcasts to sessions without clients should be skipped")
	}
}

func TestHubBroadcastEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient(hub, "events")
	hub.registerClient(client)

	hub.BroadcastEvents("events", nil)
	if len(hub.broadcast) != 0 {
		t.Fatal("Empty event lists should not be broadcast")
	}

	hub.BroadcastEvents("events", []engine.Event{{Type: engine.EventBoarded, Message: "Red boarded"}})
	message := <-hub.broadcast
	if message.Event != EventGameEvents || len(message.Events) != 1 {
		t.Errorf("Unexpected message: %+v", message)
	}
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.registerClient(newTestClient(hub, "event-test"))

	hub.BroadcastEvent("event-test", "custom-event", "test-data")

	select {
	case message := <-hub.broadcast:
		if message.SessionID != "event-test" || message.Event != "custom-event" || message.Data != "test-data" {
			t.Errorf("Unexpected message: %+v", message)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("No broadcast message queued")
	}
}

func TestHubSlowClientIsDropped(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{hub: hub, sessionID: "slow", send: make(chan []byte)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "slow", Event: "x"})

	if hub.ClientCount("slow") != 0 {
		t.Error("Client with a full send buffer should be unregistered")
	}
}

func newWSServer(t *testing.T, hub *Hub) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			sessionID = "default"
		}
		hub.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWebSocketUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	wsURL := newWSServer(t, hub) + "?session=ws-test"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}

	waitFor(t, func() bool { return hub.ClientCount("ws-test") == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount("ws-test") == 0 })
}

func TestWebSocketMessageReceive(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	wsURL := newWSServer(t, hub) + "?session=msg-test"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount("msg-test") == 1 })

	hub.BroadcastToSession("msg-test", &engine.GameState{Phase: engine.PhaseFinished, Victory: true})
	hub.BroadcastEvents("msg-test", []engine.Event{{Type: engine.EventFinished}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for i, want := range []string{EventStateUpdate, EventGameEvents} {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read WebSocket message %d: %v", i, err)
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			t.Fatalf("Failed to unmarshal message %d: %v", i, err)
		}
		if message.Event != want {
			t.Errorf("Message %d: expected %s, got %s", i, want, message.Event)
		}
		if i == 0 && (!message.GameState.Victory || message.GameState.Phase != engine.PhaseFinished) {
			t.Error("GameState not correctly received")
		}
	}
}

func TestHubRunStops(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := newTestClient(hub, "s")
	hub.register <- client
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if hub.ClientCount("s") != 0 {
		t.Error("Clients should be closed when the hub stops")
	}
}
