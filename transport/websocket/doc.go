// Package websocket pushes live bus jam state to browser clients.
//
// A central Hub owns every connection. Clients join a session with
// /ws?session=<id> and receive JSON messages for that session only:
//   - state_update: the full engine.GameState after an operation
//   - game_events: the engine events produced by that operation
//
// Broadcasts never block the caller. They are queued for the hub loop and
// dropped with a warning when the queue is full; a client whose own buffer is
// full is disconnected.
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
package websocket
