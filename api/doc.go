// Package api provides the HTTP REST API for the bus jam game.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session ({"level_id": "level_1"}, empty for the default level)
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N&level=level_1)
//   - GET /api/sessions/{id} - Get a session with its level and state
//   - DELETE /api/sessions/{id} - Delete a session
//
// Game Operations:
//   - GET /api/sessions/{id}/state - Current snapshot
//   - POST /api/sessions/{id}/start - Leave the start phase
//   - POST /api/sessions/{id}/tap - Tap a cell ({"x": 0, "y": 1})
//   - POST /api/sessions/{id}/bulk-tap - Tap cells in order ({"taps": [{"x": 0, "y": 1}]})
//   - POST /api/sessions/{id}/tick - Advance the level clock ({"seconds": 5})
//   - POST /api/sessions/{id}/reset - Rebuild the level
//   - GET /api/sessions/{id}/history - Tap history (?page=1&limit=20&order=desc)
//
// Levels and Progression:
//   - GET /api/levels - List levels with their unlock state
//   - GET /api/levels/{name} - Level document
//   - POST /api/levels - Validate and store a level ({"level_id": "level_3", "level": {...}})
//   - GET /api/progress - Unlocked levels and recent results
//
// Other:
//   - GET /health
//   - GET /ws?session={id} - Live state_update, game_events and session_deleted messages
//
// Errors are returned as JSON, {"error": "message"}, with a status derived
// from the service error: 404 for unknown sessions and levels, 400 for invalid
// levels, 403 for locked levels and 409 for operations the current phase does
// not allow.
//
// Usage:
//
//	server := api.NewServer(gameService, hub, logger)
//	http.ListenAndServe(":8080", server)
package api
