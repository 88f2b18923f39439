// Package mcp exposes the bus jam game to AI agents over the Model Context
// Protocol.
//
// The Client is a thin proxy: every tool call becomes a REST request against
// the api package, and the JSON reply is rendered as plain text an agent can
// read (board rows, bus queue, waiting slots, tappable cells).
//
// MCP Tools:
//   - create_session, list_sessions, get_session
//   - start_game, game_state, tap, bulk_tap, tick, reset_game, tap_history
//   - list_levels, get_progress
//   - game_instructions, describe_cell
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: the Client is an http.Handler answering one JSON-RPC message per POST
//
// Usage:
//
//	client := mcp.NewClient("http://127.0.0.1:8080", logger)
//	router.Handle("/mcp", client)
package mcp
