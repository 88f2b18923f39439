// Package service provides the business logic layer for the bus jam game.
//
// The service package implements:
//   - Multi-session game management
//   - Level catalogue access
//   - Tap and clock processing
//   - Level progression reporting
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// LevelCatalog loads and lists level files.
// ProgressTracker stores unlocked levels and results of finished attempts.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game engine. Engines are not safe for concurrent use, so every engine
// call goes through the service mutex. When a level reaches a terminal phase
// the service reports it to the ProgressTracker after the operation that ended
// it completes.
//
// Usage:
//
//	sessions := session.NewManager(logger)
//	levels, _ := config.NewManager("levels", logger)
//	svc := service.NewGameService(sessions, levels, service.WithLogger(logger))
//
//	info, err := svc.CreateSession(ctx, "level_1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	svc.StartGame(ctx, info.ID)
//	result, err := svc.Tap(ctx, info.ID, engine.Position{X: 0, Y: 0})
package service
