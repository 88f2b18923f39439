// Package session stores bus jam game sessions.
//
// Each Session owns its own engine.GameEngine. The Manager keeps sessions in
// memory keyed by a case-insensitive 4-character ID and can mirror them to a
// SessionPersistence backend.
//
// Persistence:
//
// FilePersistence writes one JSON file per session holding the level and the
// engine's action log. Loading rebuilds the engine and replays the log, so the
// restored board, vehicle queue, waiting area and clock match the saved game.
//
// Hooks:
//
// OnReady callbacks run once per session after its engine is built or restored.
// The service layer uses this to attach result observers without seeing the
// replayed transitions.
//
//	manager := session.NewManagerWithPersistence(persistence, logger)
//	sess, err := manager.Create("", "level_1", level)
//	if err != nil {
//		log.Fatal(err)
//	}
//	sess, err = manager.Get(sess.ID)
package session
