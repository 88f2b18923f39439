// Package engine implements the rules of the bus-jam color sorting puzzle.
//
// Characters stand on the cells of a grid. Vehicles arrive one at a time at a
// stop next to row 0, each with a color and a number of seats. Tapping a
// character walks it along the shortest free route to row 0. A character whose
// color matches the vehicle at the stop boards it; any other character moves
// into the first free slot of a small waiting area. When a vehicle fills, the
// next one arrives and waiting characters of its color board straight away.
//
// The game is won when the last vehicle leaves and lost when a character finds
// no free waiting slot or the level timer runs out.
//
// Components:
//
//   - Grid: cell labels and occupancy, bounds-checked accessors.
//   - FindPathToBoardingEdge: breadth-first search to the boarding row.
//   - VehicleQueue: vehicles sorted by their order key, seat filling.
//   - WaitingBuffer: fixed slots, lowest free index first.
//   - MatchResolver: the per-tap decision procedure.
//   - StateMachine: Start, Playing, Finished and GameOver with observers.
//   - LevelTimer: whole-second countdown.
//
// GameEngine wires them together for one level and keeps a replayable action
// log.
//
// Usage:
//
//	level, err := engine.LoadLevel("levels/level_1.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	game, err := engine.NewEngine(level)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	game.Start()
//	result := game.Tap(engine.Position{X: 1, Y: 2})
//	fmt.Println(result.Outcome, game.Phase())
package engine
