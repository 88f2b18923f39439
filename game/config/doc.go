// Package config provides the level catalogue for the bus jam game.
//
// Levels are JSON files named level_<n>.json in a single directory. The
// ordinal <n> is the level number reported to the progression store when the
// level is finished; a file may still set "number" explicitly.
//
// Level Format:
//
//	{
//	  "name": "Warm up",
//	  "width": 4,
//	  "height": 3,
//	  "layout": ["RBRB", "BRBR", "RR.."],
//	  "vehicles": [{"color": "Red", "capacity": 3, "order": 1}],
//	  "waiting_capacity": 3,
//	  "time_limit": 60
//	}
//
// Cells may be given either as "node_colors", a row-major list of color
// names, or as "layout", one string of palette symbols per row with '.' for
// an empty cell. A level may declare its own "palette"; otherwise the default
// palette applies.
//
// Usage:
//
//	manager, err := config.NewManager("levels", logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	level, err := manager.LoadLevel("3") // same as "level_3"
//	levels, err := manager.ListLevels()
//
// Every level is validated on load and on save; invalid files are skipped by
// ListLevels and rejected by LoadLevel with ErrInvalidLevel.
package config
