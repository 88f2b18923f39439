package engine

// Snapshot returns a read-only copy of the current state.
func (e *GameEngine) Snapshot() *GameState {
	phase := e.machine.Phase()
	state := &GameState{
		Level:            e.level.Name,
		LevelNumber:      e.level.Number,
		Phase:            phase,
		Width:            e.grid.Width(),
		Height:           e.grid.Height(),
		Board:            e.grid.Rows(),
		WaitingCapacity:  e.buffer.Capacity(),
		TimeLimit:        e.timer.Limit(),
		TimeRemaining:    e.timer.Remaining(),
		InputBlocked:     e.gate.Blocked(),
		CharactersLeft:   len(e.characters),
		RemainingByColor: make(map[Color]int),
		TotalTaps:        len(e.history),
		ElapsedSeconds:   e.elapsed,
		Message:          e.message,
		GameOver:         phase.Terminal(),
		Victory:          phase == PhaseFinished,
		LastEvents:       append([]Event(nil), e.lastEvents...),
		Palette:          e.palette.Entries(),
	}

	state.Cells = make([]CellView, 0, e.grid.Width()*e.grid.Height())
	e.grid.each(func(c *Cell) {
		view := CellView{X: c.Pos.X, Y: c.Pos.Y, Color: c.Color, Symbol: e.grid.symbolAt(c)}
		if c.Occupied() {
			view.Occupied = true
			view.CharacterID = c.Occupant().ID
		}
		state.Cells = append(state.Cells, view)
	})

	active := e.queue.ActiveVehicle()
	for _, v := range e.queue.Vehicles() {
		view := VehicleView{
			Index:       v.Index,
			Order:       v.Order,
			Color:       v.Color,
			Capacity:    v.Capacity,
			SeatsFilled: v.SeatsFilled,
			Status:      "waiting",
		}
		switch {
		case v.Retired():
			view.Status = "retired"
		case v == active:
			view.Status = "active"
			activeView := view
			state.ActiveVehicle = &activeView
		}
		state.Vehicles = append(state.Vehicles, view)
	}

	state.WaitingSlots = make([]SlotView, e.buffer.Capacity())
	for i := range state.WaitingSlots {
		state.WaitingSlots[i].Index = i
		if ch := e.buffer.At(i); ch != nil {
			state.WaitingSlots[i].CharacterID = ch.ID
			state.WaitingSlots[i].Color = ch.Color
		}
	}

	for _, ch := range e.characters {
		state.RemainingByColor[ch.Color]++
	}

	if phase == PhasePlaying {
		state.Tappable = RoutableCells(e.grid)
	}

	return state
}
