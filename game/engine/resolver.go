package engine

import (
	"github.com/rs/zerolog"
)

// resolverHost is the part of the engine the resolver reports back to.
type resolverHost interface {
	emit(ev Event)
	removeCharacter(ch *Character)
	// settle delivers events raised by a completion callback that ran
	// outside any engine operation.
	settle()
	terminal() bool
	// silently runs fn with event emission suppressed.
	silently(fn func())
}

// MatchResolver decides what a tap does. It reads Grid and VehicleQueue state
// plus the gate and animator readiness predicates, and mutates state only
// from the animator's completion callbacks.
type MatchResolver struct {
	grid     *Grid
	queue    *VehicleQueue
	buffer   *WaitingBuffer
	gate     InputGate
	animator Animator
	host     resolverHost
	logger   zerolog.Logger

	// retired is set when the engine rebuilds; callbacks still in flight for
	// the old grid then do nothing.
	retired bool
}

// Resolve handles a tap on pos. When the animator completes synchronously the
// returned result carries the final outcome; otherwise it reports
// OutcomeMoving and the arrival happens when the animator calls back.
func (r *MatchResolver) Resolve(pos Position) *TapResult {
	result := &TapResult{Position: pos}

	if reason := r.precondition(pos); reason != "" {
		result.Outcome = OutcomeIgnored
		result.Reason = reason
		return result
	}

	cell := r.grid.Get(pos)
	ch := cell.Occupant()
	result.CharacterID = ch.ID
	result.Color = ch.Color

	path, ok := FindPathToBoardingEdge(r.grid, pos)
	if !ok {
		r.logger.Debug().
			Int("character", ch.ID).
			Stringer("position", pos).
			Msg("no route to boarding edge")
		result.Outcome = OutcomeNoRoute
		result.Reason = "no route to the boarding edge"
		return result
	}
	result.Path = path

	if len(path) == 0 {
		r.arrive(ch, result)
		return result
	}

	ch.State = Moving
	result.Outcome = OutcomeMoving
	r.gate.SetBlocked(true)
	r.host.emit(Event{
		Type:        EventPath,
		Message:     "character walking to the boarding edge",
		CharacterID: ch.ID,
		Color:       ch.Color,
		Position:    posPtr(path[len(path)-1]),
	})
	r.animator.MoveAlongPath(ch, path, func() {
		if r.retired {
			return
		}
		r.gate.SetBlocked(false)
		r.arrive(ch, result)
		r.host.settle()
	})
	return result
}

func (r *MatchResolver) precondition(pos Position) string {
	if r.gate.Blocked() {
		return "input blocked"
	}
	cell := r.grid.Get(pos)
	if cell == nil {
		return "position out of bounds"
	}
	if !cell.Occupied() {
		return "no character at position"
	}
	if cell.Occupant().State != Idle {
		return "character already in transit"
	}
	if r.queue.ActiveVehicle() == nil {
		return "no active vehicle"
	}
	if !r.animator.VehicleAtStop() {
		return "vehicle not at stop"
	}
	return ""
}

// arrive runs once the character stands on the boarding edge. A walk that
// completes after the level ended still commits, but raises no events.
func (r *MatchResolver) arrive(ch *Character, result *TapResult) {
	if r.host.terminal() {
		r.host.silently(func() { r.place(ch, result) })
		return
	}
	r.place(ch, result)
}

func (r *MatchResolver) place(ch *Character, result *TapResult) {
	active := r.queue.ActiveVehicle()
	if active == nil {
		ch.State = Idle
		result.Outcome = OutcomeIgnored
		result.Reason = "no active vehicle"
		return
	}

	if ch.Color == active.Color {
		r.board(ch, active)
		result.Outcome = OutcomeBoarded
		return
	}

	slot, ok := r.buffer.FindFreeSlot()
	if !ok {
		// overflow already signalled through the buffer's full hook
		r.grid.SetOccupied(ch.Home, false, nil)
		r.host.removeCharacter(ch)
		r.host.emit(Event{
			Type:        EventEvicted,
			Message:     "no waiting slot left, character removed",
			CharacterID: ch.ID,
			Color:       ch.Color,
			Position:    posPtr(ch.Home),
		})
		result.Outcome = OutcomeOverflow
		return
	}

	r.grid.SetOccupied(ch.Home, false, nil)
	r.buffer.Occupy(slot, ch)
	ch.State = InBuffer
	result.Outcome = OutcomeBuffered
	result.Slot = intPtr(slot)
	r.host.emit(Event{
		Type:        EventBuffered,
		Message:     "character moved to the waiting area",
		CharacterID: ch.ID,
		Color:       ch.Color,
		Slot:        intPtr(slot),
	})

	r.gate.SetBlocked(true)
	r.animator.MoveToSlot(ch, slot, func() {
		if r.retired {
			return
		}
		r.gate.SetBlocked(false)
		r.host.settle()
	})
}

// board seats a character standing at the stop on the active vehicle.
func (r *MatchResolver) board(ch *Character, v *Vehicle) {
	r.grid.SetOccupied(ch.Home, false, nil)
	ch.State = Boarded
	r.host.removeCharacter(ch)
	r.host.emit(Event{
		Type:        EventBoarded,
		Message:     "character boarded",
		CharacterID: ch.ID,
		Color:       ch.Color,
		Vehicle:     intPtr(v.Index),
	})
	r.queue.OccupySeat(v)
}

func posPtr(p Position) *Position { return &p }

func intPtr(i int) *int { return &i }
