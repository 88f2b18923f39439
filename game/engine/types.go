package engine

import (
	"fmt"
	"time"
)

// Color is a palette label such as "Red". EmptyColor marks a cell that never
// spawns a character.
type Color string

const (
	EmptyColor Color = ""

	// BoardingRow is the grid row that touches the vehicle stop.
	BoardingRow = 0

	// Validation constants
	MinGridSize        = 1
	MaxGridSize        = 50
	MaxWaitingCapacity = 16
	MaxVehicles        = 256
	MaxVehicleCapacity = 64
	MaxTimeLimit       = 24 * 60 * 60
	MaxBulkTaps        = 100
)

// Position represents x,y coordinates
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// neighborOffsets fixes the BFS expansion order: up, down, left, right.
// Up moves toward the boarding row.
var neighborOffsets = [4]Position{
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 1, Y: 0},
}

// CharacterState tracks where a character currently lives.
type CharacterState int

const (
	Idle CharacterState = iota
	Moving
	InBuffer
	Boarded
)

func (s CharacterState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case InBuffer:
		return "in_buffer"
	case Boarded:
		return "boarded"
	default:
		return "unknown"
	}
}

// Character is a passenger waiting on the grid.
type Character struct {
	ID    int
	Color Color
	Home  Position
	State CharacterState
	Slot  int // waiting slot index, -1 when not buffered
}

// Vehicle is one bus in the level's ordered list.
type Vehicle struct {
	Index       int // position in the level's vehicle list
	Order       int
	Color       Color
	Capacity    int
	SeatsFilled int
	retired     bool
}

// Full reports whether every seat is taken.
func (v *Vehicle) Full() bool {
	return v.SeatsFilled >= v.Capacity
}

// SeatsLeft returns the number of free seats.
func (v *Vehicle) SeatsLeft() int {
	return v.Capacity - v.SeatsFilled
}

// Retired reports whether the vehicle has already left the stop.
func (v *Vehicle) Retired() bool {
	return v.retired
}

// Phase is the game state owned by the StateMachine.
type Phase int

const (
	PhaseStart Phase = iota
	PhasePlaying
	PhaseFinished
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhasePlaying:
		return "playing"
	case PhaseFinished:
		return "finished"
	case PhaseGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition exists.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseGameOver
}

// MarshalText encodes the phase as its string name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "start":
		*p = PhaseStart
	case "playing":
		*p = PhasePlaying
	case "finished":
		*p = PhaseFinished
	case "game_over":
		*p = PhaseGameOver
	default:
		return fmt.Errorf("unknown phase %q", string(text))
	}
	return nil
}

// Signal is raised by components to request a terminal transition.
type Signal int

const (
	VehicleQueueExhausted Signal = iota
	WaitingBufferFull
	TimeOver
)

func (s Signal) String() string {
	switch s {
	case VehicleQueueExhausted:
		return "vehicle_queue_exhausted"
	case WaitingBufferFull:
		return "waiting_buffer_full"
	case TimeOver:
		return "time_over"
	default:
		return "unknown"
	}
}

// TapOutcome classifies what a single tap did.
type TapOutcome string

const (
	OutcomeIgnored  TapOutcome = "ignored"
	OutcomeNoRoute  TapOutcome = "no_route"
	OutcomeMoving   TapOutcome = "moving"
	OutcomeBoarded  TapOutcome = "boarded"
	OutcomeBuffered TapOutcome = "buffered"
	OutcomeOverflow TapOutcome = "overflow"
)

// EventType names an engine event.
type EventType string

const (
	EventStarted        EventType = "started"
	EventPath           EventType = "path"
	EventBoarded        EventType = "boarded"
	EventBuffered       EventType = "buffered"
	EventOverflow       EventType = "overflow"
	EventEvicted        EventType = "evicted"
	EventVehicleFilled  EventType = "vehicle_filled"
	EventVehicleArrived EventType = "vehicle_arrived"
	EventReleased       EventType = "released"
	EventFinished       EventType = "finished"
	EventGameOver       EventType = "game_over"
	EventTimeOver       EventType = "time_over"
	EventReset          EventType = "reset"
)

// Event represents something that happened while resolving an operation
type Event struct {
	Type        EventType `json:"type"`
	Message     string    `json:"message"`
	CharacterID int       `json:"character_id,omitempty"`
	Color       Color     `json:"color,omitempty"`
	Position    *Position `json:"position,omitempty"`
	Slot        *int      `json:"slot,omitempty"`
	Vehicle     *int      `json:"vehicle,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TapResult is the outcome of a single tap.
type TapResult struct {
	Outcome     TapOutcome `json:"outcome"`
	Reason      string     `json:"reason,omitempty"`
	Position    Position   `json:"position"`
	CharacterID int        `json:"character_id,omitempty"`
	Color       Color      `json:"color,omitempty"`
	Path        []Position `json:"path,omitempty"`
	Slot        *int       `json:"slot,omitempty"`
	Events      []Event    `json:"events,omitempty"`
	Phase       Phase      `json:"phase"`
}

// TapRecord is one entry of the tap history
type TapRecord struct {
	Number     int        `json:"number"`
	Position   Position   `json:"position"`
	Color      Color      `json:"color,omitempty"`
	Outcome    TapOutcome `json:"outcome"`
	Reason     string     `json:"reason,omitempty"`
	PathLength int        `json:"path_length"`
	Phase      Phase      `json:"phase"`
	Timestamp  int64      `json:"timestamp"`
}

// ActionKind names an entry in the replayable action log.
type ActionKind string

const (
	ActionStart ActionKind = "start"
	ActionTap   ActionKind = "tap"
	ActionTick  ActionKind = "tick"
)

// Action is one replayable input. Consecutive ticks are merged into Count.
type Action struct {
	Kind     ActionKind `json:"kind"`
	Position *Position  `json:"position,omitempty"`
	Count    int        `json:"count,omitempty"`
}

// GameState is a read-only snapshot of the engine for clients.
type GameState struct {
	Level            string         `json:"level"`
	LevelNumber      int            `json:"level_number"`
	Phase            Phase          `json:"phase"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	Board            []string       `json:"board"`
	Cells            []CellView     `json:"cells"`
	Vehicles         []VehicleView  `json:"vehicles"`
	ActiveVehicle    *VehicleView   `json:"active_vehicle,omitempty"`
	WaitingSlots     []SlotView     `json:"waiting_slots"`
	WaitingCapacity  int            `json:"waiting_capacity"`
	TimeLimit        int            `json:"time_limit"`
	TimeRemaining    int            `json:"time_remaining"`
	InputBlocked     bool           `json:"input_blocked"`
	CharactersLeft   int            `json:"characters_left"`
	RemainingByColor map[Color]int  `json:"remaining_by_color"`
	Tappable         []Position     `json:"tappable,omitempty"`
	TotalTaps        int            `json:"total_taps"`
	ElapsedSeconds   int            `json:"elapsed_seconds"`
	Message          string         `json:"message"`
	GameOver         bool           `json:"game_over"`
	Victory          bool           `json:"victory"`
	LastEvents       []Event        `json:"last_events,omitempty"`
	Palette          []PaletteEntry `json:"palette,omitempty"`
}

// CellView describes a single grid cell in a snapshot
type CellView struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Color       Color  `json:"color,omitempty"`
	Occupied    bool   `json:"occupied"`
	CharacterID int    `json:"character_id,omitempty"`
	Symbol      string `json:"symbol"`
}

// VehicleView describes a vehicle in a snapshot
type VehicleView struct {
	Index       int    `json:"index"`
	Order       int    `json:"order"`
	Color       Color  `json:"color"`
	Capacity    int    `json:"capacity"`
	SeatsFilled int    `json:"seats_filled"`
	Status      string `json:"status"` // "waiting", "active", "retired"
}

// SlotView describes a waiting slot in a snapshot
type SlotView struct {
	Index       int   `json:"index"`
	CharacterID int   `json:"character_id,omitempty"`
	Color       Color `json:"color,omitempty"`
}
