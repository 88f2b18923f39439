package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Engine provides the main interface for game operations
type Engine interface {
	// Lifecycle
	Start() bool
	Reset()
	Phase() Phase
	IsGameOver() bool
	IsVictory() bool

	// Input
	Tap(pos Position) *TapResult
	Tick(seconds int) []Event

	// Views
	Snapshot() *GameState
	Level() *LevelData
	TapHistory() []TapRecord
	Actions() []Action

	// Observers
	Subscribe(o Observer) int
	Unsubscribe(id int)
}

// Option configures a GameEngine.
type Option func(*GameEngine)

// WithAnimator replaces the InstantAnimator.
func WithAnimator(a Animator) Option {
	return func(e *GameEngine) { e.animator = a }
}

// WithInputGate replaces the engine's own SimpleGate.
func WithInputGate(g InputGate) Option {
	return func(e *GameEngine) { e.gate = g }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *GameEngine) { e.logger = l }
}

// WithClock sets the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *GameEngine) { e.now = now }
}

// GameEngine wires Grid, VehicleQueue, WaitingBuffer, MatchResolver,
// StateMachine and LevelTimer for one level. It is not safe for concurrent
// use; callers serialize access.
type GameEngine struct {
	level   *LevelData
	labels  []Color
	palette Palette

	grid     *Grid
	queue    *VehicleQueue
	buffer   *WaitingBuffer
	machine  *StateMachine
	timer    *LevelTimer
	resolver *MatchResolver

	gate     InputGate
	animator Animator
	logger   zerolog.Logger
	now      func() time.Time

	characters map[int]*Character
	internalID int
	draining   bool

	// busy counts nested operations; events raised outside one are flushed
	// by settle.
	busy       int
	muted      bool
	pending    []Event
	lastEvents []Event
	actions    []Action
	history    []TapRecord
	elapsed    int
	message    string
}

var _ Engine = (*GameEngine)(nil)

// NewEngine validates level and builds an engine in PhaseStart.
func NewEngine(level *LevelData, opts ...Option) (*GameEngine, error) {
	if err := ValidateLevel(level); err != nil {
		return nil, err
	}

	e := &GameEngine{
		level:    cloneLevel(level),
		gate:     &SimpleGate{},
		animator: InstantAnimator{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	labels, err := e.level.Labels()
	if err != nil {
		return nil, err
	}
	e.labels = labels
	e.palette = e.level.PaletteOf()
	e.build()

	return e, nil
}

// build creates fresh components from the level and wires their hooks.
func (e *GameEngine) build() {
	if e.resolver != nil {
		e.resolver.retired = true
	}
	e.grid = NewGrid(e.level.Width, e.level.Height, e.labels, e.palette)
	e.characters = make(map[int]*Character)
	id := 0
	for y := 0; y < e.level.Height; y++ {
		for x := 0; x < e.level.Width; x++ {
			pos := Position{X: x, Y: y}
			cell := e.grid.Get(pos)
			if !e.palette.Spawns(cell.Color) {
				continue
			}
			id++
			ch := &Character{ID: id, Color: cell.Color, Home: pos, State: Idle, Slot: -1}
			e.characters[id] = ch
			e.grid.SetOccupied(pos, true, ch)
		}
	}

	e.queue = NewVehicleQueue()
	e.queue.Initialize(e.level.Vehicles)
	e.buffer = NewWaitingBuffer(e.level.WaitingCapacity)
	e.machine = NewStateMachine()
	e.timer = NewLevelTimer(e.level.TimeLimit)
	e.gate.SetBlocked(false)
	e.draining = false

	e.queue.OnRetire(e.onVehicleFilled)
	e.queue.OnAdvance(e.onVehicleArrived)
	e.queue.OnExhausted(func() {
		e.machine.Signal(VehicleQueueExhausted)
	})
	e.buffer.OnFull(func() {
		e.emit(Event{Type: EventOverflow, Message: "waiting area is full"})
		e.machine.Signal(WaitingBufferFull)
	})
	e.timer.OnExpire(func() {
		e.emit(Event{Type: EventTimeOver, Message: "time is up"})
		e.machine.Signal(TimeOver)
	})
	e.internalID = e.machine.Subscribe(ObserverFunc(e.onPhaseChanged))

	e.resolver = &MatchResolver{
		grid:     e.grid,
		queue:    e.queue,
		buffer:   e.buffer,
		gate:     e.gate,
		animator: e.animator,
		host:     e,
		logger:   e.logger,
	}
	e.message = fmt.Sprintf("Level %d: %s", e.level.Number, e.level.Name)
}

// Start moves the game from Start to Playing.
func (e *GameEngine) Start() bool {
	e.busy++
	defer func() { e.busy-- }()

	if !e.machine.Start() {
		e.flush()
		return false
	}
	e.actions = append(e.actions, Action{Kind: ActionStart})
	e.flush()
	return true
}

// Tap resolves a tap on a grid cell. Taps outside PhasePlaying are ignored.
func (e *GameEngine) Tap(pos Position) *TapResult {
	e.busy++
	defer func() { e.busy-- }()

	var result *TapResult
	if e.machine.Phase() != PhasePlaying {
		result = &TapResult{
			Position: pos,
			Outcome:  OutcomeIgnored,
			Reason:   fmt.Sprintf("game is %s", e.machine.Phase()),
		}
	} else {
		result = e.resolver.Resolve(pos)
		if result.Outcome != OutcomeIgnored && result.Outcome != OutcomeNoRoute {
			p := pos
			e.actions = append(e.actions, Action{Kind: ActionTap, Position: &p})
		}
	}

	result.Phase = e.machine.Phase()
	result.Events = e.flush()
	if result.Reason != "" && len(result.Events) == 0 {
		e.message = result.Reason
	}

	e.history = append(e.history, TapRecord{
		Number:     len(e.history) + 1,
		Position:   pos,
		Color:      result.Color,
		Outcome:    result.Outcome,
		Reason:     result.Reason,
		PathLength: len(result.Path),
		Phase:      result.Phase,
		Timestamp:  e.now().Unix(),
	})

	return result
}

// Tick advances the level clock by whole seconds while Playing.
func (e *GameEngine) Tick(seconds int) []Event {
	e.busy++
	defer func() { e.busy-- }()

	if seconds <= 0 || e.machine.Phase() != PhasePlaying {
		return e.flush()
	}

	applied := 0
	for i := 0; i < seconds && e.machine.Phase() == PhasePlaying; i++ {
		e.elapsed++
		applied++
		e.timer.Tick()
	}

	if n := len(e.actions); n > 0 && e.actions[n-1].Kind == ActionTick {
		e.actions[n-1].Count += applied
	} else {
		e.actions = append(e.actions, Action{Kind: ActionTick, Count: applied})
	}
	return e.flush()
}

// Reset rebuilds the level. Outside subscriptions survive the reset.
func (e *GameEngine) Reset() {
	var carried []subscription
	for _, s := range e.machine.subscriptions() {
		if s.id != e.internalID {
			carried = append(carried, s)
		}
	}
	nextID := e.machine.nextID

	e.build()
	e.machine.restore(carried, nextID)

	e.actions = nil
	e.history = nil
	e.elapsed = 0
	e.pending = nil
	e.emit(Event{Type: EventReset, Message: "level reset"})
	e.flush()
}

// Replay resets the engine and applies actions with an InstantAnimator.
func (e *GameEngine) Replay(actions []Action) error {
	animator := e.animator
	e.animator = InstantAnimator{}
	defer func() {
		e.animator = animator
		e.resolver.animator = animator
	}()

	e.Reset()
	for i, a := range actions {
		switch a.Kind {
		case ActionStart:
			e.Start()
		case ActionTap:
			if a.Position == nil {
				return fmt.Errorf("replay action %d: tap without position", i)
			}
			e.Tap(*a.Position)
		case ActionTick:
			e.Tick(a.Count)
		default:
			return fmt.Errorf("replay action %d: unknown kind %q", i, a.Kind)
		}
	}
	return nil
}

// Subscribe registers an observer for phase transitions.
func (e *GameEngine) Subscribe(o Observer) int {
	return e.machine.Subscribe(o)
}

// Unsubscribe removes an observer. The engine's own observer cannot be removed.
func (e *GameEngine) Unsubscribe(id int) {
	if id == e.internalID {
		return
	}
	e.machine.Unsubscribe(id)
}

// Phase returns the current game phase.
func (e *GameEngine) Phase() Phase { return e.machine.Phase() }

// IsGameOver reports whether the game reached a terminal phase.
func (e *GameEngine) IsGameOver() bool { return e.machine.Phase().Terminal() }

// IsVictory reports whether every vehicle was filled.
func (e *GameEngine) IsVictory() bool { return e.machine.Phase() == PhaseFinished }

// Level returns a copy of the level being played.
func (e *GameEngine) Level() *LevelData { return cloneLevel(e.level) }

// Grid exposes the occupancy grid for read-only inspection.
func (e *GameEngine) Grid() *Grid { return e.grid }

// TapHistory returns every tap made since the last reset.
func (e *GameEngine) TapHistory() []TapRecord {
	return append([]TapRecord(nil), e.history...)
}

// Actions returns the replayable action log.
func (e *GameEngine) Actions() []Action {
	out := make([]Action, len(e.actions))
	for i, a := range e.actions {
		out[i] = a
		if a.Position != nil {
			p := *a.Position
			out[i].Position = &p
		}
	}
	return out
}

// ElapsedSeconds returns the seconds played since Start.
func (e *GameEngine) ElapsedSeconds() int { return e.elapsed }

func (e *GameEngine) emit(ev Event) {
	if e.muted {
		return
	}
	ev.Timestamp = e.now()
	e.pending = append(e.pending, ev)
	if ev.Message != "" {
		e.message = ev.Message
	}
	e.logger.Trace().Str("event", string(ev.Type)).Int("character", ev.CharacterID).Msg(ev.Message)
}

func (e *GameEngine) flush() []Event {
	events := e.pending
	e.pending = nil
	if len(events) > 0 {
		e.lastEvents = events
	}
	return events
}

func (e *GameEngine) removeCharacter(ch *Character) {
	delete(e.characters, ch.ID)
}

func (e *GameEngine) settle() {
	if e.busy == 0 {
		e.flush()
	}
}

func (e *GameEngine) terminal() bool { return e.machine.Phase().Terminal() }

func (e *GameEngine) silently(fn func()) {
	muted := e.muted
	e.muted = true
	defer func() { e.muted = muted }()
	fn()
}

func (e *GameEngine) onPhaseChanged(from, to Phase) {
	switch to {
	case PhasePlaying:
		e.timer.Start()
		e.emit(Event{Type: EventStarted, Message: "game started"})
	case PhaseFinished:
		e.timer.Stop()
		e.emit(Event{Type: EventFinished, Message: fmt.Sprintf("Level %d complete!", e.level.Number)})
	case PhaseGameOver:
		e.timer.Stop()
		e.emit(Event{Type: EventGameOver, Message: "game over"})
	}
	e.logger.Debug().
		Str("level", e.level.Name).
		Stringer("from", from).
		Stringer("to", to).
		Msg("phase changed")
}

func (e *GameEngine) onVehicleFilled(v *Vehicle) {
	e.emit(Event{
		Type:    EventVehicleFilled,
		Message: fmt.Sprintf("%s vehicle is full", v.Color),
		Color:   v.Color,
		Vehicle: intPtr(v.Index),
	})
}

// onVehicleArrived boards buffered characters matching the new vehicle. A
// vehicle that fills while draining advances the queue again; the outer loop
// picks up the next vehicle instead of recursing.
func (e *GameEngine) onVehicleArrived(v *Vehicle) {
	e.emit(Event{
		Type:    EventVehicleArrived,
		Message: fmt.Sprintf("%s vehicle arrived", v.Color),
		Color:   v.Color,
		Vehicle: intPtr(v.Index),
	})
	if e.draining {
		return
	}
	e.draining = true
	defer func() { e.draining = false }()

	for {
		active := e.queue.ActiveVehicle()
		if active == nil {
			return
		}
		released := e.buffer.ReleaseMatchingUpTo(active.Color, active.SeatsLeft())
		if len(released) == 0 {
			return
		}
		for _, ch := range released {
			ch.State = Boarded
			e.removeCharacter(ch)
			e.emit(Event{
				Type:        EventReleased,
				Message:     "waiting character boarded",
				CharacterID: ch.ID,
				Color:       ch.Color,
				Vehicle:     intPtr(active.Index),
			})
			e.queue.OccupySeat(active)
		}
	}
}
