package engine

// Observer receives phase transitions.
type Observer interface {
	OnGameStateChanged(from, to Phase)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from, to Phase)

// OnGameStateChanged calls f(from, to).
func (f ObserverFunc) OnGameStateChanged(from, to Phase) {
	f(from, to)
}

type subscription struct {
	id       int
	observer Observer
}

// StateMachine is the single owner of the game phase. Components request
// terminal transitions by signalling it.
type StateMachine struct {
	phase     Phase
	observers []subscription
	nextID    int
}

// NewStateMachine starts in PhaseStart.
func NewStateMachine() *StateMachine {
	return &StateMachine{phase: PhaseStart}
}

// Phase returns the current phase.
func (m *StateMachine) Phase() Phase {
	return m.phase
}

// Subscribe registers o and returns an id for Unsubscribe.
func (m *StateMachine) Subscribe(o Observer) int {
	m.nextID++
	m.observers = append(m.observers, subscription{id: m.nextID, observer: o})
	return m.nextID
}

// Unsubscribe removes the observer registered under id. Unknown ids are ignored.
func (m *StateMachine) Unsubscribe(id int) {
	for i, s := range m.observers {
		if s.id == id {
			m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
			return
		}
	}
}

// Start moves Start to Playing. It reports whether the transition happened.
func (m *StateMachine) Start() bool {
	if m.phase != PhaseStart {
		return false
	}
	m.transition(PhasePlaying)
	return true
}

// Signal applies a terminal signal. Signals in a terminal phase are ignored.
// It reports whether a transition happened.
func (m *StateMachine) Signal(s Signal) bool {
	if m.phase.Terminal() {
		return false
	}
	switch s {
	case VehicleQueueExhausted:
		m.transition(PhaseFinished)
	case WaitingBufferFull, TimeOver:
		m.transition(PhaseGameOver)
	default:
		return false
	}
	return true
}

func (m *StateMachine) transition(to Phase) {
	from := m.phase
	m.phase = to

	// observers may unsubscribe while being notified
	observers := make([]subscription, len(m.observers))
	copy(observers, m.observers)
	for _, s := range observers {
		s.observer.OnGameStateChanged(from, to)
	}
}

// subscriptions exposes the registered observers so a reset can carry them
// over to a fresh machine.
func (m *StateMachine) subscriptions() []subscription {
	out := make([]subscription, len(m.observers))
	copy(out, m.observers)
	return out
}

func (m *StateMachine) restore(subs []subscription, nextID int) {
	m.observers = append(m.observers, subs...)
	if nextID > m.nextID {
		m.nextID = nextID
	}
}
