package engine

import "testing"

type recordingObserver struct {
	transitions [][2]Phase
}

func (r *recordingObserver) OnGameStateChanged(from, to Phase) {
	r.transitions = append(r.transitions, [2]Phase{from, to})
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name   string
		start  bool
		signal Signal
		want   Phase
	}{
		{"exhausted wins", true, VehicleQueueExhausted, PhaseFinished},
		{"buffer full loses", true, WaitingBufferFull, PhaseGameOver},
		{"time over loses", true, TimeOver, PhaseGameOver},
		{"signal before start", false, WaitingBufferFull, PhaseGameOver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStateMachine()
			if tt.start && !m.Start() {
				t.Fatal("Start should succeed")
			}
			if !m.Signal(tt.signal) {
				t.Fatal("signal should transition")
			}
			if m.Phase() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, m.Phase())
			}
		})
	}
}

func TestStateMachineTerminalIsFinal(t *testing.T) {
	for _, first := range []Signal{VehicleQueueExhausted, WaitingBufferFull, TimeOver} {
		m := NewStateMachine()
		obs := &recordingObserver{}
		m.Subscribe(obs)
		m.Start()
		m.Signal(first)
		final := m.Phase()

		for _, s := range []Signal{VehicleQueueExhausted, WaitingBufferFull, TimeOver, first} {
			if m.Signal(s) {
				t.Errorf("%s after %s must not transition", s, first)
			}
		}
		if m.Start() {
			t.Error("Start must not leave a terminal phase")
		}
		if m.Phase() != final {
			t.Errorf("phase changed from %s to %s", final, m.Phase())
		}
		if len(obs.transitions) != 2 {
			t.Errorf("expected 2 notifications, got %d", len(obs.transitions))
		}
	}
}

func TestStateMachineObservers(t *testing.T) {
	m := NewStateMachine()
	a := &recordingObserver{}
	b := &recordingObserver{}
	m.Subscribe(a)
	idB := m.Subscribe(b)

	m.Start()
	m.Unsubscribe(idB)
	m.Unsubscribe(999)
	m.Signal(VehicleQueueExhausted)

	if len(a.transitions) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(a.transitions))
	}
	if a.transitions[1] != [2]Phase{PhasePlaying, PhaseFinished} {
		t.Errorf("unexpected transition %v", a.transitions[1])
	}
	if len(b.transitions) != 1 {
		t.Errorf("unsubscribed observer got %d notifications", len(b.transitions))
	}
}

func TestStateMachineUnsubscribeDuringNotify(t *testing.T) {
	m := NewStateMachine()
	var id int
	calls := 0
	id = m.Subscribe(ObserverFunc(func(from, to Phase) {
		calls++
		m.Unsubscribe(id)
	}))
	other := &recordingObserver{}
	m.Subscribe(other)

	m.Start()
	m.Signal(TimeOver)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(other.transitions) != 2 {
		t.Errorf("other observer should see both transitions, got %d", len(other.transitions))
	}
}

func TestPhaseText(t *testing.T) {
	for _, p := range []Phase{PhaseStart, PhasePlaying, PhaseFinished, PhaseGameOver} {
		text, _ := p.MarshalText()
		var back Phase
		if err := back.UnmarshalText(text); err != nil || back != p {
			t.Errorf("%s did not survive text encoding: %v", p, err)
		}
	}
	var p Phase
	if err := p.UnmarshalText([]byte("paused")); err == nil {
		t.Error("expected error for unknown phase")
	}
}
