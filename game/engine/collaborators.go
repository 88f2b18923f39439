package engine

// InputGate is the coarse lock consulted before any tap is accepted. It is
// held while a character is in transit.
type InputGate interface {
	Blocked() bool
	SetBlocked(blocked bool)
}

// SimpleGate is a plain boolean InputGate.
type SimpleGate struct {
	blocked bool
}

func (g *SimpleGate) Blocked() bool           { return g.blocked }
func (g *SimpleGate) SetBlocked(blocked bool) { g.blocked = blocked }

// Animator plays transit and reports back through completion callbacks. The
// engine resumes only from the callback.
type Animator interface {
	// VehicleAtStop reports whether the active vehicle is ready to board.
	VehicleAtStop() bool
	// MoveAlongPath walks ch along path, then calls done.
	MoveAlongPath(ch *Character, path []Position, done func())
	// MoveToSlot moves ch into waiting slot, then calls done.
	MoveToSlot(ch *Character, slot int, done func())
}

// InstantAnimator completes every transit synchronously.
type InstantAnimator struct{}

func (InstantAnimator) VehicleAtStop() bool { return true }

func (InstantAnimator) MoveAlongPath(_ *Character, _ []Position, done func()) { done() }

func (InstantAnimator) MoveToSlot(_ *Character, _ int, done func()) { done() }
