package engine

// WaitingBuffer holds characters whose color did not match the active vehicle.
// Slots are fungible; admission always takes the lowest free index.
type WaitingBuffer struct {
	slots  []*Character
	onFull []func()
}

// NewWaitingBuffer creates a buffer with capacity slots.
func NewWaitingBuffer(capacity int) *WaitingBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &WaitingBuffer{slots: make([]*Character, capacity)}
}

// OnFull registers fn to run on every failed admission.
func (b *WaitingBuffer) OnFull(fn func()) {
	b.onFull = append(b.onFull, fn)
}

// Capacity returns the number of slots.
func (b *WaitingBuffer) Capacity() int {
	return len(b.slots)
}

// Len returns the number of occupied slots.
func (b *WaitingBuffer) Len() int {
	n := 0
	for _, c := range b.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// At returns the occupant of slot i, or nil.
func (b *WaitingBuffer) At(i int) *Character {
	if i < 0 || i >= len(b.slots) {
		return nil
	}
	return b.slots[i]
}

// FindFreeSlot returns the lowest free index. When none is free it raises the
// full signal once for this call and returns false.
func (b *WaitingBuffer) FindFreeSlot() (int, bool) {
	for i, c := range b.slots {
		if c == nil {
			return i, true
		}
	}
	for _, fn := range b.onFull {
		fn()
	}
	return -1, false
}

// Occupy places ch in slot i. Bad indices, occupied slots and nil characters
// are rejected with false.
func (b *WaitingBuffer) Occupy(i int, ch *Character) bool {
	if ch == nil || i < 0 || i >= len(b.slots) || b.slots[i] != nil {
		return false
	}
	b.slots[i] = ch
	ch.Slot = i
	return true
}

// Free empties slot i. It returns false for bad indices or an empty slot.
func (b *WaitingBuffer) Free(i int) bool {
	if i < 0 || i >= len(b.slots) || b.slots[i] == nil {
		return false
	}
	b.slots[i].Slot = -1
	b.slots[i] = nil
	return true
}

// ReleaseMatching frees every slot whose occupant has color c and returns the
// released characters in ascending slot order.
func (b *WaitingBuffer) ReleaseMatching(c Color) []*Character {
	return b.ReleaseMatchingUpTo(c, len(b.slots))
}

// ReleaseMatchingUpTo is ReleaseMatching capped at max characters. Matches
// beyond the cap stay in their slots.
func (b *WaitingBuffer) ReleaseMatchingUpTo(c Color, max int) []*Character {
	var released []*Character
	for i, ch := range b.slots {
		if len(released) >= max {
			break
		}
		if ch == nil || ch.Color != c {
			continue
		}
		b.Free(i)
		released = append(released, ch)
	}
	return released
}
