package engine

// LevelTimer is a whole-second countdown. A zero limit disables it.
type LevelTimer struct {
	limit     int
	remaining int
	running   bool
	expired   bool
	onExpire  []func()
}

// NewLevelTimer creates a stopped timer for limit seconds.
func NewLevelTimer(limit int) *LevelTimer {
	if limit < 0 {
		limit = 0
	}
	return &LevelTimer{limit: limit, remaining: limit}
}

// OnExpire registers fn to run when the countdown reaches zero.
func (t *LevelTimer) OnExpire(fn func()) {
	t.onExpire = append(t.onExpire, fn)
}

// Enabled reports whether the level has a time limit.
func (t *LevelTimer) Enabled() bool { return t.limit > 0 }

// Limit returns the configured limit in seconds.
func (t *LevelTimer) Limit() int { return t.limit }

// Remaining returns the seconds left.
func (t *LevelTimer) Remaining() int { return t.remaining }

// Running reports whether ticks currently count down.
func (t *LevelTimer) Running() bool { return t.running }

// Expired reports whether the countdown already hit zero.
func (t *LevelTimer) Expired() bool { return t.expired }

// Start resumes the countdown. No-op when disabled or expired.
func (t *LevelTimer) Start() {
	if !t.Enabled() || t.expired {
		return
	}
	t.running = true
}

// Stop pauses the countdown.
func (t *LevelTimer) Stop() {
	t.running = false
}

// Tick counts one second down. It returns true only on the tick that expires
// the timer; later ticks are ignored.
func (t *LevelTimer) Tick() bool {
	if !t.running || t.expired {
		return false
	}
	t.remaining--
	if t.remaining > 0 {
		return false
	}
	t.remaining = 0
	t.expired = true
	t.running = false
	for _, fn := range t.onExpire {
		fn()
	}
	return true
}
