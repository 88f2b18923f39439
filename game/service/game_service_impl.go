package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/internal/telemetry"
)

var (
	ErrLevelLocked      = errors.New("level is locked")
	ErrNotPlaying       = errors.New("game is not in progress")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrProgressDisabled = errors.New("progress tracking is disabled")
)

const (
	DefaultProfile = "default"
	maxTickSeconds = 3600
)

// Option configures the game service
type Option func(*gameServiceImpl)

// WithLogger sets the service logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *gameServiceImpl) { s.logger = logger }
}

// WithMetrics sets the otel instruments the service records to
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *gameServiceImpl) { s.metrics = m }
}

// WithProgress reports terminal phases of every session to tracker under
// profile. When enforce is set, sessions for locked levels are refused.
func WithProgress(tracker ProgressTracker, profile string, enforce bool) Option {
	return func(s *gameServiceImpl) {
		s.progress = tracker
		if profile != "" {
			s.profile = profile
		}
		s.enforceUnlocks = enforce
	}
}

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	levels   LevelCatalog
	progress ProgressTracker
	metrics  *telemetry.Metrics
	logger   zerolog.Logger

	profile        string
	enforceUnlocks bool

	// terminal transitions seen during the current operation
	ended []endedLevel

	mu sync.RWMutex
}

type endedLevel struct {
	session *Session
	phase   engine.Phase
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, levels LevelCatalog, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		levels:   levels,
		logger:   zerolog.Nop(),
		profile:  DefaultProfile,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "service").Logger()

	sessions.OnReady(s.attach)
	return s
}

// attach subscribes the result observer to a session's state machine. It runs
// after any replay, so restored sessions do not report old outcomes again.
// Engines only transition under s.mu, which also guards ended.
func (s *gameServiceImpl) attach(sess *Session) {
	sess.Engine.Subscribe(engine.ObserverFunc(func(from, to engine.Phase) {
		if to.Terminal() {
			s.ended = append(s.ended, endedLevel{session: sess, phase: to})
		}
	}))
}

// reportEnded records the levels that ended during the operation. It runs
// once the engine call has returned so the reported state is complete.
func (s *gameServiceImpl) reportEnded() {
	ended := s.ended
	s.ended = nil
	for _, e := range ended {
		s.levelEnded(e.session, e.phase)
	}
}

func (s *gameServiceImpl) levelEnded(sess *Session, phase engine.Phase) {
	ctx := context.Background()
	s.metrics.LevelEnded(ctx, sess.LevelID, phase.String())

	state := sess.Engine.Snapshot()
	s.logger.Info().
		Str("session", sess.ID).
		Str("level", sess.LevelID).
		Stringer("phase", phase).
		Int("taps", state.TotalTaps).
		Int("elapsed", state.ElapsedSeconds).
		Msg("level ended")

	if s.progress == nil {
		return
	}

	record := ResultRecord{
		Profile:        s.profile,
		SessionID:      sess.ID,
		LevelID:        sess.LevelID,
		LevelNumber:    sess.Level.Number,
		Phase:          phase,
		Taps:           state.TotalTaps,
		ElapsedSeconds: state.ElapsedSeconds,
		CharactersLeft: state.CharactersLeft,
		Stats: map[string]any{
			"message":          state.Message,
			"time_remaining":   state.TimeRemaining,
			"waiting_used":     waitingUsed(state),
			"vehicles_retired": vehiclesRetired(state),
		},
	}
	if err := s.progress.RecordResult(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to record level result")
	}
}

// levelID returns the catalogue id for a level, used for consistent API responses
func (s *gameServiceImpl) levelID(level *engine.LevelData, fallback string) string {
	levels, err := s.levels.ListLevels()
	if err == nil {
		for _, info := range levels {
			if info.Number == level.Number && info.Name == level.Name {
				return info.LevelID
			}
		}
	}
	if fallback == "" {
		return "default"
	}
	return fallback
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, levelID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var level *engine.LevelData
	if levelID == "" {
		levelID, level = s.levels.GetDefault()
	} else {
		var err error
		level, err = s.levels.LoadLevel(levelID)
		if err != nil {
			if available := s.availableLevels(); len(available) > 0 {
				return nil, fmt.Errorf("level '%s' not found. Available levels: %v: %w", levelID, available, err)
			}
			return nil, fmt.Errorf("failed to load level %s: %w", levelID, err)
		}
		levelID = s.levelID(level, levelID)
	}

	if err := s.checkUnlocked(ctx, level); err != nil {
		return nil, err
	}

	// Let session manager generate a proper 4-character ID
	session, err := s.sessions.Create("", levelID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.metrics.SessionCreated(ctx, levelID)

	return sessionInfo(session), nil
}

func (s *gameServiceImpl) availableLevels() []string {
	levels, err := s.levels.ListLevels()
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(levels))
	for _, info := range levels {
		ids = append(ids, info.LevelID)
	}
	return ids
}

func (s *gameServiceImpl) checkUnlocked(ctx context.Context, level *engine.LevelData) error {
	if !s.enforceUnlocks || s.progress == nil {
		return nil
	}
	maxUnlocked, err := s.progress.MaxUnlocked(ctx, s.profile)
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}
	if level.Number > maxUnlocked {
		return fmt.Errorf("%w: level %d (highest unlocked is %d)", ErrLevelLocked, level.Number, maxUnlocked)
	}
	return nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return sessionInfo(session), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.Delete(sessionID)
}

// StartGame moves a session from the start screen into play
func (s *gameServiceImpl) StartGame(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reportEnded()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	if !sess.Engine.Start() {
		return sess.Engine.Snapshot(), fmt.Errorf("%w: game is %s", ErrAlreadyStarted, sess.Engine.Phase())
	}

	s.save(sessionID, "start")
	return sess.Engine.Snapshot(), nil
}

// Tap resolves a single tap for a session
func (s *gameServiceImpl) Tap(ctx context.Context, sessionID string, pos engine.Position) (*TapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reportEnded()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	tap := sess.Engine.Tap(pos)
	s.metrics.Tap(ctx, string(tap.Outcome))
	state := sess.Engine.Snapshot()

	result := &TapResult{
		Success:   applied(tap),
		Tap:       tap,
		GameState: state,
		Message:   state.Message,
	}
	if tap.Reason != "" {
		result.Message = tap.Reason
	}

	if result.Success {
		s.save(sessionID, "tap")
	}
	return result, nil
}

// BulkTap applies taps in order until the list ends or the level ends
func (s *gameServiceImpl) BulkTap(ctx context.Context, sessionID string, positions []engine.Position) (*BulkTapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reportEnded()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	result := &BulkTapResult{
		RequestedTaps: len(positions),
		Results:       make([]*engine.TapResult, 0, len(positions)),
		Events:        make([]engine.Event, 0),
	}

	// Limit taps to prevent abuse
	if len(positions) > engine.MaxBulkTaps {
		result.Truncated = true
		result.Limit = engine.MaxBulkTaps
		positions = positions[:engine.MaxBulkTaps]
	}

	if phase := sess.Engine.Phase(); phase != engine.PhasePlaying {
		result.StoppedReason = phase.String()
	} else {
		mutated := false
		for i, pos := range positions {
			tap := sess.Engine.Tap(pos)
			s.metrics.Tap(ctx, string(tap.Outcome))
			result.TapsExecuted++
			result.Results = append(result.Results, tap)
			result.Events = append(result.Events, tap.Events...)
			if applied(tap) {
				mutated = true
			}

			if sess.Engine.IsGameOver() {
				result.StoppedReason = sess.Engine.Phase().String()
				result.StoppedOnTap = i + 1
				break
			}
		}
		if mutated {
			s.save(sessionID, "bulk tap")
		}
	}

	state := sess.Engine.Snapshot()
	result.GameState = state
	result.GameOver = state.GameOver
	result.Victory = state.Victory
	result.Message = state.Message

	return result, nil
}

// Tick advances one session's level clock
func (s *gameServiceImpl) Tick(ctx context.Context, sessionID string, seconds int) (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reportEnded()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	if sess.Engine.Phase() != engine.PhasePlaying {
		return nil, fmt.Errorf("%w: game is %s", ErrNotPlaying, sess.Engine.Phase())
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > maxTickSeconds {
		seconds = maxTickSeconds
	}

	before := sess.Engine.ElapsedSeconds()
	events := sess.Engine.Tick(seconds)
	applied := sess.Engine.ElapsedSeconds() - before
	s.metrics.Tick(ctx, applied)
	s.save(sessionID, "tick")

	if events == nil {
		events = []engine.Event{}
	}
	return &TickResult{
		Seconds:   applied,
		Events:    events,
		GameState: sess.Engine.Snapshot(),
	}, nil
}

// TickAll advances every playing session by one second. Sessions whose clock
// ran out are saved immediately; the rest are left to the periodic save.
func (s *gameServiceImpl) TickAll(ctx context.Context) (map[string]*engine.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reportEnded()

	states := make(map[string]*engine.GameState)
	for _, sess := range s.sessions.List() {
		if sess.Engine.Phase() != engine.PhasePlaying {
			continue
		}
		sess.Engine.Tick(1)
		s.metrics.Tick(ctx, 1)
		if sess.Engine.IsGameOver() {
			s.save(sess.ID, "timeout")
		}
		states[sess.ID] = sess.Engine.Snapshot()
	}

	return states, nil
}

// SaveAll persists every in-memory session. Engines are read under the
// service lock, so this is the safe way to run a periodic save.
func (s *gameServiceImpl) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := 0
	for _, sess := range s.sessions.List() {
		if err := s.sessions.Save(sess.ID); err != nil {
			s.logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to save session")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}

// Reset resets a game session to its initial state
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.reportEnded()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	sess.Engine.Reset()
	s.save(sessionID, "reset")

	return sess.Engine.Snapshot(), nil
}

// GetGameState retrieves the current game state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return sess.Engine.Snapshot(), nil
}

// GetTapHistory returns paginated tap history
func (s *gameServiceImpl) GetTapHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	history := sess.Engine.TapHistory()
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var taps []engine.TapRecord
	if opts.Order == "desc" {
		// most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			taps = append(taps, history[i])
		}
	} else if start < total {
		taps = history[start:end]
	}

	if taps == nil {
		taps = []engine.TapRecord{}
	}

	return &HistoryResponse{
		Taps:        taps,
		TotalTaps:   total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ListLevels returns the level catalogue with unlock flags
func (s *gameServiceImpl) ListLevels(ctx context.Context) ([]*LevelInfo, error) {
	levels, err := s.levels.ListLevels()
	if err != nil {
		return nil, err
	}

	maxUnlocked := -1
	if s.progress != nil {
		maxUnlocked, err = s.progress.MaxUnlocked(ctx, s.profile)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read progress; reporting all levels unlocked")
			maxUnlocked = -1
		}
	}

	for _, info := range levels {
		info.Unlocked = maxUnlocked < 0 || info.Number <= maxUnlocked
	}
	return levels, nil
}

// LoadLevel loads a specific level
func (s *gameServiceImpl) LoadLevel(ctx context.Context, levelID string) (*engine.LevelData, error) {
	return s.levels.LoadLevel(levelID)
}

// SaveLevel validates and stores a level
func (s *gameServiceImpl) SaveLevel(ctx context.Context, levelID string, level *engine.LevelData) error {
	return s.levels.SaveLevel(levelID, level)
}

// GetProgress returns the profile's unlocks and recent results
func (s *gameServiceImpl) GetProgress(ctx context.Context) (*ProgressInfo, error) {
	if s.progress == nil {
		return nil, ErrProgressDisabled
	}
	return s.progress.Summary(ctx, s.profile)
}

func (s *gameServiceImpl) save(sessionID, after string) {
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msgf("failed to persist session after %s", after)
	}
}

func sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		LevelID:        sess.LevelID,
		LevelNumber:    sess.Level.Number,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		GameState:      sess.Engine.Snapshot(),
		Level:          sess.Level,
	}
}

// applied reports whether a tap changed the board.
func applied(tap *engine.TapResult) bool {
	return tap.Outcome != engine.OutcomeIgnored && tap.Outcome != engine.OutcomeNoRoute
}

func waitingUsed(state *engine.GameState) int {
	n := 0
	for _, slot := range state.WaitingSlots {
		if slot.CharacterID != 0 {
			n++
		}
	}
	return n
}

func vehiclesRetired(state *engine.GameState) int {
	n := 0
	for _, v := range state.Vehicles {
		if v.Status == "retired" {
			n++
		}
	}
	return n
}
