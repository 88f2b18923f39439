package service

import (
	"context"
	"time"

	"github.com/wricardo/mcp-training/busjam/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, levelID string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	StartGame(ctx context.Context, sessionID string) (*engine.GameState, error)
	Tap(ctx context.Context, sessionID string, pos engine.Position) (*TapResult, error)
	BulkTap(ctx context.Context, sessionID string, positions []engine.Position) (*BulkTapResult, error)
	Tick(ctx context.Context, sessionID string, seconds int) (*TickResult, error)
	TickAll(ctx context.Context) (map[string]*engine.GameState, error)
	SaveAll(ctx context.Context) error
	Reset(ctx context.Context, sessionID string) (*engine.GameState, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error)
	GetTapHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Levels
	ListLevels(ctx context.Context) ([]*LevelInfo, error)
	LoadLevel(ctx context.Context, levelID string) (*engine.LevelData, error)
	SaveLevel(ctx context.Context, levelID string, level *engine.LevelData) error

	// Progression
	GetProgress(ctx context.Context) (*ProgressInfo, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, levelID string, level *engine.LevelData) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
	// OnReady registers fn to run once per session after its engine is
	// built, either fresh or restored from storage.
	OnReady(fn func(*Session))
}

// LevelCatalog handles level loading
type LevelCatalog interface {
	LoadLevel(id string) (*engine.LevelData, error)
	ListLevels() ([]*LevelInfo, error)
	GetDefault() (string, *engine.LevelData)
	SaveLevel(id string, level *engine.LevelData) error
}

// ProgressTracker persists unlocked levels and level results. It is the
// progression collaborator notified on terminal phases.
type ProgressTracker interface {
	MaxUnlocked(ctx context.Context, profile string) (int, error)
	RecordResult(ctx context.Context, result ResultRecord) error
	Summary(ctx context.Context, profile string) (*ProgressInfo, error)
}

// Session represents an active game session
type Session struct {
	ID             string
	LevelID        string
	Level          *engine.LevelData
	Engine         *engine.GameEngine
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
