package service

import (
	"time"

	"github.com/wricardo/mcp-training/busjam/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string            `json:"id"`
	LevelID        string            `json:"level_id"`
	LevelNumber    int               `json:"level_number"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	GameState      *engine.GameState `json:"game_state"`
	Level          *engine.LevelData `json:"level"`
}

// TapResult contains the result of a single tap
type TapResult struct {
	Success   bool              `json:"success"`
	Tap       *engine.TapResult `json:"tap"`
	GameState *engine.GameState `json:"game_state"`
	Message   string            `json:"message"`
}

// BulkTapResult contains the result of several taps applied in order
type BulkTapResult struct {
	TapsExecuted  int                 `json:"taps_executed"`
	RequestedTaps int                 `json:"requested_taps"`
	Results       []*engine.TapResult `json:"results"`
	Events        []engine.Event      `json:"events"`
	GameState     *engine.GameState   `json:"game_state"`
	StoppedReason string              `json:"stopped_reason,omitempty"`
	StoppedOnTap  int                 `json:"stopped_on_tap,omitempty"` // 1-based index of the tap that ended the game
	Truncated     bool                `json:"truncated,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	GameOver      bool                `json:"game_over"`
	Victory       bool                `json:"victory"`
	Message       string              `json:"message,omitempty"`
}

// TickResult contains the result of advancing the level clock
type TickResult struct {
	Seconds   int               `json:"seconds"`
	Events    []engine.Event    `json:"events"`
	GameState *engine.GameState `json:"game_state"`
}

// HistoryOptions configures tap history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated tap history
type HistoryResponse struct {
	Taps        []engine.TapRecord `json:"taps"`
	TotalTaps   int                `json:"total_taps"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
	TotalPages  int                `json:"total_pages"`
	HasNext     bool               `json:"has_next"`
	HasPrevious bool               `json:"has_previous"`
}

// LevelInfo provides information about a level file
type LevelInfo struct {
	Filename        string `json:"filename"`
	LevelID         string `json:"level_id"` // The identifier to use for session creation
	Number          int    `json:"number"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Vehicles        int    `json:"vehicles"`
	WaitingCapacity int    `json:"waiting_capacity"`
	TimeLimit       int    `json:"time_limit"`
	Unlocked        bool   `json:"unlocked"`
}

// ResultRecord is reported to the ProgressTracker when a level ends
type ResultRecord struct {
	Profile        string
	SessionID      string
	LevelID        string
	LevelNumber    int
	Phase          engine.Phase
	Taps           int
	ElapsedSeconds int
	CharactersLeft int
	Stats          map[string]any
}

// ResultSummary is one stored level result
type ResultSummary struct {
	SessionID      string    `json:"session_id"`
	LevelNumber    int       `json:"level_number"`
	Outcome        string    `json:"outcome"`
	Taps           int       `json:"taps"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// ProgressInfo describes a profile's progression
type ProgressInfo struct {
	Profile          string          `json:"profile"`
	MaxUnlockedLevel int             `json:"max_unlocked_level"`
	Results          []ResultSummary `json:"results"`
}
