package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/game/service"
)

var (
	ErrLevelNotFound = errors.New("level not found")
	ErrInvalidLevel  = engine.ErrInvalidLevel
)

// DefaultLevelID is loaded by GetDefault when present.
const DefaultLevelID = "level_1"

var levelFilePattern = regexp.MustCompile(`^level_(\d+)$`)

// Manager is the level catalogue: a directory of level_<n>.json files with
// cached loads.
type Manager struct {
	levelDir     string
	defaultID    string
	defaultLevel *engine.LevelData
	levels       map[string]*engine.LevelData
	logger       zerolog.Logger
	mu           sync.RWMutex
}

// NewManager creates a level catalogue over levelDir
func NewManager(levelDir string, logger zerolog.Logger) (*Manager, error) {
	if _, err := os.Stat(levelDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("level directory does not exist: %s", levelDir)
	}

	m := &Manager{
		levelDir: levelDir,
		levels:   make(map[string]*engine.LevelData),
		logger:   logger.With().Str("component", "levels").Logger(),
	}

	if err := m.loadDefaultLevel(); err != nil {
		return nil, fmt.Errorf("failed to load default level: %w", err)
	}

	return m, nil
}

// NormalizeID maps "3", "level_3" and "level_3.json" to "level_3".
func NormalizeID(id string) string {
	id = strings.TrimSuffix(strings.TrimSpace(id), ".json")
	if n, err := strconv.Atoi(id); err == nil {
		return fmt.Sprintf("level_%d", n)
	}
	return id
}

// NumberFromID returns the ordinal of a level_<n> identifier.
func NumberFromID(id string) (int, bool) {
	match := levelFilePattern.FindStringSubmatch(NormalizeID(id))
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	return n, err == nil
}

// LoadLevel loads a level by identifier
func (m *Manager) LoadLevel(id string) (*engine.LevelData, error) {
	id = NormalizeID(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, ErrLevelNotFound
	}

	m.mu.RLock()
	if level, exists := m.levels[id]; exists {
		m.mu.RUnlock()
		return level, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if level, exists := m.levels[id]; exists {
		return level, nil
	}

	levelPath := filepath.Join(m.levelDir, id+".json")
	data, err := os.ReadFile(levelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrLevelNotFound
		}
		return nil, fmt.Errorf("failed to read level file: %w", err)
	}

	level, err := engine.ParseLevel(data)
	if err != nil {
		return nil, err
	}
	if n, ok := NumberFromID(id); ok && level.Number == 0 {
		level.Number = n
	}

	m.levels[id] = level
	return level, nil
}

// ListLevels returns information about every valid level, ordered by number
func (m *Manager) ListLevels() ([]*service.LevelInfo, error) {
	entries, err := os.ReadDir(m.levelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read level directory: %w", err)
	}

	var levels []*service.LevelInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		level, err := m.LoadLevel(id)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping invalid level")
			continue
		}

		levels = append(levels, &service.LevelInfo{
			Filename:        entry.Name(),
			LevelID:         id,
			Number:          level.Number,
			Name:            level.Name,
			Description:     level.Description,
			Width:           level.Width,
			Height:          level.Height,
			Vehicles:        len(level.Vehicles),
			WaitingCapacity: level.WaitingCapacity,
			TimeLimit:       level.TimeLimit,
		})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Number != levels[j].Number {
			return levels[i].Number < levels[j].Number
		}
		return levels[i].LevelID < levels[j].LevelID
	})
	return levels, nil
}

// GetDefault returns the default level and its identifier
func (m *Manager) GetDefault() (string, *engine.LevelData) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultID, m.defaultLevel
}

// SetDefault sets the default level by identifier
func (m *Manager) SetDefault(id string) error {
	level, err := m.LoadLevel(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultID = NormalizeID(id)
	m.defaultLevel = level
	return nil
}

// loadDefaultLevel picks level_1, then the lowest numbered level, then the
// built-in level.
func (m *Manager) loadDefaultLevel() error {
	id := DefaultLevelID
	level, err := m.LoadLevel(id)
	if err != nil {
		levels, listErr := m.ListLevels()
		if listErr != nil || len(levels) == 0 {
			m.setDefault("default", engine.DefaultLevel())
			return nil
		}

		id = levels[0].LevelID
		level, err = m.LoadLevel(id)
		if err != nil {
			m.setDefault("default", engine.DefaultLevel())
			return nil
		}
	}

	m.setDefault(id, level)
	return nil
}

func (m *Manager) setDefault(id string, level *engine.LevelData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultID = id
	m.defaultLevel = level
}

// SaveLevel validates and writes a level to disk
func (m *Manager) SaveLevel(id string, level *engine.LevelData) error {
	id = NormalizeID(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: bad level identifier %q", ErrInvalidLevel, id)
	}
	if n, ok := NumberFromID(id); ok && level != nil && level.Number == 0 {
		level.Number = n
	}
	if err := engine.ValidateLevel(level); err != nil {
		return err
	}

	data, err := json.MarshalIndent(level, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal level: %w", err)
	}

	levelPath := filepath.Join(m.levelDir, id+".json")
	if err := os.WriteFile(levelPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write level file: %w", err)
	}

	m.mu.Lock()
	m.levels[id] = level
	m.mu.Unlock()

	return nil
}
