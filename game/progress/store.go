// Package progress stores level unlocks and level results with gorm.
//
// The store listens for terminal phases through the service layer: a Finished
// level unlocks the next one, and every terminal outcome is written as a
// LevelResult row.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/game/service"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// FirstLevel is unlocked for every profile.
	FirstLevel = 1

	summaryLimit = 50
)

var ErrUnknownDriver = errors.New("unknown store driver")

// Store implements service.ProgressTracker.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

var _ service.ProgressTracker = (*Store)(nil)

// Open connects to driver at dsn and migrates the schema. An empty sqlite dsn
// uses a shared in-memory database.
func Open(driver, dsn string, log zerolog.Logger) (*Store, error) {
	cfg := &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	case DriverPostgres:
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}

	return New(db, log)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB, log zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Progress{}, &LevelResult{}); err != nil {
		return nil, fmt.Errorf("failed to migrate progress store: %w", err)
	}
	return &Store{
		db:     db,
		logger: log.With().Str("component", "progress").Logger(),
	}, nil
}

// MaxUnlocked returns the highest level number profile may play.
func (s *Store) MaxUnlocked(ctx context.Context, profile string) (int, error) {
	var p Progress
	err := s.db.WithContext(ctx).Where("profile = ?", profile).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FirstLevel, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read progress: %w", err)
	}
	return p.MaxUnlockedLevel, nil
}

// RecordResult stores result and, on a finished level, unlocks the next one
// when result is the highest level reached so far.
func (s *Store) RecordResult(ctx context.Context, result service.ResultRecord) error {
	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode result stats: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := LevelResult{
			Profile:        result.Profile,
			SessionID:      result.SessionID,
			LevelID:        result.LevelID,
			LevelNumber:    result.LevelNumber,
			Phase:          result.Phase.String(),
			Taps:           result.Taps,
			ElapsedSeconds: result.ElapsedSeconds,
			CharactersLeft: result.CharactersLeft,
			Stats:          stats,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store level result: %w", err)
		}

		if result.Phase != engine.PhaseFinished {
			return nil
		}

		var p Progress
		err := tx.Where("profile = ?", result.Profile).First(&p).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p = Progress{Profile: result.Profile, MaxUnlockedLevel: FirstLevel}
		case err != nil:
			return fmt.Errorf("failed to read progress: %w", err)
		}

		if result.LevelNumber < p.MaxUnlockedLevel {
			return tx.Save(&p).Error
		}

		p.MaxUnlockedLevel = result.LevelNumber + 1
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		s.logger.Info().
			Str("profile", result.Profile).
			Int("unlocked", p.MaxUnlockedLevel).
			Msg("level unlocked")
		return nil
	})
}

// Summary returns the unlock state and the most recent results of profile.
func (s *Store) Summary(ctx context.Context, profile string) (*service.ProgressInfo, error) {
	maxUnlocked, err := s.MaxUnlocked(ctx, profile)
	if err != nil {
		return nil, err
	}

	var rows []LevelResult
	err = s.db.WithContext(ctx).
		Where("profile = ?", profile).
		Order("id desc").
		Limit(summaryLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read level results: %w", err)
	}

	info := &service.ProgressInfo{
		Profile:          profile,
		MaxUnlockedLevel: maxUnlocked,
		Results:          make([]service.ResultSummary, 0, len(rows)),
	}
	for _, r := range rows {
		info.Results = append(info.Results, service.ResultSummary{
			SessionID:      r.SessionID,
			LevelNumber:    r.LevelNumber,
			Outcome:        r.Phase,
			Taps:           r.Taps,
			ElapsedSeconds: r.ElapsedSeconds,
			RecordedAt:     r.CreatedAt,
		})
	}
	return info, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
