// Package storage persists recording metadata in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no recording has the requested id.
var ErrNotFound = errors.New("recording not found")

// Recording is a row of the recordings table. Duration is in whole seconds.
type Recording struct {
	ID            string `gorm:"primaryKey"`
	CardID        string `gorm:"not null;index:idx_recordings_card_id"`
	TimeSessionID *string
	AudioURL      string `gorm:"not null"`
	Duration      *int64
	Transcript    *string
	CreatedAt     time.Time `gorm:"index:idx_recordings_created_at"`
	Filename      string    `gorm:"not null"`
	Filepath      string    `gorm:"not null"`
	FileSize      *int64
}

// NewRecording is what the command layer knows about a finished take.
type NewRecording struct {
	CardID        string
	TimeSessionID string
	Filename      string
	Filepath      string
	Duration      time.Duration
}

type Store struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the recordings table.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	log = log.With().Str("component", "storage").Logger()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(log, 200*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.AutoMigrate(&Recording{}); err != nil {
		return nil, fmt.Errorf("failed to migrate recordings table: %w", err)
	}

	log.Debug().Str("path", path).Msg("Database opened")
	return &Store{db: db, log: log, now: time.Now}, nil
}

// SaveRecording inserts a recording. The file size is read from disk and
// left empty when the file cannot be stat'ed.
func (s *Store) SaveRecording(ctx context.Context, in NewRecording) (*Recording, error) {
	if in.CardID == "" {
		return nil, errors.New("recording requires a card id")
	}
	if in.Filename == "" || in.Filepath == "" {
		return nil, errors.New("recording requires a filename and path")
	}

	rec := &Recording{
		ID:        uuid.NewString(),
		CardID:    in.CardID,
		AudioURL:  in.Filepath,
		CreatedAt: s.now().UTC(),
		Filename:  in.Filename,
		Filepath:  in.Filepath,
	}
	if in.TimeSessionID != "" {
		rec.TimeSessionID = &in.TimeSessionID
	}
	if in.Duration > 0 {
		secs := int64(math.Round(in.Duration.Seconds()))
		rec.Duration = &secs
	}
	if fi, err := os.Stat(in.Filepath); err == nil {
		size := fi.Size()
		rec.FileSize = &size
	} else {
		s.log.Debug().Err(err).Str("path", in.Filepath).Msg("Could not stat recording")
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to save recording: %w", err)
	}
	return rec, nil
}

// Recordings returns every recording, newest first.
func (s *Store) Recordings(ctx context.Context) ([]Recording, error) {
	var out []Recording
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return out, nil
}

// RecordingsForCard returns the recordings attached to cardID, newest first.
func (s *Store) RecordingsForCard(ctx context.Context, cardID string) ([]Recording, error) {
	var out []Recording
	err := s.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings for card %s: %w", cardID, err)
	}
	return out, nil
}

func (s *Store) Recording(ctx context.Context, id string) (*Recording, error) {
	var rec Recording
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recording %s: %w", id, err)
	}
	return &rec, nil
}

// DeleteRecording removes the row only; the audio file is left on disk.
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Recording{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete recording %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
