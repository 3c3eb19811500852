// Package gormstore persists saga log entries with gorm, on SQLite or
// Postgres.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
)

// row is one immutable transition. Querying the newest row per saga_id gives
// the current state.
type row struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	SagaID        string    `gorm:"not null;index:idx_saga_logs_saga_id,priority:1"`
	Status        string    `gorm:"not null"`
	CurrentStep   string    `gorm:"not null;default:''"`
	Payload       *string   `gorm:"type:text"`
	ErrorMessages string    `gorm:"type:text;not null;default:'[]'"`
	TraceID       string    `gorm:"not null;default:'';index"`
	SpanID        string    `gorm:"not null;default:''"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false;index:idx_saga_logs_saga_id,priority:2"`
}

func (row) TableName() string { return "saga_logs" }

type Store struct {
	db *gorm.DB
}

var _ sagalog.Repository = (*Store)(nil)

// New migrates the saga_logs table and returns a store backed by db.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("sagalog: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, entry *sagalog.SagaLog) error {
	r := row{
		SagaID:        entry.SagaID,
		Status:        string(entry.Status),
		CurrentStep:   entry.CurrentStep,
		Payload:       nullable(entry.Payload),
		ErrorMessages: entry.ErrorMessages,
		TraceID:       entry.TraceID,
		SpanID:        entry.SpanID,
		UpdatedAt:     entry.UpdatedAt.UTC(),
	}
	if r.ErrorMessages == "" {
		r.ErrorMessages = "[]"
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("sagalog: save entry for %q: %w", entry.SagaID, err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sagaID string) ([]sagalog.SagaLog, error) {
	var rows []row
	err := s.db.WithContext(ctx).
		Where("saga_id = ?", sagaID).
		Order("updated_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sagalog: history of %q: %w", sagaID, err)
	}

	out := make([]sagalog.SagaLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out, nil
}

func (s *Store) Latest(ctx context.Context, sagaID string) (*sagalog.SagaLog, error) {
	var r row
	err := s.db.WithContext(ctx).
		Where("saga_id = ?", sagaID).
		Order("updated_at DESC, id DESC").
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", sagalog.ErrNotFound, sagaID)
	}
	if err != nil {
		return nil, fmt.Errorf("sagalog: latest of %q: %w", sagaID, err)
	}
	entry := r.toEntry()
	return &entry, nil
}

func (r row) toEntry() sagalog.SagaLog {
	entry := sagalog.SagaLog{
		SagaID:        r.SagaID,
		Status:        sagalog.Status(r.Status),
		CurrentStep:   r.CurrentStep,
		ErrorMessages: r.ErrorMessages,
		TraceID:       r.TraceID,
		SpanID:        r.SpanID,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Payload != nil {
		entry.Payload = *r.Payload
	}
	return entry
}

// nullable stores NULL instead of an empty payload on non-STARTED rows.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
