// Package storage persists audit events, equity points and run
// summaries in an embedded SQLite database.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backtest_go/internal/domain"
)

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database at path, creating parent
// directories as needed. ":memory:" is supported for tests and
// throwaway runs.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.OrderEventRecord{},
		&domain.EquityPointRecord{},
		&domain.RunRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveEvent appends one audit event record.
func (s *Store) SaveEvent(rec *domain.OrderEventRecord) error {
	return s.db.Create(rec).Error
}

// SaveEquityPoint appends one equity curve point.
func (s *Store) SaveEquityPoint(rec *domain.EquityPointRecord) error {
	return s.db.Create(rec).Error
}

// SaveRun creates or updates a run summary.
func (s *Store) SaveRun(rec *domain.RunRecord) error {
	return s.db.Save(rec).Error
}

// GetRun retrieves a run summary. A missing run is not an error.
func (s *Store) GetRun(runID string) (*domain.RunRecord, error) {
	var rec domain.RunRecord
	err := s.db.First(&rec, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

// EventsForOrder returns the full recorded lifecycle of one order in
// event-sequence order.
func (s *Store) EventsForOrder(runID string, orderID uint64) ([]domain.OrderEventRecord, error) {
	var recs []domain.OrderEventRecord
	err := s.db.
		Where("run_id = ? AND order_id = ?", runID, orderID).
		Order("seq asc").
		Find(&recs).Error
	return recs, err
}

// EventsForRun returns every event of a run in sequence order.
func (s *Store) EventsForRun(runID string) ([]domain.OrderEventRecord, error) {
	var recs []domain.OrderEventRecord
	err := s.db.Where("run_id = ?", runID).Order("seq asc").Find(&recs).Error
	return recs, err
}

// EquityCurve returns a run's persisted equity points in time order.
func (s *Store) EquityCurve(runID string) ([]domain.EquityPointRecord, error) {
	var recs []domain.EquityPointRecord
	err := s.db.Where("run_id = ?", runID).Order("id asc").Find(&recs).Error
	return recs, err
}
