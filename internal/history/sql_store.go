package history

import (
	"context"
	"errors"

	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"gorm.io/gorm"
)

const maxListLimit = 500

type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Migrate() error {
	return s.db.AutoMigrate(&Record{})
}

func (s *SQLStore) Record(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = shared.NewID("tr_")
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*Record, error) {
	var r Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var records []Record
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (s *SQLStore) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&records).Error
	return records, err
}
