package dedup

import (
	"context"
	"time"

	"rollup-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBStore keeps dedup markers in the shared database so markers are visible
// to every worker process. Expired rows read as unseen immediately; the
// sweeper removes them later.
type DBStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewDBStore(db *gorm.DB, ttl time.Duration) *DBStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DBStore{db: db, ttl: ttl}
}

func (s *DBStore) Seen(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.DedupEntry{}).
		Where("key = ? AND expires_at > ?", key, time.Now()).
		Count(&count).Error

	return count > 0, err
}

// Mark upserts the marker so re-marking an expired key refreshes its window.
func (s *DBStore) Mark(ctx context.Context, key string) error {
	entry := model.DedupEntry{
		Key:       key,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(&entry).Error
}

// PurgeExpired deletes dead markers and returns how many were removed.
func (s *DBStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&model.DedupEntry{})

	return res.RowsAffected, res.Error
}
