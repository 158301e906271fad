package repository

import (
	"context"
	"time"

	"github.com/timmy/waifeed/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository persists settings as key/value rows.
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// List returns every stored entry.
func (r *SettingsRepository) List(ctx context.Context) ([]domain.SettingEntry, error) {
	var entries []domain.SettingEntry
	if err := r.db.WithContext(ctx).Order("key").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// UpsertMany writes all entries in one transaction.
func (r *SettingsRepository) UpsertMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()
	entries := make([]domain.SettingEntry, 0, len(values))
	for k, v := range values {
		entries = append(entries, domain.SettingEntry{Key: k, Value: v, UpdatedAt: now})
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entries).Error
	})
}

// Delete removes keys, restoring their defaults on next load.
func (r *SettingsRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("key IN ?", keys).Delete(&domain.SettingEntry{}).Error
}
