package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onoki/glance/internal/model"
)

// MetaRepository is a small key/value store for application metadata.
type MetaRepository struct {
	db *gorm.DB
}

func NewMetaRepository(db *gorm.DB) *MetaRepository {
	return &MetaRepository{db: db}
}

// Get returns the value for key and whether it was present.
func (r *MetaRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var row model.AppMeta
	err := conn(ctx, r.db).Where("key = ?", key).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	return row.Value, true, nil
}

func (r *MetaRepository) Set(ctx context.Context, key, value string) error {
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.AppMeta{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

func (r *MetaRepository) Delete(ctx context.Context, key string) error {
	if err := conn(ctx, r.db).Where("key = ?", key).Delete(&model.AppMeta{}).Error; err != nil {
		return fmt.Errorf("delete meta %q: %w", key, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (r *MetaRepository) SchemaVersion(ctx context.Context) (int64, error) {
	var v int64
	err := conn(ctx, r.db).
		Raw("SELECT COALESCE(MAX(version_id), 0) FROM " + migrationTable + " WHERE is_applied").
		Scan(&v).Error
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return v, nil
}

// IntegrityCheck runs PRAGMA integrity_check and returns its first line,
// which is "ok" for a healthy database.
func (r *MetaRepository) IntegrityCheck(ctx context.Context) (string, error) {
	var result string
	if err := conn(ctx, r.db).Raw("PRAGMA integrity_check").Row().Scan(&result); err != nil {
		return "", fmt.Errorf("integrity check: %w", err)
	}
	return result, nil
}
