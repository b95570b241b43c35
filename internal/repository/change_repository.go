package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/onoki/glance/internal/model"
)

// ChangeRepository appends to and reads the change log. Rows are never
// updated or deleted.
type ChangeRepository struct {
	db *gorm.DB
}

func NewChangeRepository(db *gorm.DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// Append records one change to a task.
func (r *ChangeRepository) Append(ctx context.Context, taskID, changeType string, at int64) error {
	rec := model.Change{
		EntityType: model.EntityTask,
		EntityID:   taskID,
		ChangeType: changeType,
		ChangedAt:  at,
	}
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

// Since returns all records with id greater than sinceID in ascending order.
func (r *ChangeRepository) Since(ctx context.Context, sinceID int64) ([]model.Change, error) {
	var out []model.Change
	if err := conn(ctx, r.db).Where("id > ?", sinceID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	return out, nil
}
