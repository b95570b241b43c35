package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onoki/glance/internal/model"
)

// TaskRepository reads and writes rows of the tasks table.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Get(ctx context.Context, id string) (model.Task, error) {
	var task model.Task
	err := conn(ctx, r.db).Where("id = ?", id).Take(&task).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.Task{}, model.ErrNotFound
	case err != nil:
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) error {
	if err := conn(ctx, r.db).Create(task).Error; err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts task unless a row with the same id exists. It
// reports whether a row was written.
func (r *TaskRepository) InsertIfAbsent(ctx context.Context, task *model.Task) (bool, error) {
	res := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(task)
	if res.Error != nil {
		return false, fmt.Errorf("insert task if absent: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Save overwrites every mutable column of task.
func (r *TaskRepository) Save(ctx context.Context, task model.Task) error {
	err := conn(ctx, r.db).Model(&model.Task{}).Where("id = ?", task.ID).Updates(map[string]any{
		"page":            task.Page,
		"title":           task.Title,
		"title_json":      task.TitleJSON,
		"content_json":    task.ContentJSON,
		"position":        task.Position,
		"updated_at":      task.UpdatedAt,
		"scheduled_date":  task.ScheduledDate,
		"recurrence_json": task.RecurrenceJSON,
	}).Error
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *TaskRepository) SetCompletion(ctx context.Context, id string, completedAt *int64, updatedAt int64) error {
	err := conn(ctx, r.db).Model(&model.Task{}).Where("id = ?", id).Updates(map[string]any{
		"completed_at": completedAt,
		"updated_at":   updatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("set completion: %w", err)
	}
	return nil
}

// Delete removes a task and reports whether it existed.
func (r *TaskRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := conn(ctx, r.db).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return false, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *TaskRepository) ListByPage(ctx context.Context, page string) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Where("page = ? AND completed_at IS NULL", page).
		Order("position ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list page %q: %w", page, err)
	}
	return tasks, nil
}

// ListDashboardMain returns open main-page tasks plus the ones completed at
// or after startOfToday.
func (r *TaskRepository) ListDashboardMain(ctx context.Context, startOfToday int64) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).
		Where("page = ? AND (completed_at IS NULL OR completed_at >= ?)", model.PageDashboardMain, startOfToday).
		Order("position ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list dashboard: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListHistory(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Where("completed_at IS NOT NULL").
		Order("completed_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return tasks, nil
}

// ListCompletedSince returns tasks completed at or after since, newest first.
func (r *TaskRepository) ListCompletedSince(ctx context.Context, since int64) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Where("completed_at >= ?", since).
		Order("completed_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListTemplates(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Where("recurrence_json IS NOT NULL").
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListAll(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListScheduledOn returns open tasks scheduled for the given yyyy-MM-dd day.
func (r *TaskRepository) ListScheduledOn(ctx context.Context, day string) ([]model.Task, error) {
	var tasks []model.Task
	if err := conn(ctx, r.db).Where("scheduled_date = ? AND completed_at IS NULL", day).
		Order("position ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := conn(ctx, r.db).Model(&model.Task{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// CompletedIDsSince returns ids of tasks completed at or after since.
func (r *TaskRepository) CompletedIDsSince(ctx context.Context, since int64) ([]string, error) {
	var ids []string
	if err := conn(ctx, r.db).Model(&model.Task{}).
		Where("completed_at >= ?", since).
		Order("completed_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("select completed ids: %w", err)
	}
	return ids, nil
}

// Backdate rewrites completed_at to completedAt for those of ids still
// completed at or after since, and bumps updated_at so it still grows when
// the clock has not moved past the previous stamp. Rows reopened since the
// ids were read are left alone. It returns the number of rewritten rows.
func (r *TaskRepository) Backdate(ctx context.Context, ids []string, since, completedAt, now int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn(ctx, r.db).Model(&model.Task{}).
		Where("id IN ? AND completed_at IS NOT NULL AND completed_at >= ?", ids, since).
		Updates(map[string]any{
			"completed_at": completedAt,
			"updated_at":   gorm.Expr("MAX(?, updated_at + 1)", now),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("backdate completions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
