package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onoki/glance/internal/document"
	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

// Generator materializes recurring templates; TaskService calls it after a
// template is written.
type Generator interface {
	Generate(ctx context.Context, today time.Time) (int, error)
}

// TaskService owns task mutations. Each mutation writes the row, its search
// entry and a change record in one transaction.
type TaskService struct {
	tx      *repository.TxManager
	tasks   *repository.TaskRepository
	search  *repository.SearchRepository
	changes *repository.ChangeRepository
	gen     Generator
	log     *slog.Logger
	now     func() time.Time
}

func NewTaskService(
	tx *repository.TxManager,
	tasks *repository.TaskRepository,
	search *repository.SearchRepository,
	changes *repository.ChangeRepository,
	log *slog.Logger,
) *TaskService {
	return &TaskService{
		tx:      tx,
		tasks:   tasks,
		search:  search,
		changes: changes,
		log:     log,
		now:     time.Now,
	}
}

// SetGenerator wires recurrence generation after template writes.
func (s *TaskService) SetGenerator(g Generator) { s.gen = g }

func (s *TaskService) Create(ctx context.Context, in model.NewTask) (model.CreateResult, error) {
	now := s.now().UnixMilli()
	task := model.Task{
		ID:             uuid.NewString(),
		Page:           in.Page,
		Title:          document.PlainTextOf(in.Title),
		TitleJSON:      optionalDoc(in.Title),
		ContentJSON:    contentOrEmpty(in.Content),
		Position:       in.Position,
		CreatedAt:      now,
		UpdatedAt:      now,
		ScheduledDate:  normalizeDate(in.ScheduledDate),
		RecurrenceJSON: normalizeRecurrence(in.Recurrence),
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tasks.Insert(ctx, &task); err != nil {
			return err
		}
		if err := s.search.Replace(ctx, task.ID, indexText(task)); err != nil {
			return err
		}
		return s.changes.Append(ctx, task.ID, model.ChangeCreate, now)
	})
	if err != nil {
		return model.CreateResult{}, fmt.Errorf("create task: %w", err)
	}

	if task.IsTemplate() {
		s.regenerate(ctx)
	}
	return model.CreateResult{ID: task.ID, UpdatedAt: now}, nil
}

// Update applies patch with last-writer-wins semantics. ExternalUpdate
// reports that baseUpdatedAt was older than the stored row; the patch is
// applied either way.
func (s *TaskService) Update(ctx context.Context, id string, baseUpdatedAt int64, patch model.TaskPatch) (model.UpdateResult, error) {
	var res model.UpdateResult
	var template bool

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		task, err := s.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		res.ExternalUpdate = baseUpdatedAt < task.UpdatedAt

		applyPatch(&task, patch)
		task.UpdatedAt = nextStamp(s.now().UnixMilli(), task.UpdatedAt)
		res.UpdatedAt = task.UpdatedAt
		template = task.IsTemplate() && patch.Recurrence.Set

		if err := s.tasks.Save(ctx, task); err != nil {
			return err
		}
		if err := s.search.Replace(ctx, task.ID, indexText(task)); err != nil {
			return err
		}
		return s.changes.Append(ctx, task.ID, model.ChangeUpdate, task.UpdatedAt)
	})
	if err != nil {
		return model.UpdateResult{}, fmt.Errorf("update task %s: %w", id, err)
	}

	if template {
		s.regenerate(ctx)
	}
	return res, nil
}

// SetCompletion marks a task done (completedAt = now) or open again.
func (s *TaskService) SetCompletion(ctx context.Context, id string, completed bool) (model.CompletionResult, error) {
	var res model.CompletionResult

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		task, err := s.tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UnixMilli()
		if completed {
			res.CompletedAt = &now
		}
		updatedAt := nextStamp(now, task.UpdatedAt)
		if err := s.tasks.SetCompletion(ctx, id, res.CompletedAt, updatedAt); err != nil {
			return err
		}
		return s.changes.Append(ctx, id, model.ChangeComplete, updatedAt)
	})
	if err != nil {
		return model.CompletionResult{}, fmt.Errorf("set completion %s: %w", id, err)
	}
	return res, nil
}

// Delete removes a task and its search entry. Deleting an absent id is a
// no-op that returns false.
func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.search.Delete(ctx, id); err != nil {
			return err
		}
		ok, err := s.tasks.Delete(ctx, id)
		if err != nil || !ok {
			return err
		}
		deleted = true
		return s.changes.Append(ctx, id, model.ChangeDelete, s.now().UnixMilli())
	})
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	return deleted, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (model.TaskView, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return model.TaskView{}, err
	}
	return task.View(), nil
}

func (s *TaskService) ListByPage(ctx context.Context, page string) ([]model.TaskView, error) {
	rows, err := s.tasks.ListByPage(ctx, page)
	if err != nil {
		return nil, err
	}
	return model.Views(rows), nil
}

func (s *TaskService) ListDashboardMain(ctx context.Context, startOfToday int64) ([]model.TaskView, error) {
	rows, err := s.tasks.ListDashboardMain(ctx, startOfToday)
	if err != nil {
		return nil, err
	}
	return model.Views(rows), nil
}

func (s *TaskService) ListHistory(ctx context.Context) ([]model.TaskView, error) {
	rows, err := s.tasks.ListHistory(ctx)
	if err != nil {
		return nil, err
	}
	return model.Views(rows), nil
}

// ListScheduledOn returns open tasks of any page scheduled for day
// (yyyy-MM-dd).
func (s *TaskService) ListScheduledOn(ctx context.Context, day string) ([]model.TaskView, error) {
	rows, err := s.tasks.ListScheduledOn(ctx, day)
	if err != nil {
		return nil, err
	}
	return model.Views(rows), nil
}

// Dashboard returns the inbox page and the main page as of startOfToday.
func (s *TaskService) Dashboard(ctx context.Context, startOfToday int64) (model.Dashboard, error) {
	inbox, err := s.ListByPage(ctx, model.PageDashboardNew)
	if err != nil {
		return model.Dashboard{}, err
	}
	main, err := s.ListDashboardMain(ctx, startOfToday)
	if err != nil {
		return model.Dashboard{}, err
	}
	return model.Dashboard{New: inbox, Main: main}, nil
}

func (s *TaskService) Count(ctx context.Context) (int64, error) {
	return s.tasks.Count(ctx)
}

func (s *TaskService) regenerate(ctx context.Context) {
	if s.gen == nil {
		return
	}
	if _, err := s.gen.Generate(ctx, s.now()); err != nil {
		s.log.Warn("recurrence generation after template write failed", slog.Any("error", err))
	}
}

// ValidateTaskInput checks a title and optional content the way the UI
// boundary expects: a title is required and is a single inline paragraph.
func ValidateTaskInput(title, content json.RawMessage) error {
	if len(bytes.TrimSpace(title)) == 0 {
		return model.NewValidationError("title", "task title is required")
	}
	if _, err := document.Parse(title); err != nil {
		return model.NewValidationError("title", "task title is not a valid document")
	}
	if document.ContainsHeading(title) {
		return model.NewValidationError("title", "task title must not contain heading nodes")
	}
	if document.ContainsList(title) {
		return model.NewValidationError("title", "task title must not contain list nodes")
	}
	if len(content) > 0 && document.ContainsHeading(content) {
		return model.NewValidationError("content", "task content must not contain heading nodes")
	}
	return nil
}

// ValidateScheduledDate accepts nil, blank or a yyyy-MM-dd calendar date.
func ValidateScheduledDate(d *string) error {
	v := normalizeDate(d)
	if v == nil {
		return nil
	}
	if _, err := time.Parse(dateLayout, *v); err != nil {
		return model.NewValidationError("scheduledDate", "scheduled date must be YYYY-MM-DD")
	}
	return nil
}

func applyPatch(task *model.Task, p model.TaskPatch) {
	if p.Page.Set {
		task.Page = p.Page.Value
	}
	if p.Title.Set {
		task.TitleJSON = optionalDoc(p.Title.Value)
		task.Title = document.PlainTextOf(p.Title.Value)
	}
	if p.Content.Set {
		task.ContentJSON = contentOrEmpty(p.Content.Value)
	}
	if p.Position.Set {
		task.Position = p.Position.Value
	}
	if p.ScheduledDate.Set {
		task.ScheduledDate = normalizeDate(p.ScheduledDate.Value)
	}
	if p.Recurrence.Set {
		task.RecurrenceJSON = normalizeRecurrence(p.Recurrence.Value)
	}
}

// nextStamp returns now, or prev+1 when the clock has not passed prev.
func nextStamp(now, prev int64) int64 {
	if now <= prev {
		return prev + 1
	}
	return now
}

const emptyDoc = `{"type":"doc","content":[]}`

func optionalDoc(raw json.RawMessage) *string {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return nil
	}
	return &v
}

func contentOrEmpty(raw json.RawMessage) string {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return emptyDoc
	}
	return v
}

func normalizeDate(d *string) *string {
	if d == nil {
		return nil
	}
	v := strings.TrimSpace(*d)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeRecurrence(raw json.RawMessage) *string {
	return optionalDoc(raw)
}

func indexText(t model.Task) string {
	return document.IndexText(t.TitleDocument(), []byte(t.ContentJSON))
}

// IsNotFound reports whether err means the task does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
