package model

import (
	"encoding/json"

	"github.com/onoki/glance/internal/document"
)

// Well-known pages.
const (
	PageDashboardMain = "dashboard:main"
	PageDashboardNew  = "dashboard:new"
)

// Task is a row of the tasks table. Documents are stored as serialized JSON.
type Task struct {
	ID             string  `gorm:"column:id;primaryKey"`
	Page           string  `gorm:"column:page;not null"`
	Title          string  `gorm:"column:title;not null;default:''"`
	TitleJSON      *string `gorm:"column:title_json"`
	ContentJSON    string  `gorm:"column:content_json;not null"`
	Position       float64 `gorm:"column:position;not null"`
	CreatedAt      int64   `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt      int64   `gorm:"column:updated_at;autoUpdateTime:false"`
	CompletedAt    *int64  `gorm:"column:completed_at"`
	ScheduledDate  *string `gorm:"column:scheduled_date"`
	RecurrenceJSON *string `gorm:"column:recurrence_json"`
}

func (Task) TableName() string { return "tasks" }

// IsTemplate reports whether the task carries a recurrence spec.
func (t Task) IsTemplate() bool { return t.RecurrenceJSON != nil }

// TitleDocument returns the structured title, synthesizing one from the
// legacy plain-text column when it was never stored.
func (t Task) TitleDocument() json.RawMessage {
	if t.TitleJSON != nil && *t.TitleJSON != "" {
		return json.RawMessage(*t.TitleJSON)
	}
	return document.FallbackTitle(t.Title)
}

// View converts the row to the shape returned to callers.
func (t Task) View() TaskView {
	v := TaskView{
		ID:            t.ID,
		Page:          t.Page,
		Title:         t.TitleDocument(),
		Content:       json.RawMessage(t.ContentJSON),
		Position:      t.Position,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		CompletedAt:   t.CompletedAt,
		ScheduledDate: t.ScheduledDate,
	}
	if t.RecurrenceJSON != nil {
		v.Recurrence = json.RawMessage(*t.RecurrenceJSON)
	}
	return v
}

// TaskView is a task as exposed by the store.
type TaskView struct {
	ID            string          `json:"id"`
	Page          string          `json:"page"`
	Title         json.RawMessage `json:"title"`
	Content       json.RawMessage `json:"content"`
	Position      float64         `json:"position"`
	CreatedAt     int64           `json:"createdAt"`
	UpdatedAt     int64           `json:"updatedAt"`
	CompletedAt   *int64          `json:"completedAt"`
	ScheduledDate *string         `json:"scheduledDate"`
	Recurrence    json.RawMessage `json:"recurrence,omitempty"`
}

// PlainTitle returns the title as plain text.
func (v TaskView) PlainTitle() string {
	return document.PlainTextOf(v.Title)
}

// Views converts a slice of rows.
func Views(rows []Task) []TaskView {
	out := make([]TaskView, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.View())
	}
	return out
}

// Field is an optional patch value; Set=false keeps the stored value.
type Field[T any] struct {
	Value T
	Set   bool
}

// SetField wraps v as a present patch value.
func SetField[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// TaskPatch lists the fields an update may change.
type TaskPatch struct {
	Page          Field[string]
	Title         Field[json.RawMessage]
	Content       Field[json.RawMessage]
	Position      Field[float64]
	ScheduledDate Field[*string]
	Recurrence    Field[json.RawMessage]
}

// NewTask is the input of a create.
type NewTask struct {
	Page          string
	Title         json.RawMessage
	Content       json.RawMessage
	Position      float64
	ScheduledDate *string
	Recurrence    json.RawMessage
}

// CreateResult is returned by a create.
type CreateResult struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updatedAt"`
}

// UpdateResult is returned by an update.
type UpdateResult struct {
	UpdatedAt      int64 `json:"updatedAt"`
	ExternalUpdate bool  `json:"externalUpdate"`
}

// CompletionResult is returned by a completion toggle.
type CompletionResult struct {
	CompletedAt *int64 `json:"completedAt"`
}

// Dashboard holds the two dashboard pages.
type Dashboard struct {
	New  []TaskView `json:"new"`
	Main []TaskView `json:"main"`
}
