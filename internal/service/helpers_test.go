package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type env struct {
	db          *gorm.DB
	clock       *fakeClock
	tasks       *TaskService
	search      *SearchService
	changes     *ChangeService
	recurrence  *RecurrenceService
	history     *HistoryService
	maintenance *MaintenanceService
	searchRepo  *repository.SearchRepository
	state       *repository.StateStore
}

// 2024-05-15 is a Wednesday.
var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := repository.NewDB(ctx, filepath.Join(t.TempDir(), "glance.db"), repository.DBOptions{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })

	tx := repository.NewTxManager(db)
	taskRepo := repository.NewTaskRepository(db)
	searchRepo := repository.NewSearchRepository(db)
	changeRepo := repository.NewChangeRepository(db)
	metaRepo := repository.NewMetaRepository(db)
	state := repository.NewStateStore(afero.NewMemMapFs(), "/state")

	clock := &fakeClock{t: testNow}

	tasks := NewTaskService(tx, taskRepo, searchRepo, changeRepo, log)
	tasks.now = clock.now
	rec := NewRecurrenceService(tx, taskRepo, searchRepo, changeRepo, metaRepo, log)
	rec.now = clock.now
	tasks.SetGenerator(rec)
	search := NewSearchService(tx, taskRepo, searchRepo, log)
	history := NewHistoryService(tx, taskRepo, changeRepo, time.UTC, log)
	history.now = clock.now
	maint := NewMaintenanceService(MaintenanceConfig{
		TaskCountWarning: 3,
		Location:         time.UTC,
	}, afero.NewMemMapFs(), state, metaRepo, tasks, search, rec, history, log)
	maint.now = clock.now

	return &env{
		db:          db,
		clock:       clock,
		tasks:       tasks,
		search:      search,
		changes:     NewChangeService(changeRepo),
		recurrence:  rec,
		history:     history,
		maintenance: maint,
		searchRepo:  searchRepo,
		state:       state,
	}
}

func textDoc(s string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"type": "doc",
		"content": []any{map[string]any{
			"type":    "paragraph",
			"content": []any{map[string]any{"type": "text", "text": s}},
		}},
	})
	return b
}

func (e *env) create(t *testing.T, page, title string) model.CreateResult {
	t.Helper()
	res, err := e.tasks.Create(context.Background(), model.NewTask{
		Page:    page,
		Title:   textDoc(title),
		Content: json.RawMessage(`{"type":"doc","content":[]}`),
	})
	require.NoError(t, err)
	return res
}

// createTemplate stores a template row directly, without triggering
// generation.
func (e *env) createTemplate(t *testing.T, title, recurrence string) string {
	t.Helper()
	tpl := model.Task{
		ID:             "tpl-" + title,
		Page:           model.PageDashboardMain,
		Title:          title,
		ContentJSON:    `{"type":"doc","content":[]}`,
		CreatedAt:      1,
		UpdatedAt:      1,
		RecurrenceJSON: &recurrence,
	}
	require.NoError(t, e.tasks.tasks.Insert(context.Background(), &tpl))
	return tpl.ID
}

func viewIDs(views []model.TaskView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func changeTypes(set model.ChangeSet) []string {
	out := make([]string, 0, len(set.Changes))
	for _, c := range set.Changes {
		out = append(out, c.ChangeType)
	}
	return out
}
