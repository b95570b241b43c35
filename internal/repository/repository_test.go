package repository

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/onoki/glance/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "glance.db"), DBOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func ptr[T any](v T) *T { return &v }

func TestNewDB_MigrationsLogToOwnLogger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{"first.db", "second.db"} {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))

		db, err := NewDB(ctx, filepath.Join(dir, name), DBOptions{Logger: log})
		require.NoError(t, err)
		require.NoError(t, Close(db))

		assert.Contains(t, buf.String(), "file=00001_init.sql", name)
		assert.Contains(t, buf.String(), "file=00002_search.sql", name)
	}

	var buf bytes.Buffer
	db, err := NewDB(ctx, filepath.Join(dir, "first.db"), DBOptions{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	require.NoError(t, err)
	require.NoError(t, Close(db))
	assert.NotContains(t, buf.String(), "migration applied")
}

func row(id, page string, position float64, completedAt *int64) *model.Task {
	return &model.Task{
		ID:          id,
		Page:        page,
		Title:       id,
		ContentJSON: `{"type":"doc","content":[]}`,
		Position:    position,
		CreatedAt:   1,
		UpdatedAt:   1,
		CompletedAt: completedAt,
	}
}

func TestTaskRepository_InsertGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	require.NoError(t, repo.Insert(ctx, row("a", model.PageDashboardMain, 1, nil)))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)
	assert.Nil(t, got.TitleJSON)
	assert.Nil(t, got.CompletedAt)

	deleted, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.Get(ctx, "a")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTaskRepository_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	inserted, err := repo.InsertIfAbsent(ctx, row("occ", model.PageDashboardMain, 1, nil))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, row("occ", model.PageDashboardMain, 2, nil))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repo.Get(ctx, "occ")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Position)
}

func TestTaskRepository_Lists(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	const startOfToday = int64(1_000_000)
	require.NoError(t, repo.Insert(ctx, row("open-2", model.PageDashboardMain, 2, nil)))
	require.NoError(t, repo.Insert(ctx, row("open-1", model.PageDashboardMain, 1, nil)))
	require.NoError(t, repo.Insert(ctx, row("done-today", model.PageDashboardMain, 3, ptr(startOfToday+5))))
	require.NoError(t, repo.Insert(ctx, row("done-yesterday", model.PageDashboardMain, 4, ptr(startOfToday-1))))
	require.NoError(t, repo.Insert(ctx, row("inbox", model.PageDashboardNew, 1, nil)))

	main, err := repo.ListDashboardMain(ctx, startOfToday)
	require.NoError(t, err)
	assert.Equal(t, []string{"open-1", "open-2", "done-today"}, ids(main))

	byPage, err := repo.ListByPage(ctx, model.PageDashboardMain)
	require.NoError(t, err)
	assert.Equal(t, []string{"open-1", "open-2"}, ids(byPage))

	history, err := repo.ListHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"done-today", "done-yesterday"}, ids(history))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestTaskRepository_Backdate(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))

	task := row("done", model.PageDashboardMain, 1, ptr(int64(500)))
	task.UpdatedAt = 900
	require.NoError(t, repo.Insert(ctx, task))

	idsToMove, err := repo.CompletedIDsSince(ctx, 400)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, idsToMove)

	n, err := repo.Backdate(ctx, idsToMove, 400, 399, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, int64(399), *got.CompletedAt)
	assert.Equal(t, int64(901), got.UpdatedAt)
}

func TestTaskRepository_BackdateSkipsReopened(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(newTestDB(t))
	require.NoError(t, repo.Insert(ctx, row("a", model.PageDashboardMain, 1, ptr(int64(500)))))
	require.NoError(t, repo.Insert(ctx, row("b", model.PageDashboardMain, 2, ptr(int64(600)))))

	idsToMove, err := repo.CompletedIDsSince(ctx, 400)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, idsToMove)

	// "a" is reopened after the ids were read.
	require.NoError(t, repo.SetCompletion(ctx, "a", nil, 700))

	n, err := repo.Backdate(ctx, idsToMove, 400, 399, 800)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	reopened, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	assert.Equal(t, int64(700), reopened.UpdatedAt)

	moved, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, moved.CompletedAt)
	assert.Equal(t, int64(399), *moved.CompletedAt)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tasks := NewTaskRepository(db)
	changes := NewChangeRepository(db)
	tx := NewTxManager(db)

	boom := errors.New("boom")
	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, tasks.Insert(ctx, row("a", model.PageDashboardMain, 1, nil)))
		require.NoError(t, changes.Append(ctx, "a", model.ChangeCreate, 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = tasks.Get(ctx, "a")
	assert.ErrorIs(t, err, model.ErrNotFound)
	recs, err := changes.Since(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSearchRepository_QueryAndRebuild(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tasks := NewTaskRepository(db)
	search := NewSearchRepository(db)

	older := row("older", model.PageDashboardMain, 1, nil)
	older.UpdatedAt = 10
	newer := row("newer", model.PageDashboardMain, 2, nil)
	newer.UpdatedAt = 20
	require.NoError(t, tasks.Insert(ctx, older))
	require.NoError(t, tasks.Insert(ctx, newer))
	require.NoError(t, search.Replace(ctx, "older", "New task\nbuy milk"))
	require.NoError(t, search.Replace(ctx, "newer", "Newsletter\n"))

	got, err := search.Query(ctx, BuildMatchQuery("ew"), BuildLikePatterns("ew"))
	require.NoError(t, err)
	assert.Equal(t, []string{"newer", "older"}, ids(got))

	got, err = search.Query(ctx, BuildMatchQuery("milk"), BuildLikePatterns("milk"))
	require.NoError(t, err)
	assert.Equal(t, []string{"older"}, ids(got))

	require.NoError(t, search.Replace(ctx, "older", "Renamed\n"))
	got, err = search.Query(ctx, BuildMatchQuery("milk"), BuildLikePatterns("milk"))
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, db.Exec("DROP TABLE task_search").Error)
	exists, err := search.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, search.Rebuild(ctx, []SearchEntry{{TaskID: "older", Text: "New task\n"}}))
	exists, err = search.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := search.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"older": "New task\n"}, entries)
}

func TestSearchRepository_MatchSyntaxError(t *testing.T) {
	ctx := context.Background()
	search := NewSearchRepository(newTestDB(t))

	for _, match := range []string{`"unbalanced`, "*", "a:b", "off-road*"} {
		_, err := search.Query(ctx, match, nil)
		assert.ErrorIs(t, err, ErrMatchSyntax, match)
	}
}

func TestSearchRepository_MissingTableIsNotSyntax(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	search := NewSearchRepository(db)
	require.NoError(t, db.Exec("DROP TABLE task_search").Error)

	_, err := search.Query(ctx, "milk*", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMatchSyntax)
}

func TestChangeRepository_SinceIsOrdered(t *testing.T) {
	ctx := context.Background()
	changes := NewChangeRepository(newTestDB(t))

	require.NoError(t, changes.Append(ctx, "a", model.ChangeCreate, 1))
	require.NoError(t, changes.Append(ctx, "a", model.ChangeUpdate, 2))
	require.NoError(t, changes.Append(ctx, "b", model.ChangeDelete, 3))

	all, err := changes.Since(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Less(t, all[1].ID, all[2].ID)
	assert.Equal(t, model.EntityTask, all[0].EntityType)

	tail, err := changes.Since(ctx, all[1].ID)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, model.ChangeDelete, tail[0].ChangeType)
}

func TestMetaRepository(t *testing.T) {
	ctx := context.Background()
	meta := NewMetaRepository(newTestDB(t))

	_, ok, err := meta.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, meta.Set(ctx, "k", "v1"))
	require.NoError(t, meta.Set(ctx, "k", "v2"))
	v, ok, err := meta.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, meta.Delete(ctx, "k"))
	_, ok, err = meta.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	version, err := meta.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)

	result, err := meta.IntegrityCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func ids(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
