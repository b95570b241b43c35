package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

func TestMaintenance_EnsureSearchIndexRecoversMissingTable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, model.PageDashboardMain, "survivor")

	require.NoError(t, e.db.Exec("DROP TABLE task_search").Error)
	_, err := e.search.Query(ctx, "survivor")
	require.Error(t, err)

	require.NoError(t, e.maintenance.EnsureSearchIndex(ctx))

	got, err := e.search.Query(ctx, "survivor")
	require.NoError(t, err)
	assert.Equal(t, []string{res.ID}, viewIDs(got))

	st, err := e.state.Load()
	require.NoError(t, err)
	assert.False(t, st.ReindexInProgress)
	assert.Equal(t, testNow.UnixMilli(), st.LastReindexAt)
}

func TestMaintenance_InterruptedReindexIsRedone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.create(t, model.PageDashboardMain, "x")

	_, err := e.state.Update(func(st *repository.MaintenanceState) error {
		st.ReindexInProgress = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.maintenance.EnsureSearchIndex(ctx))

	st, err := e.state.Load()
	require.NoError(t, err)
	assert.False(t, st.ReindexInProgress)
	assert.NotZero(t, st.LastReindexAt)
}

func TestMaintenance_HealthyIndexIsLeftAlone(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.maintenance.EnsureSearchIndex(context.Background()))

	st, err := e.state.Load()
	require.NoError(t, err)
	assert.Zero(t, st.LastReindexAt)
}

func TestMaintenance_ReindexRefusesConcurrentRun(t *testing.T) {
	e := newEnv(t)
	e.maintenance.reindexMu.Lock()
	defer e.maintenance.reindexMu.Unlock()

	_, err := e.maintenance.ReindexSearch(context.Background())
	assert.ErrorIs(t, err, model.ErrReindexInProgress)
}

func TestMaintenance_StartupGeneratesAndChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createTemplate(t, "Weekly", `{"type":"weekly","weekdays":[5]}`)
	e.maintenance.cfg.AppVersion = "1.2.3"

	require.NoError(t, e.maintenance.RunStartup(ctx))

	st, err := e.state.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, st.LastGenerated)
	assert.Empty(t, st.IntegrityError)
	assert.NotZero(t, st.IntegrityCheckAt)

	v, ok, err := e.maintenance.meta.Get(ctx, model.MetaAppVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.2.3", v)

	require.NoError(t, e.maintenance.RunDaily(ctx))
	st, err = e.state.Load()
	require.NoError(t, err)
	assert.Zero(t, st.LastGenerated)
}

func TestMaintenance_Warnings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	warnings, err := e.maintenance.Warnings(ctx)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	for _, title := range []string{"a", "b", "c"} {
		e.create(t, model.PageDashboardMain, title)
	}
	_, err = e.state.Update(func(st *repository.MaintenanceState) error {
		st.IntegrityError = "row 3 missing from index"
		return nil
	})
	require.NoError(t, err)

	warnings, err = e.maintenance.Warnings(ctx)
	require.NoError(t, err)
	codes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []string{"task_count", "integrity"}, codes)
}

func TestMaintenance_ArchiveAndStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, model.PageDashboardMain, "done")
	_, err := e.tasks.SetCompletion(ctx, res.ID, true)
	require.NoError(t, err)

	moved, err := e.maintenance.Archive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	status, err := e.maintenance.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, status.SchemaVersion)
	assert.EqualValues(t, 1, status.TaskCount)
	assert.True(t, status.IndexPresent)
	assert.Zero(t, status.IndexStale)
	assert.Equal(t, testNow.UnixMilli(), status.State.LastArchiveAt)

	require.NoError(t, e.db.Exec("UPDATE task_search SET content = 'old text'").Error)
	require.NoError(t, e.db.Exec("INSERT INTO task_search (task_id, content) VALUES ('gone', 'orphan')").Error)
	status, err = e.maintenance.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.IndexStale)

	_, err = e.maintenance.ReindexSearch(ctx)
	require.NoError(t, err)
	status, err = e.maintenance.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.IndexStale)
}
