package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onoki/glance/internal/model"
)

func TestSearch_InWordSubstring(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, model.PageDashboardMain, "New task")
	e.create(t, model.PageDashboardMain, "Other")

	got, err := e.search.Query(ctx, "ew")
	require.NoError(t, err)
	assert.Equal(t, []string{res.ID}, viewIDs(got))
}

func TestSearch_OrderAndAndSemantics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.create(t, model.PageDashboardMain, "milk and bread")
	e.clock.set(testNow.Add(time.Minute))
	second := e.create(t, model.PageDashboardMain, "milk only")

	got, err := e.search.Query(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, viewIDs(got))

	got, err = e.search.Query(ctx, "milk bread")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, viewIDs(got))
}

func TestSearch_BlankQuery(t *testing.T) {
	e := newEnv(t)
	e.create(t, model.PageDashboardMain, "anything")

	got, err := e.search.Query(context.Background(), "  \t ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_RejectedMatchFallsBackToSubstring(t *testing.T) {
	e := newEnv(t)
	res := e.create(t, model.PageDashboardMain, "renewal notice")

	for _, q := range []string{`"newal`, "*", "x:newal"} {
		got, err := e.search.Query(context.Background(), q)
		require.NoError(t, err, q)
		if q == "x:newal" {
			assert.Empty(t, got, q)
			continue
		}
		assert.Equal(t, []string{res.ID}, viewIDs(got), q)
	}
}

func TestSearch_RebuildMatchesIncremental(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, model.PageDashboardMain, "alpha")
	b := e.create(t, model.PageDashboardNew, "beta")
	_, err := e.tasks.Update(ctx, a.ID, a.UpdatedAt, model.TaskPatch{Title: model.SetField(textDoc("alpha two"))})
	require.NoError(t, err)
	_, err = e.tasks.Delete(ctx, b.ID)
	require.NoError(t, err)

	incremental, err := e.searchRepo.Entries(ctx)
	require.NoError(t, err)

	n, err := e.search.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rebuilt, err := e.searchRepo.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, incremental, rebuilt)
}
