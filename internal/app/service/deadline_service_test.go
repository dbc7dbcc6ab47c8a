package service

import (
	"context"
	"testing"
	"time"

	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireOverdue_FreesSlot(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	dispatch := newDispatch(store)
	reaper := NewDeadlineService(store, store.Assignments(), store.Tasks())
	p := store.AddProject(false)
	task := store.AddTask(p, 1, time.Minute)
	u1, u2 := store.AddUser("u1"), store.AddUser("u2")
	req := model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 1}

	got, err := dispatch.FetchTasks(ctx, u1, req)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = dispatch.FetchTasks(ctx, u2, req)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := reaper.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "deadline not reached yet")

	store.Advance(2 * time.Minute)
	n, err = reaper.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = dispatch.FetchTasks(ctx, u2, req)
	require.NoError(t, err)
	assert.Equal(t, []model.TaskID{task}, taskIDs(got))

	got, err = dispatch.FetchTasks(ctx, u1, req)
	require.NoError(t, err)
	assert.Empty(t, got, "the expired assignment still blocks its user")
}

func TestExpireOverdue_LeavesSubmitted(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	u := store.AddUser("alice")
	p := store.AddProject(false)
	store.AddTask(p, 1, time.Minute)
	task := fetchOne(t, store, u, p)
	require.NoError(t, newSubmission(store).SubmitResult(ctx, task, u, model.SubmitResultRequest{}))

	store.Advance(time.Hour)
	n, err := NewDeadlineService(store, store.Assignments(), store.Tasks()).ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, _ := store.Tasks().FindByID(ctx, task)
	assert.Equal(t, []model.UserID{u}, got.AssignmentUserIDs)
}

func TestExpireOverdue_RollsBack(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	u := store.AddUser("alice")
	p := store.AddProject(false)
	store.AddTask(p, 1, time.Minute)
	task := fetchOne(t, store, u, p)
	store.Advance(time.Hour)
	store.FailOn("Expire")

	_, err := NewDeadlineService(store, store.Assignments(), store.Tasks()).ExpireOverdue(ctx)
	require.Error(t, err)

	as, _ := store.Assignments().List(ctx, model.AssignmentFilter{TaskID: &task})
	assert.Equal(t, model.AssignmentInit, as[0].State)
}
