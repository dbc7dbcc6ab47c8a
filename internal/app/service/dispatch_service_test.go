package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository/repotest"
	"clusterizer/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDispatch(store *repotest.Store) *DispatchService {
	return NewDispatchService(store, store.Projects(), store.Tasks(), store.Assignments(),
		metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())
}

func taskIDs(tasks []model.Task) []model.TaskID {
	ids := make([]model.TaskID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func TestFetchTasks_AssignsInIDOrder(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	u := store.AddUser("alice")
	p := store.AddProject(false)
	t1 := store.AddTask(p, 1, time.Hour)
	t2 := store.AddTask(p, 1, time.Hour)
	store.AddTask(p, 1, time.Hour)

	tasks, err := newDispatch(store).FetchTasks(ctx, u, model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []model.TaskID{t1, t2}, taskIDs(tasks))
	assert.Equal(t, []model.UserID{u}, tasks[0].AssignmentUserIDs)

	as, _ := store.Assignments().List(ctx, model.AssignmentFilter{UserID: &u})
	require.Len(t, as, 2)
	for _, a := range as {
		assert.Equal(t, model.AssignmentInit, a.State)
		assert.Equal(t, store.Now().Add(time.Hour), a.DeadlineAt)
	}
}

func TestFetchTasks_ReplicationAcrossUsers(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	svc := newDispatch(store)
	p := store.AddProject(false)
	task := store.AddTask(p, 2, time.Hour)
	u1, u2, u3 := store.AddUser("u1"), store.AddUser("u2"), store.AddUser("u3")
	req := model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 5}

	got, err := svc.FetchTasks(ctx, u1, req)
	require.NoError(t, err)
	assert.Equal(t, []model.TaskID{task}, taskIDs(got))

	got, err = svc.FetchTasks(ctx, u1, req)
	require.NoError(t, err)
	assert.Empty(t, got, "same user never gets the task twice")

	got, err = svc.FetchTasks(ctx, u2, req)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.FetchTasks(ctx, u3, req)
	require.NoError(t, err)
	assert.Empty(t, got, "replication target reached")
}

func TestFetchTasks_UnknownProject(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	u := store.AddUser("alice")
	p := store.AddProject(false)
	store.AddTask(p, 1, time.Hour)

	_, err := newDispatch(store).FetchTasks(ctx, u, model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p, 12345}, Limit: 5})
	assert.ErrorIs(t, err, common.ErrInvalidProject)
	assert.Empty(t, store.Snapshot().Assignments)
}

func TestFetchTasks_DuplicateAndDisabledProjects(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	u := store.AddUser("alice")
	enabled := store.AddProject(false)
	disabled := store.AddProject(true)
	want := store.AddTask(enabled, 1, time.Hour)
	store.AddTask(disabled, 1, time.Hour)

	tasks, err := newDispatch(store).FetchTasks(ctx, u, model.FetchTasksRequest{
		ProjectIDs: []model.ProjectID{enabled, disabled, enabled},
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, []model.TaskID{want}, taskIDs(tasks))
}

func TestFetchTasks_LimitBounds(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	p := store.AddProject(false)
	for i := 0; i < model.HardFetchLimit+8; i++ {
		store.AddTask(p, 1, time.Hour)
	}
	svc := newDispatch(store)

	got, err := svc.FetchTasks(ctx, store.AddUser("a1"), model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, got, model.HardFetchLimit)

	got, err = svc.FetchTasks(ctx, store.AddUser("a2"), model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 0})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFetchTasks_EmptyRequestReturnsEmptySlice(t *testing.T) {
	store := repotest.NewStore()
	got, err := newDispatch(store).FetchTasks(context.Background(), store.AddUser("alice"), model.FetchTasksRequest{Limit: 3})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetchTasks_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	u := store.AddUser("alice")
	p := store.AddProject(false)
	task := store.AddTask(p, 1, time.Hour)
	store.FailOn("CreateForTasks")

	_, err := newDispatch(store).FetchTasks(ctx, u, model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 1})
	require.Error(t, err)

	got, _ := store.Tasks().FindByID(ctx, task)
	assert.Empty(t, got.AssignmentUserIDs)
	assert.Empty(t, store.Snapshot().Assignments)
}

func TestFetchTasks_ConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore()
	svc := newDispatch(store)
	p := store.AddProject(false)
	var tasks []model.TaskID
	for i := 0; i < 20; i++ {
		tasks = append(tasks, store.AddTask(p, 3, time.Hour))
	}
	var users []model.UserID
	for i := 0; i < 8; i++ {
		users = append(users, store.AddUser("user"+string(rune('a'+i))))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u model.UserID) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := svc.FetchTasks(ctx, u, model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 4})
				assert.NoError(t, err)
			}
		}(u)
	}
	wg.Wait()

	for _, id := range tasks {
		assert.Equal(t, int32(3), store.LiveCount(id))
	}
}
