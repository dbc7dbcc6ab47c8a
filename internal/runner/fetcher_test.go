package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clusterizer/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu       sync.Mutex
	projects []model.Project
	versions []model.ProjectVersion
	tasks    []model.Task
	err      error

	versionFilters []model.ProjectVersionFilter
	requests       []model.FetchTasksRequest
}

func (a *fakeAPI) ListProjects(context.Context, model.ProjectFilter) ([]model.Project, error) {
	return a.projects, a.err
}

func (a *fakeAPI) ListProjectVersions(_ context.Context, f model.ProjectVersionFilter) ([]model.ProjectVersion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.versionFilters = append(a.versionFilters, f)
	return a.versions, a.err
}

func (a *fakeAPI) FetchTasks(_ context.Context, req model.FetchTasksRequest) ([]model.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	return a.tasks, a.err
}

type fakeCache struct {
	mu      sync.Mutex
	ensured map[string]int
	fail    map[string]bool
}

func (c *fakeCache) Ensure(_ context.Context, url, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensured == nil {
		c.ensured = make(map[string]int)
	}
	c.ensured[url]++
	if c.fail[url] {
		return errors.New("download failed")
	}
	return nil
}

func TestFetch_PicksNewestVersionPerProject(t *testing.T) {
	api := &fakeAPI{
		projects: []model.Project{{ID: 1}, {ID: 2}},
		versions: []model.ProjectVersion{
			{ID: 10, ProjectID: 1, ArchiveURL: "v10"},
			{ID: 12, ProjectID: 1, ArchiveURL: "v12"},
			{ID: 11, ProjectID: 2, ArchiveURL: "v11"},
			{ID: 13, ProjectID: 3, ArchiveURL: "v13"},
		},
		tasks: []model.Task{
			{ID: 100, ProjectID: 1, Stdin: "a"},
			{ID: 101, ProjectID: 2, Stdin: "b"},
			{ID: 102, ProjectID: 1, Stdin: "c"},
		},
	}
	cache := &fakeCache{}
	f := NewFetcher(api, cache, t.TempDir(), 7, time.Hour, zap.NewNop())

	jobs := f.Fetch(context.Background(), 5)

	require.Len(t, jobs, 3)
	assert.Equal(t, model.ProjectVersionID(12), jobs[0].Version.ID)
	assert.Equal(t, model.ProjectVersionID(11), jobs[1].Version.ID)
	assert.Equal(t, model.ProjectVersionID(12), jobs[2].Version.ID)

	require.Len(t, api.requests, 1)
	assert.Equal(t, []model.ProjectID{1, 2}, api.requests[0].ProjectIDs, "project 3 is not enabled")
	assert.Equal(t, 5, api.requests[0].Limit)

	require.Len(t, api.versionFilters, 1)
	require.NotNil(t, api.versionFilters[0].PlatformID)
	assert.Equal(t, model.PlatformID(7), *api.versionFilters[0].PlatformID)

	assert.Equal(t, map[string]int{"v12": 1, "v11": 1}, cache.ensured)
}

func TestFetch_DropsTasksOfUnknownProjects(t *testing.T) {
	api := &fakeAPI{
		projects: []model.Project{{ID: 1}},
		versions: []model.ProjectVersion{{ID: 10, ProjectID: 1, ArchiveURL: "v10"}},
		tasks:    []model.Task{{ID: 100, ProjectID: 1}, {ID: 101, ProjectID: 9}},
	}
	f := NewFetcher(api, &fakeCache{}, t.TempDir(), 1, time.Hour, zap.NewNop())

	jobs := f.Fetch(context.Background(), 2)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.TaskID(100), jobs[0].Task.ID)
}

func TestFetch_DropsTasksWhoseArchiveFails(t *testing.T) {
	api := &fakeAPI{
		projects: []model.Project{{ID: 1}, {ID: 2}},
		versions: []model.ProjectVersion{
			{ID: 10, ProjectID: 1, ArchiveURL: "good"},
			{ID: 11, ProjectID: 2, ArchiveURL: "bad"},
		},
		tasks: []model.Task{{ID: 100, ProjectID: 2}, {ID: 101, ProjectID: 1}, {ID: 102, ProjectID: 2}},
	}
	cache := &fakeCache{fail: map[string]bool{"bad": true}}
	f := NewFetcher(api, cache, t.TempDir(), 1, time.Hour, zap.NewNop())

	jobs := f.Fetch(context.Background(), 3)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.TaskID(101), jobs[0].Task.ID)
	assert.Equal(t, 1, cache.ensured["bad"], "a failed version is tried once per fetch")
}

func TestFetch_SleepsWhenIdle(t *testing.T) {
	cases := map[string]*fakeAPI{
		"no tasks":    {projects: []model.Project{{ID: 1}}, versions: []model.ProjectVersion{{ID: 1, ProjectID: 1}}},
		"no versions": {projects: []model.Project{{ID: 1}}},
		"api error":   {err: errors.New("connection refused")},
	}
	for name, api := range cases {
		t.Run(name, func(t *testing.T) {
			f := NewFetcher(api, &fakeCache{}, t.TempDir(), 1, 50*time.Millisecond, zap.NewNop())

			start := time.Now()
			assert.Empty(t, f.Fetch(context.Background(), 1))
			assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		})
	}
}

func TestFetch_BackoffEndsOnCancel(t *testing.T) {
	f := NewFetcher(&fakeAPI{}, &fakeCache{}, t.TempDir(), 1, time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.Empty(t, f.Fetch(ctx, 1))
	assert.Less(t, time.Since(start), 5*time.Second)
}
