package runner

import (
	"context"
	"maps"
	"slices"
	"time"

	"clusterizer/internal/domain/model"

	"go.uber.org/zap"
)

// DefaultBackoff is how long the fetcher sleeps when there is no work.
const DefaultBackoff = 15 * time.Second

// API is the part of the coordinator client the fetcher uses.
type API interface {
	ListProjects(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error)
	ListProjectVersions(ctx context.Context, filter model.ProjectVersionFilter) ([]model.ProjectVersion, error)
	FetchTasks(ctx context.Context, req model.FetchTasksRequest) ([]model.Task, error)
}

type Cache interface {
	Ensure(ctx context.Context, url, destDir string) error
}

// Job is a fetched task together with the version whose program runs it.
type Job struct {
	Task    model.Task
	Version model.ProjectVersion
}

// Fetcher pulls assigned tasks for one platform and makes sure their
// programs are cached.
type Fetcher struct {
	api        API
	cache      Cache
	cacheDir   string
	platformID model.PlatformID
	backoff    time.Duration
	logger     *zap.Logger
}

func NewFetcher(api API, cache Cache, cacheDir string, platformID model.PlatformID, backoff time.Duration, logger *zap.Logger) *Fetcher {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Fetcher{
		api:        api,
		cache:      cache,
		cacheDir:   cacheDir,
		platformID: platformID,
		backoff:    backoff,
		logger:     logger,
	}
}

// Fetch asks for up to limit tasks. When nothing is available, or the
// coordinator cannot be reached, it sleeps for the backoff and returns no
// jobs.
func (f *Fetcher) Fetch(ctx context.Context, limit int) []Job {
	jobs, err := f.fetch(ctx, limit)
	if err != nil && ctx.Err() == nil {
		f.logger.Error("fetching tasks", zap.Error(err))
	}
	if len(jobs) == 0 {
		if err == nil {
			f.logger.Info("No tasks found. Sleeping", zap.Duration("backoff", f.backoff))
		}
		sleep(ctx, f.backoff)
	}
	return jobs
}

func (f *Fetcher) fetch(ctx context.Context, limit int) ([]Job, error) {
	versions, err := f.runnableVersions(ctx)
	if err != nil || len(versions) == 0 {
		return nil, err
	}

	projectIDs := slices.Sorted(maps.Keys(versions))
	tasks, err := f.api.FetchTasks(ctx, model.FetchTasksRequest{ProjectIDs: projectIDs, Limit: limit})
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(tasks))
	for _, task := range tasks {
		version, ok := versions[task.ProjectID]
		if !ok {
			f.logger.Warn("dropping task of unknown project",
				zap.Int64("task_id", int64(task.ID)),
				zap.Int64("project_id", int64(task.ProjectID)))
			continue
		}
		jobs = append(jobs, Job{Task: task, Version: version})
	}

	return f.ensureCached(ctx, jobs), nil
}

// runnableVersions maps every enabled project to its newest enabled version
// for the worker's platform.
func (f *Fetcher) runnableVersions(ctx context.Context) (map[model.ProjectID]model.ProjectVersion, error) {
	enabled := false
	projects, err := f.api.ListProjects(ctx, model.ProjectFilter{Disabled: &enabled})
	if err != nil {
		return nil, err
	}
	versions, err := f.api.ListProjectVersions(ctx, model.ProjectVersionFilter{Disabled: &enabled, PlatformID: &f.platformID})
	if err != nil {
		return nil, err
	}

	live := make(map[model.ProjectID]bool, len(projects))
	for _, p := range projects {
		live[p.ID] = true
	}
	out := make(map[model.ProjectID]model.ProjectVersion)
	for _, v := range versions {
		if !live[v.ProjectID] {
			continue
		}
		if cur, ok := out[v.ProjectID]; !ok || v.ID > cur.ID {
			out[v.ProjectID] = v
		}
	}
	return out, nil
}

func (f *Fetcher) ensureCached(ctx context.Context, jobs []Job) []Job {
	failed := make(map[model.ProjectVersionID]bool)
	done := make(map[model.ProjectVersionID]bool)
	for _, job := range jobs {
		v := job.Version
		if done[v.ID] || failed[v.ID] {
			continue
		}
		if err := f.cache.Ensure(ctx, v.ArchiveURL, VersionDir(f.cacheDir, v.ID)); err != nil {
			f.logger.Error("caching project version",
				zap.Int64("project_version_id", int64(v.ID)),
				zap.String("archive_url", v.ArchiveURL),
				zap.Error(err))
			failed[v.ID] = true
			continue
		}
		done[v.ID] = true
	}

	return slices.DeleteFunc(jobs, func(j Job) bool { return failed[j.Version.ID] })
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
