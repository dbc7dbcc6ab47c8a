// Package repotest provides an in-memory implementation of the repository
// interfaces for tests.
package repotest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository"
)

// Store is an in-memory stand-in for the PostgreSQL repositories. A
// transaction holds the store mutex for its whole duration and restores a
// snapshot when fn fails, which gives the same all-or-nothing visibility the
// row locks give in the database.
type Store struct {
	mu  sync.Mutex
	now time.Time

	users       map[model.UserID]model.User
	platforms   map[model.PlatformID]model.Platform
	projects    map[model.ProjectID]model.Project
	versions    map[model.ProjectVersionID]model.ProjectVersion
	tasks       map[model.TaskID]model.Task
	assignments map[model.AssignmentID]model.Assignment
	results     map[model.ResultID]model.Result

	nextID int64
	failOn string
}

// NewStore returns an empty store whose clock starts at 2024-01-01 UTC.
func NewStore() *Store {
	return &Store{
		now:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		users:       map[model.UserID]model.User{},
		platforms:   map[model.PlatformID]model.Platform{},
		projects:    map[model.ProjectID]model.Project{},
		versions:    map[model.ProjectVersionID]model.ProjectVersion{},
		tasks:       map[model.TaskID]model.Task{},
		assignments: map[model.AssignmentID]model.Assignment{},
		results:     map[model.ResultID]model.Result{},
	}
}

// ErrInjected is returned by the operation named in FailOn.
type ErrInjected struct{}

func (ErrInjected) Error() string { return "injected failure" }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) fail(op string) error {
	if s.failOn == op {
		s.failOn = ""
		return ErrInjected{}
	}
	return nil
}

func (s *Store) AddUser(name string) model.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.UserID(s.id())
	s.users[id] = model.User{ID: id, CreatedAt: s.now, Name: name}
	return id
}

func (s *Store) AddProject(disabled bool) model.ProjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.ProjectID(s.id())
	p := model.Project{ID: id, CreatedAt: s.now, Name: "p"}
	if disabled {
		at := s.now
		p.DisabledAt = &at
	}
	s.projects[id] = p
	return id
}

func (s *Store) AddTask(projectID model.ProjectID, needed int32, deadline time.Duration) model.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.TaskID(s.id())
	s.tasks[id] = model.Task{
		ID:                id,
		CreatedAt:         s.now,
		Deadline:          model.IntervalOf(deadline),
		ProjectID:         projectID,
		AssignmentsNeeded: needed,
		AssignmentUserIDs: []model.UserID{},
	}
	return id
}

// Advance moves the store clock forward.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *Store) checkpoint() func() {
	users, projects := maps.Clone(s.users), maps.Clone(s.projects)
	platforms, versions := maps.Clone(s.platforms), maps.Clone(s.versions)
	tasks := make(map[model.TaskID]model.Task, len(s.tasks))
	for id, t := range s.tasks {
		t.AssignmentUserIDs = slices.Clone(t.AssignmentUserIDs)
		tasks[id] = t
	}
	assignments, results := maps.Clone(s.assignments), maps.Clone(s.results)
	nextID := s.nextID
	return func() {
		s.users, s.projects, s.tasks = users, projects, tasks
		s.platforms, s.versions = platforms, versions
		s.assignments, s.results, s.nextID = assignments, results, nextID
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.DBTX) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := s.checkpoint()
	if err := fn(nil); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) Users() repository.UserRepository             { return memUsers{s} }
func (s *Store) Projects() repository.ProjectRepository       { return memProjects{s} }
func (s *Store) Tasks() repository.TaskRepository             { return memTasks{s} }
func (s *Store) Assignments() repository.AssignmentRepository { return memAssignments{s} }
func (s *Store) Results() repository.ResultRepository         { return memResults{s} }

// Methods taking a DBTX run inside WithinTx and expect the mutex held; the
// others lock it themselves.

type memUsers struct{ s *Store }

func (r memUsers) Create(ctx context.Context, name string) (model.UserID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Name == name {
			return 0, common.ErrUserExists
		}
	}
	id := model.UserID(r.s.id())
	r.s.users[id] = model.User{ID: id, CreatedAt: r.s.now, Name: name}
	return id, nil
}

func (r memUsers) FindByID(ctx context.Context, id model.UserID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) List(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.User{}
	for _, id := range slices.Sorted(maps.Keys(r.s.users)) {
		u := r.s.users[id]
		if filter.Disabled == nil || *filter.Disabled == u.Disabled() {
			out = append(out, u)
		}
	}
	return out, nil
}

type memProjects struct{ s *Store }

func (r memProjects) FindByIDs(ctx context.Context, q repository.DBTX, ids []model.ProjectID) ([]model.Project, error) {
	out := []model.Project{}
	for _, id := range ids {
		if p, ok := r.s.projects[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProjects) FindByID(ctx context.Context, id model.ProjectID) (*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (r memProjects) List(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Project{}
	for _, id := range slices.Sorted(maps.Keys(r.s.projects)) {
		p := r.s.projects[id]
		if filter.Disabled == nil || *filter.Disabled == p.Disabled() {
			out = append(out, p)
		}
	}
	return out, nil
}

type memTasks struct{ s *Store }

func (r memTasks) LockEligible(ctx context.Context, q repository.DBTX, projectIDs []model.ProjectID, userID model.UserID, limit int) ([]model.Task, error) {
	if err := r.s.fail("LockEligible"); err != nil {
		return nil, err
	}
	out := []model.Task{}
	for _, id := range slices.Sorted(maps.Keys(r.s.tasks)) {
		if len(out) == limit {
			break
		}
		t := r.s.tasks[id]
		if !slices.Contains(projectIDs, t.ProjectID) || !t.AcceptsUser(userID) || r.s.holdsLive(id, userID) {
			continue
		}
		t.AssignmentUserIDs = slices.Clone(t.AssignmentUserIDs)
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) holdsLive(taskID model.TaskID, userID model.UserID) bool {
	for _, a := range s.assignments {
		if a.TaskID == taskID && a.UserID == userID && a.State != model.AssignmentCanceled {
			return true
		}
	}
	return false
}

func (r memTasks) AddAssignee(ctx context.Context, q repository.DBTX, taskIDs []model.TaskID, userID model.UserID) error {
	if err := r.s.fail("AddAssignee"); err != nil {
		return err
	}
	for _, id := range taskIDs {
		t := r.s.tasks[id]
		t.AssignmentUserIDs = append(slices.Clone(t.AssignmentUserIDs), userID)
		r.s.tasks[id] = t
	}
	return nil
}

func (r memTasks) ReleaseAssignees(ctx context.Context, q repository.DBTX, assignmentIDs []model.AssignmentID) error {
	for _, aid := range assignmentIDs {
		a := r.s.assignments[aid]
		t := r.s.tasks[a.TaskID]
		t.AssignmentUserIDs = slices.DeleteFunc(slices.Clone(t.AssignmentUserIDs), func(u model.UserID) bool {
			return u == a.UserID
		})
		r.s.tasks[a.TaskID] = t
	}
	return nil
}

func (r memTasks) FindByID(ctx context.Context, id model.TaskID) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	t.AssignmentUserIDs = slices.Clone(t.AssignmentUserIDs)
	return &t, nil
}

func (r memTasks) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Task{}
	for _, id := range slices.Sorted(maps.Keys(r.s.tasks)) {
		t := r.s.tasks[id]
		if filter.ProjectID == nil || *filter.ProjectID == t.ProjectID {
			t.AssignmentUserIDs = slices.Clone(t.AssignmentUserIDs)
			out = append(out, t)
		}
	}
	return out, nil
}

type memAssignments struct{ s *Store }

func (r memAssignments) CreateForTasks(ctx context.Context, q repository.DBTX, taskIDs []model.TaskID, userID model.UserID) ([]model.Assignment, error) {
	if err := r.s.fail("CreateForTasks"); err != nil {
		return nil, err
	}
	out := []model.Assignment{}
	for _, tid := range taskIDs {
		if r.s.holdsLive(tid, userID) {
			return nil, ErrInjected{} // unique index violation
		}
		a := model.Assignment{
			ID:         model.AssignmentID(r.s.id()),
			CreatedAt:  r.s.now,
			DeadlineAt: r.s.now.Add(r.s.tasks[tid].Deadline.Duration()),
			TaskID:     tid,
			UserID:     userID,
			State:      model.AssignmentInit,
		}
		r.s.assignments[a.ID] = a
		out = append(out, a)
	}
	return out, nil
}

func (r memAssignments) FindActiveForUpdate(ctx context.Context, q repository.DBTX, taskID model.TaskID, userID model.UserID) (*model.Assignment, error) {
	for _, a := range r.s.assignments {
		if a.TaskID == taskID && a.UserID == userID && a.State != model.AssignmentCanceled {
			return &a, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memAssignments) MarkSubmitted(ctx context.Context, q repository.DBTX, id model.AssignmentID) (bool, error) {
	a := r.s.assignments[id]
	if a.State != model.AssignmentInit {
		return false, nil
	}
	a.State = model.AssignmentSubmitted
	r.s.assignments[id] = a
	return true, nil
}

func (r memAssignments) LockOverdue(ctx context.Context, q repository.DBTX) ([]model.AssignmentID, error) {
	out := []model.AssignmentID{}
	for _, id := range slices.Sorted(maps.Keys(r.s.assignments)) {
		a := r.s.assignments[id]
		if a.State == model.AssignmentInit && a.DeadlineAt.Before(r.s.now) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r memAssignments) Expire(ctx context.Context, q repository.DBTX, ids []model.AssignmentID) (int64, error) {
	if err := r.s.fail("Expire"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		a := r.s.assignments[id]
		if a.State == model.AssignmentInit && a.DeadlineAt.Before(r.s.now) {
			a.State = model.AssignmentExpired
			r.s.assignments[id] = a
			n++
		}
	}
	return n, nil
}

func (r memAssignments) FindByID(ctx context.Context, id model.AssignmentID) (*model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &a, nil
}

func (r memAssignments) List(ctx context.Context, filter model.AssignmentFilter) ([]model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Assignment{}
	for _, id := range slices.Sorted(maps.Keys(r.s.assignments)) {
		a := r.s.assignments[id]
		if filter.TaskID != nil && *filter.TaskID != a.TaskID {
			continue
		}
		if filter.UserID != nil && *filter.UserID != a.UserID {
			continue
		}
		if filter.State != nil && *filter.State != a.State {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type memResults struct{ s *Store }

func (r memResults) Create(ctx context.Context, q repository.DBTX, assignmentID model.AssignmentID, req model.SubmitResultRequest) (model.ResultID, error) {
	for _, res := range r.s.results {
		if res.AssignmentID == assignmentID {
			return 0, common.ErrResultExists
		}
	}
	res := model.Result{
		ID:           model.ResultID(r.s.id()),
		CreatedAt:    r.s.now,
		AssignmentID: assignmentID,
		Stdout:       req.Stdout,
		Stderr:       req.Stderr,
		ExitCode:     req.ExitCode,
	}
	r.s.results[res.ID] = res
	return res.ID, nil
}

func (r memResults) FindByID(ctx context.Context, id model.ResultID) (*model.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.results[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &res, nil
}

func (r memResults) List(ctx context.Context, filter model.ResultFilter) ([]model.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Result{}
	for _, id := range slices.Sorted(maps.Keys(r.s.results)) {
		res := r.s.results[id]
		if filter.AssignmentID == nil || *filter.AssignmentID == res.AssignmentID {
			out = append(out, res)
		}
	}
	return out, nil
}

// LiveCount returns the live assignments of taskID. Caller holds no lock.
func (s *Store) LiveCount(taskID model.TaskID) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int32
	for _, a := range s.assignments {
		if a.TaskID == taskID && a.State.IsLive() {
			n++
		}
	}
	return n
}

// FailOn makes the named repository operation fail once with ErrInjected.
// Supported: LockEligible, AddAssignee, CreateForTasks, Expire.
func (s *Store) FailOn(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = op
}

func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Store) DisableUser(id model.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	at := s.now
	u.DisabledAt = &at
	s.users[id] = u
}

func (s *Store) AddPlatform(name string) model.PlatformID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.PlatformID(s.id())
	s.platforms[id] = model.Platform{ID: id, CreatedAt: s.now, Name: name}
	return id
}

func (s *Store) AddProjectVersion(projectID model.ProjectID, platformID model.PlatformID, archiveURL string) model.ProjectVersionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.ProjectVersionID(s.id())
	s.versions[id] = model.ProjectVersion{
		ID:         id,
		CreatedAt:  s.now,
		ProjectID:  projectID,
		PlatformID: platformID,
		ArchiveURL: archiveURL,
	}
	return id
}

// MaxID is the largest id handed out so far, across all record types.
func (s *Store) MaxID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Snapshot is a consistent copy of the store contents, ordered by id.
type Snapshot struct {
	Now         time.Time
	Tasks       []model.Task
	Assignments []model.Assignment
	Results     []model.Result
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Now: s.now}
	for _, id := range slices.Sorted(maps.Keys(s.tasks)) {
		t := s.tasks[id]
		t.AssignmentUserIDs = slices.Clone(t.AssignmentUserIDs)
		snap.Tasks = append(snap.Tasks, t)
	}
	for _, id := range slices.Sorted(maps.Keys(s.assignments)) {
		snap.Assignments = append(snap.Assignments, s.assignments[id])
	}
	for _, id := range slices.Sorted(maps.Keys(s.results)) {
		snap.Results = append(snap.Results, s.results[id])
	}
	return snap
}

func (s *Store) Platforms() repository.PlatformRepository { return memPlatforms{s} }
func (s *Store) ProjectVersions() repository.ProjectVersionRepository {
	return memProjectVersions{s}
}

type memPlatforms struct{ s *Store }

func (r memPlatforms) FindByID(ctx context.Context, id model.PlatformID) (*model.Platform, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.platforms[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (r memPlatforms) List(ctx context.Context, filter model.PlatformFilter) ([]model.Platform, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Platform{}
	for _, id := range slices.Sorted(maps.Keys(r.s.platforms)) {
		out = append(out, r.s.platforms[id])
	}
	return out, nil
}

type memProjectVersions struct{ s *Store }

func (r memProjectVersions) FindByID(ctx context.Context, id model.ProjectVersionID) (*model.ProjectVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.versions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &v, nil
}

func (r memProjectVersions) List(ctx context.Context, filter model.ProjectVersionFilter) ([]model.ProjectVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.ProjectVersion{}
	for _, id := range slices.Sorted(maps.Keys(r.s.versions)) {
		v := r.s.versions[id]
		if filter.Disabled != nil && *filter.Disabled != v.Disabled() {
			continue
		}
		if filter.ProjectID != nil && *filter.ProjectID != v.ProjectID {
			continue
		}
		if filter.PlatformID != nil && *filter.PlatformID != v.PlatformID {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
