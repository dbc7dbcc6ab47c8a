package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clusterizer/internal/app/service"
	"clusterizer/internal/common"
	"clusterizer/internal/common/security"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository/repotest"
	"clusterizer/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	store *repotest.Store
	keys  *security.APIKeys
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repotest.NewStore()
	keys := security.NewAPIKeys([]byte("test-secret"))
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logger := zap.NewNop()

	router := NewRouter(Services{
		Auth:            service.NewAuthService(store.Users(), keys),
		Dispatch:        service.NewDispatchService(store, store.Projects(), store.Tasks(), store.Assignments(), collector, logger),
		Submission:      service.NewSubmissionService(store, store.Assignments(), store.Results(), collector, logger),
		Users:           store.Users(),
		Platforms:       store.Platforms(),
		Projects:        store.Projects(),
		ProjectVersions: store.ProjectVersions(),
		Tasks:           store.Tasks(),
		Assignments:     store.Assignments(),
		Results:         store.Results(),
		Metrics:         collector.Handler(),
	}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, keys: keys}
}

func (s *testServer) do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func assertAPIError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	assert.Equal(t, status, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, code, decode[common.ErrorResponse](t, resp).Error)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/register", "", model.RegisterRequest{Name: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	key := decode[model.RegisterResponse](t, resp).APIKey
	require.NotEmpty(t, key)

	resp = s.do(t, http.MethodGet, "/users/me", key, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", decode[model.User](t, resp).Name)

	assertAPIError(t, s.do(t, http.MethodPost, "/register", "", model.RegisterRequest{Name: "alice"}), 400, "AlreadyExists")
	assertAPIError(t, s.do(t, http.MethodPost, "/register", "", model.RegisterRequest{Name: "al"}), 400, "TooShort")
	assertAPIError(t, s.do(t, http.MethodPost, "/register", "", model.RegisterRequest{Name: "a b c"}), 400, "InvalidCharacter")
}

func TestFetchAndSubmit(t *testing.T) {
	s := newTestServer(t)
	user := s.store.AddUser("worker")
	key := s.keys.Encode(user)
	p := s.store.AddProject(false)
	task := s.store.AddTask(p, 1, time.Hour)

	resp := s.do(t, http.MethodPost, "/fetch_tasks", key, model.FetchTasksRequest{ProjectIDs: []model.ProjectID{p}, Limit: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tasks := decode[[]model.Task](t, resp)
	require.Len(t, tasks, 1)
	assert.Equal(t, task, tasks[0].ID)

	code := int32(3)
	resp = s.do(t, http.MethodPost, "/submit_result/"+task.String(), key, model.SubmitResultRequest{Stdout: "out", ExitCode: &code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{}, decode[map[string]any](t, resp))

	assertAPIError(t, s.do(t, http.MethodPost, "/submit_result/"+task.String(), key, model.SubmitResultRequest{}), 400, "AlreadyExists")

	resp = s.do(t, http.MethodGet, "/assignments?task_id="+task.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	as := decode[[]model.Assignment](t, resp)
	require.Len(t, as, 1)
	assert.Equal(t, model.AssignmentSubmitted, as[0].State)

	resp = s.do(t, http.MethodGet, "/results?assignment_id="+as[0].ID.String(), "", nil)
	results := decode[[]model.Result](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, &code, results[0].ExitCode)
}

func TestFetchErrors(t *testing.T) {
	s := newTestServer(t)
	user := s.store.AddUser("worker")
	key := s.keys.Encode(user)

	assertAPIError(t, s.do(t, http.MethodPost, "/fetch_tasks", "", model.FetchTasksRequest{}), 400, "BadApiKey")
	assertAPIError(t, s.do(t, http.MethodPost, "/fetch_tasks", "bm9wZQ==", model.FetchTasksRequest{}), 400, "BadApiKey")
	assertAPIError(t, s.do(t, http.MethodPost, "/fetch_tasks", key, model.FetchTasksRequest{ProjectIDs: []model.ProjectID{999}, Limit: 1}), 400, "InvalidProject")
	assertAPIError(t, s.do(t, http.MethodPost, "/submit_result/1", key, model.SubmitResultRequest{}), 404, "InvalidTask")
	assertAPIError(t, s.do(t, http.MethodPost, "/submit_result/abc", key, model.SubmitResultRequest{}), 400, "BadRequest")

	s.store.DisableUser(user)
	assertAPIError(t, s.do(t, http.MethodPost, "/fetch_tasks", key, model.FetchTasksRequest{}), 401, "UserDisabled")
}

func TestListings(t *testing.T) {
	s := newTestServer(t)
	platform := s.store.AddPlatform("linux-x86_64")
	enabled := s.store.AddProject(false)
	s.store.AddProject(true)
	version := s.store.AddProjectVersion(enabled, platform, "https://example.com/v1.zip")

	resp := s.do(t, http.MethodGet, "/projects?disabled=false", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	projects := decode[[]model.Project](t, resp)
	require.Len(t, projects, 1)
	assert.Equal(t, enabled, projects[0].ID)

	resp = s.do(t, http.MethodGet, "/project_versions?platform_id="+platform.String()+"&disabled=false", "", nil)
	versions := decode[[]model.ProjectVersion](t, resp)
	require.Len(t, versions, 1)
	assert.Equal(t, version, versions[0].ID)

	resp = s.do(t, http.MethodGet, "/platforms/"+platform.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "linux-x86_64", decode[model.Platform](t, resp).Name)

	resp = s.do(t, http.MethodGet, "/tasks", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []model.Task{}, decode[[]model.Task](t, resp))

	assertAPIError(t, s.do(t, http.MethodGet, "/tasks/12345", "", nil), 404, "NotFound")
	assertAPIError(t, s.do(t, http.MethodGet, "/tasks/x", "", nil), 400, "BadRequest")
	assertAPIError(t, s.do(t, http.MethodGet, "/projects?disabled=maybe", "", nil), 400, "BadRequest")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
