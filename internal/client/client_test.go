package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"clusterizer/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fetch_tasks", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var req model.FetchTasksRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []model.ProjectID{1, 2}, req.ProjectIDs)
		assert.Equal(t, 3, req.Limit)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]model.Task{{ID: 9, ProjectID: 2, Stdin: "in"}})
	}))
	defer srv.Close()

	tasks, err := New(srv.URL+"/", "key").FetchTasks(context.Background(), model.FetchTasksRequest{ProjectIDs: []model.ProjectID{1, 2}, Limit: 3})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskID(9), tasks[0].ID)
}

func TestClient_ListUsesFilterQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/project_versions", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("disabled"))
		assert.Equal(t, "4", r.URL.Query().Get("platform_id"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	disabled := false
	platform := model.PlatformID(4)
	versions, err := New(srv.URL, "").ListProjectVersions(context.Background(), model.ProjectVersionFilter{Disabled: &disabled, PlatformID: &platform})
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		status      int
		body        string
		want        APIError
	}{
		{"json error", "application/json", 400, `{"error":"BadApiKey"}`, APIError{Status: 400, Code: "BadApiKey"}},
		{"json with charset", "application/json; charset=utf-8", 404, `{"error":"InvalidTask"}`, APIError{Status: 404, Code: "InvalidTask"}},
		{"plain text", "text/plain", 422, "bad body\n", APIError{Status: 422, Body: "bad body"}},
		{"empty 500", "", 500, "", APIError{Status: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := New(srv.URL, "k").SubmitResult(context.Background(), 1, model.SubmitResultRequest{})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.want, *apiErr)
		})
	}
}

func TestClient_SubmitResultIgnoresBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submit_result/42", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "k").SubmitResult(context.Background(), 42, model.SubmitResultRequest{Stdout: "x"}))
}
