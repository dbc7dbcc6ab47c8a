// Package client is the worker's HTTP client for the coordinator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"

	"github.com/google/uuid"
)

const DefaultServerURL = "https://clusterizer.mcathome.dev"

// APIError is a non-2xx answer from the coordinator. Code holds the error
// variant when the body was a JSON error document, Body the raw text
// otherwise.
type APIError struct {
	Status int
	Code   string
	Body   string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
	case e.Body != "":
		return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client for baseURL. apiKey may be empty for unauthenticated
// calls such as Register.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Register(ctx context.Context, name string) (*model.RegisterResponse, error) {
	var resp model.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/register", nil, model.RegisterRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchTasks(ctx context.Context, req model.FetchTasksRequest) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.do(ctx, http.MethodPost, "/fetch_tasks", nil, req, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) SubmitResult(ctx context.Context, taskID model.TaskID, req model.SubmitResultRequest) error {
	return c.do(ctx, http.MethodPost, "/submit_result/"+taskID.String(), nil, req, nil)
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetPlatform(ctx context.Context, id model.PlatformID) (*model.Platform, error) {
	var platform model.Platform
	if err := c.do(ctx, http.MethodGet, "/platforms/"+id.String(), nil, nil, &platform); err != nil {
		return nil, err
	}
	return &platform, nil
}

func (c *Client) ListProjects(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error) {
	var projects []model.Project
	if err := c.do(ctx, http.MethodGet, "/projects", filter.Values(), nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) ListProjectVersions(ctx context.Context, filter model.ProjectVersionFilter) ([]model.ProjectVersion, error) {
	var versions []model.ProjectVersion
	if err := c.do(ctx, http.MethodGet, "/project_versions", filter.Values(), nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}

	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		var body common.ErrorResponse
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Code = body.Error
			return apiErr
		}
	}
	apiErr.Body = strings.TrimSpace(string(raw))
	return apiErr
}
