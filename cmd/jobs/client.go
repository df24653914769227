package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/api"
	"github.com/phrazzld/coursework-jobs/internal/api/shared"
)

// taskClient talks to the task endpoints of a running server.
type taskClient struct {
	baseURL string
	http    *http.Client
}

func newTaskClient(baseURL string) *taskClient {
	return &taskClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *taskClient) Create(ctx context.Context, taskType string, params json.RawMessage) (*api.CreateTaskResponse, error) {
	var resp api.CreateTaskResponse
	req := api.CreateTaskRequest{TaskType: taskType, Parameters: params}
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *taskClient) Get(ctx context.Context, id string) (*api.TaskResponse, error) {
	var resp api.TaskResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *taskClient) Cancel(ctx context.Context, id string) (*api.TaskResponse, error) {
	var resp api.TaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *taskClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr shared.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("request failed with status code %d", resp.StatusCode)
		}
		return fmt.Errorf("request failed with status code %d: %s (trace %s)",
			resp.StatusCode, apiErr.Error, apiErr.TraceID)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
