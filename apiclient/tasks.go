package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/storage"
)

// ListOptions narrows ListTasks and Calendar. Zero values do not constrain.
type ListOptions struct {
	ChainID       string
	Statuses      []storage.Status
	RecurringOnly bool
	HeadsOnly     bool
	Limit         int
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.ChainID != "" {
		q.Set("chain", o.ChainID)
	}
	if len(o.Statuses) > 0 {
		parts := make([]string, len(o.Statuses))
		for i, s := range o.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if o.RecurringOnly {
		q.Set("recurring", "true")
	}
	if o.HeadsOnly {
		q.Set("heads", "true")
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func (c *apiClient) Health(ctx context.Context) error {
	if err := c.httpClient.DoJSON(ctx, http.MethodGet, "/healthz", nil, nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *apiClient) CreateTask(ctx context.Context, req api.CreateTaskRequest) (*api.Task, error) {
	var task api.Task
	if err := c.httpClient.DoJSON(ctx, http.MethodPost, "/api/tasks", nil, req, &task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

func (c *apiClient) GetTask(ctx context.Context, id string) (*api.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("task id is required")
	}
	var task api.Task
	if err := c.httpClient.DoJSON(ctx, http.MethodGet, taskPath(id), nil, nil, &task); err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &task, nil
}

func (c *apiClient) ListTasks(ctx context.Context, opts ListOptions) ([]*api.Task, error) {
	var tasks []*api.Task
	if err := c.httpClient.DoJSON(ctx, http.MethodGet, "/api/tasks", opts.values(), nil, &tasks); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateStatus changes a task's status. Completing a recurring task returns
// the generated instance in NextInstance.
func (c *apiClient) UpdateStatus(ctx context.Context, id string, status storage.Status) (*api.UpdateStatusResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("task id is required")
	}
	var resp api.UpdateStatusResponse
	body := api.UpdateStatusRequest{Status: status}
	if err := c.httpClient.DoJSON(ctx, http.MethodPatch, taskPath(id)+"/status", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return &resp, nil
}
