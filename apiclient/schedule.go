package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/storage"
)

func (c *apiClient) Preview(ctx context.Context, req api.PreviewRequest) (*api.PreviewResponse, error) {
	var resp api.PreviewResponse
	if err := c.httpClient.DoJSON(ctx, http.MethodPost, "/api/recurrence/preview", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to preview rule: %w", err)
	}
	return &resp, nil
}

// Sweep runs the server's look-ahead sweep. Per-chain failures come back in
// the response, not as an error. lookaheadDays <= 0 uses the server default.
func (c *apiClient) Sweep(ctx context.Context, lookaheadDays int) (*api.SweepResponse, error) {
	var q url.Values
	if lookaheadDays > 0 {
		q = url.Values{"lookahead_days": {strconv.Itoa(lookaheadDays)}}
	}
	var resp api.SweepResponse
	if err := c.httpClient.DoJSON(ctx, http.MethodPost, "/api/sweep", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to run sweep: %w", err)
	}
	return &resp, nil
}

// Calendar fetches the iCalendar feed and decodes its VTODOs. The decoded
// tasks carry title, description, due date and rule only.
func (c *apiClient) Calendar(ctx context.Context, opts ListOptions) ([]*storage.Task, error) {
	data, err := c.httpClient.DoRaw(ctx, "/api/calendar.ics", opts.values())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	if !bytes.Contains(data, []byte("BEGIN:VTODO")) {
		return nil, nil
	}
	return storage.ICSToTasks(string(data))
}

// ImportCalendar creates tasks from the VTODOs of ics. When a storage
// failure stops the import part way, the returned response lists the
// tasks created before it together with the error.
func (c *apiClient) ImportCalendar(ctx context.Context, ics []byte) (*api.ImportResponse, error) {
	var resp api.ImportResponse
	if err := c.httpClient.DoUpload(ctx, "/api/tasks/import", "text/calendar; charset=utf-8", ics, &resp); err != nil {
		return &resp, fmt.Errorf("failed to import calendar: %w", err)
	}
	return &resp, nil
}
