package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// HttpClientWrapper wraps http.Client with the request shapes the flow API
// uses: JSON in, JSON out, and plain bodies for the calendar feed.
type HttpClientWrapper interface {
	// DoJSON sends body (if non-nil) as JSON and decodes a 2xx response
	// into out (if non-nil).
	DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error
	// DoRaw sends a GET and returns the raw 2xx response body.
	DoRaw(ctx context.Context, path string, query url.Values) ([]byte, error)
	// DoUpload POSTs data with the given content type and decodes the JSON
	// response into out. Non-2xx responses still fill out when the body is
	// JSON, alongside the returned StatusError.
	DoUpload(ctx context.Context, path, contentType string, data []byte, out any) error
}

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	resolved := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		resolved.RawQuery = query.Encode()
	}
	return resolved, nil
}

// NewHttpClientWrapper creates a new client wrapper with logging. Use a
// client whose transport is a BasicAuthTransport for authenticated calls.
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClientWrapper{client: client, baseURL: baseURL, logger: logger}, nil
}
