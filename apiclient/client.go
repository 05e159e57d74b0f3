// Package apiclient is a Go client for the flow HTTP API.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lrhflow/flow/internal/httpclient"
	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/storage"
)

// Client defines the API operations
type Client interface {
	Health(ctx context.Context) error
	CreateTask(ctx context.Context, req api.CreateTaskRequest) (*api.Task, error)
	GetTask(ctx context.Context, id string) (*api.Task, error)
	ListTasks(ctx context.Context, opts ListOptions) ([]*api.Task, error)
	UpdateStatus(ctx context.Context, id string, status storage.Status) (*api.UpdateStatusResponse, error)
	Preview(ctx context.Context, req api.PreviewRequest) (*api.PreviewResponse, error)
	Sweep(ctx context.Context, lookaheadDays int) (*api.SweepResponse, error)
	Calendar(ctx context.Context, opts ListOptions) ([]*storage.Task, error)
	ImportCalendar(ctx context.Context, ics []byte) (*api.ImportResponse, error)
}

type apiClient struct {
	httpClient httpclient.HttpClientWrapper
}

// New creates a client on top of an existing wrapper
func New(httpClient httpclient.HttpClientWrapper) Client {
	return &apiClient{httpClient: httpClient}
}

// Config holds optional settings for Dial
type Config struct {
	Logger *slog.Logger
	// Client provides the base transport; its Transport is wrapped with
	// basic auth. A client with a 30s timeout is used when nil.
	Client *http.Client
}

// Dial creates a client for the server at serverURL authenticating as
// username
func Dial(serverURL, username, password string, config *Config) (Client, error) {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", serverURL)
	}

	var transport http.RoundTripper
	timeout := 30 * time.Second
	if config.Client != nil {
		transport = config.Client.Transport
		timeout = config.Client.Timeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: httpclient.NewBasicAuthTransport(username, password, transport, logger),
	}

	wrapper, err := httpclient.NewHttpClientWrapper(client, *base, logger)
	if err != nil {
		return nil, err
	}
	return New(wrapper), nil
}
