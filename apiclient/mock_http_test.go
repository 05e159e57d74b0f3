package apiclient

import (
	"context"
	"net/url"

	"github.com/stretchr/testify/mock"
)

type mockHTTPClient struct {
	mock.Mock
}

func (m *mockHTTPClient) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	args := m.Called(ctx, method, path, query, body, out)
	return args.Error(0)
}

func (m *mockHTTPClient) DoRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	args := m.Called(ctx, path, query)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockHTTPClient) DoUpload(ctx context.Context, path, contentType string, data []byte, out any) error {
	args := m.Called(ctx, path, contentType, data, out)
	return args.Error(0)
}
