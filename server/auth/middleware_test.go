package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuthenticator struct {
	users map[string]Principal
	pass  string
}

func (a staticAuthenticator) Authenticate(_ context.Context, creds Credentials) (*Principal, error) {
	p, ok := a.users[creds.Username]
	if !ok || creds.Password != a.pass {
		return nil, &Error{Type: ErrInvalidCredentials, Message: "invalid username or password"}
	}
	return &p, nil
}

func (a staticAuthenticator) ValidateAccess(_ context.Context, p *Principal, path string) error {
	if p.ID == "blocked" {
		return &Error{Type: ErrForbidden, Message: "blocked"}
	}
	return nil
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestMiddleware(t *testing.T) {
	authn := staticAuthenticator{
		users: map[string]Principal{
			"ceo":     {ID: "ceo", Role: RoleCEO},
			"worker":  {ID: "worker", Role: RoleEmployee},
			"blocked": {ID: "blocked", Role: RoleEmployee},
		},
		pass: "pw",
	}

	var seen *Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	mux := http.NewServeMux()
	mux.Handle("/api/tasks", inner)
	mux.Handle("/api/sweep", RequireRole(inner, RoleCEO, RoleExecutive))
	mux.Handle("/healthz", inner)
	handler := Middleware(authn, "", "/healthz")(mux)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantID     string
	}{
		{"public path", "/healthz", "", http.StatusNoContent, ""},
		{"missing header", "/api/tasks", "", http.StatusUnauthorized, ""},
		{"bearer header", "/api/tasks", "Bearer abc", http.StatusUnauthorized, ""},
		{"bad base64", "/api/tasks", "Basic !!!", http.StatusUnauthorized, ""},
		{"no colon", "/api/tasks", "Basic " + base64.StdEncoding.EncodeToString([]byte("ceo")), http.StatusUnauthorized, ""},
		{"wrong password", "/api/tasks", basic("ceo", "nope"), http.StatusUnauthorized, ""},
		{"employee on tasks", "/api/tasks", basic("worker", "pw"), http.StatusNoContent, "worker"},
		{"employee on sweep", "/api/sweep", basic("worker", "pw"), http.StatusForbidden, ""},
		{"ceo on sweep", "/api/sweep", basic("ceo", "pw"), http.StatusNoContent, "ceo"},
		{"forbidden by validator", "/api/tasks", basic("blocked", "pw"), http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="LRH Flow"`, rec.Header().Get("WWW-Authenticate"))
			}
			if tt.wantID != "" {
				require.NotNil(t, seen)
				assert.Equal(t, tt.wantID, seen.ID)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" executive ")
	require.NoError(t, err)
	assert.Equal(t, RoleExecutive, r)

	_, err = ParseRole("intern")
	assert.Error(t, err)
}

func TestPrincipalHasRole(t *testing.T) {
	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.HasRole(RoleCEO))
	assert.True(t, (&Principal{Role: RoleManager}).HasRole(RoleCEO, RoleManager))
}
