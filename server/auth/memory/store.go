package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/lrhflow/flow/server/auth"
)

// User represents a user in the memory store
type User struct {
	Username     string
	PasswordHash []byte // bcrypt
	Role         auth.Role
}

// Store implements an in-memory authentication store
type Store struct {
	mu     sync.RWMutex
	users  map[string]User // map[username]User
	logger *slog.Logger
	cost   int
}

// New creates a new in-memory authentication store
func New(opts ...Option) *Store {
	s := &Store{
		users:  make(map[string]User),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cost:   bcrypt.DefaultCost,
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCost sets the bcrypt cost used by AddUser
func WithCost(cost int) Option {
	return func(s *Store) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// HashPassword returns the bcrypt hash of password at the default cost
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// AddUser hashes password and adds a new user to the store
func (s *Store) AddUser(username, password string, role auth.Role) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.AddUserWithHash(username, string(hash), role)
}

// AddUserWithHash adds a user whose bcrypt hash was computed elsewhere,
// typically loaded from configuration
func (s *Store) AddUserWithHash(username, passwordHash string, role auth.Role) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if !slices.Contains(auth.Roles, role) {
		return fmt.Errorf("unknown role %q for user %s", role, username)
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return fmt.Errorf("invalid password hash for user %s: %w", username, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		s.logger.Warn("failed to add user: already exists",
			"username", username)
		return fmt.Errorf("user already exists: %s", username)
	}

	s.users[username] = User{
		Username:     username,
		PasswordHash: []byte(passwordHash),
		Role:         role,
	}

	s.logger.Info("user added successfully",
		"username", username,
		"role", role)

	return nil
}

// Authenticate implements auth.Authenticator
func (s *Store) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.Principal, error) {
	s.mu.RLock()
	user, exists := s.users[creds.Username]
	s.mu.RUnlock()

	if !exists {
		s.logger.Info("authentication failed: user not found",
			"username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Error("authentication failed: unreadable hash",
				"username", creds.Username,
				"error", err)
		} else {
			s.logger.Info("authentication failed: invalid password",
				"username", creds.Username)
		}
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	s.logger.Debug("authentication successful",
		"username", creds.Username)

	return &auth.Principal{ID: user.Username, Role: user.Role}, nil
}

// ValidateAccess implements auth.Authenticator. Any known user may reach
// the API; per-route role checks are done with auth.RequireRole.
func (s *Store) ValidateAccess(ctx context.Context, principal *auth.Principal, path string) error {
	if principal == nil {
		s.logger.Info("access validation failed: no principal")
		return &auth.Error{
			Type:    auth.ErrUnauthorized,
			Message: "authentication required",
		}
	}

	s.mu.RLock()
	user, exists := s.users[principal.ID]
	s.mu.RUnlock()

	if !exists || user.Role != principal.Role {
		s.logger.Warn("access validation failed: forbidden",
			"username", principal.ID,
			"path", path)
		return &auth.Error{
			Type:    auth.ErrForbidden,
			Message: fmt.Sprintf("access denied to resource: %s", path),
		}
	}

	s.logger.Debug("access validation successful",
		"username", principal.ID,
		"path", path)

	return nil
}
