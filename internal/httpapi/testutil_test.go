package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"

	"civium.org/internal/audit"
	"civium.org/internal/auth"
	"civium.org/internal/ratelimit"
	"civium.org/internal/token"
)

var testSecret = []byte("httpapi-test-secret")

// memoryStore is an in-memory auth.Store for handler tests.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]*auth.User)}
}

func (s *memoryStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == strings.ToLower(u.Email) {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = "u-" + strings.ToLower(u.Email)
	}
	u.Email = strings.ToLower(u.Email)
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memoryStore) SetPassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memoryStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// captureSink collects audit events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *captureSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type testHarness struct {
	api    *API
	store  *memoryStore
	tokens *token.Manager
	sink   *captureSink
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	tokens, err := token.NewManager(testSecret)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	store := newMemoryStore()
	sink := &captureSink{}
	limiter := ratelimit.New(0)
	t.Cleanup(limiter.Close)

	api := New(Config{
		Store:    store,
		Tokens:   tokens,
		Recorder: audit.NewRecorder(sink),
		Limiter:  limiter,
		Version:  "test",
	})
	return &testHarness{api: api, store: store, tokens: tokens, sink: sink}
}

// seedUser creates an active account and returns it.
func (h *testHarness) seedUser(t *testing.T, email, password string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &auth.User{
		Email:        email,
		Name:         "Test User",
		Role:         role,
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
	}
	if err := h.store.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return u
}

// accessFor issues an access token for u.
func (h *testHarness) accessFor(t *testing.T, u *auth.User) string {
	t.Helper()
	raw, _, err := h.tokens.IssueAccess(u.Principal())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return raw
}
