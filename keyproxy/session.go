package keyproxy

import (
	"context"
	"fmt"
	"sync"
)

// TokenKey is the fixed storage key of the session token.
const TokenKey = "token"

// TokenStore persists small string values by key.
type TokenStore interface {
	// Load returns the value for key; ok is false when it is absent.
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// IsAuthenticated is the session gate: a persisted token means signed in.
func IsAuthenticated(tokenPresent bool) bool { return tokenPresent }

// Session is the process-wide authentication state. It is read from the
// store once when opened and then kept in step with SignIn and SignOut, so
// callers always observe the current state.
type Session struct {
	mu    sync.RWMutex
	store TokenStore
	token string
	ok    bool
}

// OpenSession loads the persisted token, if any, from store.
func OpenSession(ctx context.Context, store TokenStore) (*Session, error) {
	if store == nil {
		panic("token store is required")
	}
	tok, ok, err := store.Load(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("load session token: %w", err)
	}
	return &Session{store: store, token: tok, ok: ok}, nil
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IsAuthenticated(s.ok)
}

// Token implements TokenSource.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.ok
}

// SignIn persists token and marks the session authenticated.
func (s *Session) SignIn(ctx context.Context, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	s.token, s.ok = token, true
	return nil
}

// SignOut removes the persisted token.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, TokenKey); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	s.token, s.ok = "", false
	return nil
}

// View names a top-level screen.
type View string

const (
	ViewRoot      View = "/"
	ViewAuth      View = "/auth"
	ViewAddSecret View = "/add-secret"
	ViewDashboard View = "/dashboard"
)

// Resolve applies the session gate to a requested view. Signed-out users
// always land on ViewAuth; the root redirects to ViewAddSecret.
func Resolve(authenticated bool, requested View) View {
	if !authenticated {
		return ViewAuth
	}
	switch requested {
	case ViewRoot, ViewAuth, "":
		return ViewAddSecret
	}
	return requested
}

// Navigator tracks the requested view and resolves it against the session
// on every read.
type Navigator struct {
	mu        sync.Mutex
	session   *Session
	requested View
}

func NewNavigator(s *Session) *Navigator {
	return &Navigator{session: s, requested: ViewRoot}
}

func (n *Navigator) Navigate(v View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = v
}

// Current returns the view to render now.
func (n *Navigator) Current() View {
	n.mu.Lock()
	requested := n.requested
	n.mu.Unlock()
	return Resolve(n.session.IsAuthenticated(), requested)
}
