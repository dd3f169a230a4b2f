package access

import (
	"context"
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Store owns the current Session. It is the single writer; everything else
// reads through Current or subscribes with OnChange.
type Store struct {
	client IdentityClient
	logger Logger

	mu        sync.RWMutex
	session   *Session
	listeners map[int]func(*Session, ChangeReason)
	nextID    int
}

// StoreOption customizes the session store.
type StoreOption func(*Store)

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSessionStore returns a Store over the given identity backend client.
func NewSessionStore(client IdentityClient, opts ...StoreOption) *Store {
	s := &Store{
		client:    client,
		logger:    defLogger{},
		listeners: map[int]func(*Session, ChangeReason){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Load restores a persisted session at cold start. A rejected refresh
// credential clears local state and is NOT surfaced as an error: it is
// equivalent to "was never logged in".
func (s *Store) Load(ctx context.Context) error {
	session, err := s.client.RestoreSession(ctx)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			s.logger.Info("persisted session rejected, starting signed out")
			s.commit(nil, ReasonRefreshFailed)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to restore session")
	}

	s.commit(session, ReasonInitialLoad)
	return nil
}

// Current returns the cached session synchronously. Nil means signed out.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Identity returns the identity of the current session, if any.
func (s *Store) Identity() *Identity {
	session := s.Current()
	if session == nil {
		return nil
	}
	identity := session.Identity
	return &identity
}

// OnChange registers a listener for session creation, refresh, and
// destruction. Returns an unsubscribe function.
func (s *Store) OnChange(fn func(session *Session, reason ChangeReason)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Login exchanges credentials for a session. The error never reveals which
// of email or password was wrong.
func (s *Store) Login(ctx context.Context, email, password string) error {
	session, err := s.client.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "sign in request failed")
	}

	s.commit(session, ReasonSignedIn)
	return nil
}

// Logout clears local session state immediately, before the remote
// invalidation resolves. The remote call is best effort; its failure is
// swallowed so the user cannot get stuck looking authenticated.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	previous := s.session
	s.mu.Unlock()

	s.commit(nil, ReasonSignedOut)

	if previous == nil {
		return nil
	}

	if err := s.client.SignOut(ctx, previous.RefreshToken); err != nil {
		s.logger.Warn("remote sign out failed after local state cleared: %v", err)
	}

	return nil
}

// Refresh exchanges the refresh credential for a new session. A rejected
// credential transitions to a clean signed-out state without error.
func (s *Store) Refresh(ctx context.Context) error {
	current := s.Current()
	if current == nil {
		return nil
	}

	session, err := s.client.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			s.logger.Info("token refresh rejected, signing out")
			s.commit(nil, ReasonRefreshFailed)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "token refresh request failed")
	}

	s.commit(session, ReasonTokenRefreshed)
	return nil
}

func (s *Store) commit(session *Session, reason ChangeReason) {
	s.mu.Lock()
	s.session = session
	fns := make([]func(*Session, ChangeReason), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(session, reason)
	}
}
