// Package local is an in-process identity backend for development and
// tests. It verifies passwords with bcrypt, derives stable user ids from
// emails, and lets tests inject refresh failures.
package local

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"

	access "github.com/zonetox/Beauty-sub001"
)

type account struct {
	id           uuid.UUID
	email        string
	passwordHash string
}

// Backend implements access.IdentityClient entirely in memory.
type Backend struct {
	mu          sync.Mutex
	accounts    map[string]*account   // keyed by email
	sessions    map[string]uuid.UUID  // refresh token -> user id
	persisted   string                // refresh token surviving "restarts"
	rejectNext  bool
	tokenTTL    time.Duration
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		accounts: map[string]*account{},
		sessions: map[string]uuid.UUID{},
		tokenTTL: time.Hour,
	}
}

// Register creates an account with a deterministic id derived from the
// email, so fixtures can predict ids without round trips.
func (b *Backend) Register(email, password string) (uuid.UUID, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := hashid.NewUUID(strings.ToLower(email))
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "local: failed to derive user id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[strings.ToLower(email)] = &account{
		id:           id,
		email:        email,
		passwordHash: hash,
	}

	return id, nil
}

// RejectNextRefresh makes the next refresh attempt fail as an invalid
// credential. Tests use it to drive the refresh-failed path.
func (b *Backend) RejectNextRefresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectNext = true
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*access.Session, error) {
	b.mu.Lock()
	acct, ok := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()

	// same failure for unknown email and wrong password
	if !ok {
		return nil, access.ErrInvalidCredentials
	}
	if err := ComparePasswordAndHash(password, acct.passwordHash); err != nil {
		return nil, access.ErrInvalidCredentials
	}

	return b.issue(acct), nil
}

func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*access.Session, error) {
	b.mu.Lock()
	if b.rejectNext {
		b.rejectNext = false
		delete(b.sessions, refreshToken)
		b.mu.Unlock()
		return nil, access.ErrRefreshFailed
	}

	userID, ok := b.sessions[refreshToken]
	if !ok {
		b.mu.Unlock()
		return nil, access.ErrRefreshFailed
	}
	delete(b.sessions, refreshToken)

	var acct *account
	for _, a := range b.accounts {
		if a.id == userID {
			acct = a
			break
		}
	}
	b.mu.Unlock()

	if acct == nil {
		return nil, access.ErrRefreshFailed
	}

	return b.issue(acct), nil
}

func (b *Backend) RestoreSession(ctx context.Context) (*access.Session, error) {
	b.mu.Lock()
	persisted := b.persisted
	b.mu.Unlock()

	if persisted == "" {
		return nil, nil
	}

	return b.Refresh(ctx, persisted)
}

func (b *Backend) SignOut(ctx context.Context, refreshToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, refreshToken)
	if b.persisted == refreshToken {
		b.persisted = ""
	}
	return nil
}

func (b *Backend) issue(acct *account) *access.Session {
	refresh := uuid.NewString()

	b.mu.Lock()
	b.sessions[refresh] = acct.id
	b.persisted = refresh
	ttl := b.tokenTTL
	b.mu.Unlock()

	return &access.Session{
		AccessToken:  uuid.NewString(),
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(ttl),
		Identity: access.Identity{
			ID:    acct.id,
			Email: acct.email,
		},
	}
}

var _ access.IdentityClient = (*Backend)(nil)
