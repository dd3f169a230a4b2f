package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the stable reference asserted by the identity backend for a
// signed-in principal.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// Session holds the credential state owned by the Store. Nobody else
// mutates it.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ChangeReason tags a session change notification.
type ChangeReason string

const (
	ReasonInitialLoad    ChangeReason = "initial-load"
	ReasonSignedIn       ChangeReason = "signed-in"
	ReasonSignedOut      ChangeReason = "signed-out"
	ReasonTokenRefreshed ChangeReason = "token-refreshed"
	ReasonRefreshFailed  ChangeReason = "refresh-failed"
)

// IdentityClient is the boundary with the identity backend. Implementations
// live under provider/ and own credential persistence across restarts.
type IdentityClient interface {
	// RestoreSession recovers a persisted session. A nil session with a nil
	// error means "was never signed in". An invalid or unknown refresh
	// credential is reported with ErrRefreshFailed.
	RestoreSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut invalidates the refresh credential remotely. Best effort.
	SignOut(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Config holds the gating tunables.
type Config interface {
	GetLoginRoute() string
	GetAdminLandingRoute() string
	GetBusinessLandingRoute() string
	GetRejectedRouteKey() string
	GetGraceWindow() time.Duration
	GetResolverTimeout() time.Duration
	GetGuardTimeout() time.Duration
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCESS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCESS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCESS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCESS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
