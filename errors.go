package access

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeRefreshFailed      = "SESSION_REFRESH_FAILED"
	textCodeProfileIncomplete  = "PROFILE_INCOMPLETE"
	textCodeProfileExists      = "PROFILE_EXISTS"
	textCodeResolutionTimeout  = "RESOLUTION_TIMEOUT"
	textCodeAccessDenied       = "ACCESS_DENIED"
	textCodeHealingFailed      = "PROFILE_HEALING_FAILED"
)

// ErrInvalidCredentials is returned for a failed sign in. It deliberately does
// not say which of email or password was wrong.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshFailed means the persisted refresh credential was rejected by the
// identity backend. The Store maps it to a clean signed-out state.
var ErrRefreshFailed = goerrors.New("session refresh rejected", goerrors.CategoryAuth).
	WithTextCode(textCodeRefreshFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrProfileIncomplete means the identity is confirmed but its profile record
// is missing. Distinct from true anonymity: callers must branch on this, not
// on the role alone.
var ErrProfileIncomplete = goerrors.New("account profile is incomplete", goerrors.CategoryNotFound).
	WithTextCode(textCodeProfileIncomplete).
	WithCode(goerrors.CodeNotFound)

// ErrProfileExists is returned when default-profile creation races the
// backend trigger. Creation is insert-only so the race fails loudly.
var ErrProfileExists = goerrors.New("profile already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeProfileExists).
	WithCode(goerrors.CodeConflict)

// ErrResolutionTimeout means a backend call exceeded its bound during role
// resolution. Guards fail closed on it and never retry within the same
// request.
var ErrResolutionTimeout = goerrors.New("role resolution timed out", goerrors.CategoryOperation).
	WithTextCode(textCodeResolutionTimeout).
	WithCode(goerrors.CodeInternal)

// ErrAccessDenied is the terminal verdict for a resolved identity that lacks
// the required role or permission.
var ErrAccessDenied = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(textCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

// ErrHealingFailed means the one-shot profile repair did not produce a
// profile. The condition escalates, it is never retried in a loop.
var ErrHealingFailed = goerrors.New("profile repair failed", goerrors.CategoryInternal).
	WithTextCode(textCodeHealingFailed).
	WithCode(goerrors.CodeInternal)

// IsProfileIncomplete reports whether err represents a confirmed identity
// with a missing profile.
func IsProfileIncomplete(err error) bool {
	return errors.Is(err, ErrProfileIncomplete) || errors.Is(err, ErrHealingFailed)
}

// IsResolutionTimeout reports whether err represents a timed out resolution.
func IsResolutionTimeout(err error) bool {
	return errors.Is(err, ErrResolutionTimeout)
}
