package access

import "fmt"

// Action is what a guard should do with the wrapped content.
type Action string

const (
	// ActionAllow renders the protected content.
	ActionAllow Action = "allow"
	// ActionWait renders nothing; used only while loading to avoid a flash
	// of a denial screen.
	ActionWait Action = "wait"
	// ActionRedirectLogin sends the visitor to login, preserving the
	// original destination.
	ActionRedirectLogin Action = "redirect-login"
	// ActionAccountIncomplete renders the blocking repair view with retry
	// and sign-out affordances. Not a redirect: the visitor holds a valid
	// identity and must not be dropped back into an unauthenticated flow.
	ActionAccountIncomplete Action = "account-incomplete"
	// ActionDeny renders the permission-denied view with a readable reason.
	ActionDeny Action = "deny"
)

// Decision is the shared render contract produced by every policy.
type Decision struct {
	Action Action
	// Reason is plain language, never a raw backend error.
	Reason string
}

func allow() Decision { return Decision{Action: ActionAllow} }

func wait() Decision { return Decision{Action: ActionWait} }

func redirectLogin() Decision { return Decision{Action: ActionRedirectLogin} }

func deny(reason string) Decision {
	return Decision{Action: ActionDeny, Reason: reason}
}

func incomplete(reason string) Decision {
	return Decision{Action: ActionAccountIncomplete, Reason: reason}
}

const (
	reasonDenied     = "You do not have permission to view this page."
	reasonTimeout    = "We could not verify your access in time. Check your connection and try again."
	reasonIncomplete = "Your account setup is not finished yet. Try again, or sign out and back in."
)

// Policy decides what to do with protected content given the machine's
// snapshot. All guard variants share this one contract.
type Policy interface {
	Name() string
	Evaluate(snap Snapshot) Decision
}

// RequireAuthenticated gates on a present identity and a present profile.
// A missing profile after load is the terminal account-incomplete view, not
// a redirect.
func RequireAuthenticated() Policy {
	return requireAuthenticated{}
}

type requireAuthenticated struct{}

func (requireAuthenticated) Name() string { return "require-authenticated" }

func (requireAuthenticated) Evaluate(snap Snapshot) Decision {
	switch snap.State {
	case StateLoading:
		return wait()
	case StateUnauthenticated:
		return redirectLogin()
	}

	if snap.Healing {
		// the profile may still materialize within the grace window;
		// showing the terminal screen now would be a flash of denial
		return wait()
	}

	if snap.Err != nil {
		if IsResolutionTimeout(snap.Err) {
			return incomplete(reasonTimeout)
		}
		return incomplete(reasonIncomplete)
	}

	if snap.Profile == nil {
		return incomplete(reasonIncomplete)
	}

	return allow()
}

// RequireRole gates on one specific role. Resolution failures fail closed to
// denial; a slow or broken backend must never leave the gate open.
func RequireRole(role Role) Policy {
	return requireRoleIn{name: "require-role", roles: []Role{role}}
}

// RequireRoleIn gates on an explicit allow-list of roles.
func RequireRoleIn(roles ...Role) Policy {
	return requireRoleIn{name: "require-role-in", roles: roles}
}

type requireRoleIn struct {
	name  string
	roles []Role
}

func (p requireRoleIn) Name() string { return p.name }

func (p requireRoleIn) Evaluate(snap Snapshot) Decision {
	switch snap.State {
	case StateLoading:
		return wait()
	case StateUnauthenticated:
		return redirectLogin()
	}

	if snap.Healing {
		return wait()
	}

	if snap.Err != nil {
		if IsResolutionTimeout(snap.Err) {
			return deny(reasonTimeout)
		}
		return deny(reasonDenied)
	}

	if roleIn(snap.Verdict.Role, p.roles) {
		return allow()
	}

	return deny(reasonDenied)
}

func roleIn(role Role, roles []Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequirePermission gates on a single admin capability flag. An absent
// identity is treated identically to a missing permission: denial, not a
// redirect.
func RequirePermission(flag string) Policy {
	return requirePermission{flag: flag}
}

type requirePermission struct {
	flag string
}

func (p requirePermission) Name() string { return "require-permission" }

func (p requirePermission) Evaluate(snap Snapshot) Decision {
	if snap.State == StateLoading || snap.Healing {
		return wait()
	}

	if snap.State == StateUnauthenticated || snap.Err != nil {
		if IsResolutionTimeout(snap.Err) {
			return deny(reasonTimeout)
		}
		return deny(reasonDenied)
	}

	if snap.Verdict.Role != RoleAdmin {
		return deny(reasonDenied)
	}

	if !snap.Verdict.Can(p.flag) {
		return deny(fmt.Sprintf("Your admin account is missing the %q permission.", p.flag))
	}

	return allow()
}
