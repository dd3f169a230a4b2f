package access

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// LocalsVerdictKey is where Protect stores the verdict for downstream
// handlers.
const LocalsVerdictKey = "access_verdict"

// SnapshotSource is what guards need from the machine.
type SnapshotSource interface {
	Snapshot() Snapshot
	WaitForSettled(ctx context.Context) (Snapshot, error)
}

// Gate adapts policies to HTTP middleware. Every variant shares the same
// wait, redirect, and denial plumbing; only the Policy differs.
type Gate struct {
	source SnapshotSource
	cfg    Config
	Logger Logger
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithGateLogger overrides the logger.
func WithGateLogger(logger Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.Logger = logger
		}
	}
}

// NewGate returns a Gate over the given snapshot source.
func NewGate(source SnapshotSource, cfg Config, opts ...GateOption) *Gate {
	g := &Gate{
		source: source,
		cfg:    cfg,
		Logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Protect wraps protected content behind a policy. The wait for a settled
// snapshot is bounded by the guard timeout; when the bound is hit the gate
// fails closed instead of hanging or letting the request through.
func (g *Gate) Protect(policy Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), g.cfg.GetGuardTimeout())
		defer cancel()

		snap, err := g.source.WaitForSettled(ctx)
		if err != nil {
			g.Logger.Error("guard %s timed out waiting for resolution", policy.Name())
			return g.renderDenied(c, policy, deny(reasonTimeout))
		}

		decision := policy.Evaluate(snap)
		if decision.Action == ActionWait {
			// settled snapshots should never ask to wait; treat it as the
			// bound being hit
			decision = deny(reasonTimeout)
		}

		switch decision.Action {
		case ActionAllow:
			c.Locals(LocalsVerdictKey, snap.Verdict)
			c.SetUserContext(WithVerdict(c.UserContext(), snap.Verdict))
			return c.Next()
		case ActionRedirectLogin:
			g.SetRedirect(c)
			return c.Redirect(g.cfg.GetLoginRoute(), fiber.StatusFound)
		case ActionAccountIncomplete:
			return g.renderIncomplete(c, decision)
		default:
			return g.renderDenied(c, policy, decision)
		}
	}
}

// RedirectByRole sends a settled visitor to the canonical landing area for
// their role: admins to the back office, business owners to their business
// area. Plain users fall through to the wrapped content. When an allow-list
// is given, an authenticated visitor whose role is not in it is denied
// instead of falling through.
func (g *Gate) RedirectByRole(allowed ...Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), g.cfg.GetGuardTimeout())
		defer cancel()

		snap, err := g.source.WaitForSettled(ctx)
		if err != nil || snap.State != StateAuthenticated || snap.Err != nil {
			return c.Next()
		}

		if len(allowed) > 0 && !roleIn(snap.Verdict.Role, allowed) {
			return g.renderDenied(c, requireRoleIn{name: "redirect-by-role", roles: allowed}, deny(reasonDenied))
		}

		switch snap.Verdict.Role {
		case RoleAdmin:
			return c.Redirect(g.cfg.GetAdminLandingRoute(), fiber.StatusFound)
		case RoleBusinessOwner:
			return c.Redirect(g.cfg.GetBusinessLandingRoute(), fiber.StatusFound)
		}

		return c.Next()
	}
}

// SetRedirect remembers the original destination so login can send the
// visitor back.
func (g *Gate) SetRedirect(c *fiber.Ctx) {
	key := g.cfg.GetRejectedRouteKey()

	g.Logger.Info("setting redirect cookie %s=%s", key, c.OriginalURL())

	c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect pops the preserved destination, falling back to def.
func (g *Gate) GetRedirect(c *fiber.Ctx, def string) string {
	key := g.cfg.GetRejectedRouteKey()
	r := c.Cookies(key)
	if r == "" {
		return def
	}
	g.cookieDel(c, key)
	return r
}

func (g *Gate) cookieDel(c *fiber.Ctx, key string) {
	c.Cookie(&fiber.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
}

func (g *Gate) renderIncomplete(c *fiber.Ctx, decision Decision) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": fiber.Map{
			"text_code": textCodeProfileIncomplete,
			"message":   decision.Reason,
			"retry":     true,
			"sign_out":  true,
		},
	})
}

func (g *Gate) renderDenied(c *fiber.Ctx, policy Policy, decision Decision) error {
	g.Logger.Info("access denied %s", print.MaybePrettyJSON(map[string]any{
		"policy": policy.Name(),
		"path":   c.OriginalURL(),
		"reason": decision.Reason,
	}))

	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": fiber.Map{
			"text_code": textCodeAccessDenied,
			"message":   decision.Reason,
		},
	})
}
