package access

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var verdictCtxKey = &contextKey{"verdict"}
var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithVerdict sets the Verdict in the given context
func WithVerdict(ctx context.Context, verdict Verdict) context.Context {
	return context.WithValue(ctx, verdictCtxKey, verdict)
}

// VerdictFromContext finds the verdict from the context.
func VerdictFromContext(ctx context.Context) (Verdict, bool) {
	raw, ok := ctx.Value(verdictCtxKey).(Verdict)
	return raw, ok
}

// WithIdentity sets the Identity in the given context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	return raw, ok
}

// VerdictFromFiber extracts the verdict a Gate stored for the request.
func VerdictFromFiber(c *fiber.Ctx) (Verdict, bool) {
	raw := c.Locals(LocalsVerdictKey)
	if raw == nil {
		return Verdict{}, false
	}
	verdict, ok := raw.(Verdict)
	return verdict, ok
}

// Can is a convenience to check a capability flag directly from the context.
func Can(ctx context.Context, flag string) bool {
	verdict, ok := VerdictFromContext(ctx)
	if !ok {
		return false
	}
	return verdict.Can(flag)
}
