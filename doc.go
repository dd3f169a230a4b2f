// Package access resolves who a visitor is and what they may reach.
//
// The package turns a single opaque identity credential into exactly one of
// four operational roles (anonymous, user, business owner, admin) and gates
// routes on the result.
//
// Role resolution:
//   - Resolver is a pure decision procedure over three backing tables
//     (admin_users, profiles, businesses). Admin membership wins over
//     business ownership, ownership is always re-verified against the
//     business record, and a missing profile is reported through the
//     verdict's error channel rather than collapsed into anonymity.
//
// Session lifecycle:
//   - Store caches the current Session obtained from an IdentityClient and
//     fans out change notifications with a reason tag. Logout clears local
//     state before the remote call resolves; a failed token refresh is
//     treated as "was never signed in", not as an error.
//
// Orchestration:
//   - Machine composes Store, the profile repository, and Resolver into a
//     loading -> authenticated | unauthenticated lifecycle. It owns the
//     one-shot healing of a missing profile and discards resolutions that
//     were superseded by a newer session change.
//
// Gating:
//   - Policy variants (RequireAuthenticated, RequireRole, RequireRoleIn,
//     RequirePermission) share one Decision contract, and Gate adapts them
//     to Fiber middleware with a bounded, fail-closed wait.
package access
