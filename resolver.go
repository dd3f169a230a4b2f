package access

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AdminFinder looks up back-office membership by email.
type AdminFinder interface {
	FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*AdminMember, error)
}

// ProfileFinder looks up a profile by identity id.
type ProfileFinder interface {
	GetByUserID(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error)
}

// OwnershipVerifier re-checks a business linkage against the business record.
type OwnershipVerifier interface {
	VerifyOwnership(ctx context.Context, businessID, ownerID uuid.UUID) (*Business, error)
}

// Resolver is the pure decision procedure that maps an identity to exactly
// one role verdict. It never mutates anything and never panics for expected
// states; anonymous and denied are verdicts, not errors.
//
// Ordering: admin membership is checked before business ownership because
// the membership table is the highest-trust, independently managed list and
// must not be shadowed by a profile misconfiguration. An admin who also owns
// a business resolves as admin with the business id attached as auxiliary
// data.
type Resolver struct {
	admins     AdminFinder
	profiles   ProfileFinder
	businesses OwnershipVerifier
	timeout    time.Duration
	logger     Logger
}

// ResolverOption customizes the resolver.
type ResolverOption func(*Resolver)

// WithResolverTimeout bounds every backend call inside a resolution.
func WithResolverTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResolverLogger overrides the logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver returns a Resolver over the three backing stores.
func NewResolver(admins AdminFinder, profiles ProfileFinder, businesses OwnershipVerifier, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		admins:     admins,
		profiles:   profiles,
		businesses: businesses,
		timeout:    DefaultResolverTimeout,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Resolve produces the role verdict for the given identity. A nil identity
// is confirmed anonymity with no error. Every other failure mode keeps the
// role anonymous-shaped but sets the verdict error so callers can tell a
// broken account apart from a signed-out visitor.
func (r *Resolver) Resolve(ctx context.Context, identity *Identity) Verdict {
	if identity == nil || identity.ID == uuid.Nil {
		return Anonymous()
	}

	member, err := r.findAdmin(ctx, identity.Email)
	switch {
	case err == nil && member.Active():
		return r.adminVerdict(ctx, identity, member)
	case err != nil && !goerrors.IsNotFound(err):
		return r.failedVerdict(err, "admin membership lookup failed")
	}
	// not a member, or locked: fall through without error. The lock is
	// never explained to the session that hit it.

	profile, err := r.findProfile(ctx, identity.ID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return Verdict{Role: RoleAnonymous, Err: ErrProfileIncomplete}
		}
		return r.failedVerdict(err, "profile lookup failed")
	}

	if profile.HasBusinessLink() {
		business, err := r.verifyOwnership(ctx, *profile.BusinessID, identity.ID)
		if err == nil {
			return Verdict{Role: RoleBusinessOwner, BusinessID: &business.ID}
		}
		if !goerrors.IsNotFound(err) {
			return r.failedVerdict(err, "business ownership check failed")
		}
		// stale or transferred linkage: the visitor is still an ordinary
		// user, a dangling business_id must not deny access
		r.logger.Debug("stale business linkage for %s ignored", identity.ID)
	}

	return Verdict{Role: RoleUser}
}

func (r *Resolver) adminVerdict(ctx context.Context, identity *Identity, member *AdminMember) Verdict {
	verdict := Verdict{
		Role:        RoleAdmin,
		Permissions: clonePermissions(member.Permissions),
	}

	// the profile is consulted for the auxiliary business id only; a
	// failure here never downgrades the admin verdict
	profile, err := r.findProfile(ctx, identity.ID)
	if err != nil {
		if !goerrors.IsNotFound(err) {
			r.logger.Warn("admin profile lookup failed, business id unavailable: %v", err)
		}
		return verdict
	}

	if profile.HasBusinessLink() {
		verdict.BusinessID = profile.BusinessID
	}

	return verdict
}

func (r *Resolver) findAdmin(ctx context.Context, email string) (*AdminMember, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.admins.FindByEmail(ctx, email)
}

func (r *Resolver) findProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.profiles.GetByUserID(ctx, id)
}

func (r *Resolver) verifyOwnership(ctx context.Context, businessID, ownerID uuid.UUID) (*Business, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.businesses.VerifyOwnership(ctx, businessID, ownerID)
}

func (r *Resolver) failedVerdict(err error, msg string) Verdict {
	if isTimeout(err) {
		r.logger.Error("%s: timed out", msg)
		return Verdict{Role: RoleAnonymous, Err: ErrResolutionTimeout}
	}

	r.logger.Error("%s: %v", msg, err)
	return Verdict{
		Role: RoleAnonymous,
		Err:  goerrors.Wrap(err, goerrors.CategoryOperation, msg),
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrResolutionTimeout)
}

func clonePermissions(perms map[string]bool) map[string]bool {
	if perms == nil {
		return nil
	}
	cloned := make(map[string]bool, len(perms))
	for k, v := range perms {
		cloned[k] = v
	}
	return cloned
}
