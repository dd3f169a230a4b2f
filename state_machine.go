package access

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// State is the machine's lifecycle phase.
type State string

const (
	// StateLoading is the initial state and is re-entered on every session
	// change until the resolution for the new identity completes.
	StateLoading State = "loading"
	// StateAuthenticated means an identity is present and the profile fetch
	// was attempted, recording success or terminal failure.
	StateAuthenticated State = "authenticated"
	// StateUnauthenticated means no identity is present.
	StateUnauthenticated State = "unauthenticated"
)

// Snapshot is the immutable view of the machine consumed by guards.
type Snapshot struct {
	State    State
	Identity *Identity
	Profile  *Profile
	Verdict  Verdict
	// Healing is set while the one-shot profile repair is in flight.
	Healing bool
	// Err is terminal: profile incomplete after healing, or a resolution
	// failure. Guards branch on it independently of the verdict role.
	Err error
}

// Authenticated reports whether an identity is present and settled.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated
}

// SessionSource is what the machine needs from the session store.
type SessionSource interface {
	Load(ctx context.Context) error
	Current() *Session
	OnChange(fn func(session *Session, reason ChangeReason)) func()
}

// MachineProfiles is what the machine needs from the profile repository.
type MachineProfiles interface {
	GetByUserID(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (*Profile, error)
	CreateDefault(ctx context.Context, id uuid.UUID, seed ProfileSeed) (*Profile, error)
}

// VerdictResolver produces a role verdict for an identity.
type VerdictResolver interface {
	Resolve(ctx context.Context, identity *Identity) Verdict
}

// ProfileSeeder derives the seed fields for a healed profile.
type ProfileSeeder func(identity Identity) ProfileSeed

// Machine composes the session store, the profile repository, and the role
// resolver into a single loading -> authenticated | unauthenticated
// lifecycle. It is the single writer of its snapshot; async resolution
// results are tagged with an epoch and discarded when a newer session change
// superseded them.
type Machine struct {
	sessions SessionSource
	profiles MachineProfiles
	resolver VerdictResolver
	grace    time.Duration
	timeout  time.Duration
	seed     ProfileSeeder
	logger   Logger

	mu          sync.Mutex
	snapshot    Snapshot
	epoch       uint64
	healed      bool
	subscribers map[int]func(Snapshot)
	nextID      int

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// MachineOption customizes machine construction.
type MachineOption func(*Machine)

// WithGraceWindow sets how long a missing profile is tolerated after
// authentication before healing kicks in.
func WithGraceWindow(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d >= 0 {
			m.grace = d
		}
	}
}

// WithMachineTimeout bounds each profile backend call made by the machine.
// A hung backend settles the snapshot with ErrResolutionTimeout instead of
// pinning it in loading.
func WithMachineTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMachineLogger overrides the logger.
func WithMachineLogger(logger Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithProfileSeeder overrides how healed profiles are seeded.
func WithProfileSeeder(seed ProfileSeeder) MachineOption {
	return func(m *Machine) {
		if seed != nil {
			m.seed = seed
		}
	}
}

// NewMachine returns a Machine in the loading state. Call Start to restore
// the persisted session and begin tracking changes.
func NewMachine(sessions SessionSource, profiles MachineProfiles, resolver VerdictResolver, opts ...MachineOption) *Machine {
	m := &Machine{
		sessions:    sessions,
		profiles:    profiles,
		resolver:    resolver,
		grace:       DefaultGraceWindow,
		timeout:     DefaultResolverTimeout,
		seed:        defaultSeeder,
		logger:      defLogger{},
		snapshot:    Snapshot{State: StateLoading},
		subscribers: map[int]func(Snapshot){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func defaultSeeder(identity Identity) ProfileSeed {
	name := identity.Email
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return ProfileSeed{
		Email:       identity.Email,
		DisplayName: name,
	}
}

// Start subscribes to session changes and restores the persisted session.
// The returned error covers restoration plumbing only; a rejected refresh
// credential settles as unauthenticated without error.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()
	m.unsubscribe = m.sessions.OnChange(m.onSessionChange)

	if err := m.sessions.Load(m.ctx); err != nil {
		return err
	}

	return nil
}

// Close cancels outstanding resolutions and detaches from the store.
func (m *Machine) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Subscribe registers a snapshot listener and returns an unsubscribe
// function. The current snapshot is not replayed.
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Retry re-runs resolution for the current identity. Used by the account
// incomplete screen; it does not grant another healing attempt.
func (m *Machine) Retry() {
	m.mu.Lock()
	identity := m.snapshot.Identity
	if identity == nil || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	id := *identity
	ctx := m.ctx
	m.snapshot = Snapshot{State: StateLoading, Identity: &id}
	m.mu.Unlock()

	m.publish(m.Snapshot())
	go m.resolve(ctx, epoch, id)
}

// WaitForSettled blocks until the machine leaves loading or the context is
// done, returning the snapshot either way. Callers bound the wait; a slow
// backend must never leave a gate spinning forever.
func (m *Machine) WaitForSettled(ctx context.Context) (Snapshot, error) {
	ch := make(chan Snapshot, 1)
	unsubscribe := m.Subscribe(func(snap Snapshot) {
		// a healing snapshot is a checkpoint, not a destination
		if snap.State == StateLoading || snap.Healing {
			return
		}
		select {
		case ch <- snap:
		default:
		}
	})
	defer unsubscribe()

	if snap := m.Snapshot(); snap.State != StateLoading && !snap.Healing {
		return snap, nil
	}

	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		return m.Snapshot(), ctx.Err()
	}
}

func (m *Machine) onSessionChange(session *Session, reason ChangeReason) {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch

	if session == nil {
		// sign out clears everything synchronously, including the healing
		// budget for the next session
		m.healed = false
		m.snapshot = Snapshot{State: StateUnauthenticated, Verdict: Anonymous()}
		m.mu.Unlock()
		m.publish(m.Snapshot())
		return
	}

	if reason == ReasonSignedIn || m.identityChanged(session.Identity.ID) {
		m.healed = false
	}

	identity := session.Identity
	ctx := m.ctx
	m.snapshot = Snapshot{State: StateLoading, Identity: &identity}
	m.mu.Unlock()

	m.publish(m.Snapshot())
	go m.resolve(ctx, epoch, identity)
}

// identityChanged must be called with the lock held.
func (m *Machine) identityChanged(id uuid.UUID) bool {
	return m.snapshot.Identity == nil || m.snapshot.Identity.ID != id
}

// fetchProfile bounds the repository call so a hung backend settles the
// snapshot instead of pinning it in loading.
func (m *Machine) fetchProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.profiles.GetByUserID(ctx, id)
}

func (m *Machine) createProfile(ctx context.Context, id uuid.UUID, seed ProfileSeed) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.profiles.CreateDefault(ctx, id, seed)
}

func (m *Machine) resolve(ctx context.Context, epoch uint64, identity Identity) {
	verdict := m.resolver.Resolve(ctx, &identity)

	profile, err := m.fetchProfile(ctx, identity.ID)
	if err != nil && !goerrors.IsNotFound(err) {
		m.logger.Warn("profile fetch failed during resolution: %v", err)
		if isTimeout(err) {
			m.commit(epoch, Snapshot{
				State:    StateAuthenticated,
				Identity: &identity,
				Verdict:  Verdict{Role: RoleAnonymous, Err: ErrResolutionTimeout},
				Err:      ErrResolutionTimeout,
			})
			return
		}
	}

	snap := Snapshot{
		State:    StateAuthenticated,
		Identity: &identity,
		Profile:  profile,
		Verdict:  verdict,
		Err:      verdict.Err,
	}

	if profile == nil && err != nil && goerrors.IsNotFound(err) {
		snap = m.heal(ctx, epoch, identity)
	}

	m.commit(epoch, snap)
}

// heal tolerates the missing profile for the grace window (the backend
// trigger may still be in flight), then performs at most one client-side
// creation per session. A second failure escalates instead of looping.
func (m *Machine) heal(ctx context.Context, epoch uint64, identity Identity) Snapshot {
	snap := Snapshot{
		State:    StateAuthenticated,
		Identity: &identity,
		Healing:  true,
	}
	m.commit(epoch, snap)

	select {
	case <-ctx.Done():
		// cancellation means teardown or supersession, not a user-facing
		// failure; only a deadline surfaces as an error
		snap.Healing = false
		if isTimeout(ctx.Err()) {
			snap.Err = ErrResolutionTimeout
			snap.Verdict = Verdict{Role: RoleAnonymous, Err: ErrResolutionTimeout}
		}
		return snap
	case <-time.After(m.grace):
	}

	if !m.currentEpoch(epoch) {
		return snap
	}

	snap.Healing = false

	profile, err := m.fetchProfile(ctx, identity.ID)
	if err == nil {
		// the trigger caught up on its own
		snap.Profile = profile
		snap.Verdict = m.resolver.Resolve(ctx, &identity)
		snap.Err = snap.Verdict.Err
		return snap
	}

	if isTimeout(err) {
		snap.Err = ErrResolutionTimeout
		snap.Verdict = Verdict{Role: RoleAnonymous, Err: ErrResolutionTimeout}
		return snap
	}

	m.mu.Lock()
	if m.healed {
		m.mu.Unlock()
		snap.Err = ErrHealingFailed
		snap.Verdict = Verdict{Role: RoleAnonymous, Err: ErrHealingFailed}
		return snap
	}
	m.healed = true
	m.mu.Unlock()

	created, err := m.createProfile(ctx, identity.ID, m.seed(identity))
	if err != nil {
		m.logger.Error("profile repair failed for %s: %v", identity.ID, err)
		if isTimeout(err) {
			snap.Err = ErrResolutionTimeout
			snap.Verdict = Verdict{Role: RoleAnonymous, Err: ErrResolutionTimeout}
			return snap
		}
		snap.Err = ErrHealingFailed
		snap.Verdict = Verdict{Role: RoleAnonymous, Err: ErrHealingFailed}
		return snap
	}

	m.logger.Info("profile repaired for %s", identity.ID)
	snap.Profile = created
	snap.Verdict = m.resolver.Resolve(ctx, &identity)
	snap.Err = snap.Verdict.Err
	return snap
}

// commit applies an async result only if it is still current; resolutions
// superseded by a newer session change are discarded, never applied.
func (m *Machine) commit(epoch uint64, snap Snapshot) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Debug("discarding stale resolution (epoch %d != %d)", epoch, m.epoch)
		return
	}
	m.snapshot = snap
	m.mu.Unlock()

	m.publish(snap)
}

func (m *Machine) currentEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return epoch == m.epoch
}

func (m *Machine) publish(snap Snapshot) {
	m.mu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
