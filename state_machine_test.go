package access_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	access "github.com/zonetox/Beauty-sub001"
	"github.com/zonetox/Beauty-sub001/provider/local"
)

// snapshotRecorder collects every published snapshot so tests can assert
// on the ordering of intermediate states.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []access.Snapshot
}

func (r *snapshotRecorder) record(snap access.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *snapshotRecorder) all() []access.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]access.Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

type machineFixture struct {
	backend  *local.Backend
	store    *access.Store
	profiles *MockProfileFinder
	resolver *stubResolver
	machine  *access.Machine
}

func newMachineFixture(t *testing.T, opts ...access.MachineOption) *machineFixture {
	t.Helper()

	backend := local.New()
	store := access.NewSessionStore(backend, access.WithStoreLogger(&memLogger{}))
	profiles := &MockProfileFinder{}
	resolver := newStubResolver()

	opts = append([]access.MachineOption{
		access.WithGraceWindow(10 * time.Millisecond),
		access.WithMachineLogger(&memLogger{}),
	}, opts...)

	machine := access.NewMachine(store, profiles, resolver, opts...)
	t.Cleanup(machine.Close)

	return &machineFixture{
		backend:  backend,
		store:    store,
		profiles: profiles,
		resolver: resolver,
		machine:  machine,
	}
}

func settle(t *testing.T, m *access.Machine) access.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := m.WaitForSettled(ctx)
	require.NoError(t, err)
	return snap
}

func TestMachineColdStartWithoutSessionIsUnauthenticated(t *testing.T) {
	f := newMachineFixture(t)

	require.NoError(t, f.machine.Start(context.Background()))

	snap := settle(t, f.machine)
	assert.Equal(t, access.StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Equal(t, access.RoleAnonymous, snap.Verdict.Role)
	assert.NoError(t, snap.Err)
}

func TestMachineLoginResolvesRole(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(&access.Profile{ID: id, Email: "ana@example.com"}, nil)

	require.NoError(t, f.machine.Start(context.Background()))
	settle(t, f.machine)

	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	snap := settle(t, f.machine)
	assert.Equal(t, access.StateAuthenticated, snap.State)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, id, snap.Identity.ID)
	assert.Equal(t, access.RoleUser, snap.Verdict.Role)
	require.NotNil(t, snap.Profile)
	assert.True(t, snap.Authenticated())
}

func TestMachineLogoutClearsStateSynchronously(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(&access.Profile{ID: id}, nil)

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))
	settle(t, f.machine)

	require.NoError(t, f.store.Logout(context.Background()))

	// the snapshot must already be unauthenticated when Logout returns;
	// no settling wait is allowed here
	snap := f.machine.Snapshot()
	assert.Equal(t, access.StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Equal(t, access.RoleAnonymous, snap.Verdict.Role)
}

func TestMachineRejectedRefreshSettlesSignedOutWithoutError(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(&access.Profile{ID: id}, nil)

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))
	settle(t, f.machine)

	f.backend.RejectNextRefresh()
	require.NoError(t, f.store.Refresh(context.Background()))

	snap := settle(t, f.machine)
	assert.Equal(t, access.StateUnauthenticated, snap.State)
	assert.NoError(t, snap.Err)
}

func TestMachineHealsMissingProfileOnce(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})

	created := &access.Profile{ID: id, Email: "ana@example.com", DisplayName: "ana"}
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound()).Twice()
	f.profiles.On("CreateDefault", mock.Anything, id, mock.Anything).
		Return(created, nil).Once()
	f.profiles.On("GetByUserID", mock.Anything, id).Return(created, nil)

	recorder := &snapshotRecorder{}
	f.machine.Subscribe(recorder.record)

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		snap := f.machine.Snapshot()
		return snap.State == access.StateAuthenticated && snap.Profile != nil
	}, 2*time.Second, 5*time.Millisecond)

	snap := f.machine.Snapshot()
	assert.Equal(t, created, snap.Profile)
	assert.NoError(t, snap.Err)
	f.profiles.AssertNumberOfCalls(t, "CreateDefault", 1)

	// the healing state was visible in between
	var sawHealing bool
	for _, s := range recorder.all() {
		if s.Healing {
			sawHealing = true
		}
	}
	assert.True(t, sawHealing)
}

func TestMachineHealingWaitsOutTheGraceWindow(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})

	// the backend trigger lands during the grace window; no client-side
	// creation should happen at all
	trigger := &access.Profile{ID: id, Email: "ana@example.com"}
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound()).Once()
	f.profiles.On("GetByUserID", mock.Anything, id).Return(trigger, nil)

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		snap := f.machine.Snapshot()
		return snap.State == access.StateAuthenticated && snap.Profile != nil
	}, 2*time.Second, 5*time.Millisecond)

	f.profiles.AssertNotCalled(t, "CreateDefault", mock.Anything, mock.Anything, mock.Anything)
}

func TestMachineRetryAfterHealingEscalates(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})

	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound())
	f.profiles.On("CreateDefault", mock.Anything, id, mock.Anything).
		Return(nil, assert.AnError).Once()

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		snap := f.machine.Snapshot()
		return snap.State == access.StateAuthenticated && snap.Err != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, access.IsProfileIncomplete(f.machine.Snapshot().Err))

	// retry does not grant a second creation attempt
	f.machine.Retry()

	assert.Eventually(t, func() bool {
		snap := f.machine.Snapshot()
		return snap.State == access.StateAuthenticated && snap.Err != nil && !snap.Healing
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.machine.Snapshot().Err, access.ErrHealingFailed)
	f.profiles.AssertNumberOfCalls(t, "CreateDefault", 1)
}

func TestWaitForSettledSpansTheGraceWindow(t *testing.T) {
	f := newMachineFixture(t, access.WithGraceWindow(50*time.Millisecond))
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})

	created := &access.Profile{ID: id, Email: "ana@example.com", DisplayName: "ana"}
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound()).Twice()
	f.profiles.On("CreateDefault", mock.Anything, id, mock.Anything).
		Return(created, nil).Once()

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	// the wait must ride out the repair in progress, never handing a gate
	// the intermediate profile-less snapshot
	snap := settle(t, f.machine)
	assert.False(t, snap.Healing)
	require.NotNil(t, snap.Profile)
	assert.NoError(t, snap.Err)
	assert.Equal(t, access.RoleUser, snap.Verdict.Role)
}

func TestMachineHungProfileBackendSettlesWithTimeout(t *testing.T) {
	backend := local.New()
	store := access.NewSessionStore(backend, access.WithStoreLogger(&memLogger{}))
	machine := access.NewMachine(store, hangingProfiles{}, newStubResolver(),
		access.WithMachineLogger(&memLogger{}),
		access.WithMachineTimeout(20*time.Millisecond))
	t.Cleanup(machine.Close)

	_, err := backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	require.NoError(t, machine.Start(context.Background()))
	require.NoError(t, store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		snap := machine.Snapshot()
		return snap.State == access.StateAuthenticated && snap.Err != nil
	}, 2*time.Second, 5*time.Millisecond)

	snap := machine.Snapshot()
	assert.True(t, access.IsResolutionTimeout(snap.Err))
	assert.Equal(t, access.RoleAnonymous, snap.Verdict.Role)
}

func TestMachineRetryBeforeStartIsNoOp(t *testing.T) {
	backend := local.New()
	store := access.NewSessionStore(backend, access.WithStoreLogger(&memLogger{}))
	machine := access.NewMachine(store, &MockProfileFinder{}, newStubResolver(),
		access.WithMachineLogger(&memLogger{}))
	t.Cleanup(machine.Close)

	assert.NotPanics(t, machine.Retry)
	assert.Equal(t, access.StateLoading, machine.Snapshot().State)
}

func TestMachineShutdownDuringHealingLeavesNoError(t *testing.T) {
	f := newMachineFixture(t, access.WithGraceWindow(time.Second))
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.machine.Start(ctx))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		return f.machine.Snapshot().Healing
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	assert.Eventually(t, func() bool {
		snap := f.machine.Snapshot()
		return snap.State == access.StateAuthenticated && !snap.Healing
	}, 2*time.Second, 5*time.Millisecond)

	// shutdown is not a user-facing failure
	assert.NoError(t, f.machine.Snapshot().Err)
	f.profiles.AssertNotCalled(t, "CreateDefault", mock.Anything, mock.Anything, mock.Anything)
}

func TestMachineDiscardsSupersededResolutions(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	// the first resolution is slow; logout lands before it completes
	f.resolver.set(id, access.Verdict{Role: access.RoleAdmin})
	f.resolver.delay(id, 100*time.Millisecond)
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(&access.Profile{ID: id}, nil)

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))
	require.NoError(t, f.store.Logout(context.Background()))

	// give the stale resolution time to finish and (incorrectly) apply
	time.Sleep(200 * time.Millisecond)

	snap := f.machine.Snapshot()
	assert.Equal(t, access.StateUnauthenticated, snap.State)
	assert.Equal(t, access.RoleAnonymous, snap.Verdict.Role)
}

func TestMachineNewLoginResetsHealingBudget(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("ana@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})

	// the profile never materializes and repair keeps failing; the point is
	// that a fresh login gets a fresh repair attempt
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound())
	f.profiles.On("CreateDefault", mock.Anything, id, mock.Anything).
		Return(nil, assert.AnError)

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		return f.machine.Snapshot().Err != nil
	}, 2*time.Second, 5*time.Millisecond)
	f.profiles.AssertNumberOfCalls(t, "CreateDefault", 1)

	require.NoError(t, f.store.Logout(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "ana@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		snap := f.machine.Snapshot()
		return snap.State == access.StateAuthenticated && snap.Err != nil && !snap.Healing
	}, 2*time.Second, 5*time.Millisecond)

	f.profiles.AssertNumberOfCalls(t, "CreateDefault", 2)
}

func TestDefaultSeederUsesEmailLocalPart(t *testing.T) {
	f := newMachineFixture(t)
	id, err := f.backend.Register("carla@example.com", "s3cret")
	require.NoError(t, err)

	f.resolver.set(id, access.Verdict{Role: access.RoleUser})

	var seeded access.ProfileSeed
	f.profiles.On("GetByUserID", mock.Anything, id).
		Return(nil, repository.NewRecordNotFound())
	f.profiles.On("CreateDefault", mock.Anything, id, mock.Anything).
		Run(func(args mock.Arguments) {
			seeded = args.Get(2).(access.ProfileSeed)
		}).
		Return(&access.Profile{ID: id}, nil).Once()

	require.NoError(t, f.machine.Start(context.Background()))
	require.NoError(t, f.store.Login(context.Background(), "carla@example.com", "s3cret"))

	assert.Eventually(t, func() bool {
		return f.machine.Snapshot().Profile != nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "carla", seeded.DisplayName)
	assert.Equal(t, "carla@example.com", seeded.Email)
}
