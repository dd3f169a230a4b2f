package access_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	access "github.com/zonetox/Beauty-sub001"
)

// MockAdminFinder implements access.AdminFinder
type MockAdminFinder struct {
	mock.Mock
}

func (m *MockAdminFinder) FindByEmail(ctx context.Context, email string, criteria ...repository.SelectCriteria) (*access.AdminMember, error) {
	args := m.Called(ctx, email)
	var member *access.AdminMember
	if v := args.Get(0); v != nil {
		member = v.(*access.AdminMember)
	}
	return member, args.Error(1)
}

// MockProfileFinder implements access.ProfileFinder and access.MachineProfiles
type MockProfileFinder struct {
	mock.Mock
}

func (m *MockProfileFinder) GetByUserID(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (*access.Profile, error) {
	args := m.Called(ctx, id)
	var profile *access.Profile
	if v := args.Get(0); v != nil {
		profile = v.(*access.Profile)
	}
	return profile, args.Error(1)
}

func (m *MockProfileFinder) CreateDefault(ctx context.Context, id uuid.UUID, seed access.ProfileSeed) (*access.Profile, error) {
	args := m.Called(ctx, id, seed)
	var profile *access.Profile
	if v := args.Get(0); v != nil {
		profile = v.(*access.Profile)
	}
	return profile, args.Error(1)
}

// MockOwnershipVerifier implements access.OwnershipVerifier
type MockOwnershipVerifier struct {
	mock.Mock
}

func (m *MockOwnershipVerifier) VerifyOwnership(ctx context.Context, businessID, ownerID uuid.UUID) (*access.Business, error) {
	args := m.Called(ctx, businessID, ownerID)
	var business *access.Business
	if v := args.Get(0); v != nil {
		business = v.(*access.Business)
	}
	return business, args.Error(1)
}

// stubResolver returns canned verdicts per identity, with optional delays to
// exercise the superseded-resolution path.
type stubResolver struct {
	mu       sync.Mutex
	verdicts map[uuid.UUID]access.Verdict
	delays   map[uuid.UUID]time.Duration
	calls    int
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		verdicts: map[uuid.UUID]access.Verdict{},
		delays:   map[uuid.UUID]time.Duration{},
	}
}

func (s *stubResolver) set(id uuid.UUID, verdict access.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[id] = verdict
}

func (s *stubResolver) delay(id uuid.UUID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[id] = d
}

func (s *stubResolver) Resolve(ctx context.Context, identity *access.Identity) access.Verdict {
	if identity == nil {
		return access.Anonymous()
	}

	s.mu.Lock()
	verdict, ok := s.verdicts[identity.ID]
	d := s.delays[identity.ID]
	s.calls++
	s.mu.Unlock()

	if d > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}

	if !ok {
		return access.Verdict{Role: access.RoleUser}
	}
	return verdict
}

// hangingProfiles blocks every call until the caller's context expires.
type hangingProfiles struct{}

func (hangingProfiles) GetByUserID(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (*access.Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingProfiles) CreateDefault(ctx context.Context, id uuid.UUID, seed access.ProfileSeed) (*access.Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// memLogger collects log lines for assertions without printing them.
type memLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memLogger) log(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, format)
}

func (l *memLogger) Debug(format string, args ...any) { l.log(format) }
func (l *memLogger) Info(format string, args ...any)  { l.log(format) }
func (l *memLogger) Warn(format string, args ...any)  { l.log(format) }
func (l *memLogger) Error(format string, args ...any) { l.log(format) }

// fixedSnapshots implements access.SnapshotSource with a canned snapshot.
type fixedSnapshots struct {
	snap access.Snapshot
}

func (f *fixedSnapshots) Snapshot() access.Snapshot {
	return f.snap
}

func (f *fixedSnapshots) WaitForSettled(ctx context.Context) (access.Snapshot, error) {
	return f.snap, nil
}

// stuckSnapshots never settles, to exercise the guard's fail-closed bound.
type stuckSnapshots struct{}

func (stuckSnapshots) Snapshot() access.Snapshot {
	return access.Snapshot{State: access.StateLoading}
}

func (stuckSnapshots) WaitForSettled(ctx context.Context) (access.Snapshot, error) {
	<-ctx.Done()
	return access.Snapshot{State: access.StateLoading}, ctx.Err()
}
