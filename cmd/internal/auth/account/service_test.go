package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"waypoint/cmd/identity"
	"waypoint/cmd/internal/auth/session"
	"waypoint/cmd/security/password"
	"waypoint/cmd/security/token"
)

// spyStore wraps a MemoryStore, counting credential updates and injecting failures.
type spyStore struct {
	*identity.MemoryStore

	mu            sync.Mutex
	updates       []string
	failUpdate    error
	failLookup    error
	overrideHash  string
	createdHashes []string
}

func newSpyStore() *spyStore { return &spyStore{MemoryStore: identity.NewMemoryStore()} }

func (s *spyStore) CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error) {
	s.mu.Lock()
	s.createdHashes = append(s.createdHashes, in.PasswordHash)
	s.mu.Unlock()
	return s.MemoryStore.CreateUser(ctx, in)
}

func (s *spyStore) GetUserAuthByUsername(ctx context.Context, username string) (identity.UserAuth, error) {
	if s.failLookup != nil {
		return identity.UserAuth{}, s.failLookup
	}
	ua, err := s.MemoryStore.GetUserAuthByUsername(ctx, username)
	if err == nil && s.overrideHash != "" {
		ua.PasswordHash = s.overrideHash
	}
	return ua, err
}

func (s *spyStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	s.mu.Lock()
	s.updates = append(s.updates, hash)
	fail := s.failUpdate
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.UpdatePasswordHash(ctx, userID, hash, now)
}

func (s *spyStore) updateCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.updates...)
}

// countingHasher counts Verify calls.
type countingHasher struct {
	password.Config
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Verify(encodedHash, plain string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Config.Verify(encodedHash, plain)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *recordingAuditor) Record(_ context.Context, ev AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAuditor) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Event)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *spyStore
	hasher *countingHasher
	codec  *session.HS256Codec
	audit  *recordingAuditor
	now    time.Time
}

func fastHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	codec, err := session.NewHS256Codec(session.DefaultConfig(), token.NewSecret([]byte("test-secret")), session.WithClock(clock))
	require.NoError(t, err)

	f := &fixture{
		store:  newSpyStore(),
		hasher: &countingHasher{Config: fastHasher()},
		codec:  codec,
		audit:  &recordingAuditor{},
		now:    now,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc, err = NewService(log, f.store, f.hasher, codec, WithClock(clock), WithAuditor(f.audit))
	require.NoError(t, err)
	return f
}

func (f *fixture) seedLegacy(t *testing.T, username, plain string) identity.User {
	t.Helper()
	raw, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := f.store.MemoryStore.CreateUser(context.Background(), identity.CreateUserInput{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(raw),
	})
	require.NoError(t, err)
	return u
}

func TestRegisterLoginScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.User.Username)
	assert.Equal(t, "alice@example.com", reg.User.Email)

	// Storage received a hashed credential, never the plaintext.
	require.Len(t, f.store.createdHashes, 1)
	stored := f.store.createdHashes[0]
	assert.NotEqual(t, "correcthorse", stored)
	assert.NotContains(t, stored, "correcthorse")
	info, err := password.Inspect(stored)
	require.NoError(t, err)
	assert.Equal(t, password.CurrentVersion, info.Version)

	claims, err := f.codec.Verify(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.SubjectID)
	assert.True(t, claims.ExpiresAt.After(f.now))
	assert.True(t, claims.ExpiresAt.Equal(reg.ExpiresAt))

	ok, err := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	assert.NotEmpty(t, ok.Token)
	claims, err = f.codec.Verify(ok.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.SubjectID)

	bad, err := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, bad.Token)

	// A fresh current-version hash never triggers an upgrade.
	assert.Empty(t, f.store.updateCalls())

	assert.Equal(t, []string{EventRegister, EventLoginOK, EventLoginFailed}, f.audit.names())
}

func TestLogin_ByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, LoginInput{Identifier: "ALICE@example.com", Password: "correcthorse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
}

func TestLogin_UnknownAndWrongPasswordAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)

	f.hasher.verifies = 0
	_, unknownErr := f.svc.Login(ctx, LoginInput{Identifier: "mallory", Password: "correcthorse"})
	unknownVerifies := f.hasher.verifies

	f.hasher.verifies = 0
	_, wrongErr := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "wrong"})
	wrongVerifies := f.hasher.verifies

	require.ErrorIs(t, unknownErr, ErrUnauthorized)
	require.ErrorIs(t, wrongErr, ErrUnauthorized)
	assert.Equal(t, wrongErr, unknownErr)
	assert.Equal(t, wrongErr.Error(), unknownErr.Error())

	// The unknown path still pays for one verify (timing resistance).
	assert.Equal(t, 1, unknownVerifies)
	assert.Equal(t, 1, wrongVerifies)
}

func TestLogin_UpgradesLegacyHashExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedLegacy(t, "alice", "correcthorse")

	res, err := f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	updates := f.store.updateCalls()
	require.Len(t, updates, 1)
	up, err := password.NeedsUpgrade(updates[0], password.CurrentVersion)
	require.NoError(t, err)
	assert.False(t, up)

	ok, err := f.hasher.Config.Verify(updates[0], "correcthorse")
	require.NoError(t, err)
	assert.True(t, ok)

	// The stored credential was replaced, so a second login does not upgrade again.
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	assert.Len(t, f.store.updateCalls(), 1)

	assert.Contains(t, f.audit.names(), EventRehash)
}

func TestLogin_UpgradesLegacyHashBelowCurrentPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Six characters: valid when the account was created, short for today's policy.
	f.seedLegacy(t, "bob", "short1")

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, LoginInput{Identifier: "bob", Password: "short1"})
		require.NoError(t, err, "login %d", i)
	}

	updates := f.store.updateCalls()
	require.Len(t, updates, 1)
	up, err := password.NeedsUpgrade(updates[0], password.CurrentVersion)
	require.NoError(t, err)
	assert.False(t, up)

	ok, err := f.hasher.Config.Verify(updates[0], "short1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogin_LegacyWrongPasswordDoesNotUpgrade(t *testing.T) {
	f := newFixture(t)
	f.seedLegacy(t, "alice", "correcthorse")

	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.store.updateCalls())
}

func TestLogin_UpgradeFailureDoesNotBlockLogin(t *testing.T) {
	f := newFixture(t)
	f.seedLegacy(t, "alice", "correcthorse")
	f.store.failUpdate = errors.New("db down")

	res, err := f.svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Len(t, f.store.updateCalls(), 1)
	assert.NotContains(t, f.audit.names(), EventRehash)
}

func TestLogin_CorruptedStoredHashIsInternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)
	f.store.overrideHash = "$argon2id$v=19$garbage"

	_, err = f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestLogin_StorageFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.failLookup = errors.New("connection reset")

	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.ErrorIs(t, err, ErrInternal)
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Identifier: "  ", Password: ""})
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "identifier")
	assert.Contains(t, ve.Fields, "password")
}

func TestRegister_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "Alice", Email: "other@example.com", Password: "correcthorse"})
	require.ErrorIs(t, err, ErrAlreadyExists)
	var ce ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "username", ce.Field)
	assert.NotErrorIs(t, err, ErrInternal)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice2", Email: "ALICE@example.com", Password: "correcthorse"})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "email", ce.Field)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		in     RegisterInput
		fields []string
	}{
		{"all empty", RegisterInput{}, []string{"username", "email", "password"}},
		{"long username", RegisterInput{Username: "abcdefghijklmnopqrstu", Email: "a@example.com", Password: "correcthorse"}, []string{"username"}},
		{"username with at", RegisterInput{Username: "a@b", Email: "a@example.com", Password: "correcthorse"}, []string{"username"}},
		{"bad email", RegisterInput{Username: "alice", Email: "not-an-email", Password: "correcthorse"}, []string{"email"}},
		{"display email", RegisterInput{Username: "alice", Email: "Alice <alice@example.com>", Password: "correcthorse"}, []string{"email"}},
		{"short password", RegisterInput{Username: "alice", Email: "alice@example.com", Password: "short"}, []string{"password"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.in)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			require.ErrorIs(t, err, ErrValidation)
			for _, field := range tc.fields {
				assert.Contains(t, ve.Fields, field)
			}
			assert.Len(t, ve.Fields, len(tc.fields))
		})
	}
	assert.Empty(t, f.store.createdHashes)
}

func TestUpdateCurrent_Password(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)

	next := "batterystaple"
	wrong := "nope-nope"
	_, err = f.svc.UpdateCurrent(ctx, reg.User.ID, UpdateInput{Password: &next, CurrentPassword: &wrong})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.UpdateCurrent(ctx, reg.User.ID, UpdateInput{Password: &next})
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "current_password")

	current := "correcthorse"
	_, err = f.svc.UpdateCurrent(ctx, reg.User.ID, UpdateInput{Password: &next, CurrentPassword: &current})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: "correcthorse"})
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "alice", Password: next})
	require.NoError(t, err)
}

func TestUpdateCurrent_Email(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correcthorse"})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "correcthorse"})
	require.NoError(t, err)

	taken := "BOB@example.com"
	_, err = f.svc.UpdateCurrent(ctx, a.User.ID, UpdateInput{Email: &taken})
	require.ErrorIs(t, err, ErrAlreadyExists)

	fresh := "alice@new.example"
	u, err := f.svc.UpdateCurrent(ctx, a.User.ID, UpdateInput{Email: &fresh})
	require.NoError(t, err)
	assert.Equal(t, fresh, u.Email)

	_, err = f.svc.UpdateCurrent(ctx, a.User.ID, UpdateInput{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCurrent_UnknownSubject(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Current(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAudit_CarriesClientInfo(t *testing.T) {
	f := newFixture(t)
	ctx := ContextWithClient(context.Background(), ClientInfo{IP: "203.0.113.7", UserAgent: "test"})

	_, err := f.svc.Login(ctx, LoginInput{Identifier: "ghost", Password: "correcthorse"})
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Len(t, f.audit.events, 1)
	ev := f.audit.events[0]
	assert.Equal(t, EventLoginFailed, ev.Event)
	assert.Equal(t, "not_found", ev.Reason)
	assert.Equal(t, "203.0.113.7", ev.Client.IP)
	assert.Equal(t, f.now, ev.At)
}

func TestNewService_TightPolicy(t *testing.T) {
	f := newFixture(t)

	h := fastHasher()
	h.Policy.MinLength = 4
	h.Policy.MaxLength = 16

	svc, err := NewService(nil, f.store, h, f.codec)
	require.NoError(t, err)

	// Unknown identifiers still run a verify against the dummy hash.
	_, err = svc.Login(context.Background(), LoginInput{Identifier: "nobody", Password: "whatever"})
	require.ErrorIs(t, err, ErrUnauthorized)

	h.Policy.MinLength = 64
	h.Policy.MaxLength = 128
	_, err = NewService(nil, f.store, h, f.codec)
	require.NoError(t, err)
}

func TestNewService_NilDeps(t *testing.T) {
	_, err := NewService(nil, nil, fastHasher(), nil)
	require.Error(t, err)
}
