package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waypoint/cmd/security/password"
)

func testHash(t *testing.T, plain string) string {
	t.Helper()
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	h, err := cfg.Hash(plain)
	require.NoError(t, err)
	return h
}

// runStoreContract exercises behavior every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and lookup", func(t *testing.T) {
		s := newStore(t)
		hash := testHash(t, "correcthorse")

		u, err := s.CreateUser(ctx, CreateUserInput{Username: " Alice ", Email: "Alice@Example.com", PasswordHash: hash, Now: now})
		require.NoError(t, err)
		assert.Len(t, u.ID, 26)
		assert.Equal(t, "Alice", u.Username)
		assert.Equal(t, "Alice@Example.com", u.Email)

		byName, err := s.GetUserAuthByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.User.ID)
		assert.Equal(t, hash, byName.PasswordHash)

		byEmail, err := s.GetUserAuthByEmail(ctx, " alice@example.COM ")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.User.ID)

		byID, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Username, byID.Username)
	})

	t.Run("conflicts are case-insensitive", func(t *testing.T) {
		s := newStore(t)
		hash := testHash(t, "correcthorse")

		_, err := s.CreateUser(ctx, CreateUserInput{Username: "bob", Email: "bob@example.com", PasswordHash: hash, Now: now})
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, CreateUserInput{Username: "BOB", Email: "other@example.com", PasswordHash: hash, Now: now})
		require.True(t, IsConflict(err), "got %v", err)
		assert.Equal(t, "username", ConflictField(err))

		_, err = s.CreateUser(ctx, CreateUserInput{Username: "bobby", Email: "Bob@Example.com", PasswordHash: hash, Now: now})
		require.True(t, IsConflict(err), "got %v", err)
		assert.Equal(t, "email", ConflictField(err))
	})

	t.Run("rejects plaintext credentials", func(t *testing.T) {
		s := newStore(t)

		_, err := s.CreateUser(ctx, CreateUserInput{Username: "carol", Email: "carol@example.com", PasswordHash: "correcthorse", Now: now})
		assert.True(t, IsInvalidInput(err), "got %v", err)

		_, err = s.CreateUser(ctx, CreateUserInput{Username: "", Email: "carol@example.com", PasswordHash: testHash(t, "correcthorse")})
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetUserAuthByUsername(ctx, "nobody")
		assert.True(t, IsNotFound(err), "got %v", err)
		_, err = s.GetUserAuthByEmail(ctx, "nobody@example.com")
		assert.True(t, IsNotFound(err), "got %v", err)
		_, err = s.GetUserByID(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.True(t, IsNotFound(err), "got %v", err)
		err = s.UpdatePasswordHash(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", testHash(t, "correcthorse"), now)
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("update password hash", func(t *testing.T) {
		s := newStore(t)
		u, err := s.CreateUser(ctx, CreateUserInput{Username: "dave", Email: "dave@example.com", PasswordHash: testHash(t, "correcthorse"), Now: now})
		require.NoError(t, err)

		next := testHash(t, "batterystaple")
		require.NoError(t, s.UpdatePasswordHash(ctx, u.ID, next, now.Add(time.Minute)))

		ua, err := s.GetUserAuthByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, next, ua.PasswordHash)

		err = s.UpdatePasswordHash(ctx, u.ID, "plaintext", now)
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})

	t.Run("update email", func(t *testing.T) {
		s := newStore(t)
		hash := testHash(t, "correcthorse")
		u, err := s.CreateUser(ctx, CreateUserInput{Username: "erin", Email: "erin@example.com", PasswordHash: hash, Now: now})
		require.NoError(t, err)
		_, err = s.CreateUser(ctx, CreateUserInput{Username: "frank", Email: "frank@example.com", PasswordHash: hash, Now: now})
		require.NoError(t, err)

		updated, err := s.UpdateEmail(ctx, u.ID, "Erin@New.example", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "Erin@New.example", updated.Email)

		_, err = s.GetUserAuthByEmail(ctx, "erin@example.com")
		assert.True(t, IsNotFound(err), "old email should be released, got %v", err)
		_, err = s.GetUserAuthByEmail(ctx, "erin@new.example")
		require.NoError(t, err)

		_, err = s.UpdateEmail(ctx, u.ID, "FRANK@example.com", now)
		assert.True(t, IsConflict(err), "got %v", err)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(ctx))
	})
}
