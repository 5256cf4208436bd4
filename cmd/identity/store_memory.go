package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"waypoint/cmd/identity/ids"
)

// MemoryStore is an in-process Store used for development and tests.
// All data is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*memUser
	byUsername map[string]string // username_norm -> id
	byEmail    map[string]string // email_norm -> id
}

type memUser struct {
	user User
	hash string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*memUser),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	username, email, err := checkCreateInput(op, in)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	uNorm, eNorm := NormalizeUsername(username), NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[uNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, taken := s.byEmail[eNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{ID: id, Username: username, Email: email, CreatedAt: now, UpdatedAt: now}
	s.byID[id] = &memUser{user: u, hash: in.PasswordHash}
	s.byUsername[uNorm] = id
	s.byEmail[eNorm] = id
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	ua, err := s.GetUserAuthByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *MemoryStore) GetUserAuthByID(ctx context.Context, id string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authLocked("identity.GetUserAuthByID", strings.TrimSpace(id))
}

func (s *MemoryStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authLocked("identity.GetUserAuthByUsername", s.byUsername[NormalizeUsername(username)])
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authLocked("identity.GetUserAuthByEmail", s.byEmail[NormalizeEmail(email)])
}

// authLocked expects s.mu to be held.
func (s *MemoryStore) authLocked(op, id string) (UserAuth, error) {
	mu, ok := s.byID[id]
	if !ok || id == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	return UserAuth{User: mu.user, PasswordHash: mu.hash}, nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkPasswordHash(op, passwordHash); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	mu.hash = passwordHash
	mu.user.UpdatedAt = now
	return nil
}

func (s *MemoryStore) UpdateEmail(ctx context.Context, userID, email string, now time.Time) (User, error) {
	const op = "identity.UpdateEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	norm := NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.byID[userID]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if owner, taken := s.byEmail[norm]; taken && owner != userID {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	delete(s.byEmail, NormalizeEmail(mu.user.Email))
	s.byEmail[norm] = userID
	mu.user.Email = email
	mu.user.UpdatedAt = now
	return mu.user, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
