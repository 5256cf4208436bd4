package identity

import (
	"context"
	"time"
)

// User is waypoint's account principal.
type User struct {
	ID       string
	Username string
	Email    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAuth pairs a user with its stored credential.
// PasswordHash is an encoded hash understood by security/password.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a new account. PasswordHash must already be hashed.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	Now          time.Time
}

// Store is the identity persistence boundary.
//
// Contract:
// - CreateUser returns ConflictError{Field: "username"|"email"} on uniqueness violations.
// - Lookups return NotFoundError when no row matches.
// - Username and email lookups are case-insensitive (normalized).
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByID(ctx context.Context, id string) (UserAuth, error)
	GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error
	UpdateEmail(ctx context.Context, userID, email string, now time.Time) (User, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
