package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"waypoint/cmd/identity/ids"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are quoted via pgx.Identifier.
// - Credentials live in user_credentials, written in the same tx as users.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "waypoint").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "waypoint",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

// CreateUser inserts the user and its credential transactionally.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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
	userID, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("users")+` (
		     id, username, username_norm, email, email_norm, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		userID,
		username,
		NormalizeUsername(username),
		email,
		NormalizeEmail(email),
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: insert user: %w", op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID, in.PasswordHash, now,
	)
	if err != nil {
		return User{}, fmt.Errorf("%s: insert credential: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("%s: commit: %w", op, err)
	}

	return User{
		ID:        userID,
		Username:  username,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, created_at, updated_at
		   FROM `+s.table("users")+`
		  WHERE id = $1`,
		strings.TrimSpace(id),
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, pgNotFound(op, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserAuthByID(ctx context.Context, id string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserAuthByID", "u.id", strings.TrimSpace(id))
}

func (s *PostgresStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserAuthByUsername", "u.username_norm", NormalizeUsername(username))
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserAuthByEmail", "u.email_norm", NormalizeEmail(email))
}

// getUserAuth joins users with user_credentials. column is a trusted constant.
func (s *PostgresStore) getUserAuth(ctx context.Context, op, column, value string) (UserAuth, error) {
	if value == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	var ua UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.email, u.created_at, u.updated_at, c.password_hash
		   FROM `+s.table("users")+` u
		   JOIN `+s.table("user_credentials")+` c ON c.user_id = u.id
		  WHERE `+column+` = $1`,
		value,
	).Scan(
		&ua.User.ID,
		&ua.User.Username,
		&ua.User.Email,
		&ua.User.CreatedAt,
		&ua.User.UpdatedAt,
		&ua.PasswordHash,
	)
	if err != nil {
		return UserAuth{}, pgNotFound(op, err)
	}
	return ua, nil
}

// UpdatePasswordHash replaces the stored credential for userID.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := checkPasswordHash(op, passwordHash); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("user_credentials")+`
		    SET password_hash = $2, updated_at = $3
		  WHERE user_id = $1`,
		userID, passwordHash, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// UpdateEmail changes the user's email, enforcing case-insensitive uniqueness.
func (s *PostgresStore) UpdateEmail(ctx context.Context, userID, email string, now time.Time) (User, error) {
	const op = "identity.UpdateEmail"

	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var u User
	err := s.pool.QueryRow(ctx,
		`UPDATE `+s.table("users")+`
		    SET email = $2, email_norm = $3, updated_at = $4
		  WHERE id = $1
		RETURNING id, username, email, created_at, updated_at`,
		userID, email, NormalizeEmail(email), now,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, pgNotFound(op, err)
	}
	return u, nil
}

// Ping acquires a connection and pings the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ---- helpers ----

func (s *PostgresStore) table(name string) string {
	return pgIdent(s.schema, name)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// pgNotFound maps pgx.ErrNoRows to NotFoundError and wraps anything else.
func pgNotFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_users_username_norm":
		return "username", true
	case "uq_users_email_norm":
		return "email", true
	}
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
