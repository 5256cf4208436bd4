package places

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"waypoint/cmd/identity/ids"
)

// PostgresStore persists places in <schema>.places. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "waypoint").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("places: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "waypoint"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("places: nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

const placeColumns = `id, name, info, created_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Place, error) {
	const op = "places.Create"

	in, err := normalizeCreate(in)
	if err != nil {
		return Place{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Place{}, err
	}

	var p Place
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (id, name, info, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+placeColumns,
		id, in.Name, in.Info, in.CreatedBy, in.Now,
	).Scan(&p.ID, &p.Name, &p.Info, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return Place{}, fmt.Errorf("%s: %w", op, ErrUnknownCreator)
		}
		return Place{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, offset, limit int) ([]Place, error) {
	const op = "places.List"

	offset, limit = ClampPage(offset, limit)
	rows, err := s.pool.Query(ctx,
		`SELECT `+placeColumns+`
		   FROM `+s.table()+`
		  ORDER BY created_at, id
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Place, error) {
		var p Place
		err := row.Scan(&p.ID, &p.Name, &p.Info, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		out = []Place{}
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Place, error) {
	const op = "places.Get"

	var p Place
	err := s.pool.QueryRow(ctx,
		`SELECT `+placeColumns+` FROM `+s.table()+` WHERE id = $1`,
		strings.ToUpper(strings.TrimSpace(id)),
	).Scan(&p.ID, &p.Name, &p.Info, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Place{}, ErrNotFound
		}
		return Place{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "places"}.Sanitize()
}
