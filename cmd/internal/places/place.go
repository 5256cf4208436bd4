// Package places stores user-created places and serves them over HTTP.
package places

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxNameChars = 100
	maxInfoChars = 4000

	DefaultListLimit = 20
	MaxListLimit     = 100
)

var (
	// ErrNotFound reports a missing place.
	ErrNotFound = errors.New("place not found")
	// ErrInvalidInput reports a rejected create request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownCreator means created_by does not reference an existing user.
	ErrUnknownCreator = errors.New("unknown creator")
)

// Place is a named location shared by a user.
type Place struct {
	ID        string
	Name      string
	Info      string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput is the data needed to create a Place.
type CreateInput struct {
	Name      string
	Info      string
	CreatedBy string
	Now       time.Time
}

// Store persists places. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Place, error)
	// List returns places ordered by creation, skipping offset and returning at most limit.
	List(ctx context.Context, offset, limit int) ([]Place, error)
	Get(ctx context.Context, id string) (Place, error)
}

// FieldError names the offending field of an ErrInvalidInput.
type FieldError struct {
	Field string
	Msg   string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidInput, e.Field, e.Msg)
}

func (e FieldError) Unwrap() error { return ErrInvalidInput }

// normalizeCreate trims input and enforces length limits.
func normalizeCreate(in CreateInput) (CreateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Info = strings.TrimSpace(in.Info)
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)

	switch {
	case in.Name == "":
		return in, FieldError{Field: "name", Msg: "is required"}
	case utf8.RuneCountInString(in.Name) > maxNameChars:
		return in, FieldError{Field: "name", Msg: fmt.Sprintf("must be at most %d characters", maxNameChars)}
	case utf8.RuneCountInString(in.Info) > maxInfoChars:
		return in, FieldError{Field: "info", Msg: fmt.Sprintf("must be at most %d characters", maxInfoChars)}
	case in.CreatedBy == "":
		return in, FieldError{Field: "created_by", Msg: "is required"}
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

// ClampPage applies list defaults. Negative values are the caller's problem to reject.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return offset, limit
}
