package account

import (
	"errors"
	"sort"
	"strings"
)

// Outcome taxonomy. Transport layers map these to status codes.
var (
	// ErrAlreadyExists reports a credential conflict on create or update.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized covers bad credentials. It never says which part was wrong.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal covers hashing, signing, corrupted stored hashes and storage failures.
	ErrInternal = errors.New("internal error")

	// ErrValidation is the kind wrapped by ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError lists per-field problems. Messages are safe to return to clients.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(" ")
		b.WriteString(e.Fields[k])
	}
	return b.String()
}

func (e ValidationError) Unwrap() error { return ErrValidation }

// ConflictError is ErrAlreadyExists with the conflicting field attached.
type ConflictError struct {
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return ErrAlreadyExists.Error()
	}
	return e.Field + " " + ErrAlreadyExists.Error()
}

func (e ConflictError) Unwrap() error { return ErrAlreadyExists }

type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return ValidationError{Fields: f}
}
