package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Error kinds carried in {"error":{"kind":...}}.
const (
	KindAlreadyExists   = "already_exists"
	KindAuthorization   = "authorization"
	KindFieldValidation = "field_validation"
	KindInternal        = "internal"
	KindNotFound        = "not_found"
	KindNotImplemented  = "not_implemented"
	KindRateLimited     = "rate_limited"
	KindInvalidJSON     = "invalid_json"
)

type apiError struct {
	Kind string `json:"kind"`
	Info any    `json:"info,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// WriteJSON encodes v with no-store caching.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the shared error envelope. info may be nil.
func WriteError(w http.ResponseWriter, status int, kind string, info any) {
	WriteJSON(w, status, errorResponse{Error: apiError{Kind: kind, Info: info}})
}

// DecodeJSON reads exactly one JSON object of at most maxBytes into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
