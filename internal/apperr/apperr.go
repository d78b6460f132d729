// Package apperr holds the error taxonomy shared by services and the HTTP layer.
// Callers wrap a sentinel with context (fmt.Errorf("%w: ...")) and match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired invitation code")
	ErrCodeExpired          = errors.New("invitation code has expired")
	ErrConflict             = errors.New("conflict")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
)

type kind struct {
	err    error
	code   string
	status int
}

var kinds = []kind{
	{ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrValidation, "validation_error", http.StatusBadRequest},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrInvalidOrExpiredCode, "invalid_or_expired_code", http.StatusNotFound},
	{ErrCodeExpired, "code_expired", http.StatusGone},
	{ErrConflict, "conflict", http.StatusConflict},
	{ErrUpstreamUnavailable, "upstream_unavailable", http.StatusBadGateway},
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// Upstream tags a collaborator failure (store, generator, object storage).
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}

// Classify returns the stable error code and HTTP status for err.
// Untagged errors are internal failures.
func Classify(err error) (string, int) {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code, k.status
		}
	}
	return "internal_error", http.StatusInternalServerError
}
