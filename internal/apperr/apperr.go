// Package apperr holds the error taxonomy shared by stores, services and
// transports. Callers wrap these with fmt.Errorf("...: %w") and match them
// with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotAMember      = errors.New("not a member of room")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrEmptyContent    = errors.New("message cannot be empty")
	ErrEmptyEmoji      = errors.New("emoji is required")
	ErrInvalidName     = errors.New("invalid room name")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
)

// Status maps err to the HTTP status a handler should answer with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrEmptyEmoji),
		errors.Is(err, ErrInvalidName), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the text that may be shown to a client. Anything outside
// the taxonomy is reported generically so driver details never leak.
func Public(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
