package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"wrapped not a member", fmt.Errorf("room 7: %w", ErrNotAMember), http.StatusForbidden},
		{"not authorized", ErrNotAuthorized, http.StatusForbidden},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"empty content", ErrEmptyContent, http.StatusBadRequest},
		{"empty emoji", ErrEmptyEmoji, http.StatusBadRequest},
		{"invalid name", ErrInvalidName, http.StatusBadRequest},
		{"validation", ErrValidation, http.StatusBadRequest},
		{"conflict", ErrConflict, http.StatusConflict},
		{"unknown", errors.New("dial tcp: refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestPublicHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal error", Public(errors.New("Error 1045: access denied")))
	wrapped := fmt.Errorf("message 3: %w", ErrNotFound)
	assert.Equal(t, wrapped.Error(), Public(wrapped))
}
