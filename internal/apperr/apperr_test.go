package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHuma(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NotFound("area not found"), http.StatusNotFound},
		{"validation", Validation("bad reason"), http.StatusUnprocessableEntity},
		{"conflict", Conflict("exists"), http.StatusConflict},
		{"unauthorized", Unauthorized("login required"), http.StatusUnauthorized},
		{"external", External("provider", errors.New("boom")), http.StatusBadGateway},
		{"internal", Internal("operation failed", errors.New("disk")), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NotFound("x")), http.StatusNotFound},
		{"plain", errors.New("raw"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var se huma.StatusError
			require.ErrorAs(t, ToHuma(tt.err), &se)
			assert.Equal(t, tt.status, se.GetStatus())
		})
	}
}

func TestInternalDoesNotLeakCause(t *testing.T) {
	err := ToHuma(Internal("operation failed", errors.New("password=secret")))
	assert.NotContains(t, err.Error(), "secret")
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Validation("x"))
	assert.True(t, Is(err, TypeValidation))
	assert.False(t, Is(err, TypeNotFound))
	assert.False(t, Is(errors.New("x"), TypeValidation))
}
