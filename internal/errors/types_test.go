package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("query cannot be empty")
	assert.Equal(t, ErrCodeValidationFailed, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.HTTPCode)
	assert.True(t, IsValidation(err))
	assert.False(t, IsTimeout(err))
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("Document")
	assert.Equal(t, ErrCodeResourceNotFound, err.Code)
	assert.Equal(t, http.StatusNotFound, err.HTTPCode)
	assert.Equal(t, "Document not found", err.Message)
}

func TestExternalServiceErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewExternalServiceError("embedding", cause)

	assert.Equal(t, ErrCodeExternalService, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("generation")
	assert.Equal(t, http.StatusGatewayTimeout, err.HTTPCode)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "generation timed out", err.Message)
}

func TestIsAppErrorThroughWrapping(t *testing.T) {
	inner := NewValidationError("bad input")
	wrapped := fmt.Errorf("handling request: %w", inner)

	assert.True(t, IsAppError(wrapped))
	assert.True(t, IsValidation(wrapped))
	assert.Equal(t, inner, GetAppError(wrapped))
}

func TestGetAppErrorWrapsUnknown(t *testing.T) {
	err := GetAppError(errors.New("mystery"))
	assert.Equal(t, ErrCodeInternalServer, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPCode)
}
