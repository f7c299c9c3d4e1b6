package pkg

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHasCode(t *testing.T) {
	err := NewAppError(ErrInvalidTransitionCode, "order 7 is FILLED and cannot become CANCELLED", nil)

	assert.True(t, HasCode(err, ErrInvalidTransitionCode))
	assert.False(t, HasCode(err, ErrRecordNotFoundCode))
	assert.False(t, HasCode(errors.New("plain"), ErrInvalidTransitionCode))

	// Wrapped AppErrors are still recognized.
	wrapped := fmt.Errorf("settle: %w", err)
	assert.True(t, HasCode(wrapped, ErrInvalidTransitionCode))
}

func TestAppError_UnwrapsCause(t *testing.T) {
	cause := errors.New("broker unreachable")
	err := NewAppError(ErrPublishFailedCode, "order accepted but event publish failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "broker unreachable")
}

func TestToErrorResponse_KnownCode(t *testing.T) {
	err := NewAppError(ErrRecordNotFoundCode, "no records found", nil)
	resp := ToErrorResponse(zap.NewNop(), "trace-1", err)

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, ErrRecordNotFoundCode.Code, resp.Code)
	assert.Equal(t, "no records found", resp.Message)
}

func TestToErrorResponse_UnknownErrorBecomes500(t *testing.T) {
	resp := ToErrorResponse(zap.NewNop(), "trace-1", errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, ErrServerCode.Code, resp.Code)
}
