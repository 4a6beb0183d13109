package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("connection refused"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Contains(t, appErr.Error(), "connection refused")
}

func TestFromErrorKeepsTyped(t *testing.T) {
	wrapped := fmt.Errorf("load fee: %w", Clone(ErrNotFound, "fee not found"))

	appErr := FromError(wrapped)

	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "fee not found", appErr.Message)
}

func TestClonedErrorMatchesSentinel(t *testing.T) {
	err := Clone(ErrOverpayment, "payment of 2500 exceeds remaining balance 2000")

	assert.True(t, errors.Is(err, ErrOverpayment))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Nil(t, Clone(nil, "x"))
}
