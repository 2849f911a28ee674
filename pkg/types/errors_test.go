package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"Title":       "required",
		"TotalCycles": "gte=1",
	}}
	assert.Equal(t, "validation failed: Title: required; TotalCycles: gte=1", err.Error())
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("closing cycle: %w", NewValidationError("cycle", "out of range"))
	assert.ErrorIs(t, wrapped, ErrValidation)

	var verr *ValidationError
	assert.True(t, errors.As(wrapped, &verr))
	assert.Equal(t, "out of range", verr.Fields["cycle"])
}
