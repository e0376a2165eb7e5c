package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("amount is required")

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	assert.Equal(t, "amount is required", err.Message)
}

func TestNewTransitionError(t *testing.T) {
	err := NewTransitionError("CompletedOk", "ContractRejected")

	assert.Equal(t, ErrorTypeTransition, err.Type)
	assert.Contains(t, err.Error(), "ContractRejected")
	assert.Contains(t, err.Error(), "CompletedOk")
	assert.True(t, IsTransitionError(err))
	assert.False(t, IsComplianceError(err))
}

func TestNewComplianceError(t *testing.T) {
	err := NewComplianceError("AmountLimits", "amount exceeds maximum of 50000")

	assert.Equal(t, ErrorTypeCompliance, err.Type)
	assert.Equal(t, "AmountLimits", err.Field)
	assert.True(t, IsComplianceError(err))
	assert.Equal(t, ErrorTypeCompliance, GetErrorType(err))
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDependencyError("postgres", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsDependencyError(err))
}

func TestWrapError_PreservesType(t *testing.T) {
	original := NewNotFoundError("saga", "P0000000001")
	wrapped := WrapError(original, "failed loading saga for retry")

	require.Equal(t, ErrorTypeNotFound, wrapped.Type)
	assert.ErrorIs(t, wrapped, original)
}

func TestWrapError_DefaultsToInternal(t *testing.T) {
	wrapped := WrapError(errors.New("boom"), "unexpected failure")

	assert.Equal(t, ErrorTypeInternal, wrapped.Type)
}

func TestDomainError_Is(t *testing.T) {
	a := NewValidationError("x is required")
	b := NewValidationError("y is required")

	assert.True(t, errors.Is(a, b))
}
