package errors_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndDefaultMessage(t *testing.T) {
	err := errors.New().New(errors.ErrNoCPUData)

	assert.Equal(t, errors.ErrNoCPUData, err.Code())
	assert.Equal(t, errors.GetErrorMessage(errors.ErrNoCPUData), err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.New().Wrap(errors.ErrSinkTransmission, cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithDataAppearsInMessage(t *testing.T) {
	err := errors.New().WithData(errors.ErrInvalidWeight, 1.5)

	assert.Contains(t, err.Error(), "1.5")
	assert.Equal(t, 1.5, err.GetData())
}

func TestWithMessageOverridesDefault(t *testing.T) {
	err := errors.New().WithMessage(errors.ErrInvalidConfig, "host has no name")

	assert.Equal(t, "host has no name", err.Error())
}

func TestHasCodeSeesThroughWrapping(t *testing.T) {
	inner := errors.New().New(errors.ErrNoCPUData)
	wrapped := errors.New().Wrap(errors.ErrMainLoop, inner)

	// The outermost domain code wins.
	assert.True(t, errors.HasCode(wrapped, errors.ErrMainLoop))
	assert.Equal(t, errors.ErrMainLoop, errors.CodeOf(wrapped))

	require.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrMainLoop))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}
