package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintError_Format(t *testing.T) {
	err := WrapError(errors.New("locked"), ErrStorage, "open database").WithContext("path", "/data/cloudmaint.db")
	assert.Equal(t, "[Storage] open database | context: path=/data/cloudmaint.db | cause: locked", err.Error())
}

func TestIsErrorType_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("serve: %w", NewError(ErrConfig, "bad settings"))
	assert.True(t, IsErrorType(err, ErrConfig))
	assert.False(t, IsErrorType(err, ErrJob))
	assert.False(t, IsErrorType(errors.New("plain"), ErrConfig))
}

func TestSafeExecute(t *testing.T) {
	require.NoError(t, SafeExecute(func() error { return nil }))

	err := SafeExecute(func() error { panic("oops") })
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUnknown))
}

func TestDefaultErrorHandler(t *testing.T) {
	h := NewDefaultErrorHandler()
	assert.True(t, h.Handle(fmt.Errorf("wrapped: %w", NewError(ErrJob, "failed"))))
	assert.False(t, h.Handle(errors.New("plain")))
	assert.NotEmpty(t, h.GetAdvice(NewError(ErrUnknownJobClass, "x")))
}
