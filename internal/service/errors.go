package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/cloudmaint/pkg/log"
)

type ErrorType int

const (
	ErrConfig ErrorType = iota
	ErrValidation
	ErrStorage
	ErrJob
	ErrUnknownJobClass
	ErrUnknown
)

type MaintError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *MaintError {
	return &MaintError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *MaintError {
	return &MaintError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *MaintError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *MaintError) Unwrap() error {
	return e.Cause
}

func (e *MaintError) WithContext(key string, value any) *MaintError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrConfig:
		return "Config"
	case ErrValidation:
		return "Validation"
	case ErrStorage:
		return "Storage"
	case ErrJob:
		return "Job"
	case ErrUnknownJobClass:
		return "UnknownJobClass"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *MaintError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err. It reports whether err was a *MaintError.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var maintErr *MaintError
	if !errors.As(err, &maintErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(maintErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *MaintError) string {
	switch err.Type {
	case ErrConfig:
		return "Please check that the settings file and environment variables are set correctly"
	case ErrValidation:
		return "Please verify the input parameters"
	case ErrStorage:
		return "Please check that the data directory is writable and the database is not locked by another process"
	case ErrJob:
		return "The job failed and was removed; enqueue it again once the cause is fixed"
	case ErrUnknownJobClass:
		return "The job was queued by a newer or older version; it has been dropped"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var maintErr *MaintError
	if errors.As(err, &maintErr) {
		return maintErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *MaintError {
	return NewErrorWithCause(errorType, message, err)
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
