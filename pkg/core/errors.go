package core

import (
	"errors"
	"fmt"
)

// Error represents a typed orchestration error surfaced to transport callers.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidArgument  ErrorType = "invalid_argument_error"
	ErrNotFound         ErrorType = "not_found_error"
	ErrAlreadyRecording ErrorType = "already_recording_error"
	ErrNotRecording     ErrorType = "not_recording_error"
	ErrUnavailable      ErrorType = "unavailable_error"
	ErrAPI              ErrorType = "api_error"
)

// NewInvalidArgumentError creates an invalid argument error.
func NewInvalidArgumentError(message string) *Error {
	return &Error{
		Type:    ErrInvalidArgument,
		Message: message,
	}
}

// NewInvalidArgumentErrorWithParam creates an invalid argument error naming
// the offending parameter.
func NewInvalidArgumentErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidArgument,
		Message: message,
		Param:   param,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewAlreadyRecordingError creates an error for starting an active recording.
func NewAlreadyRecordingError(sessionID string) *Error {
	return &Error{
		Type:    ErrAlreadyRecording,
		Message: fmt.Sprintf("session %s is already recording", sessionID),
	}
}

// NewNotRecordingError creates an error for stopping an idle recording.
func NewNotRecordingError(sessionID string) *Error {
	return &Error{
		Type:    ErrNotRecording,
		Message: fmt.Sprintf("session %s is not recording", sessionID),
	}
}

// NewUnavailableError creates an error for an unreachable collaborator
// (durable store or responder).
func NewUnavailableError(what string, underlying error) *Error {
	return &Error{
		Type:    ErrUnavailable,
		Message: fmt.Sprintf("%s unavailable: %v", what, underlying),
	}
}

// NewAPIError creates a generic internal error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsType reports whether err is a *core.Error with the given type.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if !errors.As(err, &ce) || ce == nil {
		return false
	}
	return ce.Type == t
}
