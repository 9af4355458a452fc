package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes missing keys in Redis.
	RedisNotFoundMessage = "redis key not found"
	// BackendErrorMessage describes failures reaching the Teradata MCP backend.
	BackendErrorMessage = "data backend unavailable"
	// SandboxErrorMessage describes failures of the chart execution sandbox.
	SandboxErrorMessage = "chart sandbox unavailable"
)

// Sentinels for unrecoverable capability failures. Specialists escalate these
// to the loop driver instead of folding them into a failure note.
var (
	ErrBackendUnreachable = errors.New("data backend unreachable")
	ErrSandboxUnavailable = errors.New("code execution sandbox unavailable")
)

// Error wraps an underlying error with an HTTP-ish status and a safe message.
type Error struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the provided information.
func New(err error, status int, message string) *Error {
	return &Error{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapBackend marks an error as a backend-unreachable condition.
func WrapBackend(err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Err:     fmt.Errorf("%w: %w", ErrBackendUnreachable, err),
		Status:  http.StatusBadGateway,
		Message: BackendErrorMessage,
	}
}

// WrapSandbox marks an error as a sandbox-unavailable condition.
func WrapSandbox(err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Err:     fmt.Errorf("%w: %w", ErrSandboxUnavailable, err),
		Status:  http.StatusBadGateway,
		Message: SandboxErrorMessage,
	}
}

// Is reports whether the target matches the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to Error or the wrapped error in a chain.
func (e *Error) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**Error); ok {
		*t = e
		return true
	}
	return false
}
