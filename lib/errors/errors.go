// Package errors provides structured error types for hostpool.
//
// This package provides:
//   - Sentinel errors for common error conditions
//   - Error codes for categorizing pool and registry failures
//   - Error wrapping with context preservation
//   - Safe error messages that don't leak socket-level details
package errors

import (
	"errors"
	"fmt"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Error codes for categorizing errors.
const (
	CodeInternal      = -32603 // Internal error
	CodeInvalidParams = -32602 // Invalid parameters

	// Pool-specific error codes (-32000 to -32099)
	CodeNotFound      = -32003 // Resource not found
	CodeTimeout       = -32005 // Operation timeout
	CodeUnavailable   = -32007 // Pool unavailable
	CodeConnection    = -32009 // Connection error
	CodeConfiguration = -32011 // Invalid configuration
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates a service is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrConnection indicates a connection error.
	ErrConnection = errors.New("connection error")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")
)

// Pool errors
var (
	// ErrPoolClosed is returned by a pool that has been shut down or has crashed.
	ErrPoolClosed = fmt.Errorf("pool: %w", ErrClosed)

	// ErrCheckoutTimeout is the overflow outcome of the reject-with-timeout policy.
	ErrCheckoutTimeout = fmt.Errorf("pool: checkout %w", ErrTimeout)

	// ErrInvalidHandle indicates a checkin with a handle that was not issued by a pool.
	ErrInvalidHandle = fmt.Errorf("pool: handle %w", ErrInvalidInput)
)

// Registry and configuration errors
var (
	// ErrUnknownPolicy indicates an unrecognized granularity or overflow policy name.
	ErrUnknownPolicy = fmt.Errorf("config: unknown policy: %w", ErrConfiguration)

	// ErrUnsupportedFormat indicates a configuration file with an unknown extension.
	ErrUnsupportedFormat = fmt.Errorf("config: unsupported file format: %w", ErrConfiguration)

	// ErrRegistryClosed indicates the registry no longer hands out pools.
	ErrRegistryClosed = fmt.Errorf("registry: %w", ErrClosed)
)

// Socket errors
var (
	// ErrPeerClosed indicates the remote end closed an idle socket.
	ErrPeerClosed = fmt.Errorf("socket: peer closed: %w", ErrConnection)

	// ErrUnsolicitedData indicates bytes arrived on a socket nobody was reading.
	ErrUnsolicitedData = fmt.Errorf("socket: unsolicited data on idle connection: %w", ErrConnection)

	// ErrCircuitOpen is returned for dials to an endpoint that keeps failing.
	ErrCircuitOpen = fmt.Errorf("client: circuit open: %w", ErrUnavailable)
)

// Error is a structured error with a code and safe message.
type Error struct {
	// Code is the error code for categorization
	Code int `json:"code"`
	// Message is a safe, user-facing error message
	Message string `json:"message"`
	// Err is the underlying error (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns a client-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// Wrap wraps an existing error with a code and safe message.
// The original error is preserved for debugging.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapInternal wraps an internal error with a generic message.
func WrapInternal(err error) *Error {
	return Wrap(CodeInternal, "internal error", err)
}

// FromSentinel creates a structured error from a sentinel error.
// It assigns an error code based on the sentinel the error wraps.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    codeFromError(err),
		Message: err.Error(),
		Err:     err,
	}
}

// codeFromError maps sentinel errors to error codes.
func codeFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrClosed), errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidParams
	case errors.Is(err, ErrConnection):
		return CodeConnection
	default:
		return CodeInternal
	}
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable returns true if the error indicates a service is unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsInvalidInput returns true if the error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsConnection returns true if the error indicates a broken connection.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsConfiguration returns true if the error comes from invalid configuration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
