package errors

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeInternal        = "INTERNAL_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeTransient       = "TRANSIENT_IO"
	CodeSubprocess      = "SUBPROCESS_FAILED"
	CodeInvariant       = "INVARIANT_VIOLATION"
	CodeProfilerTimeout = "PROFILER_TIMEOUT"
	CodeInvocation      = "INVOCATION_FAILED"
)

// AppError represents an application error with context
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += fmt.Sprintf(" %v", e.Details)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithError wraps an underlying error
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Internal creates an internal error
func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

// Transient creates an error for a recoverable I/O failure of one unit of work
func Transient(message string, err error) *AppError {
	return New(CodeTransient, message).WithError(err)
}

// Subprocess creates an error for a domain binary that exited non-zero
func Subprocess(binary string, exitCode int) *AppError {
	return New(CodeSubprocess, fmt.Sprintf("%s exited with code %d", binary, exitCode))
}

// Invariant creates an error for a violated cross-cutting invariant.
// Invariant violations are terminal for the step that detects them.
func Invariant(message string) *AppError {
	return New(CodeInvariant, message)
}

// ProfilerTimeout creates the non-fatal error returned when a monitor misses its hand-back
func ProfilerTimeout(message string) *AppError {
	return New(CodeProfilerTimeout, message)
}

// Invocation creates an error for remote invocations reported failed by the executor
func Invocation(message string) *AppError {
	return New(CodeInvocation, message)
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join joins errors, discarding nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error if present
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func hasCode(err error, code string) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsTransient checks if the error is a transient I/O error
func IsTransient(err error) bool {
	return hasCode(err, CodeTransient)
}

// IsSubprocess checks if the error is a subprocess failure
func IsSubprocess(err error) bool {
	return hasCode(err, CodeSubprocess)
}

// IsInvariant checks if the error is an invariant violation
func IsInvariant(err error) bool {
	return hasCode(err, CodeInvariant)
}

// IsProfilerTimeout checks if the error is a profiler hand-back timeout
func IsProfilerTimeout(err error) bool {
	return hasCode(err, CodeProfilerTimeout)
}

// IsInvocation checks if the error is an invocation failure
func IsInvocation(err error) bool {
	return hasCode(err, CodeInvocation)
}
