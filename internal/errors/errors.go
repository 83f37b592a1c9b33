// Package errors provides centralized error definitions and error handling utilities
// for usbipd-manager. It defines the failure taxonomy of the device supervisor,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
//   - ParseError: the backend's list output could not be understood
//   - LaunchError: a process could not be spawned, or an elevated launch was rejected
//   - TimeoutError: a bounded backend command exceeded its deadline and was killed
//   - CommandError: the backend ran and exited non-zero
//   - PersistenceError: the auto-attach state file could not be written
//   - PolicyError: an operation was rejected locally because of the device state
//   - NotFoundError: a device or tracked entry does not exist
//
// # Usage
//
//	err := errors.NewCommandError([]string{"usbipd", "detach", "--busid", "1-6"}, 1, stderr)
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
//
//	var policy *errors.PolicyError
//	if errors.As(err, &policy) { ... }
//
//	msg := errors.UserMessage(err)
//
// # Error Classification
//
//   - Retryable: timeouts and transient launch failures
//   - UserFacing: errors whose message can be shown verbatim in the UI
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Backend-related sentinel errors
var (
	// ErrBackendNotFound indicates the backend executable could not be located.
	ErrBackendNotFound = New("backend executable not found")
	// ErrNoOutput indicates the backend produced no usable standard output.
	ErrNoOutput = New("backend produced no output")
	// ErrUndecodable indicates the backend output is not valid text.
	ErrUndecodable = New("backend output is not valid UTF-8 text")
	// ErrMissingHeader indicates the list output lacks its banner and header lines.
	ErrMissingHeader = New("list output is missing its header")
	// ErrElevationRejected indicates the privilege-escalation launch was refused.
	ErrElevationRejected = New("elevated launch rejected")
)

// Supervisor and policy sentinel errors
var (
	// ErrPolicyRejected indicates a request was refused by a device state gate.
	ErrPolicyRejected = New("operation not permitted in current device state")
	// ErrDeviceNotFound indicates the device is absent from the last poll.
	ErrDeviceNotFound = New("device not found")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ManagerError is the base interface for all usbipd-manager errors.
type ManagerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Backend Errors
// -----------------------------------------------------------------------------

// ParseError represents backend output that could not be understood.
// Line is 1-based; zero means the whole stream was rejected.
type ParseError struct {
	baseError
	Line int
	Text string
}

// NewParseError creates a new ParseError.
func NewParseError(message string, cause error) *ParseError {
	return &ParseError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithLine records the offending line number and text.
func (e *ParseError) WithLine(line int, text string) *ParseError {
	e.Line = line
	e.Text = text
	return e
}

// Error returns the formatted error message.
func (e *ParseError) Error() string {
	prefix := "parse error"
	if e.Line > 0 {
		prefix = fmt.Sprintf("parse error [line=%d]", e.Line)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// LaunchError represents a process that could not be started, including a
// privilege-escalation launch that was refused. No state is mutated when a
// LaunchError is returned.
type LaunchError struct {
	baseError
	Args     []string
	Elevated bool
	// Code is the launcher's own result: the ShellExecute return value on
	// Windows (32 or less is a failure), the elevation wrapper's exit status
	// elsewhere.
	Code int
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(args []string, cause error) *LaunchError {
	return &LaunchError{
		baseError: baseError{
			message:    "failed to launch process",
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Args: args,
	}
}

// WithElevated marks the launch as a privilege-escalation launch with the
// launcher's return code.
func (e *LaunchError) WithElevated(code int) *LaunchError {
	e.Elevated = true
	e.Code = code
	e.message = "failed to launch elevated process"
	return e
}

// Error returns the formatted error message.
func (e *LaunchError) Error() string {
	var parts []string
	if len(e.Args) > 0 {
		parts = append(parts, fmt.Sprintf("cmd=%s", strings.Join(e.Args, " ")))
	}
	if e.Elevated {
		parts = append(parts, fmt.Sprintf("code=%d", e.Code))
	}

	prefix := "launch error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("launch error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is reports whether target is ErrElevationRejected for elevated launches.
func (e *LaunchError) Is(target error) bool {
	return e.Elevated && target == ErrElevationRejected
}

// TimeoutError represents a bounded operation that exceeded its deadline.
//
// Example:
//
//	err := errors.NewTimeoutError("usbipd detach --busid 1-6", 20*time.Second)
//	fmt.Println(err) // "timeout error: usbipd detach --busid 1-6 (timeout: 20s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CommandError represents a backend process that ran to completion and
// exited non-zero. Stderr is the captured standard error, verbatim.
type CommandError struct {
	baseError
	Args     []string
	ExitCode int
	Stderr   string
}

// NewCommandError creates a new CommandError.
func NewCommandError(args []string, exitCode int, stderr string) *CommandError {
	return &CommandError{
		baseError: baseError{
			message:    "command failed",
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Args:     args,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

// Error returns the formatted error message.
func (e *CommandError) Error() string {
	prefix := fmt.Sprintf("command error [cmd=%s, exit=%d]", strings.Join(e.Args, " "), e.ExitCode)
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		return fmt.Sprintf("%s: %s", prefix, e.message)
	}
	return fmt.Sprintf("%s: %s", prefix, detail)
}

// PersistenceError represents a failed write of the auto-attach state file.
// The in-memory supervisor state is not rolled back, so this is a warning.
type PersistenceError struct {
	baseError
	Path string
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(path string, cause error) *PersistenceError {
	return &PersistenceError{
		baseError: baseError{
			message:    "failed to save auto-attach state",
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *PersistenceError) Error() string {
	prefix := "persistence error"
	if e.Path != "" {
		prefix = fmt.Sprintf("persistence error [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Local Rejections
// -----------------------------------------------------------------------------

// PolicyError represents a request refused by a device state gate before any
// backend invocation took place.
//
// Example:
//
//	err := errors.NewPolicyError("bind", "1-6", "Shared")
//	fmt.Println(err) // "cannot bind device 1-6: device is Shared"
type PolicyError struct {
	baseError
	Action string
	BusID  string
	State  string
}

// NewPolicyError creates a new PolicyError.
func NewPolicyError(action, busID, state string) *PolicyError {
	return &PolicyError{
		baseError: baseError{
			message:    fmt.Sprintf("cannot %s device %s", action, busID),
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
		Action: action,
		BusID:  busID,
		State:  state,
	}
}

// Error returns the formatted error message.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: device is %s", e.message, e.State)
}

// Is matches ErrPolicyRejected.
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyRejected
}

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("device", "1-6")
//	fmt.Println(err) // "device '1-6' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Is matches ErrDeviceNotFound for device lookups.
func (e *NotFoundError) Is(target error) bool {
	return e.ResourceType == "device" && target == ErrDeviceNotFound
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var managerErr ManagerError
	if As(err, &managerErr) {
		return managerErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var managerErr ManagerError
	if As(err, &managerErr) {
		return managerErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ManagerError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var managerErr ManagerError
	if As(err, &managerErr) {
		return managerErr.Severity()
	}
	return SeverityError
}

// UserMessage returns a short message suitable for a status line. Policy
// rejections and command failures are shown as-is; timeouts get a retry hint;
// anything not marked user-facing is reduced to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var timeout *TimeoutError
	if As(err, &timeout) {
		return fmt.Sprintf("%s did not finish within %s; try again", timeout.Operation, timeout.Duration)
	}

	var cmdErr *CommandError
	if As(err, &cmdErr) {
		if detail := strings.TrimSpace(cmdErr.Stderr); detail != "" {
			return detail
		}
		return fmt.Sprintf("command exited with status %d", cmdErr.ExitCode)
	}

	if IsUserFacing(err) || Is(err, ErrInvalidInput) || Is(err, ErrCanceled) {
		return err.Error()
	}
	return "an internal error occurred; see the log for details"
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
