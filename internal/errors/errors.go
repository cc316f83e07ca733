// Package errors provides standardized error codes for the tabterm host.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (resolve, shell, dispatch, server)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by web clients for programmatic
// error handling (e.g. styling). Human-readable messages are provided
// alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that clients can rely on for error handling.
const (
	// Resolve domain - command resolution errors
	CodeResolveUnrecognizedIntent = "resolve.unrecognized_intent" // Natural-language input matched no rule

	// Shell domain - filesystem navigator errors
	CodeShellNotFound         = "shell.not_found"         // Path does not exist
	CodeShellNotADirectory    = "shell.not_a_directory"   // Path exists but is not a directory
	CodeShellAlreadyExists    = "shell.already_exists"    // Target already exists
	CodeShellPermissionDenied = "shell.permission_denied" // Filesystem permission denied
	CodeShellForbidden        = "shell.forbidden"         // Operation would escape the sandbox boundary
	CodeShellInvalidArguments = "shell.invalid_arguments" // Missing or malformed operands
	CodeShellIsADirectory     = "shell.is_a_directory"    // File operation attempted on a directory

	// Dispatch domain - command execution errors
	CodeDispatchUnknownCommand = "dispatch.unknown_command" // Name not in registry and exec disabled
	CodeDispatchExecFailed     = "dispatch.exec_failed"     // Host process invocation failed
	CodeDispatchTimeout        = "dispatch.timeout"         // Host process exceeded the exec timeout
	CodeDispatchBlocked        = "dispatch.blocked"         // Command matched the dangerous-command blocklist

	// Server domain - WebSocket and transport errors
	CodeServerChannelClosed  = "server.channel_closed"  // Client send channel closed mid-delivery
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or unknown inbound message
	CodeServerRateLimited    = "server.rate_limited"    // Too many command messages per second
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed

	// Storage domain - transcript persistence errors
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// General domain - catch-all errors
	CodeUnknown = "error.unknown" // Unknown error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "shell.not_found")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new CodedError with a formatted message.
func Newf(code, format string, args ...interface{}) *CodedError {
	return &CodedError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client events.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}
