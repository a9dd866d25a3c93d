// Package errors provides a structured error system for AgentFS with error codes, categories, and errno mapping.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrorCode represents a structured error code for AgentFS operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Argument errors
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodePathInvalid     ErrorCode = "PATH_INVALID"

	// Filesystem errors (classified domain errors with a canonical errno)
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrCodeNotDirectory     ErrorCode = "NOT_DIRECTORY"
	ErrCodeIsDirectory      ErrorCode = "IS_DIRECTORY"
	ErrCodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrCodeNotEmpty         ErrorCode = "NOT_EMPTY"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeReadOnly         ErrorCode = "READ_ONLY"
	ErrCodeSymlinkLoop      ErrorCode = "SYMLINK_LOOP"
	ErrCodeNameTooLong      ErrorCode = "NAME_TOO_LONG"
	ErrCodeFileTooLarge     ErrorCode = "FILE_TOO_LARGE"

	// I/O errors
	ErrCodeIO ErrorCode = "IO_ERROR"

	// Configuration errors
	ErrCodeInvalidConfig       ErrorCode = "INVALID_CONFIG"
	ErrCodeInvalidAgentID      ErrorCode = "INVALID_AGENT_ID"
	ErrCodeUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"
	ErrCodeExtensionMissing    ErrorCode = "EXTENSION_MISSING"
	ErrCodeMountpointMissing   ErrorCode = "MOUNTPOINT_MISSING"
	ErrCodeEphemeralTarget     ErrorCode = "EPHEMERAL_TARGET"

	// External tool errors
	ErrCodeMountToolFailed ErrorCode = "MOUNT_TOOL_FAILED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryArgument      ErrorCategory = "invalid_argument"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryIO            ErrorCategory = "io"
	CategoryDomain        ErrorCategory = "domain"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryExternalTool  ErrorCategory = "external_tool"
	CategoryInternal      ErrorCategory = "internal"
)

// AgentFSError represents a structured error with context and metadata.
type AgentFSError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	UserFacing bool `json:"user_facing"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *AgentFSError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *AgentFSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *AgentFSError) Is(target error) bool {
	if other, ok := target.(*AgentFSError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *AgentFSError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("AgentFSError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *AgentFSError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new AgentFS error with default values.
func NewError(code ErrorCode, message string) *AgentFSError {
	return &AgentFSError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		UserFacing: IsUserFacingByDefault(code),
	}
}

// Newf creates a new AgentFS error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AgentFSError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new AgentFS error with the given cause. Internal errors
// also record the caller's stack.
func Wrap(cause error, code ErrorCode, message string) *AgentFSError {
	e := NewError(code, message).WithCause(cause)
	if code == ErrCodeInternalError {
		e.Stack = CaptureStack(1)
	}
	return e
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidArgument, ErrCodePathInvalid:
		return CategoryArgument
	case ErrCodeFileNotFound:
		return CategoryNotFound
	case ErrCodeIO:
		return CategoryIO
	case ErrCodeNotDirectory, ErrCodeIsDirectory, ErrCodeAlreadyExists, ErrCodeNotEmpty,
		ErrCodePermissionDenied, ErrCodeReadOnly, ErrCodeSymlinkLoop, ErrCodeNameTooLong,
		ErrCodeFileTooLarge:
		return CategoryDomain
	case ErrCodeInvalidConfig, ErrCodeInvalidAgentID, ErrCodeUnsupportedPlatform,
		ErrCodeExtensionMissing, ErrCodeMountpointMissing, ErrCodeEphemeralTarget:
		return CategoryConfiguration
	case ErrCodeMountToolFailed:
		return CategoryExternalTool
	default:
		return CategoryInternal
	}
}

// IsUserFacingByDefault determines if an error should be shown to users.
func IsUserFacingByDefault(code ErrorCode) bool {
	switch GetCategory(code) {
	case CategoryConfiguration, CategoryExternalTool, CategoryArgument, CategoryNotFound:
		return true
	}
	return false
}

// errnoTable is the canonical domain-error-to-errno mapping.
var errnoTable = map[ErrorCode]unix.Errno{
	ErrCodeInvalidArgument:  unix.EINVAL,
	ErrCodePathInvalid:      unix.EINVAL,
	ErrCodeFileNotFound:     unix.ENOENT,
	ErrCodeNotDirectory:     unix.ENOTDIR,
	ErrCodeIsDirectory:      unix.EISDIR,
	ErrCodeAlreadyExists:    unix.EEXIST,
	ErrCodeNotEmpty:         unix.ENOTEMPTY,
	ErrCodePermissionDenied: unix.EACCES,
	ErrCodeReadOnly:         unix.EROFS,
	ErrCodeSymlinkLoop:      unix.ELOOP,
	ErrCodeNameTooLong:      unix.ENAMETOOLONG,
	ErrCodeFileTooLarge:     unix.EFBIG,
	ErrCodeIO:               unix.EIO,
}

// ToErrno returns the canonical errno for this error's code, or EIO.
func (e *AgentFSError) ToErrno() unix.Errno {
	if errno, ok := errnoTable[e.Code]; ok {
		return errno
	}
	return unix.EIO
}

// Errno reduces any error to a positive errno value. Nil maps to 0,
// classified errors use the canonical table and everything else is EIO.
func Errno(err error) int32 {
	if err == nil {
		return 0
	}
	var afsErr *AgentFSError
	if stderrors.As(err, &afsErr) {
		return int32(afsErr.ToErrno())
	}
	return int32(unix.EIO)
}

// HasCode reports whether err is, or wraps, an AgentFS error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var afsErr *AgentFSError
	if stderrors.As(err, &afsErr) {
		return afsErr.Code == code
	}
	return false
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *AgentFSError) WithContext(key, value string) *AgentFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *AgentFSError) WithDetail(key string, value interface{}) *AgentFSError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *AgentFSError) WithComponent(component string) *AgentFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *AgentFSError) WithOperation(operation string) *AgentFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *AgentFSError) WithCause(cause error) *AgentFSError {
	e.Cause = cause
	return e
}

// GetRecommendation returns remediation text for the error, if any.
func (e *AgentFSError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeUnsupportedPlatform: "FSKit requires macOS 26 or later. " +
			"Build with the force-fuse option to use macFUSE instead.",
		ErrCodeExtensionMissing: "Install the AgentFS FSKit extension:\n" +
			"  1. Build the extension: cd fskit-ffi && make build-extension\n" +
			"  2. Install the extension app bundle\n" +
			"  3. Enable it via: System Settings > General > Login Items & Extensions\n" +
			"     > File System Extensions > AgentFS\n" +
			"Alternatively, use macFUSE with the force-fuse build option.",
		ErrCodeMountpointMissing: "Create the mountpoint directory first, e.g. mkdir -p <mountpoint>.",
		ErrCodeEphemeralTarget: "Ephemeral filesystems have no backing file and cannot be mounted. " +
			"Pass an agent ID or a database path instead.",
		ErrCodeMountToolFailed: "Make sure the AgentFS FSKit extension is installed and enabled.",
		ErrCodeInvalidAgentID: "Agent IDs must contain only alphanumeric characters, hyphens, and underscores.",
		ErrCodeInvalidConfig:  "Check your configuration file syntax and required parameters.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}
	return ""
}

// UserFacingMessage returns a simplified message suitable for end users
func (e *AgentFSError) UserFacingMessage() string {
	if !e.UserFacing {
		return "An internal error occurred. Please report this if it persists."
	}
	return e.Message
}

// DetailedDiagnostic returns the message followed by any remediation text.
func (e *AgentFSError) DetailedDiagnostic() string {
	var parts []string

	parts = append(parts, e.UserFacingMessage())

	if len(e.Context) > 0 {
		parts = append(parts, "")
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("  %s: %s", k, e.Context[k]))
		}
	}

	if rec := e.GetRecommendation(); rec != "" {
		parts = append(parts, "", rec)
	}

	if e.Cause != nil {
		parts = append(parts, "", fmt.Sprintf("Underlying cause: %s", e.Cause.Error()))
	}

	return strings.Join(parts, "\n")
}
