package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil || err.Context == nil {
			t.Error("Details and Context maps must be initialized")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets user-facing defaults", func(t *testing.T) {
		if !NewError(ErrCodeMountpointMissing, "x").UserFacing {
			t.Error("MountpointMissing should be user-facing")
		}
		if NewError(ErrCodeInternalError, "x").UserFacing {
			t.Error("InternalError should not be user-facing")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidArgument, CategoryArgument},
		{ErrCodePathInvalid, CategoryArgument},
		{ErrCodeFileNotFound, CategoryNotFound},
		{ErrCodeIO, CategoryIO},
		{ErrCodeNotDirectory, CategoryDomain},
		{ErrCodeAlreadyExists, CategoryDomain},
		{ErrCodeNotEmpty, CategoryDomain},
		{ErrCodeUnsupportedPlatform, CategoryConfiguration},
		{ErrCodeExtensionMissing, CategoryConfiguration},
		{ErrCodeEphemeralTarget, CategoryConfiguration},
		{ErrCodeMountToolFailed, CategoryExternalTool},
		{ErrCodeInternalError, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int32
	}{
		{"nil", nil, 0},
		{"not a directory", NewError(ErrCodeNotDirectory, "x"), int32(unix.ENOTDIR)},
		{"already exists", NewError(ErrCodeAlreadyExists, "x"), int32(unix.EEXIST)},
		{"not empty", NewError(ErrCodeNotEmpty, "x"), int32(unix.ENOTEMPTY)},
		{"not found", NewError(ErrCodeFileNotFound, "x"), int32(unix.ENOENT)},
		{"file too large", NewError(ErrCodeFileTooLarge, "x"), int32(unix.EFBIG)},
		{"wrapped", fmt.Errorf("outer: %w", NewError(ErrCodeIsDirectory, "x")), int32(unix.EISDIR)},
		{"unclassified", errors.New("boom"), int32(unix.EIO)},
		{"configuration code", NewError(ErrCodeExtensionMissing, "x"), int32(unix.EIO)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Errno(tt.err); got != tt.want {
				t.Errorf("Errno() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeMountToolFailed, "mount failed").
		WithComponent("mount").
		WithOperation("invoke")
	if got := err.Error(); got != "[mount:invoke] MOUNT_TOOL_FAILED: mount failed" {
		t.Errorf("Error() = %q", got)
	}

	plain := NewError(ErrCodeIO, "disk")
	if got := plain.Error(); got != "IO_ERROR: disk" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorsIsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	err := Wrap(cause, ErrCodeIO, "read failed")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !errors.Is(err, NewError(ErrCodeIO, "other message")) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, NewError(ErrCodeNotEmpty, "x")) {
		t.Error("errors.Is should not match a different code")
	}
	if !HasCode(fmt.Errorf("ctx: %w", err), ErrCodeIO) {
		t.Error("HasCode should see through wrapping")
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeNotEmpty, "dir not empty").WithDetail("path", "/a")
	var decoded map[string]interface{}
	if jerr := json.Unmarshal([]byte(err.JSON()), &decoded); jerr != nil {
		t.Fatalf("JSON() produced invalid JSON: %v", jerr)
	}
	if decoded["code"] != string(ErrCodeNotEmpty) {
		t.Errorf("code = %v", decoded["code"])
	}
}

func TestDetailedDiagnostic(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeExtensionMissing, "AgentFS FSKit extension is not installed.")
	diag := err.DetailedDiagnostic()
	if !strings.HasPrefix(diag, "AgentFS FSKit extension is not installed.") {
		t.Errorf("diagnostic should start with the message, got %q", diag)
	}
	if !strings.Contains(diag, "System Settings") {
		t.Error("diagnostic should carry installation guidance")
	}

	internal := NewError(ErrCodeInternalError, "secret detail")
	if strings.Contains(internal.DetailedDiagnostic(), "secret detail") {
		t.Error("internal errors should not leak their message")
	}
}

func TestDetailedDiagnosticContextOrder(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeMountpointMissing, "mountpoint does not exist").
		WithContext("zeta", "3").
		WithContext("alpha", "1").
		WithContext("mid", "2")

	diag := err.DetailedDiagnostic()
	a := strings.Index(diag, "alpha: 1")
	m := strings.Index(diag, "mid: 2")
	z := strings.Index(diag, "zeta: 3")
	if a < 0 || m < 0 || z < 0 || !(a < m && m < z) {
		t.Errorf("context lines should be sorted by key, got %q", diag)
	}
}

func TestWrapRecordsStackForInternalErrors(t *testing.T) {
	t.Parallel()

	internal := Wrap(errors.New("boom"), ErrCodeInternalError, "executor failed")
	if !strings.Contains(internal.Stack, "errors_test.go") {
		t.Errorf("internal error stack should include the caller, got %q", internal.Stack)
	}

	io := Wrap(errors.New("disk"), ErrCodeIO, "read failed")
	if io.Stack != "" {
		t.Errorf("classified errors should not carry a stack, got %q", io.Stack)
	}
}
