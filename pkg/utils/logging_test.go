package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: DEBUG},
		{name: "info level", input: "INFO", expected: INFO},
		{name: "warn level", input: "WARN", expected: WARN},
		{name: "warning level", input: "WARNING", expected: WARN},
		{name: "error level", input: "ERROR", expected: ERROR},
		{name: "case insensitive", input: "debug", expected: DEBUG},
		{name: "invalid level", input: "INVALID", expected: INFO, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "agentfs.log")

	logger, err := NewLogger(LogConfig{Level: "DEBUG", File: logFile, Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Debug("bridge call", zap.String("operation", "stat"))
	_ = logger.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"operation":"stat"`) {
		t.Errorf("log file missing structured field, got %q", data)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "agentfs.log")

	logger, err := NewLogger(LogConfig{Level: "ERROR", File: logFile, Format: "console"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("should be dropped")
	logger.Error("should be kept")
	_ = logger.Sync()

	data, _ := os.ReadFile(logFile)
	if strings.Contains(string(data), "should be dropped") {
		t.Error("info message should be filtered at ERROR level")
	}
	if !strings.Contains(string(data), "should be kept") {
		t.Error("error message should be written")
	}
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "LOUD"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := NewLogger(LogConfig{Level: "INFO", Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestSetLogger(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	custom := zap.NewExample()
	SetLogger(custom)
	if Logger() != custom {
		t.Error("Logger() should return the installed logger")
	}

	SetLogger(nil)
	if Logger() == nil {
		t.Error("SetLogger(nil) should install a no-op logger")
	}
}
