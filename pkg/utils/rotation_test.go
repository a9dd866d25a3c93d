package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func steppingClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRotatingFileRotatesOnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentfs.log")
	rf, err := openRotatingFile(path, RotationConfig{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("openRotatingFile() error = %v", err)
	}
	defer func() { _ = rf.Close() }()
	rf.now = steppingClock()

	chunk := bytes.Repeat([]byte("x"), 600<<10)
	for i := 0; i < 2; i++ {
		if _, err := rf.Write(chunk); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	backups := rf.backups()
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %v", backups)
	}
	if !strings.HasSuffix(backups[0], "agentfs-2026-01-02T03-04-06.000.log") {
		t.Errorf("unexpected backup name %s", backups[0])
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("current log missing: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("current log size = %d, want %d", info.Size(), len(chunk))
	}
}

func TestRotatingFilePrunesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentfs.log")
	rf, err := openRotatingFile(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("openRotatingFile() error = %v", err)
	}
	defer func() { _ = rf.Close() }()
	rf.now = steppingClock()

	for i := 0; i < 5; i++ {
		if _, err := rf.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		rf.mu.Lock()
		err := rf.rotate()
		rf.mu.Unlock()
		if err != nil {
			t.Fatalf("rotate() error = %v", err)
		}
	}

	backups := rf.backups()
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %v", backups)
	}
	if !strings.Contains(backups[1], "03-04-10") {
		t.Errorf("newest backup should survive, got %v", backups)
	}
}

func TestRotatingFileCompresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentfs.log")
	rf, err := openRotatingFile(path, RotationConfig{MaxSizeMB: 1, Compress: true})
	if err != nil {
		t.Fatalf("openRotatingFile() error = %v", err)
	}
	defer func() { _ = rf.Close() }()
	rf.now = steppingClock()

	if _, err := rf.Write([]byte("before rotation\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	rf.mu.Lock()
	err = rf.rotate()
	rf.mu.Unlock()
	if err != nil {
		t.Fatalf("rotate() error = %v", err)
	}

	backups := rf.backups()
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".log.gz") {
		t.Fatalf("expected one gzip backup, got %v", backups)
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "agentfs.log")

	logger, err := NewLogger(LogConfig{
		Level:    "INFO",
		File:     logFile,
		Format:   "json",
		Rotation: RotationConfig{MaxSizeMB: 10, MaxBackups: 3},
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("handle opened", zap.String("session", "abc"))
	_ = logger.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"session":"abc"`) {
		t.Errorf("log file missing structured field, got %q", data)
	}
}
