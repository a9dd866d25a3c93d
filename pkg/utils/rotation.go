package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig bounds a log file. A zero MaxSizeMB disables rotation.
type RotationConfig struct {
	MaxSizeMB  int64 // rotate once the file would exceed this size
	MaxBackups int   // rotated files kept; 0 keeps all
	Compress   bool  // gzip rotated files
}

// rotatingFile is a zap write syncer that renames the log aside once it
// grows past the configured size.
type rotatingFile struct {
	mu   sync.Mutex
	path string
	cfg  RotationConfig
	file *os.File
	size int64
	now  func() time.Time
}

func openRotatingFile(path string, cfg RotationConfig) (*rotatingFile, error) {
	rf := &rotatingFile{path: path, cfg: cfg, now: time.Now}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.cfg.MaxSizeMB > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.cfg.MaxSizeMB<<20 {
		if err := rf.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *rotatingFile) Sync() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.file.Sync()
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.file.Close()
}

func (rf *rotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(rf.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// rotate must be called with mu held.
func (rf *rotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	backup := rf.backupName(rf.now().UTC())
	if err := os.Rename(rf.path, backup); err != nil && !os.IsNotExist(err) {
		return err
	}
	if rf.cfg.Compress {
		if err := gzipFile(backup); err != nil {
			fmt.Fprintf(os.Stderr, "failed to compress %s: %v\n", backup, err)
		}
	}
	rf.prune()
	return rf.open()
}

// backupName inserts a timestamp before the extension: agentfs.log becomes
// agentfs-2006-01-02T15-04-05.000.log.
func (rf *rotatingFile) backupName(t time.Time) string {
	dir, base := filepath.Split(rf.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, prefix+"-"+t.Format("2006-01-02T15-04-05.000")+ext)
}

// backups lists rotated files, oldest first. Timestamped names sort
// chronologically.
func (rf *rotatingFile) backups() []string {
	dir, base := filepath.Split(rf.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if name == base || !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+".gz") {
			names = append(names, filepath.Join(dir, name))
		}
	}
	sort.Strings(names)
	return names
}

func (rf *rotatingFile) prune() {
	if rf.cfg.MaxBackups <= 0 {
		return
	}
	names := rf.backups()
	for len(names) > rf.cfg.MaxBackups {
		if err := os.Remove(names[0]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old log %s: %v\n", names[0], err)
		}
		names = names[1:]
	}
}

func gzipFile(name string) error {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(name + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
