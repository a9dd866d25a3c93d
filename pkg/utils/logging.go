package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string log level
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", level)
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// LogConfig describes how NewLogger builds a logger.
type LogConfig struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	File   string // empty means stderr
	Format string // json or console

	// Rotation applies to File only.
	Rotation RotationConfig
}

// NewLogger builds a zap logger from the given configuration.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zcfg zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zcfg = zap.NewProductionConfig()
	case "", "console", "text":
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Development = false
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	zcfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	zcfg.Sampling = nil
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
	}

	if cfg.File != "" && cfg.Rotation.MaxSizeMB > 0 {
		rf, err := openRotatingFile(cfg.File, cfg.Rotation)
		if err != nil {
			return nil, err
		}
		var enc zapcore.Encoder
		if zcfg.Encoding == "json" {
			enc = zapcore.NewJSONEncoder(zcfg.EncoderConfig)
		} else {
			enc = zapcore.NewConsoleEncoder(zcfg.EncoderConfig)
		}
		core := zapcore.NewCore(enc, rf, zcfg.Level)
		return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// Logger returns the process logger. It is a no-op logger until SetLogger is
// called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the process logger. A nil logger restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// SetupLogging builds a logger from cfg and installs it as the process logger.
func SetupLogging(cfg LogConfig) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}
