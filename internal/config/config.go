package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/agentfs/agentfs/pkg/utils"
)

// EnvConfigFile names the environment variable holding a config file path.
// The C library reads it at load time; the CLI honors it when --config is unset.
const EnvConfigFile = "AGENTFS_CONFIG"

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Paths   PathsConfig   `yaml:"paths"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Mount   MountConfig   `yaml:"mount"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogFormat     string `yaml:"log_format"`
	LogMaxSizeMB  int64  `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogCompress   bool   `yaml:"log_compress"`
}

// LogConfig returns the logger settings for this configuration.
func (g GlobalConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:  g.LogLevel,
		File:   g.LogFile,
		Format: g.LogFormat,
		Rotation: utils.RotationConfig{
			MaxSizeMB:  g.LogMaxSizeMB,
			MaxBackups: g.LogMaxBackups,
			Compress:   g.LogCompress,
		},
	}
}

// PathsConfig locates agent databases and session directories. Empty values
// fall back to ~/.agentfs and ~/.agentfs/run.
type PathsConfig struct {
	AgentFSDir string `yaml:"agentfs_dir"`
	RunDir     string `yaml:"run_dir"`
}

// BridgeConfig controls handles opened through the C library.
type BridgeConfig struct {
	StatCache StatCacheConfig `yaml:"stat_cache"`
}

// StatCacheConfig represents the metadata cache placed in front of a handle's filesystem
type StatCacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// MountConfig represents the FSKit mount settings
type MountConfig struct {
	FSType          string        `yaml:"fs_type"`
	MountTool       string        `yaml:"mount_tool"`
	MinMajorVersion int           `yaml:"min_major_version"`
	ExtensionIDs    []string      `yaml:"extension_ids"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	VersionTool     string        `yaml:"version_tool"`
	ExtensionTool   string        `yaml:"extension_tool"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFile:   "",
			LogFormat: "console",
		},
		Bridge: BridgeConfig{
			StatCache: StatCacheConfig{
				Enabled:    false,
				MaxEntries: 10000,
				TTL:        time.Second,
			},
		},
		Mount: MountConfig{
			FSType:          "agentfs",
			MountTool:       "/sbin/mount",
			MinMajorVersion: 26,
			ExtensionIDs:    []string{"io.turso.agentfs", "AgentFS"},
			PollInterval:    time.Second,
			VersionTool:     "sw_vers",
			ExtensionTool:   "systemextensionsctl",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Port:      0,
			Namespace: "agentfs",
		},
	}
}

// Load builds the effective configuration: defaults, then the file named by
// filename (or AGENTFS_CONFIG when filename is empty), then environment
// overrides. The result is validated.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()

	if filename == "" {
		filename = os.Getenv(EnvConfigFile)
	}
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("AGENTFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("AGENTFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("AGENTFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv("AGENTFS_LOG_MAX_SIZE_MB"); val != "" {
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENTFS_LOG_MAX_SIZE_MB: %w", err)
		}
		c.Global.LogMaxSizeMB = size
	}

	// Paths
	if val := os.Getenv("AGENTFS_DIR"); val != "" {
		c.Paths.AgentFSDir = val
	}
	if val := os.Getenv("AGENTFS_RUN_DIR"); val != "" {
		c.Paths.RunDir = val
	}

	// Bridge settings
	if val := os.Getenv("AGENTFS_STAT_CACHE"); val != "" {
		c.Bridge.StatCache.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("AGENTFS_STAT_CACHE_ENTRIES"); val != "" {
		entries, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AGENTFS_STAT_CACHE_ENTRIES: %w", err)
		}
		c.Bridge.StatCache.MaxEntries = entries
	}
	if val := os.Getenv("AGENTFS_STAT_CACHE_TTL"); val != "" {
		ttl, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid AGENTFS_STAT_CACHE_TTL: %w", err)
		}
		c.Bridge.StatCache.TTL = ttl
	}

	// Mount settings
	if val := os.Getenv("AGENTFS_MOUNT_TOOL"); val != "" {
		c.Mount.MountTool = val
	}
	if val := os.Getenv("AGENTFS_POLL_INTERVAL"); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid AGENTFS_POLL_INTERVAL: %w", err)
		}
		c.Mount.PollInterval = interval
	}

	// Metrics settings
	if val := os.Getenv("AGENTFS_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("AGENTFS_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid AGENTFS_METRICS_PORT: %w", err)
		}
		c.Metrics.Port = port
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch c.Global.LogFormat {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be console or json)", c.Global.LogFormat)
	}

	if c.Global.LogMaxSizeMB < 0 || c.Global.LogMaxBackups < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}

	if c.Bridge.StatCache.Enabled && c.Bridge.StatCache.MaxEntries <= 0 {
		return fmt.Errorf("stat_cache.max_entries must be greater than 0")
	}

	if c.Mount.FSType == "" {
		return fmt.Errorf("mount.fs_type cannot be empty")
	}
	if c.Mount.MountTool == "" {
		return fmt.Errorf("mount.mount_tool cannot be empty")
	}
	if len(c.Mount.ExtensionIDs) == 0 {
		return fmt.Errorf("mount.extension_ids must name at least one identifier")
	}
	if c.Mount.PollInterval <= 0 {
		return fmt.Errorf("mount.poll_interval must be greater than 0")
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}

	return nil
}
