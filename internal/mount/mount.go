package mount

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/internal/location"
	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/utils"
)

// Config contains the settings of the FSKit mount path.
type Config struct {
	FSType          string        `yaml:"fs_type"`
	MountTool       string        `yaml:"mount_tool"`
	MinMajorVersion int           `yaml:"min_major_version"`
	ExtensionIDs    []string      `yaml:"extension_ids"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	VersionTool     string        `yaml:"version_tool"`
	ExtensionTool   string        `yaml:"extension_tool"`
	Dirs            location.Dirs `yaml:"-"`
}

// DefaultConfig returns the settings used by the AgentFS FSKit extension.
func DefaultConfig() *Config {
	return &Config{
		FSType:          "agentfs",
		MountTool:       "/sbin/mount",
		MinMajorVersion: 26,
		ExtensionIDs:    []string{"io.turso.agentfs", "AgentFS"},
		PollInterval:    time.Second,
		VersionTool:     "sw_vers",
		ExtensionTool:   "systemextensionsctl",
	}
}

// Request describes one mount invocation.
type Request struct {
	Target      string
	Mountpoint  string
	AutoUnmount bool
	AllowRoot   bool
	Foreground  bool
	UID         *uint32
	GID         *uint32
}

// Orchestrator runs the mount state machine:
// resolve, check platform, check extension, validate target, invoke and
// optionally wait for the unmount.
type Orchestrator struct {
	config     *Config
	platform   Platform
	extensions Extensions
	runner     Runner
	stater     Stater
	out        io.Writer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPlatform replaces the OS version probe.
func WithPlatform(p Platform) Option { return func(o *Orchestrator) { o.platform = p } }

// WithExtensions replaces the extension registry query.
func WithExtensions(e Extensions) Option { return func(o *Orchestrator) { o.extensions = e } }

// WithRunner replaces the command runner used for the mount utility.
func WithRunner(r Runner) Option { return func(o *Orchestrator) { o.runner = r } }

// WithStater replaces the device probe used while waiting for unmount.
func WithStater(s Stater) Option { return func(o *Orchestrator) { o.stater = s } }

// WithOutput sets the writer receiving progress lines.
func WithOutput(w io.Writer) Option { return func(o *Orchestrator) { o.out = w } }

// NewOrchestrator creates an orchestrator. A nil config uses DefaultConfig.
func NewOrchestrator(config *Config, opts ...Option) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	o := &Orchestrator{
		config: config,
		runner: ExecRunner{},
		stater: unixStater{},
		out:    io.Discard,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.platform == nil {
		o.platform = defaultPlatform(o.runner, config.VersionTool)
	}
	if o.extensions == nil {
		o.extensions = toolExtensions{runner: o.runner, tool: config.ExtensionTool}
	}
	return o
}

// Mount runs every stage in order and stops at the first failure.
func (o *Orchestrator) Mount(ctx context.Context, req Request) error {
	dbPath, err := o.resolve(req.Target)
	if err != nil {
		return err
	}
	if err := o.checkPlatform(ctx); err != nil {
		return err
	}
	if err := o.checkExtension(ctx); err != nil {
		return err
	}
	if err := o.validateTarget(req.Mountpoint); err != nil {
		return err
	}

	logger := utils.Logger().With(zap.String("database", dbPath), zap.String("mountpoint", req.Mountpoint))
	if req.AutoUnmount || req.AllowRoot || req.UID != nil || req.GID != nil {
		logger.Info("mount options are not forwarded to the FSKit extension",
			zap.Bool("auto_unmount", req.AutoUnmount),
			zap.Bool("allow_root", req.AllowRoot),
			zap.Uint32p("uid", req.UID),
			zap.Uint32p("gid", req.GID))
	}

	if err := o.invoke(ctx, dbPath, req.Mountpoint); err != nil {
		return err
	}
	logger.Info("mounted")

	if req.Foreground {
		return o.waitForUnmount(ctx, req.Mountpoint)
	}
	return nil
}

// resolve turns the target into the canonical absolute database path.
func (o *Orchestrator) resolve(target string) (string, error) {
	opts, err := location.Resolve(target, o.config.Dirs)
	if err != nil {
		return "", err
	}
	if opts.Ephemeral {
		return "", errors.NewError(errors.ErrCodeEphemeralTarget, "cannot mount ephemeral filesystem").
			WithComponent("mount").
			WithOperation("resolve")
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidArgument, "cannot resolve database path").
			WithContext("path", opts.Path)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileNotFound, "database does not exist: "+abs).
			WithComponent("mount").
			WithOperation("resolve").
			WithContext("path", abs)
	}
	return canonical, nil
}

func (o *Orchestrator) checkPlatform(ctx context.Context) error {
	major, err := o.platform.MajorVersion(ctx)
	if err != nil {
		utils.Logger().Debug("platform probe failed", zap.Error(err))
		major = 0
	}
	if major < o.config.MinMajorVersion {
		return errors.Newf(errors.ErrCodeUnsupportedPlatform,
			"FSKit requires macOS %d or later", o.config.MinMajorVersion).
			WithComponent("mount").
			WithOperation("check_platform").
			WithContext("detected_major_version", fmt.Sprint(major))
	}
	return nil
}

func (o *Orchestrator) checkExtension(ctx context.Context) error {
	listing, err := o.extensions.List(ctx)
	if err != nil {
		utils.Logger().Debug("extension query failed", zap.Error(err))
	}
	for _, id := range o.config.ExtensionIDs {
		if id != "" && strings.Contains(listing, id) {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeExtensionMissing, "AgentFS FSKit extension is not installed").
		WithComponent("mount").
		WithOperation("check_extension")
}

func (o *Orchestrator) validateTarget(mountpoint string) error {
	info, err := os.Stat(mountpoint)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMountpointMissing, "mountpoint does not exist: "+mountpoint).
			WithComponent("mount").
			WithOperation("validate_target")
	}
	if !info.IsDir() {
		return errors.NewError(errors.ErrCodeMountpointMissing, "mountpoint is not a directory: "+mountpoint).
			WithComponent("mount").
			WithOperation("validate_target")
	}
	return nil
}

// invoke runs the mount utility once.
func (o *Orchestrator) invoke(ctx context.Context, dbPath, mountpoint string) error {
	resource := "file://" + dbPath
	fmt.Fprintf(o.out, "Mounting %s at %s\n", dbPath, mountpoint)

	res, err := o.runner.Run(ctx, o.config.MountTool, "-t", o.config.FSType, resource, mountpoint)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMountToolFailed, "failed to run "+o.config.MountTool).
			WithComponent("mount").
			WithOperation("invoke")
	}
	if res.ExitCode != 0 {
		return errors.Newf(errors.ErrCodeMountToolFailed, "mount failed: %s",
			strings.TrimSpace(string(res.Stderr))).
			WithComponent("mount").
			WithOperation("invoke").
			WithDetail("exit_code", res.ExitCode)
	}

	fmt.Fprintln(o.out, "Mounted successfully!")
	return nil
}

// waitForUnmount polls the mountpoint's device until it changes or the
// mountpoint becomes unreachable. An unmount followed by a remount on the
// same device within one interval goes unnoticed.
func (o *Orchestrator) waitForUnmount(ctx context.Context, mountpoint string) error {
	fmt.Fprintln(o.out, "Running in foreground. Press Ctrl+C to unmount.")

	mounted, err := o.stater.DeviceID(mountpoint)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIO, "cannot stat mountpoint").
			WithComponent("mount").
			WithOperation("foreground_wait")
	}

	interval := o.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			dev, err := o.stater.DeviceID(mountpoint)
			if err != nil || dev != mounted {
				fmt.Fprintln(o.out, "Unmounted.")
				return nil
			}
		}
	}
}
