package mount

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/agentfs/agentfs/pkg/errors"
)

// CommandResult is the captured outcome of an external command.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs external commands. The error is reserved for commands that
// could not be started; a non-zero exit is reported through ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// Platform reports the host OS major version.
type Platform interface {
	MajorVersion(ctx context.Context) (int, error)
}

// Extensions lists the installed system extensions as free text.
type Extensions interface {
	List(ctx context.Context) (string, error)
}

// Stater reports the device a path lives on.
type Stater interface {
	DeviceID(path string) (uint64, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and captures both output streams.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// toolPlatform asks a version tool such as sw_vers for the product version.
type toolPlatform struct {
	runner Runner
	tool   string
}

func (p toolPlatform) MajorVersion(ctx context.Context) (int, error) {
	res, err := p.runner.Run(ctx, p.tool, "-productVersion")
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, errors.Newf(errors.ErrCodeUnsupportedPlatform, "%s exited with status %d", p.tool, res.ExitCode)
	}
	return parseMajorVersion(string(res.Stdout)), nil
}

// parseMajorVersion returns the leading integer of a dotted version, or 0.
func parseMajorVersion(version string) int {
	major, _, _ := strings.Cut(strings.TrimSpace(version), ".")
	n, err := strconv.Atoi(major)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// toolExtensions lists extensions with a tool such as systemextensionsctl.
type toolExtensions struct {
	runner Runner
	tool   string
}

func (e toolExtensions) List(ctx context.Context) (string, error) {
	res, err := e.runner.Run(ctx, e.tool, "list")
	if err != nil {
		return "", err
	}
	return string(res.Stdout), nil
}

// unixStater reads st_dev.
type unixStater struct{}

func (unixStater) DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}
