//go:build !darwin

package mount

import (
	"context"
	"runtime"

	"github.com/agentfs/agentfs/pkg/errors"
)

// unsupportedPlatform reports every non-macOS host as unable to mount
// through FSKit.
type unsupportedPlatform struct{}

func (unsupportedPlatform) MajorVersion(ctx context.Context) (int, error) {
	return 0, errors.Newf(errors.ErrCodeUnsupportedPlatform, "FSKit is not available on %s", runtime.GOOS)
}

func defaultPlatform(Runner, string) Platform {
	return unsupportedPlatform{}
}
