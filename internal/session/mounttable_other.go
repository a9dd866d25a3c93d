//go:build !linux

package session

import (
	"bytes"
	"context"
	"fmt"

	"github.com/agentfs/agentfs/internal/mount"
)

// MountedIDs parses the output of mount(8).
func (t SystemMountTable) MountedIDs() (map[string]struct{}, error) {
	res, err := mount.ExecRunner{}.Run(context.Background(), "mount")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("mount exited with status %d: %s", res.ExitCode, bytes.TrimSpace(res.Stderr))
	}
	entries, err := ParseMountOutput(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, err
	}
	return sessionIDs(entries, t.RunDir), nil
}
