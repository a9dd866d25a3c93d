//go:build linux

package session

import "os"

const procMounts = "/proc/self/mounts"

// MountedIDs parses /proc/self/mounts.
func (t SystemMountTable) MountedIDs() (map[string]struct{}, error) {
	f, err := os.Open(procMounts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := ParseProcMounts(f)
	if err != nil {
		return nil, err
	}
	return sessionIDs(entries, t.RunDir), nil
}
