package session

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/agentfs/agentfs/internal/location"
)

const (
	fsTypeTag    = "agentfs"
	sourcePrefix = "agentfs:"
)

// SystemMountTable reads the OS mount table. RunDir is used to recognize
// session mountpoints of the form <run dir>/<id>/mnt.
type SystemMountTable struct {
	RunDir string
}

// MountEntry is one line of a mount table.
type MountEntry struct {
	Source     string
	Mountpoint string
	FSType     string
}

// ParseProcMounts reads the /proc/self/mounts format
// ("source mountpoint fstype options dump pass").
func ParseProcMounts(r io.Reader) ([]MountEntry, error) {
	var entries []MountEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, MountEntry{
			Source:     unescapeMountField(fields[0]),
			Mountpoint: unescapeMountField(fields[1]),
			FSType:     fields[2],
		})
	}
	return entries, scanner.Err()
}

// ParseMountOutput reads the BSD mount(8) listing
// ("source on mountpoint (fstype, options...)").
func ParseMountOutput(r io.Reader) ([]MountEntry, error) {
	var entries []MountEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		on := strings.Index(line, " on ")
		open := strings.LastIndex(line, " (")
		if on < 0 || open < on+len(" on ") {
			continue
		}
		opts := strings.TrimSuffix(line[open+2:], ")")
		fsType, _, _ := strings.Cut(opts, ",")
		entries = append(entries, MountEntry{
			Source:     line[:on],
			Mountpoint: line[on+len(" on ") : open],
			FSType:     strings.TrimSpace(fsType),
		})
	}
	return entries, scanner.Err()
}

// sessionIDs extracts the session IDs of AgentFS mounts.
func sessionIDs(entries []MountEntry, runDir string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, e := range entries {
		if id, ok := sessionID(e, runDir); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func sessionID(e MountEntry, runDir string) (string, bool) {
	if id, ok := strings.CutPrefix(e.Source, sourcePrefix); ok && location.ValidateAgentID(id) {
		return id, true
	}
	if !isAgentFSType(e.FSType) || runDir == "" {
		return "", false
	}
	rel, err := filepath.Rel(filepath.Clean(runDir), filepath.Clean(e.Mountpoint))
	if err != nil {
		return "", false
	}
	id, rest, ok := strings.Cut(filepath.ToSlash(rel), "/")
	if !ok || rest != MountDir || !location.ValidateAgentID(id) {
		return "", false
	}
	return id, true
}

// isAgentFSType matches "agentfs" as well as FUSE subtypes like
// "fuse.agentfs".
func isAgentFSType(fsType string) bool {
	return fsType == fsTypeTag || strings.HasSuffix(fsType, "."+fsTypeTag)
}

// unescapeMountField decodes the octal escapes (\040 and friends) used in
// /proc mount tables.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
