package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProcMounts(t *testing.T) {
	table := strings.Join([]string{
		"proc /proc proc rw,nosuid 0 0",
		"agentfs:alpha /home/u/work fuse.agentfs rw,nosuid,nodev 0 0",
		"agentfs /home/u/.agentfs/run/beta/mnt fuse.agentfs rw 0 0",
		`agentfs /home/u/my\040dir/.agentfs/run/gamma/mnt fuse.agentfs rw 0 0`,
		"tmpfs /home/u/.agentfs/run/delta/mnt tmpfs rw 0 0",
		"agentfs /home/u/.agentfs/run/eps/mnt/deeper fuse.agentfs rw 0 0",
		"garbage",
	}, "\n")

	entries, err := ParseProcMounts(strings.NewReader(table))
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, "/home/u/my dir/.agentfs/run/gamma/mnt", entries[3].Mountpoint)

	ids := sessionIDs(entries, "/home/u/.agentfs/run")
	assert.Equal(t, map[string]struct{}{"alpha": {}, "beta": {}}, ids)

	ids = sessionIDs(entries, "/home/u/my dir/.agentfs/run")
	assert.Contains(t, ids, "gamma")
}

func TestParseMountOutput(t *testing.T) {
	listing := strings.Join([]string{
		"/dev/disk3s1s1 on / (apfs, sealed, local, read-only, journaled)",
		"file:///Users/u/.agentfs/run/s2/delta.db on /Users/u/.agentfs/run/s2/mnt (agentfs, local, nodev, nosuid)",
		"file:///Users/u/.agentfs/agent.db on /Volumes/agent (agentfs, local)",
		"map auto_home on /System/Volumes/Data/home (autofs, automounted, nobrowse)",
		"not a mount line",
	}, "\n")

	entries, err := ParseMountOutput(strings.NewReader(listing))
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, MountEntry{
		Source:     "file:///Users/u/.agentfs/run/s2/delta.db",
		Mountpoint: "/Users/u/.agentfs/run/s2/mnt",
		FSType:     "agentfs",
	}, entries[1])

	ids := sessionIDs(entries, "/Users/u/.agentfs/run")
	assert.Equal(t, map[string]struct{}{"s2": {}}, ids)
}

func TestSessionIDRules(t *testing.T) {
	tests := []struct {
		name   string
		entry  MountEntry
		runDir string
		want   string
		ok     bool
	}{
		{"source prefix", MountEntry{Source: "agentfs:abc", FSType: "fuse"}, "", "abc", true},
		{"invalid id in source", MountEntry{Source: "agentfs:a b", FSType: "fuse"}, "", "", false},
		{"plain agentfs type", MountEntry{Mountpoint: "/r/x/mnt", FSType: "agentfs"}, "/r", "x", true},
		{"outside run dir", MountEntry{Mountpoint: "/elsewhere/x/mnt", FSType: "agentfs"}, "/r", "", false},
		{"wrong type", MountEntry{Mountpoint: "/r/x/mnt", FSType: "nfs"}, "/r", "", false},
		{"no run dir", MountEntry{Mountpoint: "/r/x/mnt", FSType: "agentfs"}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := sessionID(tt.entry, tt.runDir)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestUnescapeMountField(t *testing.T) {
	assert.Equal(t, "a b", unescapeMountField(`a\040b`))
	assert.Equal(t, "tab\there", unescapeMountField(`tab\011here`))
	assert.Equal(t, `trailing\04`, unescapeMountField(`trailing\04`))
	assert.Equal(t, "plain", unescapeMountField("plain"))
}

func TestSystemMountTable(t *testing.T) {
	ids, err := SystemMountTable{RunDir: t.TempDir()}.MountedIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
