package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfs/agentfs/internal/session"
	"github.com/agentfs/agentfs/pkg/errors"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func isolate(t *testing.T) (agentfsDir, runDir string) {
	t.Helper()
	agentfsDir = t.TempDir()
	runDir = filepath.Join(agentfsDir, "run")
	t.Setenv("AGENTFS_CONFIG", "")
	t.Setenv("AGENTFS_LOG_LEVEL", "")
	t.Setenv("AGENTFS_DIR", agentfsDir)
	t.Setenv("AGENTFS_RUN_DIR", runDir)
	return agentfsDir, runDir
}

func TestPsCommand(t *testing.T) {
	_, runDir := isolate(t)

	for _, id := range []string{"sess-b", "sess-a"} {
		require.NoError(t, os.MkdirAll(filepath.Join(runDir, id), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(runDir, id, session.MarkerFile), nil, 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "no-marker"), 0o755))

	t.Run("running only", func(t *testing.T) {
		out, _, err := run(t, "ps")
		require.NoError(t, err)
		assert.Equal(t, "No running sandbox sessions. Use -a to show all sessions.\n", out)
	})

	t.Run("all as json", func(t *testing.T) {
		out, _, err := run(t, "ps", "-a", "-o", "json")
		require.NoError(t, err)

		var got []session.Session
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "sess-a", got[0].ID)
		assert.Equal(t, "sess-b", got[1].ID)
		assert.Equal(t, session.StatusStopped, got[0].Status)
		assert.Empty(t, got[0].Mountpoint)
	})

	t.Run("all as table", func(t *testing.T) {
		out, _, err := run(t, "ps", "--all")
		require.NoError(t, err)
		assert.Contains(t, out, "SESSION ID")
		assert.Contains(t, out, "sess-a")
		assert.NotContains(t, out, "no-marker")
	})

	t.Run("bad format", func(t *testing.T) {
		_, _, err := run(t, "ps", "-o", "xml")
		assert.Error(t, err)
	})
}

func TestPsCommandEmptyRunDir(t *testing.T) {
	_, runDir := isolate(t)

	out, _, err := run(t, "ps", "-a")
	require.NoError(t, err)
	assert.Equal(t, "No sandbox sessions found in "+runDir+"\n", out)

	out, _, err = run(t, "ps", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestMountCommandRejectsEphemeral(t *testing.T) {
	isolate(t)
	mnt := t.TempDir()

	_, stderr, err := run(t, "mount", ":memory:", mnt)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEphemeralTarget))
	assert.Empty(t, stderr)
}

func TestMountCommandArgs(t *testing.T) {
	isolate(t)

	_, _, err := run(t, "mount", "only-one")
	assert.Error(t, err)
}

func TestMountCommandUnknownAgent(t *testing.T) {
	isolate(t)

	_, _, err := run(t, "mount", "missing-agent", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestLogLevelFlag(t *testing.T) {
	isolate(t)

	_, _, err := run(t, "--log-level", "VERBOSE", "ps")
	require.Error(t, err)

	_, _, err = run(t, "--log-level", "DEBUG", "ps")
	require.NoError(t, err)
}

func TestConfigFlag(t *testing.T) {
	_, runDir := isolate(t)
	t.Setenv("AGENTFS_RUN_DIR", "")

	cfgFile := filepath.Join(t.TempDir(), "agentfs.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("paths:\n  run_dir: "+runDir+"\n"), 0o644))

	out, _, err := run(t, "--config", cfgFile, "ps", "-a")
	require.NoError(t, err)
	assert.Contains(t, out, runDir)
}

func TestVersionCommand(t *testing.T) {
	Version = "1.2.3"
	Commit = "abc123"
	t.Cleanup(func() { Version, Commit = "dev", "none" })

	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentfs 1.2.3")
	assert.Contains(t, out, "abc123")

	out, _, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "wrapped cause is shown",
			err:  errors.Wrap(os.ErrPermission, errors.ErrCodeMountToolFailed, "mount failed"),
			want: []string{"Error: mount failed\n", "Cause: permission denied\n"},
		},
		{
			name: "no cause line without a cause",
			err:  errors.NewError(errors.ErrCodeMountpointMissing, "no mountpoint"),
			want: []string{"Error: no mountpoint\n"},
		},
		{
			name: "plain error",
			err:  os.ErrNotExist,
			want: []string{"Error: file does not exist\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintError(&buf, tt.err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			if len(tt.want) == 1 {
				assert.NotContains(t, buf.String(), "Cause:")
			}
		})
	}
}
