// Package session lists sandbox sessions by reconciling the session
// directories under the run dir with the live OS mount table.
package session

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/internal/cli/output"
	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/utils"
)

const (
	// MarkerFile identifies a session directory.
	MarkerFile = "delta.db"
	// MountDir is the mountpoint subdirectory of a session.
	MountDir = "mnt"
)

// Status of a session.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Session is one row of the listing. Mountpoint is empty unless the
// session is live in the mount table.
type Session struct {
	ID         string `json:"id" yaml:"id"`
	Mountpoint string `json:"mountpoint,omitempty" yaml:"mountpoint,omitempty"`
	Status     Status `json:"status" yaml:"status"`
}

// MountTable reports the session IDs currently mounted.
type MountTable interface {
	MountedIDs() (map[string]struct{}, error)
}

// Registry lists the sessions under a run directory.
type Registry struct {
	runDir string
	table  MountTable
}

// NewRegistry creates a registry. A nil table reads the system mount table.
func NewRegistry(runDir string, table MountTable) *Registry {
	if table == nil {
		table = SystemMountTable{RunDir: runDir}
	}
	return &Registry{runDir: runDir, table: table}
}

// RunDir returns the directory scanned for sessions.
func (r *Registry) RunDir() string {
	return r.runDir
}

// List returns sessions sorted by ID. Stopped sessions are only included
// when all is set.
func (r *Registry) List(all bool) ([]Session, error) {
	live, err := r.table.MountedIDs()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to read mount table").
			WithComponent("session")
	}

	candidates, err := r.candidates()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(candidates))
	for _, id := range candidates {
		s := Session{ID: id, Status: StatusStopped}
		if _, ok := live[id]; ok {
			s.Mountpoint = filepath.Join(r.runDir, id, MountDir)
			s.Status = StatusRunning
		}
		if s.Status == StatusRunning || all {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

// candidates returns the names of run dir entries holding a marker file.
func (r *Registry) candidates() ([]string, error) {
	entries, err := os.ReadDir(r.runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to read run directory").
			WithComponent("session").
			WithContext("path", r.runDir)
	}

	var ids []string
	for _, e := range entries {
		dir := filepath.Join(r.runDir, e.Name())
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, MarkerFile)); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	utils.Logger().Debug("scanned run directory", zap.String("path", r.runDir), zap.Int("sessions", len(ids)))
	return ids, nil
}

// Listing adapts a session list for the output package.
type Listing []Session

// Headers implements output.TableRenderer.
func (l Listing) Headers() []string {
	return []string{"SESSION ID", "MOUNTPOINT", "STATUS"}
}

// Rows implements output.TableRenderer.
func (l Listing) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		mp := s.Mountpoint
		if mp == "" {
			mp = "-"
		}
		rows = append(rows, []string{s.ID, mp, string(s.Status)})
	}
	return rows
}

// Render writes sessions in format. An empty table listing prints a hint
// instead of a bare header.
func Render(w io.Writer, format output.Format, sessions []Session, all bool, runDir string) error {
	if format != output.FormatTable {
		if sessions == nil {
			sessions = []Session{}
		}
		return output.Print(w, format, sessions)
	}
	if len(sessions) == 0 {
		var msg string
		if all {
			msg = "No sandbox sessions found in " + runDir
		} else {
			msg = "No running sandbox sessions. Use -a to show all sessions."
		}
		_, err := io.WriteString(w, msg+"\n")
		return err
	}
	return output.PrintTable(w, Listing(sessions))
}
