// Package location turns the identifier-or-path strings accepted by the C
// library and the CLI into concrete database locations.
package location

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentfs/agentfs/pkg/errors"
)

// Memory is the location of a private, non-durable database.
const Memory = ":memory:"

const (
	agentFSDirName = ".agentfs"
	runDirName     = "run"
	dbExtension    = ".db"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Dirs holds the well-known directories. Empty fields resolve to the
// defaults under the user's home directory.
type Dirs struct {
	AgentFS string
	Run     string
}

// Options is a resolved location.
type Options struct {
	// Path is the database file. Empty when Ephemeral.
	Path string
	// AgentID is set when the input was an agent identifier.
	AgentID   string
	Ephemeral bool
}

// DSN returns the string handed to the database layer.
func (o Options) DSN() string {
	if o.Ephemeral {
		return Memory
	}
	return o.Path
}

// ValidateAgentID reports whether id only contains alphanumerics, hyphens
// and underscores.
func ValidateAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// AgentFSDir returns ~/.agentfs.
func AgentFSDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidConfig, "cannot determine home directory")
	}
	return filepath.Join(home, agentFSDirName), nil
}

// RunDir returns ~/.agentfs/run, the parent of every sandbox session.
func RunDir() (string, error) {
	dir, err := AgentFSDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, runDirName), nil
}

// WithDefaults fills empty fields from the home directory layout.
func (d Dirs) WithDefaults() (Dirs, error) {
	if d.AgentFS == "" {
		dir, err := AgentFSDir()
		if err != nil {
			return d, err
		}
		d.AgentFS = dir
	}
	if d.Run == "" {
		d.Run = filepath.Join(d.AgentFS, runDirName)
	}
	return d, nil
}

// Resolve interprets idOrPath:
//
//   - ":memory:" is an ephemeral database
//   - anything containing a path separator, ending in ".db", or naming an
//     existing file is a database path
//   - otherwise it is an agent ID stored at <agentfs dir>/<id>.db, which
//     must already exist
func Resolve(idOrPath string, dirs Dirs) (Options, error) {
	if idOrPath == "" {
		return Options{}, errors.NewError(errors.ErrCodeInvalidArgument, "location cannot be empty")
	}
	if strings.IndexByte(idOrPath, 0) >= 0 {
		return Options{}, errors.NewError(errors.ErrCodeInvalidArgument, "location contains NUL byte")
	}
	if idOrPath == Memory {
		return Options{Ephemeral: true}, nil
	}

	if looksLikePath(idOrPath) {
		return Options{Path: idOrPath}, nil
	}

	if !ValidateAgentID(idOrPath) {
		return Options{}, errors.Newf(errors.ErrCodeInvalidAgentID, "invalid agent ID '%s'", idOrPath).
			WithContext("agent_id", idOrPath)
	}

	dirs, err := dirs.WithDefaults()
	if err != nil {
		return Options{}, err
	}
	dbPath := filepath.Join(dirs.AgentFS, idOrPath+dbExtension)
	if _, err := os.Stat(dbPath); err != nil {
		return Options{}, errors.Wrap(err, errors.ErrCodeFileNotFound,
			"agent '"+idOrPath+"' not found").
			WithContext("path", dbPath)
	}
	return Options{Path: dbPath, AgentID: idOrPath}, nil
}

func looksLikePath(s string) bool {
	if strings.ContainsRune(s, filepath.Separator) || strings.ContainsRune(s, '/') {
		return true
	}
	if strings.HasSuffix(s, dbExtension) {
		return true
	}
	info, err := os.Stat(s)
	return err == nil && !info.IsDir()
}
