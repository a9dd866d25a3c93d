// Package overlay composes a read-only base filesystem with a mutable delta.
//
// Reads consult the delta first and fall back to the base. The first write to
// a base file copies it up into the delta. Removing a path that exists in the
// base records a whiteout so the composed view reports it absent.
package overlay

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

// Delta is the writable layer. It persists whiteouts alongside its content.
type Delta interface {
	types.FileSystem
	AddWhiteout(ctx context.Context, path string) error
	RemoveWhiteout(ctx context.Context, path string) error
	IsWhitedOut(ctx context.Context, path string) (bool, error)
	WhiteoutsIn(ctx context.Context, dir string) ([]string, error)
}

// FileSystem is the composed view.
type FileSystem struct {
	base  types.FileSystem
	delta Delta
}

var _ types.FileSystem = (*FileSystem)(nil)

// New layers delta over base.
func New(base types.FileSystem, delta Delta) *FileSystem {
	return &FileSystem{base: base, delta: delta}
}

// Delta returns the writable layer.
func (o *FileSystem) Delta() Delta {
	return o.delta
}

// Close closes the delta when it owns resources.
func (o *FileSystem) Close() error {
	if c, ok := o.delta.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func normalize(op, path string) (string, error) {
	p, err := utils.NormalizePath(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, op+": invalid path").
			WithComponent("overlay").
			WithOperation(op)
	}
	return p, nil
}

func fsError(code errors.ErrorCode, op, path string) *errors.AgentFSError {
	return errors.Newf(code, "%s %s", op, path).
		WithComponent("overlay").
		WithOperation(op).
		WithContext("path", path)
}

// layer identifies where a path currently lives.
type layer int

const (
	layerNone layer = iota
	layerDelta
	layerBase
)

// locate finds path in the composed view without following a final symlink.
func (o *FileSystem) locate(ctx context.Context, p string) (types.Stats, layer, error) {
	hidden, err := o.delta.IsWhitedOut(ctx, p)
	if err != nil {
		return types.Stats{}, layerNone, err
	}
	if st, found, err := o.delta.Lstat(ctx, p); err != nil {
		if !errors.HasCode(err, errors.ErrCodeNotDirectory) {
			return types.Stats{}, layerNone, err
		}
	} else if found {
		return st, layerDelta, nil
	}
	if hidden {
		return types.Stats{}, layerNone, nil
	}
	st, found, err := o.base.Lstat(ctx, p)
	if err != nil || !found {
		return types.Stats{}, layerNone, err
	}
	return st, layerBase, nil
}

// reader picks the layer serving reads of p, or nil when p is absent.
func (o *FileSystem) reader(ctx context.Context, p string) (types.FileSystem, error) {
	_, where, err := o.locate(ctx, p)
	if err != nil {
		return nil, err
	}
	switch where {
	case layerDelta:
		return o.delta, nil
	case layerBase:
		return o.base, nil
	}
	return nil, nil
}

// Stat returns metadata for path, following symlinks.
func (o *FileSystem) Stat(ctx context.Context, path string) (types.Stats, bool, error) {
	p, err := normalize("stat", path)
	if err != nil {
		return types.Stats{}, false, err
	}
	fs, err := o.reader(ctx, p)
	if err != nil || fs == nil {
		return types.Stats{}, false, err
	}
	return fs.Stat(ctx, p)
}

// Lstat returns metadata for path without following a final symlink.
func (o *FileSystem) Lstat(ctx context.Context, path string) (types.Stats, bool, error) {
	p, err := normalize("lstat", path)
	if err != nil {
		return types.Stats{}, false, err
	}
	st, where, err := o.locate(ctx, p)
	if err != nil || where == layerNone {
		return types.Stats{}, false, err
	}
	return st, true, nil
}

// Pread reads up to size bytes at offset.
func (o *FileSystem) Pread(ctx context.Context, path string, offset, size uint64) ([]byte, bool, error) {
	p, err := normalize("pread", path)
	if err != nil {
		return nil, false, err
	}
	fs, err := o.reader(ctx, p)
	if err != nil || fs == nil {
		return nil, false, err
	}
	return fs.Pread(ctx, p, offset, size)
}

// ReadFile returns the whole content of path.
func (o *FileSystem) ReadFile(ctx context.Context, path string) ([]byte, bool, error) {
	p, err := normalize("read_file", path)
	if err != nil {
		return nil, false, err
	}
	fs, err := o.reader(ctx, p)
	if err != nil || fs == nil {
		return nil, false, err
	}
	return fs.ReadFile(ctx, p)
}

// Readlink returns the target of a symlink.
func (o *FileSystem) Readlink(ctx context.Context, path string) (string, bool, error) {
	p, err := normalize("readlink", path)
	if err != nil {
		return "", false, err
	}
	fs, err := o.reader(ctx, p)
	if err != nil || fs == nil {
		return "", false, err
	}
	return fs.Readlink(ctx, p)
}

// Readdir merges the delta and base listings, minus whiteouts, sorted.
func (o *FileSystem) Readdir(ctx context.Context, path string) ([]string, bool, error) {
	p, err := normalize("readdir", path)
	if err != nil {
		return nil, false, err
	}
	st, where, err := o.locate(ctx, p)
	if err != nil || where == layerNone {
		return nil, false, err
	}
	if !st.IsDir() {
		if st.IsSymlink() {
			if target, _, terr := o.Stat(ctx, p); terr != nil || !target.IsDir() {
				return nil, false, fsError(errors.ErrCodeNotDirectory, "readdir", p)
			}
		} else {
			return nil, false, fsError(errors.ErrCodeNotDirectory, "readdir", p)
		}
	}

	seen := make(map[string]struct{})
	if where == layerDelta {
		names, _, err := o.delta.Readdir(ctx, p)
		if err != nil {
			return nil, false, err
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}

	hidden, err := o.delta.IsWhitedOut(ctx, p)
	if err != nil {
		return nil, false, err
	}
	if !hidden {
		baseNames, _, err := o.base.Readdir(ctx, p)
		if err != nil && !errors.HasCode(err, errors.ErrCodeNotDirectory) {
			return nil, false, err
		}
		whiteouts, err := o.delta.WhiteoutsIn(ctx, p)
		if err != nil {
			return nil, false, err
		}
		removed := make(map[string]struct{}, len(whiteouts))
		for _, w := range whiteouts {
			removed[w] = struct{}{}
		}
		for _, n := range baseNames {
			if _, gone := removed[n]; !gone {
				seen[n] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, true, nil
}

// ensureParents materializes every ancestor directory of p in the delta. Each
// ancestor must exist as a directory in the composed view.
func (o *FileSystem) ensureParents(ctx context.Context, op, p string) error {
	parent, _ := utils.SplitParent(p)
	var chain []string
	for dir := parent; dir != "/"; dir, _ = utils.SplitParent(dir) {
		chain = append(chain, dir)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		dir := chain[i]
		st, where, err := o.locate(ctx, dir)
		if err != nil {
			return err
		}
		switch where {
		case layerNone:
			return fsError(errors.ErrCodeFileNotFound, op, dir)
		case layerDelta:
			if !st.IsDir() {
				return fsError(errors.ErrCodeNotDirectory, op, dir)
			}
		case layerBase:
			if !st.IsDir() {
				return fsError(errors.ErrCodeNotDirectory, op, dir)
			}
			if err := o.delta.Mkdir(ctx, dir); err != nil && !errors.HasCode(err, errors.ErrCodeAlreadyExists) {
				return err
			}
		}
	}
	return nil
}

// copyUp brings a base entry into the delta so it can be modified.
func (o *FileSystem) copyUp(ctx context.Context, op, p string, st types.Stats) error {
	if err := o.ensureParents(ctx, op, p); err != nil {
		return err
	}
	switch {
	case st.IsDir():
		err := o.delta.Mkdir(ctx, p)
		if err != nil && !errors.HasCode(err, errors.ErrCodeAlreadyExists) {
			return err
		}
	case st.IsSymlink():
		target, _, err := o.base.Readlink(ctx, p)
		if err != nil {
			return err
		}
		if err := o.delta.Symlink(ctx, target, p); err != nil {
			return err
		}
	default:
		data, _, err := o.base.ReadFile(ctx, p)
		if err != nil {
			return err
		}
		if err := o.delta.WriteFile(ctx, p, data); err != nil {
			return err
		}
	}
	utils.Logger().Debug("overlay copy-up", zap.String("path", p), zap.String("operation", op))
	return nil
}

// prepareWrite makes sure p can be modified in the delta. It reports whether
// the path existed anywhere before.
func (o *FileSystem) prepareWrite(ctx context.Context, op, p string) (bool, error) {
	st, where, err := o.locate(ctx, p)
	if err != nil {
		return false, err
	}
	switch where {
	case layerDelta:
		if st.IsDir() {
			return true, fsError(errors.ErrCodeIsDirectory, op, p)
		}
		return true, nil
	case layerBase:
		if st.IsDir() {
			return true, fsError(errors.ErrCodeIsDirectory, op, p)
		}
		return true, o.copyUp(ctx, op, p, st)
	}
	if err := o.ensureParents(ctx, op, p); err != nil {
		return false, err
	}
	return false, nil
}

// Pwrite writes data at offset, copying a base file up first.
func (o *FileSystem) Pwrite(ctx context.Context, path string, offset uint64, data []byte) error {
	p, err := normalize("pwrite", path)
	if err != nil {
		return err
	}
	existed, err := o.prepareWrite(ctx, "pwrite", p)
	if err != nil {
		return err
	}
	if err := o.delta.Pwrite(ctx, p, offset, data); err != nil {
		return err
	}
	if !existed {
		return o.delta.RemoveWhiteout(ctx, p)
	}
	return nil
}

// WriteFile replaces the content of path in the delta.
func (o *FileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	p, err := normalize("write_file", path)
	if err != nil {
		return err
	}
	st, where, err := o.locate(ctx, p)
	if err != nil {
		return err
	}
	if where != layerNone && st.IsDir() {
		return fsError(errors.ErrCodeIsDirectory, "write_file", p)
	}
	if err := o.ensureParents(ctx, "write_file", p); err != nil {
		return err
	}
	if err := o.delta.WriteFile(ctx, p, data); err != nil {
		return err
	}
	return o.delta.RemoveWhiteout(ctx, p)
}

// Truncate resizes an existing file, copying it up first.
func (o *FileSystem) Truncate(ctx context.Context, path string, size uint64) error {
	p, err := normalize("truncate", path)
	if err != nil {
		return err
	}
	existed, err := o.prepareWrite(ctx, "truncate", p)
	if err != nil {
		return err
	}
	if !existed {
		return fsError(errors.ErrCodeFileNotFound, "truncate", p)
	}
	return o.delta.Truncate(ctx, p, size)
}

// Mkdir creates a directory in the delta. Recreating a whited-out directory
// hides the base directory's old children.
func (o *FileSystem) Mkdir(ctx context.Context, path string) error {
	p, err := normalize("mkdir", path)
	if err != nil {
		return err
	}
	_, where, err := o.locate(ctx, p)
	if err != nil {
		return err
	}
	if where != layerNone || p == "/" {
		return fsError(errors.ErrCodeAlreadyExists, "mkdir", p)
	}
	if err := o.ensureParents(ctx, "mkdir", p); err != nil {
		return err
	}
	if err := o.delta.Mkdir(ctx, p); err != nil {
		return err
	}

	hidden, err := o.delta.IsWhitedOut(ctx, p)
	if err != nil || !hidden {
		return err
	}
	if err := o.delta.RemoveWhiteout(ctx, p); err != nil {
		return err
	}
	if still, err := o.delta.IsWhitedOut(ctx, p); err != nil || still {
		return err
	}
	baseNames, _, err := o.base.Readdir(ctx, p)
	if err != nil && !errors.HasCode(err, errors.ErrCodeNotDirectory) {
		return err
	}
	for _, name := range baseNames {
		if err := o.delta.AddWhiteout(ctx, p+"/"+name); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a file, symlink or empty directory from the composed view.
func (o *FileSystem) Remove(ctx context.Context, path string) error {
	p, err := normalize("remove", path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fsError(errors.ErrCodeInvalidArgument, "remove", p)
	}
	st, where, err := o.locate(ctx, p)
	if err != nil {
		return err
	}
	if where == layerNone {
		return fsError(errors.ErrCodeFileNotFound, "remove", p)
	}
	if st.IsDir() {
		names, _, err := o.Readdir(ctx, p)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			return fsError(errors.ErrCodeNotEmpty, "remove", p)
		}
	}

	if where == layerDelta {
		if err := o.delta.Remove(ctx, p); err != nil {
			return err
		}
	}

	_, inBase, err := o.base.Lstat(ctx, p)
	if err != nil && !errors.HasCode(err, errors.ErrCodeNotDirectory) {
		return err
	}
	if inBase {
		return o.delta.AddWhiteout(ctx, p)
	}
	return nil
}

// Rename moves from to to by copying the composed subtree and removing the
// source.
func (o *FileSystem) Rename(ctx context.Context, from, to string) error {
	src, err := normalize("rename", from)
	if err != nil {
		return err
	}
	dst, err := normalize("rename", to)
	if err != nil {
		return err
	}
	if src == "/" || dst == "/" {
		return fsError(errors.ErrCodeInvalidArgument, "rename", src)
	}

	srcStat, srcWhere, err := o.locate(ctx, src)
	if err != nil {
		return err
	}
	if srcWhere == layerNone {
		return fsError(errors.ErrCodeFileNotFound, "rename", src)
	}
	if src == dst {
		return nil
	}
	if utils.IsAncestor(src, dst) {
		return fsError(errors.ErrCodeInvalidArgument, "rename", dst)
	}

	dstStat, dstWhere, err := o.locate(ctx, dst)
	if err != nil {
		return err
	}
	if dstWhere != layerNone {
		switch {
		case srcStat.IsDir() && !dstStat.IsDir():
			return fsError(errors.ErrCodeNotDirectory, "rename", dst)
		case !srcStat.IsDir() && dstStat.IsDir():
			return fsError(errors.ErrCodeIsDirectory, "rename", dst)
		}
		if err := o.Remove(ctx, dst); err != nil {
			return err
		}
	}

	if err := o.copyTree(ctx, src, dst, srcStat); err != nil {
		return err
	}
	return o.removeTree(ctx, src, srcStat)
}

func (o *FileSystem) copyTree(ctx context.Context, src, dst string, st types.Stats) error {
	switch {
	case st.IsDir():
		if err := o.Mkdir(ctx, dst); err != nil {
			return err
		}
		names, _, err := o.Readdir(ctx, src)
		if err != nil {
			return err
		}
		for _, name := range names {
			childStat, _, err := o.Lstat(ctx, src+"/"+name)
			if err != nil {
				return err
			}
			if err := o.copyTree(ctx, src+"/"+name, dst+"/"+name, childStat); err != nil {
				return err
			}
		}
		return nil
	case st.IsSymlink():
		target, _, err := o.Readlink(ctx, src)
		if err != nil {
			return err
		}
		if err := o.ensureParents(ctx, "rename", dst); err != nil {
			return err
		}
		if err := o.delta.Symlink(ctx, target, dst); err != nil {
			return err
		}
		return o.delta.RemoveWhiteout(ctx, dst)
	default:
		data, _, err := o.ReadFile(ctx, src)
		if err != nil {
			return err
		}
		return o.WriteFile(ctx, dst, data)
	}
}

func (o *FileSystem) removeTree(ctx context.Context, p string, st types.Stats) error {
	if st.IsDir() {
		names, _, err := o.Readdir(ctx, p)
		if err != nil {
			return err
		}
		for _, name := range names {
			childStat, _, err := o.Lstat(ctx, p+"/"+name)
			if err != nil {
				return err
			}
			if err := o.removeTree(ctx, p+"/"+name, childStat); err != nil {
				return err
			}
		}
	}
	return o.Remove(ctx, p)
}

// Symlink creates linkpath in the delta.
func (o *FileSystem) Symlink(ctx context.Context, target, linkpath string) error {
	p, err := normalize("symlink", linkpath)
	if err != nil {
		return err
	}
	_, where, err := o.locate(ctx, p)
	if err != nil {
		return err
	}
	if where != layerNone {
		return fsError(errors.ErrCodeAlreadyExists, "symlink", p)
	}
	if err := o.ensureParents(ctx, "symlink", p); err != nil {
		return err
	}
	if err := o.delta.Symlink(ctx, target, p); err != nil {
		return err
	}
	return o.delta.RemoveWhiteout(ctx, p)
}

// Statfs reports usage of the delta layer.
func (o *FileSystem) Statfs(ctx context.Context) (types.FilesystemStats, error) {
	return o.delta.Statfs(ctx)
}

// Fsync syncs path when it lives in the delta. Base entries are never dirty.
func (o *FileSystem) Fsync(ctx context.Context, path string) error {
	p, err := normalize("fsync", path)
	if err != nil {
		return err
	}
	_, where, err := o.locate(ctx, p)
	if err != nil {
		return err
	}
	switch where {
	case layerNone:
		return fsError(errors.ErrCodeFileNotFound, "fsync", p)
	case layerDelta:
		return o.delta.Fsync(ctx, p)
	}
	return nil
}
