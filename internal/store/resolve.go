package store

import (
	"path"

	"gorm.io/gorm"

	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/utils"
)

// maxSymlinkHops bounds symlink expansion during a single lookup.
const maxSymlinkHops = 40

// resolve walks a normalized path from the root. Intermediate symlinks are
// always expanded; the final one only when follow is set. A missing component
// is reported as found == false with a nil error.
func (s *Store) resolve(tx *gorm.DB, op, p string, follow bool) (*Inode, bool, error) {
	var root Inode
	if err := tx.First(&root, "ino = ?", RootIno).Error; err != nil {
		return nil, false, ioError(err, op, p)
	}

	components := utils.SplitPath(p)
	current := &root
	walked := "/"
	hops := 0

	for i := 0; i < len(components); i++ {
		if !current.IsDir() {
			return nil, false, fsError(errors.ErrCodeNotDirectory, op, walked)
		}

		_, child, found, err := findEntry(tx, current.Ino, components[i])
		if err != nil {
			return nil, false, ioError(err, op, p)
		}
		if !found {
			return nil, false, nil
		}

		last := i == len(components)-1
		if child.IsSymlink() && (!last || follow) {
			hops++
			if hops > maxSymlinkHops {
				return nil, false, fsError(errors.ErrCodeSymlinkLoop, op, p)
			}
			target, err := loadTarget(tx, child.Ino)
			if err != nil {
				return nil, false, ioError(err, op, p)
			}
			if !path.IsAbs(target) {
				target = path.Join(walked, target)
			}
			components = append(utils.SplitPath(path.Clean("/"+target)), components[i+1:]...)
			current = &root
			walked = "/"
			i = -1
			continue
		}

		current = child
		walked = path.Join(walked, components[i])
	}

	return current, true, nil
}
