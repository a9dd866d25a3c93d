package store

import "github.com/agentfs/agentfs/pkg/types"

// RootIno is the inode number of "/".
const RootIno int64 = 1

// Inode is a row of fs_inode.
type Inode struct {
	Ino   int64  `gorm:"column:ino;primaryKey;autoIncrement"`
	Mode  uint32 `gorm:"column:mode;not null"`
	Nlink uint32 `gorm:"column:nlink;not null;default:1"`
	UID   uint32 `gorm:"column:uid;not null;default:0"`
	GID   uint32 `gorm:"column:gid;not null;default:0"`
	Size  int64  `gorm:"column:size;not null;default:0"`
	Atime int64  `gorm:"column:atime;not null"`
	Mtime int64  `gorm:"column:mtime;not null"`
	Ctime int64  `gorm:"column:ctime;not null"`
}

// TableName returns the table name for Inode.
func (Inode) TableName() string { return "fs_inode" }

// Stats converts the row to the transfer record.
func (i *Inode) Stats() types.Stats {
	return types.Stats{
		Ino:   i.Ino,
		Mode:  i.Mode,
		Nlink: i.Nlink,
		UID:   i.UID,
		GID:   i.GID,
		Size:  i.Size,
		Atime: i.Atime,
		Mtime: i.Mtime,
		Ctime: i.Ctime,
	}
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool { return i.Mode&types.S_IFMT == types.S_IFDIR }

// IsSymlink reports whether the inode is a symbolic link.
func (i *Inode) IsSymlink() bool { return i.Mode&types.S_IFMT == types.S_IFLNK }

// Dentry links a name inside a parent directory to an inode.
type Dentry struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string `gorm:"column:name;not null;uniqueIndex:idx_fs_dentry_parent_name"`
	ParentIno int64  `gorm:"column:parent_ino;not null;uniqueIndex:idx_fs_dentry_parent_name"`
	Ino       int64  `gorm:"column:ino;not null;index"`
}

// TableName returns the table name for Dentry.
func (Dentry) TableName() string { return "fs_dentry" }

// Data holds the content of a regular file.
type Data struct {
	Ino     int64  `gorm:"column:ino;primaryKey;autoIncrement:false"`
	Content []byte `gorm:"column:content"`
}

// TableName returns the table name for Data.
func (Data) TableName() string { return "fs_data" }

// Symlink holds the target of a symbolic link.
type Symlink struct {
	Ino    int64  `gorm:"column:ino;primaryKey;autoIncrement:false"`
	Target string `gorm:"column:target;not null"`
}

// TableName returns the table name for Symlink.
func (Symlink) TableName() string { return "fs_symlink" }

// OverlayConfig is a key/value row describing the overlay layout.
type OverlayConfig struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

// TableName returns the table name for OverlayConfig.
func (OverlayConfig) TableName() string { return "fs_overlay_config" }

// Whiteout marks a base-layer path as deleted.
type Whiteout struct {
	Path      string `gorm:"column:path;primaryKey"`
	CreatedAt int64  `gorm:"column:created_at;not null"`
}

// TableName returns the table name for Whiteout.
func (Whiteout) TableName() string { return "fs_whiteout" }

// AllModels returns every table managed by the store, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Inode{},
		&Dentry{},
		&Data{},
		&Symlink{},
		&OverlayConfig{},
		&Whiteout{},
	}
}
