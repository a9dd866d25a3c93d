package types

// File type bits of Stats.Mode.
const (
	S_IFMT   uint32 = 0o170000
	S_IFDIR  uint32 = 0o040000
	S_IFREG  uint32 = 0o100000
	S_IFLNK  uint32 = 0o120000
	ModePerm uint32 = 0o7777
)

// Default permission bits for newly created entries.
const (
	DefaultFileMode uint32 = 0o644
	DefaultDirMode  uint32 = 0o755
	DefaultLinkMode uint32 = 0o777
)

// Stats represents POSIX file metadata. Timestamps are unix seconds.
type Stats struct {
	Ino   int64  `json:"ino"`
	Mode  uint32 `json:"mode"`
	Nlink uint32 `json:"nlink"`
	UID   uint32 `json:"uid"`
	GID   uint32 `json:"gid"`
	Size  int64  `json:"size"`
	Atime int64  `json:"atime"`
	Mtime int64  `json:"mtime"`
	Ctime int64  `json:"ctime"`
}

// IsDir reports whether the stats describe a directory.
func (s Stats) IsDir() bool { return s.Mode&S_IFMT == S_IFDIR }

// IsRegular reports whether the stats describe a regular file.
func (s Stats) IsRegular() bool { return s.Mode&S_IFMT == S_IFREG }

// IsSymlink reports whether the stats describe a symbolic link.
func (s Stats) IsSymlink() bool { return s.Mode&S_IFMT == S_IFLNK }

// FilesystemStats represents filesystem-wide usage.
type FilesystemStats struct {
	Inodes    uint64 `json:"inodes"`
	BytesUsed uint64 `json:"bytes_used"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Entries   int     `json:"entries"`
	Capacity  int     `json:"capacity"`
	HitRate   float64 `json:"hit_rate"`
}
