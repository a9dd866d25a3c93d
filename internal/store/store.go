// Package store implements the database-backed filesystem on SQLite through
// GORM. Every agent database created by the CLI or the C library is a store.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/types"
	"github.com/agentfs/agentfs/pkg/utils"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// MaxFileSize is the largest file the store holds. Content lives in a single
// blob per inode, so writes and truncates beyond it fail with FILE_TOO_LARGE
// before anything is allocated.
const MaxFileSize uint64 = 1 << 30

// Store is a types.FileSystem persisted in a SQLite database.
type Store struct {
	db   *gorm.DB
	path string
	uid  uint32
	gid  uint32
}

var _ types.FileSystem = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates the
// schema. MemoryDSN yields a private database that disappears on Close.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidArgument, "database path cannot be empty")
	}

	dsn := MemoryDSN
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to create database directory")
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to open database").
			WithContext("path", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to get underlying database")
	}
	// An in-memory database lives on a single connection; a file database
	// is written by one handle at a time anyway.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{
		db:   db,
		path: path,
		uid:  uint32(os.Getuid()),
		gid:  uint32(os.Getgid()),
	}

	if err := db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to run database migration")
	}
	if err := s.ensureRoot(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	utils.Logger().Debug("store opened", zap.String("path", path))
	return s, nil
}

// Path returns the location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ensureRoot(ctx context.Context) error {
	now := time.Now().Unix()
	root := Inode{
		Ino:   RootIno,
		Mode:  types.S_IFDIR | types.DefaultDirMode,
		Nlink: 2,
		UID:   s.uid,
		GID:   s.gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&root).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIO, "failed to create root directory")
	}
	return nil
}

// Stat returns metadata for path, following symlinks.
func (s *Store) Stat(ctx context.Context, path string) (types.Stats, bool, error) {
	return s.stat(ctx, "stat", path, true)
}

// Lstat returns metadata for path without following a final symlink.
func (s *Store) Lstat(ctx context.Context, path string) (types.Stats, bool, error) {
	return s.stat(ctx, "lstat", path, false)
}

func (s *Store) stat(ctx context.Context, op, path string, follow bool) (types.Stats, bool, error) {
	p, err := normalize(op, path)
	if err != nil {
		return types.Stats{}, false, err
	}
	inode, found, err := s.resolve(s.db.WithContext(ctx), op, p, follow)
	if err != nil || !found {
		return types.Stats{}, false, err
	}
	return inode.Stats(), true, nil
}

// Pread reads up to size bytes at offset. Reading past the end yields an
// empty slice.
func (s *Store) Pread(ctx context.Context, path string, offset, size uint64) ([]byte, bool, error) {
	content, found, err := s.readContent(ctx, "pread", path)
	if err != nil || !found {
		return nil, found, err
	}
	if offset >= uint64(len(content)) {
		return []byte{}, true, nil
	}
	end := uint64(len(content))
	if size < end-offset {
		end = offset + size
	}
	return content[offset:end], true, nil
}

// ReadFile returns the whole content of path.
func (s *Store) ReadFile(ctx context.Context, path string) ([]byte, bool, error) {
	return s.readContent(ctx, "read_file", path)
}

func (s *Store) readContent(ctx context.Context, op, path string) ([]byte, bool, error) {
	p, err := normalize(op, path)
	if err != nil {
		return nil, false, err
	}
	db := s.db.WithContext(ctx)
	inode, found, err := s.resolve(db, op, p, true)
	if err != nil || !found {
		return nil, false, err
	}
	if inode.IsDir() {
		return nil, false, fsError(errors.ErrCodeIsDirectory, op, p)
	}
	content, err := loadContent(db, inode.Ino)
	if err != nil {
		return nil, false, ioError(err, op, p)
	}
	return content, true, nil
}

// Pwrite writes data at offset, creating the file if needed and zero-filling
// any gap past the current end.
func (s *Store) Pwrite(ctx context.Context, path string, offset uint64, data []byte) error {
	p, err := normalize("pwrite", path)
	if err != nil {
		return err
	}
	return s.transaction(ctx, "pwrite", p, func(tx *gorm.DB) error {
		inode, err := s.openOrCreateFile(tx, "pwrite", p)
		if err != nil {
			return err
		}
		end := offset + uint64(len(data))
		if end < offset || end > MaxFileSize {
			return fsError(errors.ErrCodeFileTooLarge, "pwrite", p)
		}
		content, err := loadContent(tx, inode.Ino)
		if err != nil {
			return err
		}
		if end > uint64(len(content)) {
			grown := make([]byte, end)
			copy(grown, content)
			content = grown
		}
		copy(content[offset:], data)
		return s.storeContent(tx, inode, content)
	})
}

// WriteFile replaces the content of path, creating it if needed.
func (s *Store) WriteFile(ctx context.Context, path string, data []byte) error {
	p, err := normalize("write_file", path)
	if err != nil {
		return err
	}
	if uint64(len(data)) > MaxFileSize {
		return fsError(errors.ErrCodeFileTooLarge, "write_file", p)
	}
	return s.transaction(ctx, "write_file", p, func(tx *gorm.DB) error {
		inode, err := s.openOrCreateFile(tx, "write_file", p)
		if err != nil {
			return err
		}
		content := make([]byte, len(data))
		copy(content, data)
		return s.storeContent(tx, inode, content)
	})
}

// Truncate sets the size of an existing file.
func (s *Store) Truncate(ctx context.Context, path string, size uint64) error {
	p, err := normalize("truncate", path)
	if err != nil {
		return err
	}
	return s.transaction(ctx, "truncate", p, func(tx *gorm.DB) error {
		inode, found, err := s.resolve(tx, "truncate", p, true)
		if err != nil {
			return err
		}
		if !found {
			return fsError(errors.ErrCodeFileNotFound, "truncate", p)
		}
		if inode.IsDir() {
			return fsError(errors.ErrCodeIsDirectory, "truncate", p)
		}
		if size > MaxFileSize {
			return fsError(errors.ErrCodeFileTooLarge, "truncate", p)
		}
		content, err := loadContent(tx, inode.Ino)
		if err != nil {
			return err
		}
		resized := make([]byte, size)
		copy(resized, content)
		return s.storeContent(tx, inode, resized)
	})
}

// Readdir lists the entry names of a directory in lexicographic order.
func (s *Store) Readdir(ctx context.Context, path string) ([]string, bool, error) {
	p, err := normalize("readdir", path)
	if err != nil {
		return nil, false, err
	}
	db := s.db.WithContext(ctx)
	inode, found, err := s.resolve(db, "readdir", p, true)
	if err != nil || !found {
		return nil, false, err
	}
	if !inode.IsDir() {
		return nil, false, fsError(errors.ErrCodeNotDirectory, "readdir", p)
	}
	names, err := listNames(db, inode.Ino)
	if err != nil {
		return nil, false, ioError(err, "readdir", p)
	}
	return names, true, nil
}

// Mkdir creates a directory. The parent must exist.
func (s *Store) Mkdir(ctx context.Context, path string) error {
	p, err := normalize("mkdir", path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fsError(errors.ErrCodeAlreadyExists, "mkdir", p)
	}
	return s.transaction(ctx, "mkdir", p, func(tx *gorm.DB) error {
		parent, name, err := s.parentForCreate(tx, "mkdir", p)
		if err != nil {
			return err
		}
		_, err = s.createEntry(tx, parent.Ino, name, types.S_IFDIR|types.DefaultDirMode, 2)
		return err
	})
}

// Remove deletes a file, symlink or empty directory.
func (s *Store) Remove(ctx context.Context, path string) error {
	p, err := normalize("remove", path)
	if err != nil {
		return err
	}
	if p == "/" {
		return fsError(errors.ErrCodeInvalidArgument, "remove", p)
	}
	return s.transaction(ctx, "remove", p, func(tx *gorm.DB) error {
		dentry, inode, err := s.lookupEntry(tx, "remove", p)
		if err != nil {
			return err
		}
		if inode.IsDir() {
			empty, err := isEmptyDir(tx, inode.Ino)
			if err != nil {
				return err
			}
			if !empty {
				return fsError(errors.ErrCodeNotEmpty, "remove", p)
			}
		}
		return unlink(tx, dentry, inode)
	})
}

// Rename moves from to to, replacing a compatible existing destination.
func (s *Store) Rename(ctx context.Context, from, to string) error {
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
	if src == dst {
		_, _, err := s.lookupEntry(s.db.WithContext(ctx), "rename", src)
		return err
	}
	if utils.IsAncestor(src, dst) {
		return fsError(errors.ErrCodeInvalidArgument, "rename", dst).
			WithDetail("reason", "cannot move a directory into itself")
	}

	return s.transaction(ctx, "rename", src, func(tx *gorm.DB) error {
		srcDentry, srcInode, err := s.lookupEntry(tx, "rename", src)
		if err != nil {
			return err
		}
		parent, name, err := s.parentDir(tx, "rename", dst)
		if err != nil {
			return err
		}

		dstDentry, dstInode, found, err := findEntry(tx, parent.Ino, name)
		if err != nil {
			return err
		}
		if found {
			switch {
			case srcInode.IsDir() && !dstInode.IsDir():
				return fsError(errors.ErrCodeNotDirectory, "rename", dst)
			case !srcInode.IsDir() && dstInode.IsDir():
				return fsError(errors.ErrCodeIsDirectory, "rename", dst)
			case dstInode.IsDir():
				empty, err := isEmptyDir(tx, dstInode.Ino)
				if err != nil {
					return err
				}
				if !empty {
					return fsError(errors.ErrCodeNotEmpty, "rename", dst)
				}
			}
			if err := unlink(tx, dstDentry, dstInode); err != nil {
				return err
			}
		}

		if err := tx.Model(srcDentry).Updates(map[string]interface{}{
			"parent_ino": parent.Ino,
			"name":       name,
		}).Error; err != nil {
			return err
		}
		return tx.Model(srcInode).Update("ctime", time.Now().Unix()).Error
	})
}

// Symlink creates linkpath pointing at target. The target is stored verbatim.
func (s *Store) Symlink(ctx context.Context, target, linkpath string) error {
	p, err := normalize("symlink", linkpath)
	if err != nil {
		return err
	}
	if target == "" {
		return fsError(errors.ErrCodeInvalidArgument, "symlink", p)
	}
	return s.transaction(ctx, "symlink", p, func(tx *gorm.DB) error {
		parent, name, err := s.parentForCreate(tx, "symlink", p)
		if err != nil {
			return err
		}
		inode, err := s.createEntry(tx, parent.Ino, name, types.S_IFLNK|types.DefaultLinkMode, 1)
		if err != nil {
			return err
		}
		if err := tx.Create(&Symlink{Ino: inode.Ino, Target: target}).Error; err != nil {
			return err
		}
		return tx.Model(inode).Update("size", int64(len(target))).Error
	})
}

// Readlink returns the target of a symlink.
func (s *Store) Readlink(ctx context.Context, path string) (string, bool, error) {
	p, err := normalize("readlink", path)
	if err != nil {
		return "", false, err
	}
	db := s.db.WithContext(ctx)
	inode, found, err := s.resolve(db, "readlink", p, false)
	if err != nil || !found {
		return "", false, err
	}
	if !inode.IsSymlink() {
		return "", false, fsError(errors.ErrCodeInvalidArgument, "readlink", p).
			WithDetail("reason", "not a symbolic link")
	}
	target, err := loadTarget(db, inode.Ino)
	if err != nil {
		return "", false, ioError(err, "readlink", p)
	}
	return target, true, nil
}

// Statfs reports the inode count and the bytes held by regular files.
func (s *Store) Statfs(ctx context.Context) (types.FilesystemStats, error) {
	db := s.db.WithContext(ctx)

	var inodes int64
	if err := db.Model(&Inode{}).Count(&inodes).Error; err != nil {
		return types.FilesystemStats{}, ioError(err, "statfs", "/")
	}

	var used int64
	if err := db.Model(&Data{}).Select("COALESCE(SUM(LENGTH(content)), 0)").Scan(&used).Error; err != nil {
		return types.FilesystemStats{}, ioError(err, "statfs", "/")
	}

	return types.FilesystemStats{Inodes: uint64(inodes), BytesUsed: uint64(used)}, nil
}

// Fsync checks that path exists. Commits are already durable.
func (s *Store) Fsync(ctx context.Context, path string) error {
	p, err := normalize("fsync", path)
	if err != nil {
		return err
	}
	_, found, err := s.resolve(s.db.WithContext(ctx), "fsync", p, true)
	if err != nil {
		return err
	}
	if !found {
		return fsError(errors.ErrCodeFileNotFound, "fsync", p)
	}
	return nil
}

// transaction runs fn in a database transaction. Unclassified failures are
// reported as I/O errors.
func (s *Store) transaction(ctx context.Context, op, path string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var fsErr *errors.AgentFSError
	if stderrors.As(err, &fsErr) {
		return err
	}
	return ioError(err, op, path)
}

// openOrCreateFile resolves path to a regular file, creating an empty one if
// it does not exist.
func (s *Store) openOrCreateFile(tx *gorm.DB, op, path string) (*Inode, error) {
	inode, found, err := s.resolve(tx, op, path, true)
	if err != nil {
		return nil, err
	}
	if found {
		if inode.IsDir() {
			return nil, fsError(errors.ErrCodeIsDirectory, op, path)
		}
		return inode, nil
	}
	parent, name, err := s.parentForCreate(tx, op, path)
	if err != nil {
		return nil, err
	}
	return s.createEntry(tx, parent.Ino, name, types.S_IFREG|types.DefaultFileMode, 1)
}

func (s *Store) storeContent(tx *gorm.DB, inode *Inode, content []byte) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ino"}},
		DoUpdates: clause.AssignmentColumns([]string{"content"}),
	}).Create(&Data{Ino: inode.Ino, Content: content}).Error
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	return tx.Model(inode).Updates(map[string]interface{}{
		"size":  int64(len(content)),
		"mtime": now,
		"ctime": now,
	}).Error
}

func (s *Store) createEntry(tx *gorm.DB, parentIno int64, name string, mode, nlink uint32) (*Inode, error) {
	now := time.Now().Unix()
	inode := &Inode{
		Mode:  mode,
		Nlink: nlink,
		UID:   s.uid,
		GID:   s.gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if err := tx.Create(inode).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(&Dentry{Name: name, ParentIno: parentIno, Ino: inode.Ino}).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&Inode{}).Where("ino = ?", parentIno).
		Updates(map[string]interface{}{"mtime": now, "ctime": now}).Error; err != nil {
		return nil, err
	}
	return inode, nil
}

// parentForCreate returns the parent directory of path and verifies that
// path itself does not exist yet.
func (s *Store) parentForCreate(tx *gorm.DB, op, path string) (*Inode, string, error) {
	parent, name, err := s.parentDir(tx, op, path)
	if err != nil {
		return nil, "", err
	}
	_, _, exists, err := findEntry(tx, parent.Ino, name)
	if err != nil {
		return nil, "", err
	}
	if exists {
		return nil, "", fsError(errors.ErrCodeAlreadyExists, op, path)
	}
	return parent, name, nil
}

func (s *Store) parentDir(tx *gorm.DB, op, path string) (*Inode, string, error) {
	parentPath, name := utils.SplitParent(path)
	parent, found, err := s.resolve(tx, op, parentPath, true)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", fsError(errors.ErrCodeFileNotFound, op, parentPath)
	}
	if !parent.IsDir() {
		return nil, "", fsError(errors.ErrCodeNotDirectory, op, parentPath)
	}
	return parent, name, nil
}

// lookupEntry returns the dentry and inode named by path without following
// a final symlink. A missing entry is FILE_NOT_FOUND.
func (s *Store) lookupEntry(tx *gorm.DB, op, path string) (*Dentry, *Inode, error) {
	parent, name, err := s.parentDir(tx, op, path)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotDirectory) {
			return nil, nil, err
		}
		return nil, nil, fsError(errors.ErrCodeFileNotFound, op, path)
	}
	dentry, inode, found, err := findEntry(tx, parent.Ino, name)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fsError(errors.ErrCodeFileNotFound, op, path)
	}
	return dentry, inode, nil
}

func findEntry(tx *gorm.DB, parentIno int64, name string) (*Dentry, *Inode, bool, error) {
	var dentry Dentry
	err := tx.Where("parent_ino = ? AND name = ?", parentIno, name).First(&dentry).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	var inode Inode
	if err := tx.First(&inode, "ino = ?", dentry.Ino).Error; err != nil {
		return nil, nil, false, err
	}
	return &dentry, &inode, true, nil
}

func listNames(tx *gorm.DB, dirIno int64) ([]string, error) {
	var names []string
	if err := tx.Model(&Dentry{}).Where("parent_ino = ?", dirIno).
		Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func isEmptyDir(tx *gorm.DB, dirIno int64) (bool, error) {
	var count int64
	if err := tx.Model(&Dentry{}).Where("parent_ino = ?", dirIno).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

// unlink removes a dentry and drops the inode once nothing references it.
func unlink(tx *gorm.DB, dentry *Dentry, inode *Inode) error {
	if err := tx.Delete(dentry).Error; err != nil {
		return err
	}
	var refs int64
	if err := tx.Model(&Dentry{}).Where("ino = ?", inode.Ino).Count(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return nil
	}
	for _, model := range []interface{}{&Data{}, &Symlink{}, &Inode{}} {
		if err := tx.Where("ino = ?", inode.Ino).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func loadContent(tx *gorm.DB, ino int64) ([]byte, error) {
	var data Data
	err := tx.First(&data, "ino = ?", ino).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	if data.Content == nil {
		return []byte{}, nil
	}
	return data.Content, nil
}

func loadTarget(tx *gorm.DB, ino int64) (string, error) {
	var link Symlink
	if err := tx.First(&link, "ino = ?", ino).Error; err != nil {
		return "", err
	}
	return link.Target, nil
}

func normalize(op, path string) (string, error) {
	p, err := utils.NormalizePath(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodePathInvalid, fmt.Sprintf("%s: invalid path", op)).
			WithComponent("store").
			WithOperation(op)
	}
	return p, nil
}

func fsError(code errors.ErrorCode, op, path string) *errors.AgentFSError {
	return errors.Newf(code, "%s %s", op, path).
		WithComponent("store").
		WithOperation(op).
		WithContext("path", path)
}

func ioError(err error, op, path string) *errors.AgentFSError {
	return errors.Wrap(err, errors.ErrCodeIO, fmt.Sprintf("%s %s", op, path)).
		WithComponent("store").
		WithOperation(op).
		WithContext("path", path)
}
