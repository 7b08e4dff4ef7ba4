package fsapi

import (
	"io/fs"
	"syscall"
)

// File is a writeable fs.File bridge backed by syscall functions, shaped to
// back every fd_* preview1 operation without forcing an os.File underneath.
//
// Implementations should embed UnimplementedFile for forward compatibility.
// Any unsupported method or parameter should return syscall.ENOSYS.
//
// All methods that can fail return a syscall.Errno, zero on success. This
// mirrors the well-known error set preview1 can actually report on the wire;
// richer Go errors are narrowed to it by internal/sysfs (UnwrapOSError)
// before they reach callers of this interface.
type File interface {
	// Dev returns the device ID (Stat_t.Dev) of this file, zero if unknown.
	Dev() (uint64, syscall.Errno)

	// Ino returns the serial number (Stat_t.Ino) of this file, zero if
	// unknown. Combined with Dev this backs path_filestat_get's inode
	// field, which wasi-testsuite checks for "." and "..".
	Ino() (uint64, syscall.Errno)

	// IsDir returns true if this file is a directory.
	IsDir() (bool, syscall.Errno)

	// IsNonblock returns true if the file was opened, or has since been
	// set, non-blocking.
	IsNonblock() bool

	// SetNonblock toggles non-blocking mode, backing fd_fdstat_set_flags.
	SetNonblock(enable bool) syscall.Errno

	// IsAppend returns true if the file was opened, or has since been set,
	// append-only.
	IsAppend() bool

	// SetAppend toggles append mode, backing fd_fdstat_set_flags.
	SetAppend(enable bool) syscall.Errno

	// Stat is similar to syscall.Fstat, backing fd_filestat_get.
	Stat() (Stat_t, syscall.Errno)

	// Read attempts to read all bytes in the file into buf, returning the
	// count read even on error. Unlike io.Reader, io.EOF is never
	// returned; a short or zero count signals end of file.
	Read(buf []byte) (n int, errno syscall.Errno)

	// Pread is like Read, starting at offset off and not advancing the
	// file's position, backing fd_pread.
	Pread(buf []byte, off int64) (n int, errno syscall.Errno)

	// Seek repositions the next Read/Write offset, backing fd_seek.
	Seek(offset int64, whence int) (newOffset int64, errno syscall.Errno)

	// Readdir returns a resumable directory stream, backing fd_readdir.
	// It is stateful: subsequent calls against the same File continue
	// from the prior position. Calling Readdir on a non-directory
	// returns ENOTDIR.
	Readdir() (Readdir, syscall.Errno)

	// Write attempts to write all bytes in buf to the file, returning the
	// count written even on error, backing fd_write.
	Write(buf []byte) (n int, errno syscall.Errno)

	// Pwrite is like Write, starting at offset off, backing fd_pwrite.
	Pwrite(buf []byte, off int64) (n int, errno syscall.Errno)

	// Truncate sets the file's length, backing fd_filestat_set_size.
	Truncate(size int64) syscall.Errno

	// Sync synchronizes changes to the file, backing fd_sync. This
	// returns success instead of ENOSYS when unimplemented.
	Sync() syscall.Errno

	// Datasync synchronizes the file's data, backing fd_datasync. This
	// returns success instead of ENOSYS when unimplemented.
	Datasync() syscall.Errno

	// Utimens sets the file's access and modification times at
	// nanosecond precision, backing fd_filestat_set_times. A nil atim or
	// mtim component leaves that timestamp unchanged; Fstflags in the
	// caller decides which of the two pointers are populated.
	Utimens(atim, mtim *int64) syscall.Errno

	// Close closes the underlying file, backing fd_close. A zero errno
	// is returned if already closed or unimplemented.
	Close() syscall.Errno
}

// UnimplementedFile is embedded by File implementations to default every
// unimplemented method to ENOSYS (or success, where preview1 tolerates a
// no-op), so new methods added here don't break existing adapters.
type UnimplementedFile struct{}

func (UnimplementedFile) Dev() (uint64, syscall.Errno)  { return 0, 0 }
func (UnimplementedFile) Ino() (uint64, syscall.Errno)  { return 0, 0 }
func (UnimplementedFile) IsDir() (bool, syscall.Errno)  { return false, 0 }
func (UnimplementedFile) IsNonblock() bool              { return false }
func (UnimplementedFile) SetNonblock(bool) syscall.Errno {
	return syscall.ENOSYS
}
func (UnimplementedFile) IsAppend() bool { return false }
func (UnimplementedFile) SetAppend(bool) syscall.Errno {
	return syscall.ENOSYS
}
func (UnimplementedFile) Stat() (Stat_t, syscall.Errno) {
	return Stat_t{}, syscall.ENOSYS
}
func (UnimplementedFile) Read([]byte) (int, syscall.Errno)  { return 0, syscall.ENOSYS }
func (UnimplementedFile) Pread([]byte, int64) (int, syscall.Errno) {
	return 0, syscall.ENOSYS
}
func (UnimplementedFile) Seek(int64, int) (int64, syscall.Errno) {
	return 0, syscall.ENOSYS
}
func (UnimplementedFile) Readdir() (Readdir, syscall.Errno) {
	return nil, syscall.ENOTDIR
}
func (UnimplementedFile) Write([]byte) (int, syscall.Errno) { return 0, syscall.ENOSYS }
func (UnimplementedFile) Pwrite([]byte, int64) (int, syscall.Errno) {
	return 0, syscall.ENOSYS
}
func (UnimplementedFile) Truncate(int64) syscall.Errno { return syscall.ENOSYS }
func (UnimplementedFile) Sync() syscall.Errno          { return 0 }
func (UnimplementedFile) Datasync() syscall.Errno      { return 0 }
func (UnimplementedFile) Utimens(*int64, *int64) syscall.Errno {
	return syscall.ENOSYS
}
func (UnimplementedFile) Close() syscall.Errno { return 0 }

var _ File = UnimplementedFile{}

// FS is a writeable fs.FS bridge backed by syscall functions, scoped to a
// single preopen's subtree (path arguments are always relative to it).
//
// Implementations should embed UnimplementedFS for forward compatibility.
type FS interface {
	// OpenFile is similar to os.OpenFile, except the path is relative to
	// this filesystem, backing path_open.
	OpenFile(path string, flag int, perm fs.FileMode) (File, syscall.Errno)

	// Mkdir is similar to os.Mkdir, backing path_create_directory.
	Mkdir(path string, perm fs.FileMode) syscall.Errno

	// Rename is similar to syscall.Rename, backing path_rename.
	Rename(from, to string) syscall.Errno

	// Rmdir is similar to syscall.Rmdir, backing path_remove_directory.
	Rmdir(path string) syscall.Errno

	// Unlink is similar to syscall.Unlink, backing path_unlink_file.
	Unlink(path string) syscall.Errno

	// Symlink creates newname as a symbolic link to oldname, backing
	// path_symlink. oldname is stored verbatim and resolved lazily.
	Symlink(oldname, newname string) syscall.Errno

	// Link creates newname as a hard link to oldname, backing path_link.
	Link(oldname, newname string) syscall.Errno

	// Readlink reads the target of the symbolic link at path, backing
	// path_readlink.
	Readlink(path string) (string, syscall.Errno)

	// Stat is similar to syscall.Stat, following a trailing symlink,
	// backing path_filestat_get with LOOKUP_SYMLINK_FOLLOW set.
	Stat(path string) (Stat_t, syscall.Errno)

	// Lstat is similar to syscall.Lstat, not following a trailing
	// symlink, backing path_filestat_get without LOOKUP_SYMLINK_FOLLOW.
	Lstat(path string) (Stat_t, syscall.Errno)

	// Utimes is similar to syscall.UtimesNano, backing
	// path_filestat_set_times. A nil atim or mtim leaves that timestamp
	// unchanged.
	Utimes(path string, atim, mtim *int64, symlinkFollow bool) syscall.Errno
}

// UnimplementedFS is embedded by FS implementations to default every
// unimplemented method to ENOSYS.
type UnimplementedFS struct{}

func (UnimplementedFS) OpenFile(string, int, fs.FileMode) (File, syscall.Errno) {
	return nil, syscall.ENOSYS
}
func (UnimplementedFS) Mkdir(string, fs.FileMode) syscall.Errno { return syscall.ENOSYS }
func (UnimplementedFS) Rename(string, string) syscall.Errno    { return syscall.ENOSYS }
func (UnimplementedFS) Rmdir(string) syscall.Errno             { return syscall.ENOSYS }
func (UnimplementedFS) Unlink(string) syscall.Errno            { return syscall.ENOSYS }
func (UnimplementedFS) Symlink(string, string) syscall.Errno    { return syscall.ENOSYS }
func (UnimplementedFS) Link(string, string) syscall.Errno       { return syscall.ENOSYS }
func (UnimplementedFS) Readlink(string) (string, syscall.Errno) {
	return "", syscall.ENOSYS
}
func (UnimplementedFS) Stat(string) (Stat_t, syscall.Errno) {
	return Stat_t{}, syscall.ENOSYS
}
func (UnimplementedFS) Lstat(string) (Stat_t, syscall.Errno) {
	return Stat_t{}, syscall.ENOSYS
}
func (UnimplementedFS) Utimes(string, *int64, *int64, bool) syscall.Errno {
	return syscall.ENOSYS
}

var _ FS = UnimplementedFS{}
