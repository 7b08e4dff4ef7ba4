package sysfs

import (
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/pathmap"
)

// DirFS adapts a single preopen's guest subtree to fsapi.FS, translating
// every path argument through a pathmap.Mapper before touching the host
// filesystem, so every operation gets the same symlink-aware containment
// check regardless of entry point (spec.md §4.2, §4.4).
type DirFS struct {
	fsapi.UnimplementedFS

	mapper      *pathmap.Mapper
	guestPrefix string
}

// NewDirFS returns an fsapi.FS scoped to guestPrefix, resolving every path
// through mapper.
func NewDirFS(mapper *pathmap.Mapper, guestPrefix string) *DirFS {
	return &DirFS{mapper: mapper, guestPrefix: guestPrefix}
}

// resolve joins a path relative to this preopen with its guest prefix and
// maps it to a contained host path. follow controls whether the final
// component is dereferenced if it is a symlink (spec.md §4.2 LookupFlags).
func (d *DirFS) resolve(path string, follow bool) (string, syscall.Errno) {
	guestPath := d.guestPrefix
	if path != "" && path != "." {
		if guestPath == "/" {
			guestPath = "/" + path
		} else {
			guestPath = guestPath + "/" + path
		}
	}
	return d.mapper.MapToHost(guestPath, follow)
}

// OpenFile implements fsapi.FS.OpenFile.
func (d *DirFS) OpenFile(path string, flag int, perm fs.FileMode) (fsapi.File, syscall.Errno) {
	follow := flag&unix.O_NOFOLLOW == 0
	hostPath, errno := d.resolve(path, follow)
	if errno != 0 {
		return nil, errno
	}
	f, errno := openFile(hostPath, flag, perm)
	if errno != 0 {
		return nil, errno
	}
	return newOsFile(hostPath, flag, perm, f), 0
}

// Mkdir implements fsapi.FS.Mkdir.
func (d *DirFS) Mkdir(path string, perm fs.FileMode) syscall.Errno {
	hostPath, errno := d.resolve(path, false)
	if errno != 0 {
		return errno
	}
	return UnwrapOSError(os.Mkdir(hostPath, perm))
}

// Rename implements fsapi.FS.Rename.
func (d *DirFS) Rename(from, to string) syscall.Errno {
	hostFrom, errno := d.resolve(from, false)
	if errno != 0 {
		return errno
	}
	hostTo, errno := d.resolve(to, false)
	if errno != 0 {
		return errno
	}
	return UnwrapOSError(os.Rename(hostFrom, hostTo))
}

// Rmdir implements fsapi.FS.Rmdir.
func (d *DirFS) Rmdir(path string) syscall.Errno {
	hostPath, errno := d.resolve(path, false)
	if errno != 0 {
		return errno
	}
	return UnwrapOSError(unix.Rmdir(hostPath))
}

// Unlink implements fsapi.FS.Unlink.
func (d *DirFS) Unlink(path string) syscall.Errno {
	hostPath, errno := d.resolve(path, false)
	if errno != 0 {
		return errno
	}
	return UnwrapOSError(unix.Unlink(hostPath))
}

// Symlink implements fsapi.FS.Symlink. The target (oldname) is stored
// verbatim and only checked for containment when later resolved, per
// spec.md §4.4's "checked at resolution time, not at creation" rule.
func (d *DirFS) Symlink(oldname, newname string) syscall.Errno {
	hostNew, errno := d.resolve(newname, false)
	if errno != 0 {
		return errno
	}
	return UnwrapOSError(unix.Symlink(oldname, hostNew))
}

// Link implements fsapi.FS.Link.
func (d *DirFS) Link(oldname, newname string) syscall.Errno {
	hostOld, errno := d.resolve(oldname, true)
	if errno != 0 {
		return errno
	}
	hostNew, errno := d.resolve(newname, false)
	if errno != 0 {
		return errno
	}
	return UnwrapOSError(unix.Link(hostOld, hostNew))
}

// Readlink implements fsapi.FS.Readlink.
func (d *DirFS) Readlink(path string) (string, syscall.Errno) {
	hostPath, errno := d.resolve(path, false)
	if errno != 0 {
		return "", errno
	}
	buf := make([]byte, unix.PathMax)
	n, err := unix.Readlink(hostPath, buf)
	if err != nil {
		return "", UnwrapOSError(err)
	}
	return string(buf[:n]), 0
}

// Stat implements fsapi.FS.Stat (follows a trailing symlink).
func (d *DirFS) Stat(path string) (fsapi.Stat_t, syscall.Errno) {
	hostPath, errno := d.resolve(path, true)
	if errno != 0 {
		return fsapi.Stat_t{}, errno
	}
	var st unix.Stat_t
	if err := unix.Stat(hostPath, &st); err != nil {
		return fsapi.Stat_t{}, UnwrapOSError(err)
	}
	return statFromUnix(st), 0
}

// Lstat implements fsapi.FS.Lstat (does not follow a trailing symlink).
func (d *DirFS) Lstat(path string) (fsapi.Stat_t, syscall.Errno) {
	hostPath, errno := d.resolve(path, false)
	if errno != 0 {
		return fsapi.Stat_t{}, errno
	}
	var st unix.Stat_t
	if err := unix.Lstat(hostPath, &st); err != nil {
		return fsapi.Stat_t{}, UnwrapOSError(err)
	}
	return statFromUnix(st), 0
}

// Utimes implements fsapi.FS.Utimes.
func (d *DirFS) Utimes(path string, atim, mtim *int64, symlinkFollow bool) syscall.Errno {
	hostPath, errno := d.resolve(path, symlinkFollow)
	if errno != 0 {
		return errno
	}
	var flags int
	if !symlinkFollow {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	ts := [2]unix.Timespec{toTimespec(atim), toTimespec(mtim)}
	return UnwrapOSError(unix.UtimesNanoAt(unix.AT_FDCWD, hostPath, ts[:], flags))
}
