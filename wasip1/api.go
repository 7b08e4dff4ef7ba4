// Package wasip1 implements the preview1 Host Function Surface (spec.md
// §4.6): typed Go methods carrying the actual business logic (API), and a
// thin ABI-marshalling registration layer (module.go) bridging them to
// guest linear memory. The split mirrors the teacher's own separation
// between a host function's Go logic and its wasm.HostFunc registration,
// without depending on any particular WebAssembly runtime.
package wasip1

import (
	"io"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/wasip1fs/hostfs/internal/abi"
	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/fsctx"
	"github.com/wasip1fs/hostfs/internal/rights"
	"github.com/wasip1fs/hostfs/internal/wasierrno"
)

// API implements every preview1 function named in spec.md §4.6 as an
// ordinary Go method operating on native types. It performs all four Host
// I/O Adapter steps from spec.md §4.4: descriptor lookup, rights check,
// path resolution (delegated to the descriptor's fsapi.FS), and host
// primitive invocation.
type API struct {
	fs  *fsctx.FSContext
	log *logrus.Logger
}

// NewAPI wraps fs. A nil logger falls back to logrus's standard logger.
func NewAPI(fs *fsctx.FSContext, log *logrus.Logger) *API {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{fs: fs, log: log}
}

// rejected logs a non-success errno at Debug level and returns it
// unchanged, giving every rejection path a single place to log from
// without touching the data-plane read/write calls (spec.md's AMBIENT
// STACK logging rule).
func (a *API) rejected(op string, fd int32, errno syscall.Errno) syscall.Errno {
	if errno != 0 {
		a.log.WithFields(logrus.Fields{"op": op, "fd": fd, "errno": errno}).Debug("rejected")
	}
	return errno
}

// partialErrno implements spec.md §7's partial-effect rule: a read/write
// that transferred at least one byte reports success; only a zero-byte
// transfer surfaces the underlying errno.
func partialErrno(n int, errno syscall.Errno) syscall.Errno {
	if n > 0 {
		return 0
	}
	return errno
}

// noSeekIsESPIPE maps the UnimplementedFile default of ENOSYS (an
// fsapi.File, e.g. a stdio stream, that never implemented Seek) to ESPIPE,
// matching real POSIX behavior for fd_seek/fd_tell against a pipe
// (spec.md §8 scenario 4).
func noSeekIsESPIPE(errno syscall.Errno) syscall.Errno {
	if errno == syscall.ENOSYS {
		return syscall.ESPIPE
	}
	return errno
}

// --- fd_* functions -------------------------------------------------------

// FdAdvise backs fd_advise: preview1 allows hosts to ignore the hint, so
// this only validates the descriptor and its rights.
func (a *API) FdAdvise(fd int32, _, _ int64, _ fsapi.Advice) syscall.Errno {
	_, errno := a.fs.LookupFD(fd, rights.FD_ADVISE)
	return a.rejected("fd_advise", fd, errno)
}

// FdAllocate backs fd_allocate: extends the file with zero bytes up to
// offset+length if it is currently shorter, emulated via Truncate
// (spec.md §4.4). Returns ENOTSUP if the descriptor doesn't support resize.
func (a *API) FdAllocate(fd int32, offset, length int64) syscall.Errno {
	fe, errno := a.fs.LookupFD(fd, rights.FD_ALLOCATE)
	if errno != 0 {
		return a.rejected("fd_allocate", fd, errno)
	}
	st, errno := fe.File.Stat()
	if errno != 0 {
		return errno
	}
	want := offset + length
	if want <= st.Size {
		return 0
	}
	if errno := fe.File.Truncate(want); errno != 0 {
		if errno == syscall.ENOSYS {
			return syscall.ENOTSUP
		}
		return errno
	}
	return 0
}

// FdClose backs fd_close, delegating to the Descriptor Table's remove.
func (a *API) FdClose(fd int32) syscall.Errno {
	return a.fs.CloseFile(fd)
}

// FdDatasync backs fd_datasync.
func (a *API) FdDatasync(fd int32) syscall.Errno {
	fe, errno := a.fs.LookupFD(fd, rights.FD_DATASYNC)
	if errno != 0 {
		return a.rejected("fd_datasync", fd, errno)
	}
	return fe.File.Datasync()
}

// FdFdstatGet backs fd_fdstat_get. No particular right gates it; any live
// descriptor may be queried.
func (a *API) FdFdstatGet(fd int32) (abi.Fdstat, syscall.Errno) {
	fe, ok := a.fs.LookupFile(fd)
	if !ok {
		return abi.Fdstat{}, a.rejected("fd_fdstat_get", fd, syscall.EBADF)
	}
	return abi.Fdstat{
		Filetype:         fe.Type,
		Fdflags:          fe.Fdflags,
		RightsBase:       fe.Base,
		RightsInheriting: fe.Inheriting,
	}, 0
}

// FdFdstatSetFlags backs fd_fdstat_set_flags.
func (a *API) FdFdstatSetFlags(fd int32, flags fsapi.Fdflags) syscall.Errno {
	fe, errno := a.fs.LookupFD(fd, rights.FDSTAT_SET_FLAGS)
	if errno != 0 {
		return a.rejected("fd_fdstat_set_flags", fd, errno)
	}
	if errno := fe.File.SetAppend(flags&fsapi.FD_APPEND != 0); errno != 0 && errno != syscall.ENOSYS {
		return errno
	}
	if errno := fe.File.SetNonblock(flags&fsapi.FD_NONBLOCK != 0); errno != 0 && errno != syscall.ENOSYS {
		return errno
	}
	fe.Fdflags = flags
	return 0
}

// FdFdstatSetRights backs fd_fdstat_set_rights: the new base/inheriting
// must each narrow the descriptor's current rights (spec.md §4.3).
func (a *API) FdFdstatSetRights(fd int32, base, inheriting rights.Rights) syscall.Errno {
	fe, ok := a.fs.LookupFile(fd)
	if !ok {
		return a.rejected("fd_fdstat_set_rights", fd, syscall.EBADF)
	}
	if !rights.NarrowSetRights(fe.Base, fe.Inheriting, base, inheriting) {
		return a.rejected("fd_fdstat_set_rights", fd, wasierrno.ErrNotCapable)
	}
	fe.Base, fe.Inheriting = base, inheriting
	return 0
}

// FdFilestatGet backs fd_filestat_get.
func (a *API) FdFilestatGet(fd int32) (abi.Filestat, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_FILESTAT_GET)
	if errno != 0 {
		return abi.Filestat{}, a.rejected("fd_filestat_get", fd, errno)
	}
	st, errno := fe.File.Stat()
	if errno != 0 {
		return abi.Filestat{}, errno
	}
	return abi.FilestatFromStat_t(st), 0
}

// FdFilestatSetSize backs fd_filestat_set_size.
func (a *API) FdFilestatSetSize(fd int32, size int64) syscall.Errno {
	fe, errno := a.fs.LookupFD(fd, rights.FD_FILESTAT_SET_SIZE)
	if errno != 0 {
		return a.rejected("fd_filestat_set_size", fd, errno)
	}
	if errno := fe.File.Truncate(size); errno != 0 {
		if errno == syscall.ENOSYS {
			return syscall.ENOTSUP
		}
		return errno
	}
	return 0
}

// FdFilestatSetTimes backs fd_filestat_set_times. A nil atim or mtim
// leaves that timestamp unchanged.
func (a *API) FdFilestatSetTimes(fd int32, atim, mtim *int64) syscall.Errno {
	fe, errno := a.fs.LookupFD(fd, rights.FD_FILESTAT_SET_TIMES)
	if errno != 0 {
		return a.rejected("fd_filestat_set_times", fd, errno)
	}
	return fe.File.Utimens(atim, mtim)
}

// FdPread backs fd_pread: reads into a length-byte buffer starting at off
// without moving the descriptor's offset.
func (a *API) FdPread(fd int32, length uint32, off int64) ([]byte, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_READ)
	if errno != 0 {
		return nil, a.rejected("fd_pread", fd, errno)
	}
	buf := make([]byte, length)
	n, errno := fe.File.Pread(buf, off)
	return buf[:n], partialErrno(n, errno)
}

// FdPrestatGet backs fd_prestat_get: only a preopen descriptor answers;
// any other valid or invalid fd returns EBADF (spec.md §8's id-3 boundary
// behavior, generalized to every non-preopen descriptor).
func (a *API) FdPrestatGet(fd int32) (guestPathLen uint32, errno syscall.Errno) {
	fe, ok := a.fs.LookupFile(fd)
	if !ok || !fe.IsPreopen {
		return 0, a.rejected("fd_prestat_get", fd, syscall.EBADF)
	}
	return uint32(len(fe.Name)), 0
}

// FdPrestatDirName backs fd_prestat_dir_name, returning ENAMETOOLONG if
// the preopen's guest path doesn't fit maxLen, matching the real preview1
// host function's length check ahead of the memory write.
func (a *API) FdPrestatDirName(fd int32, maxLen uint32) (string, syscall.Errno) {
	fe, ok := a.fs.LookupFile(fd)
	if !ok || !fe.IsPreopen {
		return "", a.rejected("fd_prestat_dir_name", fd, syscall.EBADF)
	}
	if uint32(len(fe.Name)) > maxLen {
		return "", syscall.ENAMETOOLONG
	}
	return fe.Name, 0
}

// FdPwrite backs fd_pwrite: writes buf starting at off without moving the
// descriptor's offset.
func (a *API) FdPwrite(fd int32, buf []byte, off int64) (uint32, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_WRITE)
	if errno != 0 {
		return 0, a.rejected("fd_pwrite", fd, errno)
	}
	n, errno := fe.File.Pwrite(buf, off)
	return uint32(n), partialErrno(n, errno)
}

// FdRead backs fd_read: reads into a length-byte buffer, advancing the
// descriptor's offset.
func (a *API) FdRead(fd int32, length uint32) ([]byte, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_READ)
	if errno != 0 {
		return nil, a.rejected("fd_read", fd, errno)
	}
	buf := make([]byte, length)
	n, errno := fe.File.Read(buf)
	return buf[:n], partialErrno(n, errno)
}

// DirEntry is one decoded directory entry, with the stream cursor's cookie
// value for resuming immediately after it.
type DirEntry struct {
	NextCookie uint64
	Ino        uint64
	Name       string
	Type       fsapi.Filetype
}

// FdReaddir backs fd_readdir: lists entries starting after cookie, packing
// as many whole or partial dirent records as fit in bufLen bytes. Per
// spec.md §4.4, a record that doesn't fully fit is still written partially,
// and the returned byte count equals bufLen in that case.
func (a *API) FdReaddir(fd int32, cookie uint64, bufLen uint32) ([]byte, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_READDIR)
	if errno != 0 {
		return nil, a.rejected("fd_readdir", fd, errno)
	}
	dirs, errno := a.fs.LookupReaddir(fd, fe)
	if errno != 0 {
		return nil, errno
	}
	if errno := dirs.Rewind(int64(cookie)); errno != 0 {
		return nil, errno
	}

	out := make([]byte, 0, bufLen)
	for uint32(len(out)) < bufLen {
		ent, errno := dirs.Peek()
		if errno == syscall.ENOENT {
			break
		} else if errno != 0 {
			return nil, errno
		}
		if errno := dirs.Advance(); errno != 0 && errno != syscall.ENOENT {
			return nil, errno
		}

		var header [abi.DirentSize]byte
		abi.PutDirent(header[:], abi.Dirent{
			Next:   dirs.Cookie(),
			Ino:    ent.Ino,
			Namlen: uint32(len(ent.Name)),
			Type:   fsapi.FromFileMode(ent.Type),
		})
		record := append(header[:], ent.Name...)

		remain := bufLen - uint32(len(out))
		if uint32(len(record)) <= remain {
			out = append(out, record...)
			continue
		}
		out = append(out, record[:remain]...)
		break
	}
	return out, 0
}

// FdRenumber backs fd_renumber, delegating to the Descriptor Table.
func (a *API) FdRenumber(from, to int32) syscall.Errno {
	return a.fs.Renumber(from, to)
}

// FdSeek backs fd_seek: whence values beyond WhenceEnd are rejected with
// EINVAL; a descriptor without real seek support (a pipe or stdio stream)
// reports ESPIPE.
func (a *API) FdSeek(fd int32, offset int64, whence fsapi.Whence) (uint64, syscall.Errno) {
	if whence > fsapi.WhenceEnd {
		return 0, syscall.EINVAL
	}
	fe, errno := a.fs.LookupFD(fd, rights.FD_SEEK)
	if errno != 0 {
		return 0, a.rejected("fd_seek", fd, errno)
	}
	newOffset, errno := fe.File.Seek(offset, int(whence))
	return uint64(newOffset), noSeekIsESPIPE(errno)
}

// FdSync backs fd_sync.
func (a *API) FdSync(fd int32) syscall.Errno {
	fe, errno := a.fs.LookupFD(fd, rights.FD_SYNC)
	if errno != 0 {
		return a.rejected("fd_sync", fd, errno)
	}
	return fe.File.Sync()
}

// FdTell backs fd_tell: the current offset, via a zero-length relative
// seek, mirroring what wasi-libc itself expects of a tell(2) emulation.
func (a *API) FdTell(fd int32) (uint64, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_TELL)
	if errno != 0 {
		return 0, a.rejected("fd_tell", fd, errno)
	}
	cur, errno := fe.File.Seek(0, io.SeekCurrent)
	return uint64(cur), noSeekIsESPIPE(errno)
}

// FdWrite backs fd_write: writes buf, advancing the descriptor's offset.
func (a *API) FdWrite(fd int32, buf []byte) (uint32, syscall.Errno) {
	fe, errno := a.fs.LookupFD(fd, rights.FD_WRITE)
	if errno != 0 {
		return 0, a.rejected("fd_write", fd, errno)
	}
	n, errno := fe.File.Write(buf)
	return uint32(n), partialErrno(n, errno)
}

// --- path_* functions ------------------------------------------------------

// dirFS returns the fsapi.FS backing dirFd after checking it grants want,
// the shared first three Host I/O Adapter steps every path_* function
// needs (spec.md §4.4).
func (a *API) dirFS(op string, dirFd int32, want rights.Rights) (*fsctx.FileEntry, syscall.Errno) {
	fe, errno := a.fs.LookupFD(dirFd, want)
	if errno != 0 {
		return nil, a.rejected(op, dirFd, errno)
	}
	if fe.FS == nil {
		return nil, a.rejected(op, dirFd, syscall.ENOTDIR)
	}
	return fe, 0
}

// oflagsToOpenFlag composes an os.OpenFile-style flag int from path_open's
// oflags, the narrowed base rights (to pick the access mode), and
// lookupFlags (symlink-follow on the final path component).
func oflagsToOpenFlag(oflags fsapi.Oflags, base rights.Rights, lookup fsapi.LookupFlags) int {
	var flag int
	switch canRead, canWrite := base.Has(rights.FD_READ), base.Has(rights.FD_WRITE); {
	case canRead && canWrite:
		flag = syscall.O_RDWR
	case canWrite:
		flag = syscall.O_WRONLY
	default:
		flag = syscall.O_RDONLY
	}
	if oflags&fsapi.OflagsCreat != 0 {
		flag |= syscall.O_CREAT
	}
	if oflags&fsapi.OflagsExcl != 0 {
		flag |= syscall.O_EXCL
	}
	if oflags&fsapi.OflagsTrunc != 0 {
		flag |= syscall.O_TRUNC
	}
	if oflags&fsapi.OflagsDirectory != 0 {
		flag |= fsapi.O_DIRECTORY
	}
	if lookup&fsapi.SymlinkFollow == 0 {
		flag |= unix.O_NOFOLLOW
	}
	return flag
}

// PathOpen backs path_open, spec.md §4.6's central composition: it resolves
// dirFd and rights, narrows the requested rights through the Rights
// Algebra, applies oflags, and allocates a new descriptor. No descriptor
// is created if any step fails.
func (a *API) PathOpen(dirFd int32, lookupFlags fsapi.LookupFlags, path string, oflags fsapi.Oflags, requestedBase, requestedInheriting rights.Rights, fdflags fsapi.Fdflags) (int32, syscall.Errno) {
	dir, errno := a.dirFS("path_open", dirFd, rights.PATH_OPEN)
	if errno != 0 {
		return 0, errno
	}

	flag := oflagsToOpenFlag(oflags, requestedBase, lookupFlags)
	fd, errno := a.fs.OpenFile(dir.Inheriting, dir.FS, path, flag, 0o644, requestedBase, requestedInheriting)
	if errno != 0 {
		return 0, a.rejected("path_open", dirFd, errno)
	}

	if entry, ok := a.fs.LookupFile(fd); ok {
		entry.Fdflags = fdflags
		if fdflags&fsapi.FD_APPEND != 0 {
			_ = entry.File.SetAppend(true)
		}
		if fdflags&fsapi.FD_NONBLOCK != 0 {
			_ = entry.File.SetNonblock(true)
		}
	}
	return fd, 0
}

// PathCreateDirectory backs path_create_directory.
func (a *API) PathCreateDirectory(dirFd int32, path string) syscall.Errno {
	dir, errno := a.dirFS("path_create_directory", dirFd, rights.PATH_CREATE_DIRECTORY)
	if errno != 0 {
		return errno
	}
	return dir.FS.Mkdir(path, 0o755)
}

// PathFilestatGet backs path_filestat_get.
func (a *API) PathFilestatGet(dirFd int32, lookupFlags fsapi.LookupFlags, path string) (abi.Filestat, syscall.Errno) {
	dir, errno := a.dirFS("path_filestat_get", dirFd, rights.PATH_FILESTAT_GET)
	if errno != 0 {
		return abi.Filestat{}, errno
	}
	var st fsapi.Stat_t
	if lookupFlags&fsapi.SymlinkFollow != 0 {
		st, errno = dir.FS.Stat(path)
	} else {
		st, errno = dir.FS.Lstat(path)
	}
	if errno != 0 {
		return abi.Filestat{}, errno
	}
	return abi.FilestatFromStat_t(st), 0
}

// PathFilestatSetTimes backs path_filestat_set_times.
func (a *API) PathFilestatSetTimes(dirFd int32, lookupFlags fsapi.LookupFlags, path string, atim, mtim *int64) syscall.Errno {
	dir, errno := a.dirFS("path_filestat_set_times", dirFd, rights.PATH_FILESTAT_SET_TIMES)
	if errno != 0 {
		return errno
	}
	return dir.FS.Utimes(path, atim, mtim, lookupFlags&fsapi.SymlinkFollow != 0)
}

// PathLink backs path_link. A hard link across two different preopens'
// filesystem instances isn't attempted; it returns EXDEV exactly as the
// kernel would for a cross-device link(2).
func (a *API) PathLink(oldDirFd int32, oldPath string, newDirFd int32, newPath string) syscall.Errno {
	oldDir, errno := a.dirFS("path_link", oldDirFd, rights.PATH_LINK_SOURCE)
	if errno != 0 {
		return errno
	}
	newDir, errno := a.dirFS("path_link", newDirFd, rights.PATH_LINK_TARGET)
	if errno != 0 {
		return errno
	}
	if oldDir.FS != newDir.FS {
		return syscall.EXDEV
	}
	return oldDir.FS.Link(oldPath, newPath)
}

// PathReadlink backs path_readlink. Like POSIX readlink(2), an
// undersized buffer truncates rather than erroring; the caller (the ABI
// marshalling layer) decides how many bytes of the result it can write.
func (a *API) PathReadlink(dirFd int32, path string) (string, syscall.Errno) {
	dir, errno := a.dirFS("path_readlink", dirFd, rights.PATH_READLINK)
	if errno != 0 {
		return "", errno
	}
	target, errno := dir.FS.Readlink(path)
	if errno == syscall.ENOSYS {
		return "", syscall.ENOTSUP
	}
	return target, errno
}

// PathRemoveDirectory backs path_remove_directory.
func (a *API) PathRemoveDirectory(dirFd int32, path string) syscall.Errno {
	dir, errno := a.dirFS("path_remove_directory", dirFd, rights.PATH_REMOVE_DIRECTORY)
	if errno != 0 {
		return errno
	}
	return dir.FS.Rmdir(path)
}

// PathRename backs path_rename: both paths are resolved against their own
// dirfd, and a rename across two different filesystem instances is
// rejected with EXDEV rather than silently copy-then-delete (spec.md
// §4.4's "only if both resolve to the same host filesystem").
func (a *API) PathRename(oldDirFd int32, oldPath string, newDirFd int32, newPath string) syscall.Errno {
	oldDir, errno := a.dirFS("path_rename", oldDirFd, rights.PATH_RENAME_SOURCE)
	if errno != 0 {
		return errno
	}
	newDir, errno := a.dirFS("path_rename", newDirFd, rights.PATH_RENAME_TARGET)
	if errno != 0 {
		return errno
	}
	if oldDir.FS != newDir.FS {
		return syscall.EXDEV
	}
	return oldDir.FS.Rename(oldPath, newPath)
}

// PathSymlink backs path_symlink. oldPath (the link target) is stored
// verbatim; its containment is re-checked only when later resolved.
func (a *API) PathSymlink(oldPath string, dirFd int32, newPath string) syscall.Errno {
	dir, errno := a.dirFS("path_symlink", dirFd, rights.PATH_SYMLINK)
	if errno != 0 {
		return errno
	}
	if errno := dir.FS.Symlink(oldPath, newPath); errno == syscall.ENOSYS {
		return syscall.ENOTSUP
	} else {
		return errno
	}
}

// PathUnlinkFile backs path_unlink_file.
func (a *API) PathUnlinkFile(dirFd int32, path string) syscall.Errno {
	dir, errno := a.dirFS("path_unlink_file", dirFd, rights.PATH_UNLINK_FILE)
	if errno != 0 {
		return errno
	}
	return dir.FS.Unlink(path)
}
