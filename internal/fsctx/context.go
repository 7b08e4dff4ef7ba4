// Package fsctx tracks the file descriptor table and directory-stream table
// backing a single guest's view of its preopened filesystems.
package fsctx

import (
	"io"
	"io/fs"
	"path"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/wasip1fs/hostfs/internal/descriptor"
	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/rights"
	"github.com/wasip1fs/hostfs/internal/sysfs"
	"github.com/wasip1fs/hostfs/internal/wasierrno"
)

const (
	// FdStdin, FdStdout and FdStderr are fixed by convention: wasi-libc
	// allocates file descriptors the POSIX way, lowest number first, and
	// expects 0/1/2 to already be taken by the standard streams.
	//   - https://github.com/WebAssembly/WASI/issues/122
	FdStdin int32 = iota
	FdStdout
	FdStderr
	// FdPreopen is the file descriptor of the first pre-opened directory.
	FdPreopen
)

// FileEntry maps a guest-visible name to an open file or directory.
type FileEntry struct {
	// Name is the guest path up to its preopen, or the preopen name
	// itself when IsPreopen. This can drift on rename.
	Name string

	// IsPreopen marks an entry inserted by Preopen, never renumbered away
	// from its slot.
	IsPreopen bool

	// FS is the filesystem backing this entry.
	FS fsapi.FS

	// File is always non-nil.
	File fsapi.File

	// Type is this descriptor's file type, cached at open time. remove and
	// Close use it to decide whether File.Close runs: only regular-file
	// descriptors close their backing stream, per spec.md §4.1.
	Type fsapi.Filetype

	// Base and Inheriting are this descriptor's current capability
	// rights, computed at open time by the rights package and narrowed
	// only by fd_fdstat_set_rights.
	Base, Inheriting rights.Rights

	// Fdflags mirrors the descriptor's current fd_flags (append,
	// nonblock, sync, dsync, rsync).
	Fdflags fsapi.Fdflags
}

// FSContext is a single guest instance's open file table. It is not
// goroutine-safe; callers serialize access to a given instance themselves,
// matching the single-threaded preview1 execution model.
type FSContext struct {
	openedFiles FileTable
	readdirs    ReaddirTable
}

// FileTable maps file descriptor numbers to open file entries.
type FileTable = descriptor.Table[int32, *FileEntry]

// ReaddirTable maps file descriptor numbers to their directory stream, when
// fd_readdir has been called at least once against that descriptor.
type ReaddirTable = descriptor.Table[int32, fsapi.Readdir]

// New creates an empty FSContext bounded by maxFDs live descriptors (0
// means descriptor.DefaultMax, spec.md §6's max_open_file_descriptors
// default). Preopens are added with Preopen.
func New(maxFDs int) *FSContext {
	c := &FSContext{}
	c.openedFiles.Max = maxFDs
	return c
}

// InitStdio installs stdin/stdout/stderr at fds 0-2 as fixed, non-preopen
// entries, each already carrying the read-only/write-only rights a stream
// can meaningfully support.
func (c *FSContext) InitStdio(stdin fsapi.File, stdout, stderr fsapi.File) {
	base, _ := rights.ComputeInitial(false, rights.ReadOnly, false, false)
	c.openedFiles.Insert(&FileEntry{Name: "/dev/stdin", File: stdin, Base: base, Type: fsapi.FiletypeCharacterDevice})
	base, _ = rights.ComputeInitial(false, rights.WriteOnly, false, false)
	c.openedFiles.Insert(&FileEntry{Name: "/dev/stdout", File: stdout, Base: base, Type: fsapi.FiletypeCharacterDevice})
	c.openedFiles.Insert(&FileEntry{Name: "/dev/stderr", File: stderr, Base: base, Type: fsapi.FiletypeCharacterDevice})
}

// Preopen registers a preopened directory at the smallest free descriptor
// not below FdPreopen (ids 0-2 stay reserved for stdio), computing its
// initial rights from access/allowCreate/allowDelete.
func (c *FSContext) Preopen(name string, fsys fsapi.FS, dir fsapi.File, access rights.AccessMode, allowCreate, allowDelete bool) (int32, syscall.Errno) {
	base, inheriting := rights.ComputeInitial(true, access, allowCreate, allowDelete)
	fe := &FileEntry{
		Name: name, IsPreopen: true, FS: fsys, File: dir,
		Base: base, Inheriting: inheriting, Type: fsapi.FiletypeDirectory,
	}
	fd := FdPreopen
	for {
		if _, taken := c.openedFiles.Lookup(fd); !taken {
			break
		}
		fd++
	}
	if !c.openedFiles.InsertAt(fe, fd) {
		return 0, syscall.ENFILE
	}
	logrus.WithFields(logrus.Fields{"fd": fd, "guest_path": name}).Debug("preopened directory")
	return fd, 0
}

// OpenFile opens path against fsys, inserts it into the table, and derives
// its rights from the parent's inheriting set per requestedBase/requestedInheriting.
// It returns ENOTCAPABLE, not a silently narrowed descriptor, if the request
// would need to widen beyond the parent's inheriting rights.
func (c *FSContext) OpenFile(parentInheriting rights.Rights, fsys fsapi.FS, guestPath string, flag int, perm fs.FileMode, requestedBase, requestedInheriting rights.Rights) (int32, syscall.Errno) {
	base, inheriting, ok := rights.DeriveChild(parentInheriting, requestedBase, requestedInheriting)
	if !ok {
		return 0, wasierrno.ErrNotCapable
	}
	f, errno := fsys.OpenFile(guestPath, flag, perm)
	if errno != 0 {
		return 0, errno
	}
	ftype := fsapi.FiletypeRegularFile
	if st, errno := f.Stat(); errno == 0 {
		ftype = fsapi.FromFileMode(st.Mode)
	}
	fe := &FileEntry{FS: fsys, File: f, Base: base, Inheriting: inheriting, Type: ftype}
	if guestPath == "/" || guestPath == "." {
		fe.Name = ""
	} else {
		fe.Name = guestPath
	}
	fd, ok := c.openedFiles.Insert(fe)
	if !ok {
		_ = f.Close()
		return 0, syscall.ENFILE
	}
	return fd, 0
}

// BindFile inserts an already-open, non-preopen file at the next free
// descriptor, backing spec.md §3's "descriptors are created by path_open,
// BindFile, or BindDir" lifecycle note. Used for special devices such as
// /dev/null that have no host path to open.
func (c *FSContext) BindFile(name string, f fsapi.File, ftype fsapi.Filetype, base, inheriting rights.Rights) (int32, syscall.Errno) {
	fe := &FileEntry{Name: name, File: f, Type: ftype, Base: base, Inheriting: inheriting}
	fd, ok := c.openedFiles.Insert(fe)
	if !ok {
		return 0, syscall.ENFILE
	}
	return fd, 0
}

// BindDir is BindFile for a directory-typed binding: fsys is attached so
// path-relative operations against the new descriptor resolve through it.
func (c *FSContext) BindDir(name string, fsys fsapi.FS, dir fsapi.File, base, inheriting rights.Rights) (int32, syscall.Errno) {
	fe := &FileEntry{Name: name, FS: fsys, File: dir, Type: fsapi.FiletypeDirectory, Base: base, Inheriting: inheriting}
	fd, ok := c.openedFiles.Insert(fe)
	if !ok {
		return 0, syscall.ENFILE
	}
	return fd, 0
}

// LookupFile returns a file if it is in the table.
func (c *FSContext) LookupFile(fd int32) (*FileEntry, bool) {
	return c.openedFiles.Lookup(fd)
}

// LookupFD returns the entry at fd only if its current Base rights grant
// want, else ENOTCAPABLE, backing the rights-check-before-effect pattern
// used by every wasip1 fd_* function.
func (c *FSContext) LookupFD(fd int32, want rights.Rights) (*FileEntry, syscall.Errno) {
	fe, ok := c.openedFiles.Lookup(fd)
	if !ok {
		return nil, syscall.EBADF
	}
	if !fe.Base.Has(want) {
		return nil, wasierrno.ErrNotCapable
	}
	return fe, 0
}

// LookupReaddir returns the directory stream for fd, creating and caching
// one (prefixed with synthetic "." and ".." entries) on first call.
func (c *FSContext) LookupReaddir(fd int32, f *FileEntry) (fsapi.Readdir, syscall.Errno) {
	if item, _ := c.readdirs.Lookup(fd); item != nil {
		return item, 0
	}
	item, errno := f.File.Readdir()
	if errno != 0 {
		return nil, errno
	}
	dirents, errno := c.dotDirents(f)
	if errno != 0 {
		return nil, errno
	}
	merged := sysfs.NewConcatReaddir(sysfs.NewReaddirFromSlice(dirents), item)
	if !c.readdirs.InsertAt(merged, fd) {
		return nil, syscall.EINVAL
	}
	return merged, 0
}

// dotDirents synthesizes "." and ".." for a directory stream; wasi-testsuite
// validates their inode numbers, so it is not enough to special-case them in
// the ABI codec.
func (c *FSContext) dotDirents(f *FileEntry) ([]fsapi.Dirent, syscall.Errno) {
	if isDir, errno := f.File.IsDir(); errno != 0 {
		return nil, errno
	} else if !isDir {
		return nil, syscall.ENOTDIR
	}
	dotIno, errno := f.File.Ino()
	if errno != 0 {
		return nil, errno
	}
	var dotDotIno uint64
	if !f.IsPreopen && f.Name != "." && f.Name != "" {
		if st, errno := f.FS.Stat(path.Dir(f.Name)); errno != 0 {
			return nil, errno
		} else {
			dotDotIno = st.Ino
		}
	}
	return []fsapi.Dirent{
		{Name: ".", Ino: dotIno, Type: fs.ModeDir},
		{Name: "..", Ino: dotDotIno, Type: fs.ModeDir},
	}, 0
}

// CloseReaddir drops the cached directory stream for fd, if any.
func (c *FSContext) CloseReaddir(fd int32) {
	c.readdirs.Delete(fd)
}

// Renumber assigns the file pointed to by from to to, backing fd_renumber.
func (c *FSContext) Renumber(from, to int32) syscall.Errno {
	fromFile, ok := c.openedFiles.Lookup(from)
	if !ok || to < 0 {
		return syscall.EBADF
	} else if fromFile.IsPreopen {
		return syscall.ENOTSUP
	}

	if toFile, ok := c.openedFiles.Lookup(to); ok {
		if toFile.IsPreopen {
			return syscall.ENOTSUP
		}
		if toFile.Type == fsapi.FiletypeRegularFile {
			_ = toFile.File.Close()
		}
		c.readdirs.Delete(to)
	}

	c.openedFiles.Delete(from)
	c.readdirs.Delete(from)
	if !c.openedFiles.InsertAt(fromFile, to) {
		return syscall.EBADF
	}
	return 0
}

// CloseFile removes fd from the table, backing fd_close. Only a
// regular-file descriptor's backing stream is actually closed; directory
// and special-device descriptors release just their table slot (spec.md
// §4.1's remove operation, §3's teardown lifecycle note).
func (c *FSContext) CloseFile(fd int32) syscall.Errno {
	f, ok := c.openedFiles.Lookup(fd)
	if !ok {
		return syscall.EBADF
	}
	c.openedFiles.Delete(fd)
	c.readdirs.Delete(fd)
	if f.Type != fsapi.FiletypeRegularFile {
		return 0
	}
	errno := f.File.Close()
	if errno != 0 {
		logrus.WithFields(logrus.Fields{"fd": fd, "errno": errno}).Debug("close failed")
	}
	return errno
}

// Close implements io.Closer, tearing down every remaining regular-file
// descriptor at teardown; directories and special devices only drop their
// table slot (spec.md §3, §4.1).
func (c *FSContext) Close() (err error) {
	c.openedFiles.Range(func(fd int32, entry *FileEntry) bool {
		if entry.Type != fsapi.FiletypeRegularFile {
			return true
		}
		if errno := entry.File.Close(); errno != 0 {
			err = errno
		}
		return true
	})
	c.openedFiles = FileTable{}
	c.readdirs = ReaddirTable{}
	return
}

var _ io.Closer = (*FSContext)(nil)
