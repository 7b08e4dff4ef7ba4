package fsapi

import (
	"io/fs"
	"syscall"
)

// Stat_t is the subset of POSIX struct stat the preview1 filestat carries.
// Mode carries the Go fs.FileMode, including its type bits; ABI marshalling
// narrows that down to a Filetype at the wire boundary.
type Stat_t struct {
	Dev   uint64
	Ino   uint64
	Mode  fs.FileMode
	Nlink uint64
	Size  int64
	Atim  int64 // unix nanoseconds
	Mtim  int64 // unix nanoseconds
	Ctim  int64 // unix nanoseconds
}

// Dirent is one entry of a directory stream, as surfaced by fd_readdir.
type Dirent struct {
	// Name is the base file name, without a path separator.
	Name string
	// Ino is zero when unknown; wasi-testsuite only validates "." and "..".
	Ino uint64
	// Type is the Go fs.FileMode type bits of the entry.
	Type fs.FileMode
}

// Readdir is a resumable, cookie-addressable directory stream as required
// by spec.md §4.4: cookie 0 means "from the start", and cookies returned by
// a prior call are opaque positions that must advance strictly.
type Readdir interface {
	// Reset rewinds the stream to its first entry.
	Reset() syscall.Errno

	// Rewind repositions the stream so that the next Advance/Peek lands at
	// the entry following the given cookie. Rewinding to 0 always resets,
	// even mid-stream, matching wasi-libc's rewinddir expectation.
	Rewind(cookie int64) syscall.Errno

	// Cookie returns the opaque position of the next entry.
	Cookie() uint64

	// Skip advances n entries without materializing them.
	Skip(n uint64)

	// Peek returns the current entry without advancing. Returns ENOENT
	// once the stream is exhausted.
	Peek() (*Dirent, syscall.Errno)

	// Advance moves to the next entry. Returns ENOENT once the stream is
	// exhausted.
	Advance() syscall.Errno
}
