package fsapi

import "io/fs"

// Filetype is the preview1 file type tag, shared by fdstat, filestat and
// dirent.
type Filetype uint8

const (
	FiletypeUnknown Filetype = iota
	FiletypeBlockDevice
	FiletypeCharacterDevice
	FiletypeDirectory
	FiletypeRegularFile
	FiletypeSocketDgram
	FiletypeSocketStream
	FiletypeSymbolicLink
)

// FromFileMode maps a Go fs.FileMode to the preview1 Filetype.
func FromFileMode(mode fs.FileMode) Filetype {
	switch mode & fs.ModeType {
	case fs.ModeDir:
		return FiletypeDirectory
	case fs.ModeSymlink:
		return FiletypeSymbolicLink
	case fs.ModeDevice:
		return FiletypeBlockDevice
	case fs.ModeCharDevice, fs.ModeDevice | fs.ModeCharDevice:
		return FiletypeCharacterDevice
	case fs.ModeSocket:
		return FiletypeSocketStream
	case fs.ModeNamedPipe, fs.ModeIrregular:
		return FiletypeUnknown
	default:
		return FiletypeRegularFile
	}
}

// Fdflags are the preview1 fd_flags bits (append, dsync, nonblock, rsync,
// sync).
type Fdflags uint16

const (
	FD_APPEND Fdflags = 1 << iota
	FD_DSYNC
	FD_NONBLOCK
	FD_RSYNC
	FD_SYNC
)

// Oflags is path_open's wire-level open-mode flags, as decoded from the
// guest's oflags argument.
type Oflags uint16

const (
	OflagsCreat Oflags = 1 << iota
	OflagsDirectory
	OflagsExcl
	OflagsTrunc
)

// O_DIRECTORY is a plain int flag bit composed with syscall.O_RDONLY /
// O_WRONLY / O_RDWR / etc. into the single flag argument fsapi.FS.OpenFile
// takes, mirroring how os.OpenFile composes its own flag argument. It
// occupies a bit well above any syscall.O_* value so the two families never
// collide.
const O_DIRECTORY = 1 << 29

// LookupFlags controls symlink dereferencing of a path's final component
// (spec.md §4.2).
type LookupFlags uint32

const SymlinkFollow LookupFlags = 1

// Fstflags controls which of atim/mtim a *_filestat_set_times call updates.
type Fstflags uint16

const (
	FstAtim Fstflags = 1 << iota
	FstAtimNow
	FstMtim
	FstMtimNow
)

// Whence mirrors preview1's whence enum for fd_seek.
type Whence uint8

const (
	WhenceSet Whence = iota
	WhenceCur
	WhenceEnd
)

// Advice is the fd_advise hint; this implementation accepts and ignores it.
type Advice uint8

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
	AdviceDontNeed
	AdviceNoReuse
)
