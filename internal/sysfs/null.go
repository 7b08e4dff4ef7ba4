package sysfs

import (
	"syscall"

	"github.com/wasip1fs/hostfs/internal/fsapi"
)

// NewNullFile returns a /dev/null-style fsapi.File: reads always return 0
// bytes (EOF), writes discard every byte and report full success, matching
// spec.md §8's "Opening /dev/null succeeds regardless of host filesystem"
// boundary behavior.
func NewNullFile() fsapi.File {
	return &nullFile{}
}

type nullFile struct {
	fsapi.UnimplementedFile
}

func (*nullFile) Dev() (uint64, syscall.Errno) { return 0, 0 }
func (*nullFile) Ino() (uint64, syscall.Errno) { return 0, 0 }
func (*nullFile) IsDir() (bool, syscall.Errno) { return false, 0 }

func (*nullFile) Stat() (fsapi.Stat_t, syscall.Errno) {
	return fsapi.Stat_t{Nlink: 1}, 0
}

func (*nullFile) Read([]byte) (int, syscall.Errno)         { return 0, 0 }
func (*nullFile) Pread([]byte, int64) (int, syscall.Errno)  { return 0, 0 }
func (*nullFile) Write(buf []byte) (int, syscall.Errno)     { return len(buf), 0 }
func (*nullFile) Pwrite(buf []byte, _ int64) (int, syscall.Errno) {
	return len(buf), 0
}
func (*nullFile) Seek(int64, int) (int64, syscall.Errno) { return 0, 0 }
func (*nullFile) Truncate(int64) syscall.Errno           { return 0 }
func (*nullFile) Sync() syscall.Errno                    { return 0 }
func (*nullFile) Datasync() syscall.Errno                { return 0 }
func (*nullFile) Close() syscall.Errno                    { return 0 }
