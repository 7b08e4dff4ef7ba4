package abi

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/rights"
)

// bufMemory is a fixed-size, bounds-checked Memory backed by a plain byte
// slice, standing in for the guest linear memory a real wasm runtime would
// expose (spec.md §6 "a way to read/write guest linear memory ... with
// bounds check").
type bufMemory []byte

func (m bufMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m)) {
		return nil, false
	}
	return m[offset : offset+byteCount], true
}

func (m bufMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m)) {
		return false
	}
	copy(m[offset:], v)
	return true
}

func TestIovec_RoundTrip(t *testing.T) {
	mem := make(bufMemory, 64)
	want := Iovec{Ptr: 16, Len: 4}
	require.True(t, mem.Write(0, []byte{16, 0, 0, 0, 4, 0, 0, 0}))

	got, errno := ReadIovec(mem, 0)
	require.Zero(t, errno)
	require.Equal(t, want, got)
}

func TestReadIovecs(t *testing.T) {
	mem := make(bufMemory, 64)
	mem.Write(0, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0})

	got, errno := ReadIovecs(mem, 0, 2)
	require.Zero(t, errno)
	require.Equal(t, []Iovec{{Ptr: 1, Len: 2}, {Ptr: 3, Len: 4}}, got)
}

func TestReadIovec_OutOfBounds(t *testing.T) {
	mem := make(bufMemory, 4)
	_, errno := ReadIovec(mem, 0)
	require.Equal(t, syscall.EFAULT, errno)
}

func TestFdstat_RoundTrip(t *testing.T) {
	mem := make(bufMemory, FdstatSize)
	want := Fdstat{
		Filetype:         fsapi.FiletypeRegularFile,
		Fdflags:          fsapi.FD_APPEND,
		RightsBase:       rights.FD_READ | rights.FD_WRITE,
		RightsInheriting: rights.FD_SEEK,
	}
	require.Zero(t, WriteFdstat(mem, 0, want))

	got, errno := ReadFdstat(mem, 0)
	require.Zero(t, errno)
	require.Equal(t, want, got)
}

func TestFdstat_WriteOutOfBounds(t *testing.T) {
	mem := make(bufMemory, FdstatSize-1)
	errno := WriteFdstat(mem, 0, Fdstat{})
	require.Equal(t, syscall.EFAULT, errno)
}

func TestFilestat_RoundTrip(t *testing.T) {
	mem := make(bufMemory, FilestatSize)
	want := Filestat{
		Dev: 7, Ino: 42, Filetype: fsapi.FiletypeDirectory,
		Nlink: 1, Size: 1024, Atim: 100, Mtim: 200, Ctim: 300,
	}
	require.Zero(t, WriteFilestat(mem, 0, want))

	got, errno := ReadFilestat(mem, 0)
	require.Zero(t, errno)
	require.Equal(t, want, got)
}

func TestFilestatFromStat_t_DefaultsNlinkToOne(t *testing.T) {
	fs := FilestatFromStat_t(fsapi.Stat_t{Nlink: 0})
	require.Equal(t, uint64(1), fs.Nlink)
}

func TestWritePrestatDir(t *testing.T) {
	mem := make(bufMemory, PrestatSize)
	require.Zero(t, WritePrestatDir(mem, 0, 9))
	buf, ok := mem.Read(0, PrestatSize)
	require.True(t, ok)
	require.Equal(t, byte(0), buf[0])
	require.Equal(t, []byte{9, 0, 0, 0}, buf[4:8])
}

func TestDirent_RoundTrip(t *testing.T) {
	mem := make(bufMemory, DirentSize)
	want := Dirent{Next: 1, Ino: 2, Namlen: 5, Type: fsapi.FiletypeDirectory}
	var buf [DirentSize]byte
	PutDirent(buf[:], want)
	require.True(t, mem.Write(0, buf[:]))

	got, errno := ReadDirent(mem, 0)
	require.Zero(t, errno)
	require.Equal(t, want, got)
}

func TestWriteUint32AndUint64(t *testing.T) {
	mem := make(bufMemory, 12)
	require.Zero(t, WriteUint32(mem, 0, 0xdeadbeef))
	buf, _ := mem.Read(0, 4)
	require.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, buf)

	require.Zero(t, WriteUint64(mem, 4, 0x0102030405060708))
	buf, _ = mem.Read(4, 8)
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, buf)
}

func TestWriteUint32_OutOfBounds(t *testing.T) {
	mem := make(bufMemory, 2)
	require.Equal(t, syscall.EFAULT, WriteUint32(mem, 0, 1))
}

func TestReadString(t *testing.T) {
	mem := make(bufMemory, 16)
	mem.Write(0, []byte("hello.txt"))
	got, errno := ReadString(mem, 0, 5)
	require.Zero(t, errno)
	require.Equal(t, "hello", got)
}

func TestReadString_OutOfBounds(t *testing.T) {
	mem := make(bufMemory, 2)
	_, errno := ReadString(mem, 0, 16)
	require.Equal(t, syscall.EFAULT, errno)
}

func TestWriteBytes_Empty(t *testing.T) {
	mem := make(bufMemory, 0)
	require.Zero(t, WriteBytes(mem, 0, nil))
}

func TestWriteBytes_OutOfBounds(t *testing.T) {
	mem := make(bufMemory, 2)
	require.Equal(t, syscall.EFAULT, WriteBytes(mem, 0, []byte("abc")))
}
