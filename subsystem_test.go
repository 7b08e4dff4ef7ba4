package hostfs

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/fsctx"
	"github.com/wasip1fs/hostfs/internal/rights"
	"github.com/wasip1fs/hostfs/wasip1"
)

// guestMemory is a fixed-size, bounds-checked implementation of abi.Memory
// backed by a plain byte slice, standing in for the linear memory a real
// wasm runtime would expose to the Module's ABI-marshalling layer.
type guestMemory []byte

func (m guestMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m)) {
		return nil, false
	}
	return m[offset : offset+byteCount], true
}

func (m guestMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m)) {
		return false
	}
	copy(m[offset:], v)
	return true
}

// findFunc looks up one registered HostFunc by its preview1 name.
func findFunc(t *testing.T, funcs []wasip1.HostFunc, name string) wasip1.HostFunc {
	t.Helper()
	for _, f := range funcs {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no host function named %q", name)
	return wasip1.HostFunc{}
}

func newTestSubsystem(t *testing.T, cfg Config) *Subsystem {
	t.Helper()
	if cfg.HostRootDirectory == "" {
		cfg.HostRootDirectory = t.TempDir()
	}
	sub, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// TestSubsystem_WriteThenReopenAndRead is spec.md §8 scenario 1: preopen a
// sandbox as "/", create+write a file through path_open, close it, reopen it
// and read the bytes back.
func TestSubsystem_WriteThenReopenAndRead(t *testing.T) {
	sandbox := t.TempDir()
	sub := newTestSubsystem(t, Config{
		HostRootDirectory:    sandbox,
		PreopenedDirectories: []Preopen{{HostPath: sandbox, GuestPath: "/", Access: rights.ReadWrite}},
		AllowFileCreation:    true,
	})

	fd, errno := sub.API.PathOpen(RootFD, fsapi.SymlinkFollow, "hello.txt",
		fsapi.OflagsCreat|fsapi.OflagsTrunc, rights.FD_WRITE|rights.FD_READ, 0, 0)
	require.Zero(t, errno)

	n, errno := sub.API.FdWrite(fd, []byte("hi"))
	require.Zero(t, errno)
	require.Equal(t, uint32(2), n)
	require.Zero(t, sub.API.FdClose(fd))

	fd2, errno := sub.API.PathOpen(RootFD, fsapi.SymlinkFollow, "hello.txt", 0, rights.FD_READ, 0, 0)
	require.Zero(t, errno)
	buf, errno := sub.API.FdRead(fd2, 2)
	require.Zero(t, errno)
	require.Equal(t, "hi", string(buf))
}

// TestSubsystem_PathEscapeRejected is spec.md §8 scenario 2.
func TestSubsystem_PathEscapeRejected(t *testing.T) {
	sandbox := t.TempDir()
	sub := newTestSubsystem(t, Config{
		HostRootDirectory:    sandbox,
		PreopenedDirectories: []Preopen{{HostPath: sandbox, GuestPath: "/", Access: rights.ReadWrite}},
	})

	_, errno := sub.API.PathOpen(RootFD, fsapi.SymlinkFollow, "../../etc/passwd", 0, rights.FD_READ, 0, 0)
	require.Equal(t, syscall.Errno(512), errno, "ENOTCAPABLE sentinel expected for a path escape")
}

// TestSubsystem_FdFdstatSetRights_MonotonicNarrowing is spec.md §8 scenario 3.
func TestSubsystem_FdFdstatSetRights_MonotonicNarrowing(t *testing.T) {
	sandbox := t.TempDir()
	sub := newTestSubsystem(t, Config{
		HostRootDirectory:    sandbox,
		PreopenedDirectories: []Preopen{{HostPath: sandbox, GuestPath: "/", Access: rights.ReadWrite}},
		AllowFileCreation:    true,
	})

	fd, errno := sub.API.PathOpen(RootFD, fsapi.SymlinkFollow, "f.txt", fsapi.OflagsCreat,
		rights.FD_READ|rights.FD_WRITE, 0, 0)
	require.Zero(t, errno)

	require.Zero(t, sub.API.FdFdstatSetRights(fd, rights.FD_READ, 0))
	errno = sub.API.FdFdstatSetRights(fd, rights.FD_READ|rights.FD_WRITE, 0)
	require.Equal(t, syscall.Errno(512), errno, "widening rights back must be rejected")
}

// TestSubsystem_WritingToStdinNotCapable is spec.md §8's boundary behavior:
// writing to stdin returns ENOTCAPABLE (lacks FD_WRITE).
func TestSubsystem_WritingToStdinNotCapable(t *testing.T) {
	sub := newTestSubsystem(t, Config{})
	_, errno := sub.API.FdWrite(fsctx.FdStdin, []byte("x"))
	require.Equal(t, syscall.Errno(512), errno)
}

// TestSubsystem_DisallowDeletion is spec.md §8 scenario 6.
func TestSubsystem_DisallowDeletion(t *testing.T) {
	sandbox := t.TempDir()
	sub := newTestSubsystem(t, Config{
		HostRootDirectory:    sandbox,
		PreopenedDirectories: []Preopen{{HostPath: sandbox, GuestPath: "/", Access: rights.ReadWrite}},
		AllowFileCreation:    true,
		AllowFileDeletion:    false,
	})

	fd, errno := sub.API.PathOpen(RootFD, fsapi.SymlinkFollow, "f.txt", fsapi.OflagsCreat,
		rights.FD_READ|rights.FD_WRITE, 0, 0)
	require.Zero(t, errno)
	require.Zero(t, sub.API.FdClose(fd))

	errno = sub.API.PathUnlinkFile(RootFD, "f.txt")
	require.Equal(t, syscall.Errno(512), errno)
}

// TestSubsystem_DevNullAlwaysSucceeds is spec.md §8's boundary behavior for
// /dev/null: reads return 0 bytes and writes discard, regardless of host fs.
func TestSubsystem_DevNullAlwaysSucceeds(t *testing.T) {
	sub := newTestSubsystem(t, Config{})

	fd, ok := findDevNull(sub)
	require.True(t, ok)

	n, errno := sub.API.FdWrite(fd, []byte("discarded"))
	require.Zero(t, errno)
	require.Equal(t, uint32(9), n)

	buf, errno := sub.API.FdRead(fd, 16)
	require.Zero(t, errno)
	require.Empty(t, buf)
}

func findDevNull(sub *Subsystem) (int32, bool) {
	var fd int32
	var found bool
	for i := int32(0); i < 16; i++ {
		if _, errno := sub.API.FdFdstatGet(i); errno == 0 {
			if fe, ok := sub.fs.LookupFile(i); ok && fe.Name == "/dev/null" {
				fd, found = i, true
				break
			}
		}
	}
	return fd, found
}

// TestSubsystem_BadFDBeforeAnyPreopen checks that, with no preopens
// configured, the first unbound id returns EBADF. That id is FdPreopen+1:
// stdio holds 0-2 and the built-in /dev/null binding takes FdPreopen (3).
func TestSubsystem_BadFDBeforeAnyPreopen(t *testing.T) {
	sub := newTestSubsystem(t, Config{})
	_, errno := sub.API.FdFdstatGet(fsctx.FdPreopen + 1)
	require.Equal(t, syscall.EBADF, errno)
}

// TestModule_PathOpenWriteReadThroughABI drives the same scenario as
// TestSubsystem_WriteThenReopenAndRead, but through the Module's
// ABI-marshalling layer against a fake guest memory buffer, exercising the
// full spec.md §4.4 data flow: Host Function Surface -> Descriptor Table /
// Rights Algebra / Path Mapper -> Host I/O Adapter -> ABI Codec.
func TestModule_PathOpenWriteReadThroughABI(t *testing.T) {
	sandbox := t.TempDir()
	sub := newTestSubsystem(t, Config{
		HostRootDirectory:    sandbox,
		PreopenedDirectories: []Preopen{{HostPath: sandbox, GuestPath: "/", Access: rights.ReadWrite}},
		AllowFileCreation:    true,
	})
	funcs := sub.Module.Functions()
	mem := make(guestMemory, 256)

	const pathPtr, pathLen = 0, 13 // "hello-abi.txt"
	copy(mem[pathPtr:], "hello-abi.txt")
	const fdOutPtr = 64

	pathOpen := findFunc(t, funcs, "path_open")
	res := pathOpen.Func(mem, []uint64{
		uint64(RootFD), uint64(fsapi.SymlinkFollow), pathPtr, pathLen,
		uint64(fsapi.OflagsCreat | fsapi.OflagsTrunc),
		uint64(rights.FD_WRITE | rights.FD_READ), 0, 0, fdOutPtr,
	})
	require.Equal(t, uint64(wasierrnoSuccess), res[0])
	fdBuf, _ := mem.Read(fdOutPtr, 4)
	fd := uint64(fdBuf[0]) | uint64(fdBuf[1])<<8 | uint64(fdBuf[2])<<16 | uint64(fdBuf[3])<<24

	const iovecPtr, dataPtr, dataLen = 80, 96, 2
	copy(mem[dataPtr:], "hi")
	mem.Write(iovecPtr, []byte{dataPtr, 0, 0, 0, dataLen, 0, 0, 0})
	const writtenPtr = 104

	fdWrite := findFunc(t, funcs, "fd_write")
	res = fdWrite.Func(mem, []uint64{fd, iovecPtr, 1, writtenPtr})
	require.Equal(t, uint64(wasierrnoSuccess), res[0])
	writtenBuf, _ := mem.Read(writtenPtr, 4)
	require.Equal(t, byte(2), writtenBuf[0])

	fdClose := findFunc(t, funcs, "fd_close")
	res = fdClose.Func(mem, []uint64{fd})
	require.Equal(t, uint64(wasierrnoSuccess), res[0])

	// Reopen the same path read-only and read the bytes back through
	// fd_read's iovec scatter path.
	res = pathOpen.Func(mem, []uint64{
		uint64(RootFD), uint64(fsapi.SymlinkFollow), pathPtr, pathLen,
		0, uint64(rights.FD_READ), 0, 0, fdOutPtr,
	})
	require.Equal(t, uint64(wasierrnoSuccess), res[0])
	fdBuf, _ = mem.Read(fdOutPtr, 4)
	fd = uint64(fdBuf[0]) | uint64(fdBuf[1])<<8 | uint64(fdBuf[2])<<16 | uint64(fdBuf[3])<<24

	const readBufPtr = 112
	mem.Write(iovecPtr, []byte{readBufPtr, 0, 0, 0, dataLen, 0, 0, 0})
	const readNPtr = 120

	fdRead := findFunc(t, funcs, "fd_read")
	res = fdRead.Func(mem, []uint64{fd, iovecPtr, 1, readNPtr})
	require.Equal(t, uint64(wasierrnoSuccess), res[0])
	readBuf, _ := mem.Read(readBufPtr, 2)
	require.Equal(t, "hi", string(readBuf))
}

const wasierrnoSuccess = 0
