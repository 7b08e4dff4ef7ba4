package wasip1

import (
	"syscall"
	"time"

	"github.com/wasip1fs/hostfs/internal/abi"
	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/rights"
	"github.com/wasip1fs/hostfs/internal/wasierrno"
)

// nowUnixNano resolves an fst_flags *_NOW bit to the current time.
func nowUnixNano() int64 { return time.Now().UnixNano() }

// ValType is a minimal stand-in for a WebAssembly value type, just enough
// to describe a preview1 function's signature for a host runtime's
// registration step; this module never interprets the value itself.
type ValType byte

const (
	I32 ValType = iota
	I64
)

// HostFunc is one wasi_snapshot_preview1 function: its wire signature plus
// the Go closure that implements it. This is this module's stand-in for
// the WebAssembly runtime's own host-function registration record (the
// teacher's wasm.HostFunc), minus anything only a real engine needs
// (export names, a Code/GoFunc union) since no engine is wired here.
type HostFunc struct {
	Name        string
	ParamTypes  []ValType
	ResultTypes []ValType
	Func        func(mem abi.Memory, params []uint64) []uint64
}

// ModuleName is the preview1 import module name every HostFunc is
// registered under.
const ModuleName = "wasi_snapshot_preview1"

// Module bridges guest linear memory to an API, ABI-decoding each
// function's parameters, invoking the matching typed API method, and
// ABI-encoding its results, per spec.md §4.4's four-step adapter and §4.5's
// codec.
type Module struct {
	api *API
}

// NewModule wraps api.
func NewModule(api *API) *Module { return &Module{api: api} }

// errnoResult packs errno as this module's sole i32 result convention.
func errnoResult(errno syscall.Errno) []uint64 {
	return []uint64{uint64(wasierrno.FromSyscallErrno(errno))}
}

func p32(params []uint64, i int) uint32 { return uint32(params[i]) }
func p64(params []uint64, i int) int64  { return int64(params[i]) }

// readPath reads a path argument given its (ptr, len) pair at params[i],
// params[i+1].
func readPath(mem abi.Memory, params []uint64, i int) (string, syscall.Errno) {
	return abi.ReadString(mem, p32(params, i), p32(params, i+1))
}

// Functions returns every preview1 host function, registered under
// ModuleName.
func (m *Module) Functions() []HostFunc {
	a := m.api
	return []HostFunc{
		{"fd_advise", []ValType{I32, I64, I64, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			errno := a.FdAdvise(int32(p32(p, 0)), p64(p, 1), p64(p, 2), fsapi.Advice(p32(p, 3)))
			return errnoResult(errno)
		}},
		{"fd_allocate", []ValType{I32, I64, I64}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			errno := a.FdAllocate(int32(p32(p, 0)), p64(p, 1), p64(p, 2))
			return errnoResult(errno)
		}},
		{"fd_close", []ValType{I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return errnoResult(a.FdClose(int32(p32(p, 0))))
		}},
		{"fd_datasync", []ValType{I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return errnoResult(a.FdDatasync(int32(p32(p, 0))))
		}},
		{"fd_fdstat_get", []ValType{I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			st, errno := a.FdFdstatGet(int32(p32(p, 0)))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteFdstat(mem, p32(p, 1), st))
		}},
		{"fd_fdstat_set_flags", []ValType{I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			errno := a.FdFdstatSetFlags(int32(p32(p, 0)), fsapi.Fdflags(p32(p, 1)))
			return errnoResult(errno)
		}},
		{"fd_fdstat_set_rights", []ValType{I32, I64, I64}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			errno := a.FdFdstatSetRights(int32(p32(p, 0)), rights.Rights(p[1]), rights.Rights(p[2]))
			return errnoResult(errno)
		}},
		{"fd_filestat_get", []ValType{I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			st, errno := a.FdFilestatGet(int32(p32(p, 0)))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteFilestat(mem, p32(p, 1), st))
		}},
		{"fd_filestat_set_size", []ValType{I32, I64}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return errnoResult(a.FdFilestatSetSize(int32(p32(p, 0)), p64(p, 1)))
		}},
		{"fd_filestat_set_times", []ValType{I32, I64, I64, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			atim, mtim := fstflagsToPointers(p64(p, 1), p64(p, 2), fsapi.Fstflags(p32(p, 3)))
			return errnoResult(a.FdFilestatSetTimes(int32(p32(p, 0)), atim, mtim))
		}},
		{"fd_pread", []ValType{I32, I32, I32, I64, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return fdReadOrPread(mem, p, func(length uint32) ([]byte, syscall.Errno) {
				return a.FdPread(int32(p32(p, 0)), length, p64(p, 3))
			}, 1, 2, 4)
		}},
		{"fd_prestat_get", []ValType{I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			nameLen, errno := a.FdPrestatGet(int32(p32(p, 0)))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WritePrestatDir(mem, p32(p, 1), nameLen))
		}},
		{"fd_prestat_dir_name", []ValType{I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			name, errno := a.FdPrestatDirName(int32(p32(p, 0)), p32(p, 2))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteBytes(mem, p32(p, 1), []byte(name)))
		}},
		{"fd_pwrite", []ValType{I32, I32, I32, I64, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			buf, errno := gatherIovecs(mem, p32(p, 1), p32(p, 2))
			if errno != 0 {
				return errnoResult(errno)
			}
			n, errno := a.FdPwrite(int32(p32(p, 0)), buf, p64(p, 3))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint32(mem, p32(p, 4), n))
		}},
		{"fd_read", []ValType{I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return fdReadOrPread(mem, p, func(length uint32) ([]byte, syscall.Errno) {
				return a.FdRead(int32(p32(p, 0)), length)
			}, 1, 2, 3)
		}},
		{"fd_readdir", []ValType{I32, I32, I32, I64, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			buf, errno := a.FdReaddir(int32(p32(p, 0)), uint64(p64(p, 3)), p32(p, 2))
			if errno != 0 {
				return errnoResult(errno)
			}
			if errno := abi.WriteBytes(mem, p32(p, 1), buf); errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint32(mem, p32(p, 4), uint32(len(buf))))
		}},
		{"fd_renumber", []ValType{I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return errnoResult(a.FdRenumber(int32(p32(p, 0)), int32(p32(p, 1))))
		}},
		{"fd_seek", []ValType{I32, I64, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			newOffset, errno := a.FdSeek(int32(p32(p, 0)), p64(p, 1), fsapi.Whence(p32(p, 2)))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint64(mem, p32(p, 3), newOffset))
		}},
		{"fd_sync", []ValType{I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			return errnoResult(a.FdSync(int32(p32(p, 0))))
		}},
		{"fd_tell", []ValType{I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			offset, errno := a.FdTell(int32(p32(p, 0)))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint64(mem, p32(p, 1), offset))
		}},
		{"fd_write", []ValType{I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			buf, errno := gatherIovecs(mem, p32(p, 1), p32(p, 2))
			if errno != 0 {
				return errnoResult(errno)
			}
			n, errno := a.FdWrite(int32(p32(p, 0)), buf)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint32(mem, p32(p, 3), n))
		}},

		{"path_create_directory", []ValType{I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 1)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(a.PathCreateDirectory(int32(p32(p, 0)), path))
		}},
		{"path_filestat_get", []ValType{I32, I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 2)
			if errno != 0 {
				return errnoResult(errno)
			}
			st, errno := a.PathFilestatGet(int32(p32(p, 0)), fsapi.LookupFlags(p32(p, 1)), path)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteFilestat(mem, p32(p, 4), st))
		}},
		{"path_filestat_set_times", []ValType{I32, I32, I32, I32, I64, I64, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 2)
			if errno != 0 {
				return errnoResult(errno)
			}
			atim, mtim := fstflagsToPointers(p64(p, 4), p64(p, 5), fsapi.Fstflags(p32(p, 6)))
			return errnoResult(a.PathFilestatSetTimes(int32(p32(p, 0)), fsapi.LookupFlags(p32(p, 1)), path, atim, mtim))
		}},
		{"path_link", []ValType{I32, I32, I32, I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			oldPath, errno := readPath(mem, p, 2)
			if errno != 0 {
				return errnoResult(errno)
			}
			newPath, errno := readPath(mem, p, 5)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(a.PathLink(int32(p32(p, 0)), oldPath, int32(p32(p, 4)), newPath))
		}},
		{"path_open", []ValType{I32, I32, I32, I32, I32, I64, I64, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 2)
			if errno != 0 {
				return errnoResult(errno)
			}
			fd, errno := a.PathOpen(int32(p32(p, 0)), fsapi.LookupFlags(p32(p, 1)), path,
				fsapi.Oflags(p32(p, 4)), rights.Rights(p[5]), rights.Rights(p[6]), fsapi.Fdflags(p32(p, 7)))
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint32(mem, p32(p, 8), uint32(fd)))
		}},
		{"path_readlink", []ValType{I32, I32, I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 1)
			if errno != 0 {
				return errnoResult(errno)
			}
			target, errno := a.PathReadlink(int32(p32(p, 0)), path)
			if errno != 0 {
				return errnoResult(errno)
			}
			bufLen := p32(p, 4)
			out := []byte(target)
			if uint32(len(out)) > bufLen {
				out = out[:bufLen]
			}
			if errno := abi.WriteBytes(mem, p32(p, 3), out); errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(abi.WriteUint32(mem, p32(p, 5), uint32(len(out))))
		}},
		{"path_remove_directory", []ValType{I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 1)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(a.PathRemoveDirectory(int32(p32(p, 0)), path))
		}},
		{"path_rename", []ValType{I32, I32, I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			oldPath, errno := readPath(mem, p, 1)
			if errno != 0 {
				return errnoResult(errno)
			}
			newPath, errno := readPath(mem, p, 4)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(a.PathRename(int32(p32(p, 0)), oldPath, int32(p32(p, 3)), newPath))
		}},
		{"path_symlink", []ValType{I32, I32, I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			oldPath, errno := readPath(mem, p, 0)
			if errno != 0 {
				return errnoResult(errno)
			}
			newPath, errno := readPath(mem, p, 3)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(a.PathSymlink(oldPath, int32(p32(p, 2)), newPath))
		}},
		{"path_unlink_file", []ValType{I32, I32, I32}, []ValType{I32}, func(mem abi.Memory, p []uint64) []uint64 {
			path, errno := readPath(mem, p, 1)
			if errno != 0 {
				return errnoResult(errno)
			}
			return errnoResult(a.PathUnlinkFile(int32(p32(p, 0)), path))
		}},
	}
}

// gatherIovecs reads count iovecs starting at offset and concatenates the
// memory they describe into one buffer, backing fd_write/fd_pwrite's
// scatter-gather argument.
func gatherIovecs(mem abi.Memory, offset, count uint32) ([]byte, syscall.Errno) {
	iovs, errno := abi.ReadIovecs(mem, offset, count)
	if errno != 0 {
		return nil, errno
	}
	var total []byte
	for _, iov := range iovs {
		chunk, ok := mem.Read(iov.Ptr, iov.Len)
		if !ok {
			return nil, syscall.EFAULT
		}
		total = append(total, chunk...)
	}
	return total, 0
}

// fdReadOrPread fills a single contiguous buffer via doRead, then scatters
// it across the guest's iovs array, writing the actual byte count to the
// result pointer. iovsOffsetIdx/iovsCountIdx/resultIdx are parameter
// indices, since fd_read and fd_pread share this shape but disagree on
// where the extra offset argument sits.
func fdReadOrPread(mem abi.Memory, p []uint64, doRead func(length uint32) ([]byte, syscall.Errno), iovsOffsetIdx, iovsCountIdx, resultIdx int) []uint64 {
	iovs, errno := abi.ReadIovecs(mem, p32(p, iovsOffsetIdx), p32(p, iovsCountIdx))
	if errno != 0 {
		return errnoResult(errno)
	}
	var total uint32
	for _, iov := range iovs {
		total += iov.Len
	}
	buf, errno := doRead(total)
	if errno != 0 {
		return errnoResult(errno)
	}
	n := uint32(len(buf))
	var written uint32
	for _, iov := range iovs {
		if written >= n {
			break
		}
		chunkLen := iov.Len
		if remain := n - written; chunkLen > remain {
			chunkLen = remain
		}
		if !mem.Write(iov.Ptr, buf[written:written+chunkLen]) {
			return errnoResult(syscall.EFAULT)
		}
		written += chunkLen
	}
	return errnoResult(abi.WriteUint32(mem, p32(p, resultIdx), n))
}

// fstflagsToPointers decodes fd_filestat_set_times/path_filestat_set_times'
// (atim, mtim, fst_flags) triple into the nil-able pointer pair every
// Utimens/Utimes call expects: an unset or *_NOW bit still participates
// (NOW uses the host's current time at the point of the syscall, handled
// by passing nil and letting UTIME_NOW semantics occur at that boundary
// would require a distinct sentinel; this module resolves *_NOW eagerly
// to keep internal/sysfs's contract to two states, set or unchanged).
func fstflagsToPointers(atim, mtim int64, flags fsapi.Fstflags) (atimp, mtimp *int64) {
	if flags&fsapi.FstAtim != 0 {
		atimp = &atim
	} else if flags&fsapi.FstAtimNow != 0 {
		now := nowUnixNano()
		atimp = &now
	}
	if flags&fsapi.FstMtim != 0 {
		mtimp = &mtim
	} else if flags&fsapi.FstMtimNow != 0 {
		now := nowUnixNano()
		mtimp = &now
	}
	return
}
