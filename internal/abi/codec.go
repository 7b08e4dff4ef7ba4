// Package abi implements the preview1 ABI codec: bit-exact, little-endian
// pack/unpack of the fixed-layout preview1 structs (iovec, ciovec, fdstat,
// filestat, prestat, dirent) into and out of guest linear memory (spec.md
// §4.5).
package abi

import (
	"encoding/binary"
	"syscall"

	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/rights"
)

// Memory is the bounds-checked view over guest linear memory the codec
// needs. It mirrors the shape the WebAssembly runtime's own Memory type
// exposes (Read/Write return a byte slice or bool, never panicking on an
// out-of-range offset) so this package stays usable without depending on
// any particular runtime.
type Memory interface {
	// Read returns the byteCount bytes at offset, and false if that range
	// is not entirely within the current memory size.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v into memory at offset, and reports false without
	// writing anything if that range is not entirely within the current
	// memory size.
	Write(offset uint32, v []byte) bool
}

// sizes of the fixed preview1 structs, in bytes.
const (
	IovecSize    = 8
	FdstatSize   = 32
	FilestatSize = 64
	PrestatSize  = 8
	DirentSize   = 24
)

// Iovec is a guest-memory (ptr, len) pair, shared by iovec and ciovec.
type Iovec struct {
	Ptr uint32
	Len uint32
}

// ReadIovec unpacks a single iovec/ciovec at offset. Returns EFAULT if the
// region is out of bounds.
func ReadIovec(mem Memory, offset uint32) (Iovec, syscall.Errno) {
	buf, ok := mem.Read(offset, IovecSize)
	if !ok {
		return Iovec{}, syscall.EFAULT
	}
	return Iovec{
		Ptr: binary.LittleEndian.Uint32(buf[0:4]),
		Len: binary.LittleEndian.Uint32(buf[4:8]),
	}, 0
}

// ReadIovecs unpacks count consecutive iovec/ciovec entries starting at
// offset, as used by fd_read/fd_write's iovs/iovs_len arguments.
func ReadIovecs(mem Memory, offset, count uint32) ([]Iovec, syscall.Errno) {
	out := make([]Iovec, count)
	for i := uint32(0); i < count; i++ {
		v, errno := ReadIovec(mem, offset+i*IovecSize)
		if errno != 0 {
			return nil, errno
		}
		out[i] = v
	}
	return out, 0
}

// Fdstat is the decoded form of the preview1 fdstat struct.
type Fdstat struct {
	Filetype         fsapi.Filetype
	Fdflags          fsapi.Fdflags
	RightsBase       rights.Rights
	RightsInheriting rights.Rights
}

// WriteFdstat packs v at offset: filetype u8 + pad7 + fdflags u16 + pad6 +
// rights_base u64 + rights_inheriting u64.
func WriteFdstat(mem Memory, offset uint32, v Fdstat) syscall.Errno {
	var buf [FdstatSize]byte
	buf[0] = byte(v.Filetype)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(v.Fdflags))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(v.RightsBase))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(v.RightsInheriting))
	if !mem.Write(offset, buf[:]) {
		return syscall.EFAULT
	}
	return 0
}

// ReadFdstat unpacks a Fdstat at offset, for round-trip testing.
func ReadFdstat(mem Memory, offset uint32) (Fdstat, syscall.Errno) {
	buf, ok := mem.Read(offset, FdstatSize)
	if !ok {
		return Fdstat{}, syscall.EFAULT
	}
	return Fdstat{
		Filetype:         fsapi.Filetype(buf[0]),
		Fdflags:          fsapi.Fdflags(binary.LittleEndian.Uint16(buf[8:10])),
		RightsBase:       rights.Rights(binary.LittleEndian.Uint64(buf[16:24])),
		RightsInheriting: rights.Rights(binary.LittleEndian.Uint64(buf[24:32])),
	}, 0
}

// Filestat is the decoded form of the preview1 filestat struct.
type Filestat struct {
	Dev      uint64
	Ino      uint64
	Filetype fsapi.Filetype
	Nlink    uint64
	Size     uint64
	Atim     int64
	Mtim     int64
	Ctim     int64
}

// FilestatFromStat_t converts a host fsapi.Stat_t into the wire Filestat.
func FilestatFromStat_t(st fsapi.Stat_t) Filestat {
	nlink := st.Nlink
	if nlink == 0 {
		nlink = 1
	}
	return Filestat{
		Dev:      st.Dev,
		Ino:      st.Ino,
		Filetype: fsapi.FromFileMode(st.Mode),
		Nlink:    nlink,
		Size:     uint64(st.Size),
		Atim:     st.Atim,
		Mtim:     st.Mtim,
		Ctim:     st.Ctim,
	}
}

// WriteFilestat packs v at offset: dev u64, ino u64, filetype u8+pad7,
// nlink u64, size u64, atim i64, mtim i64, ctim i64.
func WriteFilestat(mem Memory, offset uint32, v Filestat) syscall.Errno {
	var buf [FilestatSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], v.Dev)
	binary.LittleEndian.PutUint64(buf[8:16], v.Ino)
	buf[16] = byte(v.Filetype)
	binary.LittleEndian.PutUint64(buf[24:32], v.Nlink)
	binary.LittleEndian.PutUint64(buf[32:40], v.Size)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(v.Atim))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(v.Mtim))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(v.Ctim))
	if !mem.Write(offset, buf[:]) {
		return syscall.EFAULT
	}
	return 0
}

// ReadFilestat unpacks a Filestat at offset, for round-trip testing.
func ReadFilestat(mem Memory, offset uint32) (Filestat, syscall.Errno) {
	buf, ok := mem.Read(offset, FilestatSize)
	if !ok {
		return Filestat{}, syscall.EFAULT
	}
	return Filestat{
		Dev:      binary.LittleEndian.Uint64(buf[0:8]),
		Ino:      binary.LittleEndian.Uint64(buf[8:16]),
		Filetype: fsapi.Filetype(buf[16]),
		Nlink:    binary.LittleEndian.Uint64(buf[24:32]),
		Size:     binary.LittleEndian.Uint64(buf[32:40]),
		Atim:     int64(binary.LittleEndian.Uint64(buf[40:48])),
		Mtim:     int64(binary.LittleEndian.Uint64(buf[48:56])),
		Ctim:     int64(binary.LittleEndian.Uint64(buf[56:64])),
	}, 0
}

// prestatTagDir is the only defined preview1 prestat tag (__WASI_PREOPENTYPE_DIR).
const prestatTagDir = 0

// WritePrestatDir packs a prestat for a preopened directory at offset:
// tag u8 (always 0, "dir") + pad3 + dir_name_len u32.
func WritePrestatDir(mem Memory, offset uint32, dirNameLen uint32) syscall.Errno {
	var buf [PrestatSize]byte
	buf[0] = prestatTagDir
	binary.LittleEndian.PutUint32(buf[4:8], dirNameLen)
	if !mem.Write(offset, buf[:]) {
		return syscall.EFAULT
	}
	return 0
}

// Dirent is the decoded form of one preview1 dirent header (the variable
// length name bytes follow it in the guest buffer, written separately by
// the caller).
type Dirent struct {
	Next   uint64
	Ino    uint64
	Namlen uint32
	Type   fsapi.Filetype
}

// PutDirent packs v into buf[0:DirentSize]. Unlike the other Write*
// functions, this writes to a caller-supplied byte slice (typically a
// fd_readdir scratch buffer assembled before a single bulk Memory.Write),
// because fd_readdir's output is truncated mid-record at the buffer
// boundary and the codec must not fault on a partial write.
func PutDirent(buf []byte, v Dirent) {
	binary.LittleEndian.PutUint64(buf[0:8], v.Next)
	binary.LittleEndian.PutUint64(buf[8:16], v.Ino)
	binary.LittleEndian.PutUint32(buf[16:20], v.Namlen)
	buf[20] = byte(v.Type)
}

// ReadDirent unpacks a Dirent at offset, for round-trip testing.
func ReadDirent(mem Memory, offset uint32) (Dirent, syscall.Errno) {
	buf, ok := mem.Read(offset, DirentSize)
	if !ok {
		return Dirent{}, syscall.EFAULT
	}
	return Dirent{
		Next:   binary.LittleEndian.Uint64(buf[0:8]),
		Ino:    binary.LittleEndian.Uint64(buf[8:16]),
		Namlen: binary.LittleEndian.Uint32(buf[16:20]),
		Type:   fsapi.Filetype(buf[20]),
	}, 0
}

// WriteUint32 writes a little-endian u32 at offset, backing single-value
// outputs like fd_write's byte count or path_open's fd.
func WriteUint32(mem Memory, offset, v uint32) syscall.Errno {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if !mem.Write(offset, buf[:]) {
		return syscall.EFAULT
	}
	return 0
}

// WriteUint64 writes a little-endian u64 at offset, backing fd_tell/fd_seek's
// wider offset outputs.
func WriteUint64(mem Memory, offset uint32, v uint64) syscall.Errno {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if !mem.Write(offset, buf[:]) {
		return syscall.EFAULT
	}
	return 0
}

// ReadString reads a length-prefixed-by-caller string region: callers pass
// the byte length decoded from the wasm argument (e.g. path_len).
func ReadString(mem Memory, offset, length uint32) (string, syscall.Errno) {
	buf, ok := mem.Read(offset, length)
	if !ok {
		return "", syscall.EFAULT
	}
	return string(buf), 0
}

// WriteBytes writes v verbatim at offset.
func WriteBytes(mem Memory, offset uint32, v []byte) syscall.Errno {
	if len(v) == 0 {
		return 0
	}
	if !mem.Write(offset, v) {
		return syscall.EFAULT
	}
	return 0
}
