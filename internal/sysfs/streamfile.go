package sysfs

import (
	"io"
	"io/fs"
	"time"
)

// streamFile adapts a plain io.Reader or io.Writer (Config.StandardInput/
// StandardOutput/StandardError, spec.md §6) to fs.File so it can be passed
// to NewStdioFile, which otherwise only knows how to wrap a real *os.File
// or another fs.File implementation.
type streamFile struct {
	r io.Reader
	w io.Writer
}

// NewStreamFile wraps r or w (exactly one is expected non-nil) as an
// fs.File suitable for NewStdioFile.
func NewStreamFile(r io.Reader, w io.Writer) fs.File {
	return &streamFile{r: r, w: w}
}

func (s *streamFile) Stat() (fs.FileInfo, error) { return streamFileInfo{}, nil }

func (s *streamFile) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, io.EOF
	}
	return s.r.Read(p)
}

func (s *streamFile) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, io.ErrClosedPipe
	}
	return s.w.Write(p)
}

func (s *streamFile) Close() error { return nil }

// streamFileInfo is a constant fs.FileInfo for a byte-stream stdio binding;
// NewStdioFile only reads its Mode.
type streamFileInfo struct{}

func (streamFileInfo) Name() string       { return "" }
func (streamFileInfo) Size() int64        { return 0 }
func (streamFileInfo) Mode() fs.FileMode  { return fs.ModeCharDevice | 0o600 }
func (streamFileInfo) ModTime() time.Time { return time.Time{} }
func (streamFileInfo) IsDir() bool        { return false }
func (streamFileInfo) Sys() any           { return nil }
