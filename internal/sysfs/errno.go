package sysfs

import (
	"io/fs"
	"syscall"

	errorsStd "errors"

	"github.com/pkg/errors"
)

// UnwrapOSError narrows any error returned by the os/io/fs standard library
// to the syscall.Errno it was built from, falling back to the fs sentinel
// errors and finally to EIO. It unwraps wrapped errors (including those
// from wrapOSError) but does not wrap or log anything itself.
func UnwrapOSError(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var serrno syscall.Errno
	if errorsStd.As(err, &serrno) {
		return serrno
	}
	switch {
	case errorsStd.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errorsStd.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errorsStd.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errorsStd.Is(err, fs.ErrClosed):
		return syscall.EBADF
	case errorsStd.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

// wrapOSError annotates err with call-site context before it is narrowed by
// UnwrapOSError. The guest only ever sees the resulting errno; the wrapped
// message itself is not logged.
func wrapOSError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "%s %s", op, path)
}
