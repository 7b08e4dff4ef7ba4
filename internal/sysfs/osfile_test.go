package sysfs

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOsFile_TruncateAndStat(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/f.txt"
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	f, errno := openFile(path, os.O_RDWR, 0)
	require.Zero(t, errno)
	osf := newOsFile(path, os.O_RDWR, 0, f)

	require.Zero(t, osf.Truncate(5))
	st, errno := osf.Stat()
	require.Zero(t, errno)
	require.Equal(t, int64(5), st.Size)
	require.Zero(t, osf.Close())
}

func TestOsFile_SetAppendReopens(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/f.txt"
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, errno := openFile(path, os.O_RDWR, 0)
	require.Zero(t, errno)
	osf := newOsFile(path, os.O_RDWR, 0, f)

	require.False(t, osf.IsAppend())
	require.Zero(t, osf.SetAppend(true))
	require.True(t, osf.IsAppend())

	n, errno := osf.Write([]byte("y"))
	require.Zero(t, errno)
	require.Equal(t, 1, n)
	require.Zero(t, osf.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "xy", string(got))
}

func TestOsFile_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/f.txt"
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, errno := openFile(path, os.O_RDONLY, 0)
	require.Zero(t, errno)
	osf := newOsFile(path, os.O_RDONLY, 0, f)

	require.Zero(t, osf.Close())
	require.Zero(t, osf.Close())
}

func TestOsFile_StatAfterCloseIsEBADF(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/f.txt"
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	f, errno := openFile(path, os.O_RDONLY, 0)
	require.Zero(t, errno)
	osf := newOsFile(path, os.O_RDONLY, 0, f)
	require.Zero(t, osf.Close())

	_, errno = osf.Stat()
	require.Equal(t, syscall.EBADF, errno)
}
