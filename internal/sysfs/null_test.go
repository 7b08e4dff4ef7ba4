package sysfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullFile(t *testing.T) {
	f := NewNullFile()

	n, errno := f.Read(make([]byte, 16))
	require.Zero(t, errno)
	require.Equal(t, 0, n)

	n, errno = f.Write([]byte("discarded"))
	require.Zero(t, errno)
	require.Equal(t, 9, n)

	n, errno = f.Pwrite([]byte("discarded"), 100)
	require.Zero(t, errno)
	require.Equal(t, 9, n)

	isDir, errno := f.IsDir()
	require.Zero(t, errno)
	require.False(t, isDir)

	st, errno := f.Stat()
	require.Zero(t, errno)
	require.Equal(t, uint64(1), st.Nlink)

	require.Zero(t, f.Sync())
	require.Zero(t, f.Datasync())
	require.Zero(t, f.Close())
}
