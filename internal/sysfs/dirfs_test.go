package sysfs

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasip1fs/hostfs/internal/pathmap"
)

func newTestDirFS(t *testing.T) (*DirFS, string) {
	t.Helper()
	root := t.TempDir()
	mapper := pathmap.New()
	mapper.SetRoot(root)
	require.Zero(t, mapper.AddMapping("/", root))
	return NewDirFS(mapper, "/"), root
}

func TestDirFS_OpenFileCreateWriteRead(t *testing.T) {
	dfs, _ := newTestDirFS(t)

	f, errno := dfs.OpenFile("greeting.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	require.Zero(t, errno)
	n, errno := f.Write([]byte("hi"))
	require.Zero(t, errno)
	require.Equal(t, 2, n)
	require.Zero(t, f.Close())

	f2, errno := dfs.OpenFile("greeting.txt", os.O_RDONLY, 0)
	require.Zero(t, errno)
	buf := make([]byte, 2)
	n, errno = f2.Read(buf)
	require.Zero(t, errno)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf))
	require.Zero(t, f2.Close())
}

func TestDirFS_MkdirRmdir(t *testing.T) {
	dfs, root := newTestDirFS(t)

	require.Zero(t, dfs.Mkdir("sub", 0o755))
	info, err := os.Stat(root + "/sub")
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.Zero(t, dfs.Rmdir("sub"))
	_, err = os.Stat(root + "/sub")
	require.True(t, os.IsNotExist(err))
}

func TestDirFS_RenameAndUnlink(t *testing.T) {
	dfs, root := newTestDirFS(t)
	require.NoError(t, os.WriteFile(root+"/a.txt", []byte("x"), 0o644))

	require.Zero(t, dfs.Rename("a.txt", "b.txt"))
	_, err := os.Stat(root + "/a.txt")
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(root + "/b.txt")
	require.NoError(t, err)

	require.Zero(t, dfs.Unlink("b.txt"))
	_, err = os.Stat(root + "/b.txt")
	require.True(t, os.IsNotExist(err))
}

func TestDirFS_SymlinkAndReadlink(t *testing.T) {
	dfs, root := newTestDirFS(t)
	require.NoError(t, os.WriteFile(root+"/target.txt", []byte("x"), 0o644))

	require.Zero(t, dfs.Symlink("target.txt", "link.txt"))
	target, errno := dfs.Readlink("link.txt")
	require.Zero(t, errno)
	require.Equal(t, "target.txt", target)

	st, errno := dfs.Stat("link.txt")
	require.Zero(t, errno)
	require.False(t, st.Mode.IsDir())

	lst, errno := dfs.Lstat("link.txt")
	require.Zero(t, errno)
	require.Equal(t, os.ModeSymlink, lst.Mode&os.ModeSymlink)
}

func TestDirFS_LinkAndUtimes(t *testing.T) {
	dfs, root := newTestDirFS(t)
	require.NoError(t, os.WriteFile(root+"/a.txt", []byte("x"), 0o644))

	require.Zero(t, dfs.Link("a.txt", "a2.txt"))
	_, err := os.Stat(root + "/a2.txt")
	require.NoError(t, err)

	atim, mtim := int64(1000000000), int64(2000000000)
	require.Zero(t, dfs.Utimes("a.txt", &atim, &mtim, true))
	st, errno := dfs.Stat("a.txt")
	require.Zero(t, errno)
	require.Equal(t, mtim, st.Mtim)
}

func TestDirFS_OpenFileEscapeRejected(t *testing.T) {
	dfs, _ := newTestDirFS(t)
	_, errno := dfs.OpenFile("../../etc/passwd", os.O_RDONLY, 0)
	require.Equal(t, syscall.Errno(512), errno)
}
