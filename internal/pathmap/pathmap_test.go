package pathmap

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasip1fs/hostfs/internal/wasierrno"
)

func newMapper(t *testing.T, root string) *Mapper {
	t.Helper()
	m := New()
	m.SetRoot(root)
	require.Zero(t, m.AddMapping("/", root))
	return m
}

func TestMapToHost_SimplePath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644))
	m := newMapper(t, root)

	got, errno := m.MapToHost("/hello.txt", true)
	require.Zero(t, errno)
	require.Equal(t, filepath.Join(root, "hello.txt"), got)
}

func TestMapToHost_LongestPrefixWins(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	m := newMapper(t, root)
	require.Zero(t, m.AddMapping("/mnt/sub", sub))

	got, errno := m.MapToHost("/mnt/sub/file.txt", true)
	require.Zero(t, errno)
	require.Equal(t, filepath.Join(sub, "file.txt"), got)
}

func TestMapToHost_DotDotEscapeRejected(t *testing.T) {
	root := t.TempDir()
	m := newMapper(t, root)

	_, errno := m.MapToHost("/../../etc/passwd", true)
	require.Equal(t, wasierrno.ErrNotCapable, errno)
}

func TestMapToHost_NoMappingIsNotCapable(t *testing.T) {
	m := New()
	m.SetRoot(t.TempDir())
	_, errno := m.MapToHost("/unmapped/path", true)
	require.Equal(t, wasierrno.ErrNotCapable, errno)
}

func TestMapToHost_SymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	m := newMapper(t, root)

	_, errno := m.MapToHost("/escape/file.txt", true)
	require.Equal(t, wasierrno.ErrNotCapable, errno)
}

func TestMapToHost_SymlinkFollow_ContainedTargetOK(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real", "f.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "link")))
	m := newMapper(t, root)

	got, errno := m.MapToHost("/link/f.txt", true)
	require.Zero(t, errno)
	require.Equal(t, filepath.Join(root, "real", "f.txt"), got)
}

func TestMapToHost_SymlinkNotFollowed_FinalComponent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "target.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "target.txt"), filepath.Join(root, "link.txt")))
	m := newMapper(t, root)

	// follow=false: the final component itself is never dereferenced, so
	// the link stays safely inside root regardless of its target.
	got, errno := m.MapToHost("/link.txt", false)
	require.Zero(t, errno)
	require.Equal(t, filepath.Join(root, "link.txt"), got)
}

func TestMapToHost_NonexistentFinalComponentAllowed(t *testing.T) {
	// O_CREAT callers resolve a path whose final component doesn't exist
	// yet; containment of the parent directory is enough.
	root := t.TempDir()
	m := newMapper(t, root)

	got, errno := m.MapToHost("/new-file.txt", true)
	require.Zero(t, errno)
	require.Equal(t, filepath.Join(root, "new-file.txt"), got)
}

func TestAddMapping_RejectsDev(t *testing.T) {
	m := New()
	require.Equal(t, wasierrno.ErrNotCapable, m.AddMapping("/dev", "/tmp"))
	require.Equal(t, wasierrno.ErrNotCapable, m.AddMapping("/dev/custom", "/tmp"))
}

func TestAddMapping_RejectsRelativeHostPrefix(t *testing.T) {
	m := New()
	require.Equal(t, syscall.EINVAL, m.AddMapping("/mnt", "relative/path"))
}

func TestAddMapping_Normalizes(t *testing.T) {
	m := New()
	require.Zero(t, m.AddMapping("mnt/", "/tmp"))

	root := "/tmp"
	got, errno := m.MapToHost("/mnt/x", true)
	require.Zero(t, errno)
	require.Equal(t, filepath.Join(root, "x"), got)
}

func TestRemoveMapping(t *testing.T) {
	m := New()
	require.Zero(t, m.AddMapping("/mnt", "/tmp"))
	require.True(t, m.RemoveMapping("/mnt"))
	require.False(t, m.RemoveMapping("/mnt"))

	_, errno := m.MapToHost("/mnt/x", true)
	require.Equal(t, wasierrno.ErrNotCapable, errno)
}

func TestPathHasPrefix_ComponentBoundary(t *testing.T) {
	require.True(t, pathHasPrefix("/tmp/foo", "/tmp"))
	require.False(t, pathHasPrefix("/tmpfoo", "/tmp"))
	require.True(t, pathHasPrefix("/anything", "/"))
}
