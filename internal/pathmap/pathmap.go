// Package pathmap implements the preopen path mapping table spec.md §4.2
// describes: an ordered guest-prefix -> host-prefix table, longest-prefix
// resolution, and a symlink-aware containment check performed component by
// component so a TOCTOU race can't smuggle a guest path outside its
// preopen root.
package pathmap

import (
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/wasierrno"
)

// devPrefix is reserved for the subsystem's own /dev/null-style bindings
// (spec.md §3); guests may never bind over it.
const devPrefix = "/dev"

// mapping is one (guest-prefix, host-prefix) pair.
type mapping struct {
	guestPrefix string
	hostPrefix  string
}

// Mapper is the guest -> host preopen mapping table. The zero value has no
// root and no mappings; callers must SetRoot before resolving any path.
type Mapper struct {
	mu       sync.RWMutex
	root     string
	mappings []mapping
}

// New returns an empty Mapper.
func New() *Mapper { return &Mapper{} }

// SetRoot records the host directory that backs the guest root "/" mapping,
// spec.md §4.2 set_root. It does not itself register a mapping; callers
// still call AddMapping("/", hostDir) to bind it.
func (m *Mapper) SetRoot(hostDir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = hostDir
}

// Root returns the host directory set by SetRoot.
func (m *Mapper) Root() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// normalizeGuestPrefix enforces spec.md §4.2's guest-prefix shape: starts
// with "/", no trailing "/" except for the root mapping itself.
func normalizeGuestPrefix(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// reservedDev reports whether guestPrefix names /dev or a subpath of /dev,
// which spec.md §3 reserves for the subsystem's built-in device bindings.
func reservedDev(guestPrefix string) bool {
	return guestPrefix == devPrefix || strings.HasPrefix(guestPrefix, devPrefix+"/")
}

// AddMapping registers a guest-prefix -> host-prefix pair. Both arguments
// must be absolute. It fails with EINVAL if hostPrefix is not absolute, and
// ENOTCAPABLE if guestPrefix names /dev or a subpath of it.
func (m *Mapper) AddMapping(guestPrefix, hostPrefix string) syscall.Errno {
	if !filepath.IsAbs(hostPrefix) {
		return syscall.EINVAL
	}
	guestPrefix = normalizeGuestPrefix(guestPrefix)
	if reservedDev(guestPrefix) {
		return wasierrno.ErrNotCapable
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.mappings {
		if e.guestPrefix == guestPrefix {
			m.mappings[i].hostPrefix = hostPrefix
			return 0
		}
	}
	m.mappings = append(m.mappings, mapping{guestPrefix: guestPrefix, hostPrefix: hostPrefix})
	return 0
}

// RemoveMapping unregisters guestPrefix, reporting whether it was present.
func (m *Mapper) RemoveMapping(guestPrefix string) bool {
	guestPrefix = normalizeGuestPrefix(guestPrefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.mappings {
		if e.guestPrefix == guestPrefix {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			return true
		}
	}
	return false
}

// lookup finds the mapping whose guest-prefix is the longest prefix of
// guestPath. Ties are broken by registration order (first registered wins),
// matching an ordered-set semantics.
func (m *Mapper) lookup(guestPath string) (mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best mapping
	found := false
	for _, e := range m.mappings {
		if !pathHasPrefix(guestPath, e.guestPrefix) {
			continue
		}
		if !found || len(e.guestPrefix) > len(best.guestPrefix) {
			best, found = e, true
		}
	}
	return best, found
}

// pathHasPrefix reports whether guestPath is prefix or a path below it,
// respecting path component boundaries (so "/tmpfoo" doesn't match prefix
// "/tmp").
func pathHasPrefix(guestPath, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if guestPath == prefix {
		return true
	}
	return strings.HasPrefix(guestPath, prefix+"/")
}

// MapToHost resolves guestPath to its host path, per spec.md §4.2: finds the
// longest-prefix mapping, splices in the host prefix, collapses "."/".."
// components, then verifies the result is still inside the selected
// preopen's host root via a TOCTOU-safe, symlink-aware component walk
// honoring follow (LookupFlags.SYMLINK_FOLLOW on the path's final
// component; intermediate components are always dereferenced, matching
// POSIX path resolution).
func (m *Mapper) MapToHost(guestPath string, follow bool) (hostPath string, errno syscall.Errno) {
	mp, ok := m.lookup(guestPath)
	if !ok {
		return "", wasierrno.ErrNotCapable
	}

	rel := strings.TrimPrefix(guestPath, mp.guestPrefix)
	rel = strings.TrimPrefix(rel, "/")
	joined := filepath.Join(mp.hostPrefix, rel)
	cleaned := filepath.Clean(joined)

	if !withinRoot(cleaned, mp.hostPrefix) {
		return "", wasierrno.ErrNotCapable
	}

	if resolved, errno := containedRealPath(mp.hostPrefix, cleaned, follow); errno != 0 {
		return "", errno
	} else {
		return resolved, 0
	}
}

// withinRoot reports whether cleaned is root or a descendant of root,
// comparing path components rather than raw strings.
func withinRoot(cleaned, root string) bool {
	root = filepath.Clean(root)
	if cleaned == root {
		return true
	}
	return strings.HasPrefix(cleaned, root+string(filepath.Separator))
}

// containedRealPath walks hostPath component by component under root,
// resolving symlinks as it goes and re-checking containment after each
// expansion (spec.md §4.2's "not only at the end" TOCTOU requirement). When
// follow is false, the final component is not dereferenced if it is itself
// a symlink; its target is never inspected.
func containedRealPath(root, hostPath string, follow bool) (string, syscall.Errno) {
	rel, err := filepath.Rel(root, hostPath)
	if err != nil {
		return "", wasierrno.ErrNotCapable
	}
	if rel == "." {
		return root, 0
	}

	dirFd, err := unix.Open(root, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", unwrapErrno(err)
	}
	defer unix.Close(dirFd)

	resolved := root
	components := strings.Split(rel, string(filepath.Separator))
	const maxSymlinks = 40
	followedLinks := 0

	for i := 0; i < len(components); i++ {
		comp := components[i]
		last := i == len(components)-1

		st := unix.Stat_t{}
		if err := unix.Fstatat(dirFd, comp, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			if err == unix.ENOENT && last {
				// The final component need not exist yet (e.g. O_CREAT);
				// containment of its parent is already established.
				resolved = filepath.Join(resolved, comp)
				break
			}
			return "", unwrapErrno(err)
		}

		if st.Mode&unix.S_IFMT == unix.S_IFLNK && (!last || follow) {
			followedLinks++
			if followedLinks > maxSymlinks {
				return "", syscall.ELOOP
			}
			target := make([]byte, unix.PathMax)
			n, err := unix.Readlinkat(dirFd, comp, target)
			if err != nil {
				return "", unwrapErrno(err)
			}
			linkTarget := string(target[:n])

			var nextPath string
			if filepath.IsAbs(linkTarget) {
				nextPath = filepath.Clean(linkTarget)
			} else {
				nextPath = filepath.Clean(filepath.Join(resolved, linkTarget))
			}
			if !withinRoot(nextPath, root) {
				return "", wasierrno.ErrNotCapable
			}

			remaining := components[i+1:]
			rebuilt := append(strings.Split(strings.TrimPrefix(nextPath, root+string(filepath.Separator)), string(filepath.Separator)), remaining...)
			unix.Close(dirFd)
			if dirFd, err = unix.Open(root, unix.O_DIRECTORY|unix.O_CLOEXEC, 0); err != nil {
				return "", unwrapErrno(err)
			}
			components = rebuilt
			i = -1
			resolved = root
			continue
		}

		resolved = filepath.Join(resolved, comp)
		if !withinRoot(resolved, root) {
			return "", wasierrno.ErrNotCapable
		}
		if !last {
			newFd, err := unix.Openat(dirFd, comp, unix.O_DIRECTORY|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
			if err == nil {
				unix.Close(dirFd)
				dirFd = newFd
			} else if st.Mode&unix.S_IFMT != unix.S_IFDIR {
				return "", syscall.ENOTDIR
			} else {
				return "", unwrapErrno(err)
			}
		}
	}
	return resolved, 0
}

func unwrapErrno(err error) syscall.Errno {
	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}
	return syscall.EIO
}

// FileType classifies a stat result (for example of a path resolved by
// MapToHost) by its mode, exactly as fsapi.FromFileMode does.
func FileType(st fsapi.Stat_t) fsapi.Filetype {
	return fsapi.FromFileMode(st.Mode)
}
