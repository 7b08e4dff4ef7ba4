// Package rights implements the preview1 capability algebra: the base and
// inheriting rights bitmasks attached to every descriptor, and the
// monotonic-narrowing rules spec.md §4.3 requires of path_open and
// fd_fdstat_set_rights.
package rights

// Rights is the 64-bit preview1 rights bitmask.
type Rights uint64

// Has reports whether r grants every bit set in want.
func (r Rights) Has(want Rights) bool { return r&want == want }

// SubsetOf reports whether r narrows or equals of (no bit in r outside of).
func (r Rights) SubsetOf(of Rights) bool { return r&^of == 0 }

// Named bits, in preview1 witx order.
const (
	FD_DATASYNC Rights = 1 << iota
	FD_READ
	FD_SEEK
	FDSTAT_SET_FLAGS
	FD_SYNC
	FD_TELL
	FD_WRITE
	FD_ADVISE
	FD_ALLOCATE
	PATH_CREATE_DIRECTORY
	PATH_CREATE_FILE
	PATH_LINK_SOURCE
	PATH_LINK_TARGET
	PATH_OPEN
	FD_READDIR
	PATH_READLINK
	PATH_RENAME_SOURCE
	PATH_RENAME_TARGET
	PATH_FILESTAT_GET
	PATH_FILESTAT_SET_SIZE
	PATH_FILESTAT_SET_TIMES
	FD_FILESTAT_GET
	FD_FILESTAT_SET_SIZE
	FD_FILESTAT_SET_TIMES
	PATH_SYMLINK
	PATH_REMOVE_DIRECTORY
	PATH_UNLINK_FILE
	POLL_FD_READWRITE
)

// AccessMode describes the host-level read/write permission a preopen was
// configured with (spec.md §6 default_permissions).
type AccessMode uint8

const (
	// Unset is the zero value, meaning "not explicitly configured"; callers
	// building a Preopen fall back to Config.DefaultPermissions when they
	// see this value rather than silently treating it as ReadOnly.
	Unset AccessMode = iota
	ReadOnly
	WriteOnly
	ReadWrite
	None
)

const (
	attrRights = PATH_OPEN | FD_FILESTAT_GET | PATH_FILESTAT_GET |
		PATH_CREATE_DIRECTORY | PATH_FILESTAT_SET_TIMES

	// dirBase includes fileBase: ComputeInitial narrows a directory's
	// inheriting set to its base, so the rights a file opened beneath it
	// can be granted (FD_READ, FD_WRITE, ...) must be in the base too.
	dirBase = fileBase | attrRights | FD_READDIR | PATH_LINK_SOURCE | PATH_LINK_TARGET |
		PATH_RENAME_SOURCE | PATH_RENAME_TARGET | PATH_READLINK |
		PATH_SYMLINK | PATH_REMOVE_DIRECTORY | PATH_UNLINK_FILE |
		PATH_CREATE_FILE | FD_FILESTAT_SET_TIMES
	dirInheriting = ^Rights(0) // ComputeInitial narrows it to the directory's base

	fileBase = attrRights | FD_READ | FD_WRITE | FD_SEEK | FD_TELL |
		FD_DATASYNC | FD_SYNC | FD_ADVISE | FD_ALLOCATE | FD_FILESTAT_SET_SIZE |
		FD_FILESTAT_SET_TIMES | POLL_FD_READWRITE
)

// ComputeInitial derives the base/inheriting rights for a freshly bound
// descriptor of the given kind, narrowed by the host access mode and the
// allow-create/allow-delete configuration flags (spec.md §4.3).
func ComputeInitial(isDir bool, access AccessMode, allowCreate, allowDelete bool) (base, inheriting Rights) {
	if isDir {
		base, inheriting = dirBase, dirInheriting
	} else {
		base, inheriting = fileBase, 0
	}

	const writeRights = FD_WRITE | FD_DATASYNC | FD_SYNC | FD_ALLOCATE |
		FD_FILESTAT_SET_SIZE | FD_FILESTAT_SET_TIMES | PATH_FILESTAT_SET_SIZE |
		PATH_FILESTAT_SET_TIMES
	const createRights = PATH_CREATE_FILE | PATH_CREATE_DIRECTORY
	const deleteRights = PATH_UNLINK_FILE | PATH_REMOVE_DIRECTORY | PATH_RENAME_SOURCE

	switch access {
	case Unset, ReadOnly:
		base &^= writeRights | createRights | deleteRights
	case WriteOnly:
		base &^= FD_READ | FD_READDIR
	case None:
		base = 0
	}
	if !allowCreate {
		base &^= createRights
	}
	if !allowDelete {
		base &^= deleteRights
	}
	return base, base & inheriting
}

// Restrict applies an explicit caller-supplied restriction on top of a
// computed rights set (bitwise AND, spec.md §4.3).
func Restrict(computed, restricted Rights) Rights {
	return computed & restricted
}

// DeriveChild computes the rights of a descriptor opened through a parent
// directory descriptor via path_open. It returns ok=false when the request
// would need to silently widen beyond what the parent's inheriting rights
// allow, in which case the caller must return ENOTCAPABLE rather than
// narrowing quietly.
func DeriveChild(parentInheriting, requestedBase, requestedInheriting Rights) (base, inheriting Rights, ok bool) {
	base = requestedBase & parentInheriting
	inheriting = requestedInheriting & parentInheriting
	if base != requestedBase || inheriting != requestedInheriting {
		return 0, 0, false
	}
	return base, inheriting, true
}

// NarrowSetRights validates fd_fdstat_set_rights: the new base/inheriting
// must each be a subset of the descriptor's current values.
func NarrowSetRights(curBase, curInheriting, newBase, newInheriting Rights) bool {
	return newBase.SubsetOf(curBase) && newInheriting.SubsetOf(curInheriting)
}
