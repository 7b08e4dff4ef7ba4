package rights

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRights_Has(t *testing.T) {
	tests := []struct {
		name string
		r    Rights
		want Rights
		has  bool
	}{
		{"exact", FD_READ, FD_READ, true},
		{"subset", FD_READ | FD_WRITE, FD_READ, true},
		{"missing bit", FD_READ, FD_WRITE, false},
		{"zero want always satisfied", FD_READ, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.has, tt.r.Has(tt.want))
		})
	}
}

func TestRights_SubsetOf(t *testing.T) {
	require.True(t, FD_READ.SubsetOf(FD_READ|FD_WRITE))
	require.True(t, Rights(0).SubsetOf(0))
	require.False(t, (FD_READ | FD_WRITE).SubsetOf(FD_READ))
}

func TestComputeInitial(t *testing.T) {
	tests := []struct {
		name                     string
		isDir                    bool
		access                   AccessMode
		allowCreate, allowDelete bool
		wantHas, wantLacks       Rights
	}{
		{
			name: "dir read-write create delete", isDir: true, access: ReadWrite,
			allowCreate: true, allowDelete: true,
			wantHas: PATH_OPEN | PATH_CREATE_FILE | PATH_UNLINK_FILE | FD_READDIR,
		},
		{
			name: "dir read-only strips create and delete", isDir: true, access: ReadOnly,
			allowCreate: true, allowDelete: true,
			wantHas:   PATH_OPEN | FD_READDIR,
			wantLacks: PATH_CREATE_FILE | PATH_UNLINK_FILE | PATH_RENAME_SOURCE,
		},
		{
			name: "dir disallow create", isDir: true, access: ReadWrite,
			allowCreate: false, allowDelete: true,
			wantLacks: PATH_CREATE_FILE | PATH_CREATE_DIRECTORY,
		},
		{
			name: "dir disallow delete", isDir: true, access: ReadWrite,
			allowCreate: true, allowDelete: false,
			wantLacks: PATH_UNLINK_FILE | PATH_REMOVE_DIRECTORY,
		},
		{
			name: "file read-write", isDir: false, access: ReadWrite,
			allowCreate: true, allowDelete: true,
			wantHas: FD_READ | FD_WRITE | FD_SEEK,
		},
		{
			name: "file write-only strips read", isDir: false, access: WriteOnly,
			wantHas:   FD_WRITE,
			wantLacks: FD_READ | FD_READDIR,
		},
		{
			name: "none access strips everything", isDir: false, access: None,
			wantLacks: FD_READ | FD_WRITE,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, _ := ComputeInitial(tt.isDir, tt.access, tt.allowCreate, tt.allowDelete)
			if tt.wantHas != 0 {
				require.True(t, base.Has(tt.wantHas), "expected base to have %b, got %b", tt.wantHas, base)
			}
			if tt.wantLacks != 0 {
				require.False(t, base.Has(tt.wantLacks), "expected base to lack %b, got %b", tt.wantLacks, base)
			}
		})
	}
}

func TestComputeInitial_UnsetMirrorsReadOnly(t *testing.T) {
	unsetBase, unsetInheriting := ComputeInitial(true, Unset, true, true)
	readOnlyBase, readOnlyInheriting := ComputeInitial(true, ReadOnly, true, true)
	require.Equal(t, readOnlyBase, unsetBase, "an unconfigured access mode must not silently grant write rights")
	require.Equal(t, readOnlyInheriting, unsetInheriting)
}

func TestComputeInitial_InheritingNeverExceedsBase(t *testing.T) {
	base, inheriting := ComputeInitial(true, ReadOnly, false, false)
	require.True(t, inheriting.SubsetOf(base), "inheriting must not exceed base: base=%b inheriting=%b", base, inheriting)
}

func TestRestrict(t *testing.T) {
	require.Equal(t, FD_READ, Restrict(FD_READ|FD_WRITE, FD_READ))
	require.Equal(t, Rights(0), Restrict(FD_READ, FD_WRITE))
}

func TestDeriveChild(t *testing.T) {
	tests := []struct {
		name                                 string
		parentInheriting                     Rights
		reqBase, reqInheriting               Rights
		wantBase, wantInheriting             Rights
		wantOK                               bool
	}{
		{
			name: "narrows cleanly", parentInheriting: FD_READ | FD_WRITE,
			reqBase: FD_READ, reqInheriting: 0,
			wantBase: FD_READ, wantInheriting: 0, wantOK: true,
		},
		{
			name: "equal to parent", parentInheriting: FD_READ,
			reqBase: FD_READ, reqInheriting: FD_READ,
			wantBase: FD_READ, wantInheriting: FD_READ, wantOK: true,
		},
		{
			name: "requests beyond parent rejected", parentInheriting: FD_READ,
			reqBase: FD_READ | FD_WRITE, reqInheriting: 0,
			wantOK: false,
		},
		{
			name: "inheriting beyond parent rejected", parentInheriting: FD_READ,
			reqBase: FD_READ, reqInheriting: FD_WRITE,
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, inheriting, ok := DeriveChild(tt.parentInheriting, tt.reqBase, tt.reqInheriting)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.wantBase, base)
				require.Equal(t, tt.wantInheriting, inheriting)
			}
		})
	}
}

func TestNarrowSetRights(t *testing.T) {
	tests := []struct {
		name                               string
		curBase, curInheriting             Rights
		newBase, newInheriting             Rights
		wantOK                             bool
	}{
		{"narrowing base ok", FD_READ | FD_WRITE, 0, FD_READ, 0, true},
		{"same value ok", FD_READ, FD_WRITE, FD_READ, FD_WRITE, true},
		{"widening base rejected", FD_READ, 0, FD_READ | FD_WRITE, 0, false},
		{"widening inheriting rejected", FD_READ, FD_READ, FD_READ, FD_READ | FD_WRITE, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NarrowSetRights(tt.curBase, tt.curInheriting, tt.newBase, tt.newInheriting)
			require.Equal(t, tt.wantOK, got)
		})
	}
}
