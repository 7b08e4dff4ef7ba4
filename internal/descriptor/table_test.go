package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_Insert_SmallestFree(t *testing.T) {
	var tbl Table[int32, string]

	a, ok := tbl.Insert("a")
	require.True(t, ok)
	require.Equal(t, int32(0), a)

	b, ok := tbl.Insert("b")
	require.True(t, ok)
	require.Equal(t, int32(1), b)

	tbl.Delete(a)
	c, ok := tbl.Insert("c")
	require.True(t, ok)
	require.Equal(t, int32(0), c, "freed id 0 must be reused before allocating 2")

	d, ok := tbl.Insert("d")
	require.True(t, ok)
	require.Equal(t, int32(2), d)
}

func TestTable_Insert_RespectsMax(t *testing.T) {
	tbl := Table[int32, string]{Max: 2}
	_, ok := tbl.Insert("a")
	require.True(t, ok)
	_, ok = tbl.Insert("b")
	require.True(t, ok)
	_, ok = tbl.Insert("c")
	require.False(t, ok, "insert beyond Max must fail with no mutation")
	require.Equal(t, 2, tbl.Len())
}

func TestTable_InsertAt_Overwrite(t *testing.T) {
	var tbl Table[int32, string]
	ok := tbl.InsertAt("a", 5)
	require.True(t, ok)
	ok = tbl.InsertAt("b", 5)
	require.True(t, ok)
	v, ok := tbl.Lookup(5)
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestTable_InsertAt_RespectsMaxForNewKeys(t *testing.T) {
	tbl := Table[int32, string]{Max: 1}
	require.True(t, tbl.InsertAt("a", 0))
	require.False(t, tbl.InsertAt("b", 1), "a brand new key beyond Max must fail")
	require.True(t, tbl.InsertAt("a2", 0), "overwriting an existing key never counts against Max")
}

func TestTable_Lookup_Missing(t *testing.T) {
	var tbl Table[int32, string]
	_, ok := tbl.Lookup(42)
	require.False(t, ok)
}

func TestTable_GetByPath(t *testing.T) {
	var tbl Table[int32, string]
	tbl.Insert("/a")
	tbl.Insert("/b")
	tbl.Insert("/c")

	key, value, ok := tbl.GetByPath(func(v string) bool { return v == "/b" })
	require.True(t, ok)
	require.Equal(t, "/b", value)
	require.Equal(t, int32(1), key)

	_, _, ok = tbl.GetByPath(func(v string) bool { return v == "/missing" })
	require.False(t, ok)
}

func TestTable_Delete_Idempotent(t *testing.T) {
	var tbl Table[int32, string]
	id, _ := tbl.Insert("a")
	tbl.Delete(id)
	require.NotPanics(t, func() { tbl.Delete(id) })
	require.Equal(t, 0, tbl.Len())
}

func TestTable_Range_VisitsEveryEntry(t *testing.T) {
	var tbl Table[int32, string]
	want := map[int32]string{}
	for _, v := range []string{"a", "b", "c"} {
		id, _ := tbl.Insert(v)
		want[id] = v
	}

	got := map[int32]string{}
	tbl.Range(func(k int32, v string) bool {
		got[k] = v
		return true
	})
	require.Equal(t, want, got)
}

func TestTable_Range_StopsEarly(t *testing.T) {
	var tbl Table[int32, string]
	tbl.Insert("a")
	tbl.Insert("b")
	tbl.Insert("c")

	seen := 0
	tbl.Range(func(k int32, v string) bool {
		seen++
		return false
	})
	require.Equal(t, 1, seen)
}

func TestTable_RenumberLikeSequence(t *testing.T) {
	// Mirrors spec.md §8's invariant: fd_renumber(a, b) followed by
	// fd_close(b) leaves no live descriptor with id a or b.
	var tbl Table[int32, string]
	a, _ := tbl.Insert("a")
	b, _ := tbl.Insert("b")

	v, ok := tbl.Lookup(a)
	require.True(t, ok)
	tbl.Delete(a)
	require.True(t, tbl.InsertAt(v, b))

	tbl.Delete(b)
	_, ok = tbl.Lookup(a)
	require.False(t, ok)
	_, ok = tbl.Lookup(b)
	require.False(t, ok)
}
