package hashindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func identityHash(k int) uint64 { return uint64(k) }

func TestTableInsertFindRemove(t *testing.T) {
	tbl := New[int, string](2, identityHash)
	tbl.Insert(1, "one")
	tbl.Insert(2, "two")

	v, ok := tbl.Find(1)
	require.True(t, ok)
	require.Equal(t, "one", v)

	require.True(t, tbl.Remove(2))
	_, ok = tbl.Find(2)
	require.False(t, ok)
}

func TestTableGrowsAndSplitsUnderLoad(t *testing.T) {
	tbl := New[int, int](2, identityHash)
	for i := 0; i < 64; i++ {
		tbl.Insert(i, i*10)
	}
	for i := 0; i < 64; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok, "key %d missing", i)
		require.Equal(t, i*10, v)
	}
	require.Greater(t, tbl.GlobalDepth(), 0)
	require.Equal(t, 1<<tbl.GlobalDepth(), tbl.DirSize())
}

func TestTableOverwriteExistingKey(t *testing.T) {
	tbl := New[int, int](4, identityHash)
	tbl.Insert(5, 1)
	tbl.Insert(5, 2)
	v, ok := tbl.Find(5)
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, tbl.NumBuckets())
}

func TestTableLocalDepthNeverExceedsGlobalDepth(t *testing.T) {
	tbl := New[int, int](1, identityHash)
	for i := 0; i < 16; i++ {
		tbl.Insert(i, i)
	}
	for i := 0; i < tbl.DirSize(); i++ {
		require.LessOrEqual(t, tbl.LocalDepth(i), tbl.GlobalDepth())
	}
}
