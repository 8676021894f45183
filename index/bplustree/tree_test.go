package bplustree

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/storage/buffer"
	"github.com/pagestore/pagestore/storage/disk"
	"github.com/pagestore/pagestore/storage/page"
	"github.com/pagestore/pagestore/storage/wal"
	"github.com/pagestore/pagestore/txn"
)

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newTestTree(t *testing.T, leafMax, internalMax int) *BPlusTree[int64, int64] {
	t.Helper()
	dm, err := disk.New(filepath.Join(t.TempDir(), "test.db"), 256, 0)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	bpm := buffer.New(64, 256, 2, dm, nil, nil)
	tree, err := New[int64, int64](bpm, "idx", compareInt64, Int64Codec{}, Int64Codec{}, leafMax, internalMax, nil, nil)
	require.NoError(t, err)
	return tree
}

func TestInsertDescendingSplitsIntoOneSeparator(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for _, k := range []int64{5, 4, 3, 2, 1} {
		require.NoError(t, tree.Insert(k, k*100))
	}
	require.NoError(t, tree.VerifyInvariants())

	v, ok, err := tree.GetValue(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(400), v)

	var keys []int64
	it, err := tree.Begin()
	require.NoError(t, err)
	for it.Valid() {
		keys = append(keys, it.Key())
		it.Next()
	}
	it.Close()
	require.Equal(t, []int64{1, 2, 3, 4, 5}, keys)
}

func TestRemoveMiddleKeyLeavesRangeIntact(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	require.NoError(t, tree.Remove(5))
	require.NoError(t, tree.VerifyInvariants())

	_, ok, err := tree.GetValue(5)
	require.NoError(t, err)
	require.False(t, ok)

	var keys []int64
	it, err := tree.BeginAt(3)
	require.NoError(t, err)
	for it.Valid() {
		keys = append(keys, it.Key())
		it.Next()
	}
	it.Close()
	require.Equal(t, []int64{3, 4, 6, 7, 8, 9, 10}, keys)
}

func TestRemoveDownToSingleLeafCollapsesRoot(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	for _, k := range []int64{8, 7, 6, 5} {
		require.NoError(t, tree.Remove(k))
	}
	require.NoError(t, tree.VerifyInvariants())

	var keys []int64
	it, err := tree.Begin()
	require.NoError(t, err)
	for it.Valid() {
		keys = append(keys, it.Key())
		it.Next()
	}
	it.Close()
	require.Equal(t, []int64{1, 2, 3, 4}, keys)

	root := tree.GetRootPageID()
	p, err := tree.bpm.FetchPage(root)
	require.NoError(t, err)
	require.Equal(t, kindLeaf, kindOf(p))
	require.NoError(t, tree.bpm.UnpinPage(root, false))
}

func TestIterateSixteenKeysAscendingNoDuplicates(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 16; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	require.NoError(t, tree.VerifyInvariants())

	var keys []int64
	it, err := tree.Begin()
	require.NoError(t, err)
	for it.Valid() {
		keys = append(keys, it.Key())
		it.Next()
	}
	it.Close()

	require.Len(t, keys, 16)
	require.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))
	seen := make(map[int64]bool, len(keys))
	for _, k := range keys {
		require.False(t, seen[k], "duplicate key %d in scan", k)
		seen[k] = true
	}
}

func TestInsertThenRemoveSameSetEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, tree.Remove(i))
	}
	require.True(t, tree.IsEmpty())
	require.Equal(t, page.InvalidID, tree.GetRootPageID())
}

func TestDuplicateInsertRejected(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	require.NoError(t, tree.Insert(1, 1))
	require.Error(t, tree.Insert(1, 2))
}

func TestInsertTxnTagsWALRecordWithTransactionID(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	walDir := t.TempDir()
	logMgr, err := wal.New(walDir, 4096, 1<<20, nil)
	require.NoError(t, err)
	defer logMgr.Close()
	tree.bpm.SetWAL(logMgr)

	txns := txn.NewManager()
	tx := txns.Begin()
	require.NoError(t, tree.InsertTxn(1, 100, tx))
	txns.Commit(tx)
	require.NoError(t, logMgr.Flush())

	raw, err := os.ReadFile(filepath.Join(walDir, "wal_00000.log"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 24)
	gotTxnID, err := uuid.FromBytes(raw[8:24])
	require.NoError(t, err)
	require.Equal(t, tx.ID(), gotTxnID)
}

func TestRemoveAbsentKeySilentlyNoOps(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	require.NoError(t, tree.Insert(1, 1))
	require.NoError(t, tree.Remove(2))
	v, ok, err := tree.Search(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), v)
}
