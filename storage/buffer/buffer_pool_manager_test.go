package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/pkg/dberrors"
	"github.com/pagestore/pagestore/storage/disk"
	"github.com/pagestore/pagestore/storage/page"
	"github.com/pagestore/pagestore/storage/wal"
	"github.com/pagestore/pagestore/txn"
)

func newTestPool(t *testing.T, poolSize int) *Manager {
	t.Helper()
	dm, err := disk.New(filepath.Join(t.TempDir(), "test.db"), 128, 0)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return New(poolSize, 128, 2, dm, nil, nil)
}

func TestNewPageAndFetchRoundTrip(t *testing.T) {
	m := newTestPool(t, 4)

	p, err := m.NewPage()
	require.NoError(t, err)
	copy(p.Data(), []byte("hello"))
	require.NoError(t, m.UnpinPage(p.ID(), true))

	fetched, err := m.FetchPage(p.ID())
	require.NoError(t, err)
	require.Equal(t, byte('h'), fetched.Data()[0])
	require.NoError(t, m.UnpinPage(fetched.ID(), false))
}

func TestFetchUnknownPageReturnsZeroedPage(t *testing.T) {
	m := newTestPool(t, 4)
	p, err := m.FetchPage(page.ID(7))
	require.NoError(t, err)
	require.Equal(t, byte(0), p.Data()[0])
	require.NoError(t, m.UnpinPage(p.ID(), false))
}

func TestAllFramesPinnedPreventsEviction(t *testing.T) {
	m := newTestPool(t, 2)

	p1, err := m.NewPage()
	require.NoError(t, err)
	p2, err := m.NewPage()
	require.NoError(t, err)
	_ = p1
	_ = p2

	_, err = m.NewPage()
	require.ErrorIs(t, err, dberrors.ErrOutOfFrames)
}

func TestUnpinnedFrameGetsEvicted(t *testing.T) {
	m := newTestPool(t, 1)

	p1, err := m.NewPage()
	require.NoError(t, err)
	id1 := p1.ID()
	require.NoError(t, m.UnpinPage(id1, true))

	p2, err := m.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, id1, p2.ID())
	require.NoError(t, m.UnpinPage(p2.ID(), false))
}

func TestDeletePinnedPageFails(t *testing.T) {
	m := newTestPool(t, 2)
	p, err := m.NewPage()
	require.NoError(t, err)
	require.ErrorIs(t, m.DeletePage(p.ID()), dberrors.ErrPagePinned)
}

func TestFlushAllClearsDirtyFlags(t *testing.T) {
	m := newTestPool(t, 4)
	p, err := m.NewPage()
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(p.ID(), true))
	require.NoError(t, m.FlushAll())

	refetched, err := m.FetchPage(p.ID())
	require.NoError(t, err)
	require.False(t, refetched.IsDirty())
	require.NoError(t, m.UnpinPage(refetched.ID(), false))
}

func TestDoubleUnpinErrors(t *testing.T) {
	m := newTestPool(t, 2)
	p, err := m.NewPage()
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(p.ID(), false))
	require.ErrorIs(t, m.UnpinPage(p.ID(), false), dberrors.ErrDoubleUnpin)
}

func TestTxnScopeTagsWALRecords(t *testing.T) {
	m := newTestPool(t, 4)
	walDir := t.TempDir()
	logMgr, err := wal.New(walDir, 4096, 1<<20, nil)
	require.NoError(t, err)
	defer logMgr.Close()
	m.SetWAL(logMgr)

	txns := txn.NewManager()
	tx := txns.Begin()

	m.BeginTxnScope(tx)
	p, err := m.NewPage()
	require.NoError(t, err)
	copy(p.Data(), []byte("tagged"))
	require.NoError(t, m.UnpinPage(p.ID(), true))
	m.EndTxnScope()
	txns.Commit(tx)

	require.NoError(t, logMgr.Flush())

	raw, err := os.ReadFile(filepath.Join(walDir, "wal_00000.log"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 24)
	gotTxnID, err := uuid.FromBytes(raw[8:24])
	require.NoError(t, err)
	require.Equal(t, tx.ID(), gotTxnID)

	// A dirty unpin outside any txn scope leaves the TxnID field zeroed.
	p2, err := m.NewPage()
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(p2.ID(), true))
	require.NoError(t, logMgr.Flush())
	raw2, err := os.ReadFile(filepath.Join(walDir, "wal_00000.log"))
	require.NoError(t, err)
	recStart := len(raw)
	zeroTxnID, err := uuid.FromBytes(raw2[recStart+8 : recStart+24])
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, zeroTxnID)
}
