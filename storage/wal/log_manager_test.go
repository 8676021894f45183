package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/storage/page"
)

func TestAppendAssignsIncreasingLSNs(t *testing.T) {
	m, err := New(t.TempDir(), 4096, 1<<20, nil)
	require.NoError(t, err)
	defer m.Close()

	lsn1, err := m.Append(&Record{TxnID: uuid.New(), Type: RecordUpdate, PageID: 1, Data: []byte("a")})
	require.NoError(t, err)
	lsn2, err := m.Append(&Record{TxnID: uuid.New(), Type: RecordUpdate, PageID: 2, Data: []byte("bb")})
	require.NoError(t, err)
	require.Less(t, lsn1, lsn2)
}

func TestFlushPersistsBufferedRecords(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, 4096, 1<<20, nil)
	require.NoError(t, err)

	_, err = m.Append(&Record{TxnID: uuid.New(), Type: RecordCommit, PageID: page.InvalidID})
	require.NoError(t, err)
	require.NoError(t, m.Flush())

	info, err := os.Stat(filepath.Join(dir, "wal_00000.log"))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
	require.NoError(t, m.Close())
}

func TestSegmentRollsWhenSizeLimitExceeded(t *testing.T) {
	dir := t.TempDir()
	// Each encoded record is 44 bytes, over the 40-byte segment limit, so
	// every append (the first one included) rolls to a new segment.
	m, err := New(dir, 64, 40, nil)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 5; i++ {
		_, err := m.Append(&Record{TxnID: uuid.New(), Type: RecordUpdate, PageID: page.ID(i), Data: []byte("payload")})
		require.NoError(t, err)
	}
	require.NoError(t, m.Flush())

	_, err = os.Stat(filepath.Join(dir, "wal_00001.log"))
	require.NoError(t, err, "expected a second segment to have been rolled")
}

func TestCloseFlushesPendingBuffer(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, 4096, 1<<20, nil)
	require.NoError(t, err)

	_, err = m.Append(&Record{TxnID: uuid.New(), Type: RecordAbort, PageID: page.InvalidID})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	info, err := os.Stat(filepath.Join(dir, "wal_00000.log"))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestCurrentLSNAdvancesBySizeOfEncodedRecords(t *testing.T) {
	m, err := New(t.TempDir(), 4096, 1<<20, nil)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, InvalidLSN, m.CurrentLSN())
	_, err = m.Append(&Record{TxnID: uuid.New(), Type: RecordUpdate, PageID: 1, Data: []byte("hello")})
	require.NoError(t, err)
	require.Equal(t, LSN(37+len("hello")), m.CurrentLSN()) // 37-byte record header plus the payload
}
