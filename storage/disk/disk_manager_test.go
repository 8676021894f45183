package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagestore/pagestore/storage/page"
)

func TestDiskManagerWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "test.db"), 64, 0)
	require.NoError(t, err)
	defer m.Close()

	id := m.AllocatePage()
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, m.WritePage(id, buf))

	out := make([]byte, 64)
	require.NoError(t, m.ReadPage(id, out))
	require.Equal(t, buf, out)
}

func TestDiskManagerReadUnwrittenPageIsZero(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "test.db"), 32, 0)
	require.NoError(t, err)
	defer m.Close()

	out := make([]byte, 32)
	for i := range out {
		out[i] = 0xFF
	}
	require.NoError(t, m.ReadPage(page.ID(5), out))
	for _, b := range out {
		require.Equal(t, byte(0), b)
	}
}

func TestDiskManagerAllocateReservesHeaderPage(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "test.db"), 16, 0)
	require.NoError(t, err)
	defer m.Close()

	id := m.AllocatePage()
	require.NotEqual(t, page.HeaderPageID, id)
}

func TestDiskManagerSizeMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	m, err := New(filepath.Join(dir, "test.db"), 16, 0)
	require.NoError(t, err)
	defer m.Close()

	require.Error(t, m.WritePage(page.ID(1), make([]byte, 4)))
}
