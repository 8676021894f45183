package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeginTracksRunningTransaction(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	require.Equal(t, StateRunning, tx.State())
	require.Equal(t, 1, m.RunningCount())
}

func TestCommitStopsTrackingAndSetsState(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	m.Commit(tx)
	require.Equal(t, StateCommitted, tx.State())
	require.Equal(t, 0, m.RunningCount())
}

func TestAbortStopsTrackingAndSetsState(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	m.Abort(tx)
	require.Equal(t, StateAborted, tx.State())
	require.Equal(t, 0, m.RunningCount())
}

func TestMultipleTransactionsTrackedIndependently(t *testing.T) {
	m := NewManager()
	tx1 := m.Begin()
	tx2 := m.Begin()
	require.Equal(t, 2, m.RunningCount())
	require.NotEqual(t, tx1.ID(), tx2.ID())

	m.Commit(tx1)
	require.Equal(t, 1, m.RunningCount())
	require.Equal(t, StateRunning, tx2.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "committed", StateCommitted.String())
	require.Equal(t, "aborted", StateAborted.String())
}
