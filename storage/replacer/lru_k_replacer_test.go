package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUKEvictsInfiniteDistanceFirst(t *testing.T) {
	r := New(8, 2, nil)

	for _, f := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, r.RecordAccess(f))
		require.NoError(t, r.SetEvictable(f, true))
	}
	// Give frame 1 a second access so it has a finite k-distance, leaving
	// 2, 3, 4, 5 at "infinite" (only one access each).
	require.NoError(t, r.RecordAccess(1))

	require.Equal(t, 5, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 2, victim, "oldest of the infinite-distance frames should go first")

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, 3, victim)
}

func TestLRUKPrefersOldestKDistanceAmongFull(t *testing.T) {
	r := New(8, 2, nil)
	for _, f := range []int{1, 2} {
		require.NoError(t, r.RecordAccess(f))
		require.NoError(t, r.RecordAccess(f))
		require.NoError(t, r.SetEvictable(f, true))
	}
	// Frame 1's two accesses both happened before frame 2's.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, victim)
}

func TestLRUKNonEvictableFramesAreSkipped(t *testing.T) {
	r := New(4, 2, nil)
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, false))
	require.NoError(t, r.RecordAccess(1))
	require.NoError(t, r.SetEvictable(1, true))

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, victim)
}

func TestLRUKEvictEmptyReturnsFalse(t *testing.T) {
	r := New(4, 2, nil)
	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUKRemoveNotEvictableErrors(t *testing.T) {
	r := New(4, 2, nil)
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, false))
	require.Error(t, r.Remove(0))
}

func TestLRUKRemoveAbsentIsNoop(t *testing.T) {
	r := New(4, 2, nil)
	require.NoError(t, r.Remove(2))
}

func TestLRUKInvalidFrameRejected(t *testing.T) {
	r := New(4, 2, nil)
	require.Error(t, r.RecordAccess(10))
	require.Error(t, r.SetEvictable(-1, true))
}
