package bplustree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertFromFileLoadsAllEntries(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	input := "1,10\n2,20\n\n3,30\n"
	n, err := tree.InsertFromFile(strings.NewReader(input), Int64EntryParser)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	v, ok, err := tree.GetValue(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(20), v)
}

func TestInsertFromFileStopsAtFirstMalformedLine(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	input := "1,10\nnotanentry\n3,30\n"
	n, err := tree.InsertFromFile(strings.NewReader(input), Int64EntryParser)
	require.Error(t, err)
	require.Equal(t, 1, n)

	_, ok, err := tree.GetValue(3)
	require.NoError(t, err)
	require.False(t, ok, "entries after the malformed line should not be inserted")
}

func TestRemoveFromFileDeletesListedKeys(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, tree.Insert(i, i*10))
	}
	n, err := tree.RemoveFromFile(strings.NewReader("2\n4\n"), Int64KeyParser)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, ok, err := tree.GetValue(2)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := tree.GetValue(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(30), v)
}
