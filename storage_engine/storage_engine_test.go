package storageengine

import (
	"testing"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/storage_engine/access/tupleindex"
	"QuadDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesSurviveReopen(t *testing.T) {
	root := t.TempDir()
	se, err := NewStorageEngine(root, indexfile.Options{})
	require.NoError(t, err)

	tt, err := se.CreateTable("quads", tupleindex.QuadOrders, 4)
	require.NoError(t, err)
	added, err := tt.Add(types.Tuple{1, 2, 3, 4})
	require.NoError(t, err)
	assert.True(t, added)

	_, err = se.CreateTable("quads", tupleindex.QuadOrders, 4)
	assert.Error(t, err)
	require.NoError(t, se.Close())

	se, err = NewStorageEngine(root, indexfile.Options{})
	require.NoError(t, err)
	defer se.Close()
	require.Len(t, se.Tables(), 1)

	tt, err = se.GetTable("quads")
	require.NoError(t, err)
	ok, err := tt.Contains(types.Tuple{1, 2, 3, 4})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, tt.Indexes()[0].Tree().Params().Order)
}

func TestGetUnknownTable(t *testing.T) {
	se, err := NewStorageEngine(t.TempDir(), indexfile.Options{})
	require.NoError(t, err)
	defer se.Close()

	_, err = se.GetTable("nope")
	assert.Error(t, err)
}

func TestDropTable(t *testing.T) {
	root := t.TempDir()
	se, err := NewStorageEngine(root, indexfile.Options{})
	require.NoError(t, err)
	defer se.Close()

	tt, err := se.GetOrCreateTable("triples", tupleindex.TripleOrders)
	require.NoError(t, err)
	_, err = tt.Add(types.Tuple{7, 8, 9})
	require.NoError(t, err)

	require.NoError(t, se.DropTable("triples"))
	assert.Empty(t, se.Tables())
	for _, o := range tupleindex.TripleOrders {
		nodes, records := se.IndexManager.Files(tupleindex.IndexName("triples", o))
		assert.NoFileExists(t, nodes)
		assert.NoFileExists(t, records)
	}

	tt, err = se.GetOrCreateTable("triples", tupleindex.TripleOrders)
	require.NoError(t, err)
	n, err := tt.Size()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryBacking(t *testing.T) {
	root := t.TempDir()
	se, err := NewStorageEngine(root, indexfile.Options{Backing: indexfile.BackingMemory})
	require.NoError(t, err)
	defer se.Close()

	tt, err := se.GetOrCreateTable("triples", tupleindex.TripleOrders)
	require.NoError(t, err)
	_, err = tt.Add(types.Tuple{1, 1, 1})
	require.NoError(t, err)
	assert.NoFileExists(t, root+"/catalog.json")
}
