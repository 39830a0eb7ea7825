package tupleindex

import (
	"testing"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	"QuadDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tup(ids ...types.NodeID) types.Tuple {
	return types.Tuple(ids)
}

func TestColumnMap(t *testing.T) {
	cm, err := NewColumnMap("SPO", "POS")
	require.NoError(t, err)
	assert.Equal(t, tup(2, 3, 1), cm.Map(tup(1, 2, 3)))
	assert.Equal(t, tup(1, 2, 3), cm.Unmap(tup(2, 3, 1)))
	assert.Equal(t, "SPO->POS", cm.String())

	_, err = NewColumnMap("SPO", "SPOG")
	assert.Error(t, err)
	_, err = NewColumnMap("SPO", "SSO")
	assert.Error(t, err)
	_, err = NewColumnMap("SPO", "SPX")
	assert.Error(t, err)
}

func TestSuccessor(t *testing.T) {
	got, ok := successor([]byte{0, 5})
	require.True(t, ok)
	assert.Equal(t, []byte{0, 6}, got)

	got, ok = successor([]byte{1, 0xFF})
	require.True(t, ok)
	assert.Equal(t, []byte{2}, got)

	_, ok = successor([]byte{0xFF, 0xFF})
	assert.False(t, ok)
}

func openTable(t *testing.T, orders []string) *TupleTable {
	t.Helper()
	ifm, err := indexfile.New("", indexfile.Options{Backing: indexfile.BackingMemory, BlockSize: 512})
	require.NoError(t, err)
	tt, err := Open(ifm, "triples", orders, 4, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ifm.CloseAll() })
	return tt
}

func sample() []types.Tuple {
	var out []types.Tuple
	for s := types.NodeID(1); s <= 5; s++ {
		for p := types.NodeID(10); p <= 12; p++ {
			out = append(out, tup(s, p, s*100+p))
		}
	}
	return out
}

func TestTableAddFindDelete(t *testing.T) {
	tt := openTable(t, TripleOrders)

	for _, x := range sample() {
		added, err := tt.Add(x)
		require.NoError(t, err)
		assert.True(t, added)
	}
	added, err := tt.Add(tup(1, 10, 110))
	require.NoError(t, err)
	assert.False(t, added)

	_, err = tt.Add(tup(1, 0, 3))
	assert.Error(t, err, "unbound column")

	size, err := tt.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(15), size)
	require.NoError(t, tt.Check())

	// subject bound: SPO
	got, err := tt.Find(tup(2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []types.Tuple{tup(2, 10, 210), tup(2, 11, 211), tup(2, 12, 212)}, got)
	assert.Equal(t, "triples-SPO", tt.BestIndex(tup(2, 0, 0)).Name())

	// predicate bound: POS
	got, err = tt.Find(tup(0, 11, 0))
	require.NoError(t, err)
	assert.Len(t, got, 5)
	for _, x := range got {
		assert.Equal(t, types.NodeID(11), x[1])
	}
	assert.Equal(t, "triples-POS", tt.BestIndex(tup(0, 11, 0)).Name())

	// object bound: OSP
	got, err = tt.Find(tup(0, 0, 312))
	require.NoError(t, err)
	assert.Equal(t, []types.Tuple{tup(3, 12, 312)}, got)

	// fully bound
	got, err = tt.Find(tup(4, 10, 410))
	require.NoError(t, err)
	assert.Equal(t, []types.Tuple{tup(4, 10, 410)}, got)
	got, err = tt.Find(tup(4, 10, 411))
	require.NoError(t, err)
	assert.Empty(t, got)

	// S and O bound, P filtered
	got, err = tt.Find(tup(5, 0, 511))
	require.NoError(t, err)
	assert.Equal(t, []types.Tuple{tup(5, 11, 511)}, got)

	deleted, err := tt.Delete(tup(2, 11, 211))
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = tt.Delete(tup(2, 11, 211))
	require.NoError(t, err)
	assert.False(t, deleted)

	for _, x := range tt.Indexes() {
		got, err := x.Find(tup(2, 0, 0))
		require.NoError(t, err)
		assert.Len(t, got, 2, x.Name())
	}
	require.NoError(t, tt.Check())
}

func TestTableBulkLoad(t *testing.T) {
	tt := openTable(t, TripleOrders)
	_, err := tt.Add(tup(9, 9, 9))
	require.NoError(t, err)

	tuples := sample()
	tuples = append(tuples, tuples[0]) // repeated tuples are stored once
	require.NoError(t, tt.BulkLoad(tuples))
	require.NoError(t, tt.Check())

	size, err := tt.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(15), size)

	ok, err := tt.Contains(tup(9, 9, 9))
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := tt.Indexes()[2].All()
	require.NoError(t, err)
	require.Len(t, all, 15)
	// OSP order: objects ascending
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1][2], all[i][2])
	}

	// still incrementally writable
	added, err := tt.Add(tup(6, 10, 610))
	require.NoError(t, err)
	assert.True(t, added)
	require.NoError(t, tt.Compact())
	require.NoError(t, tt.Check())
}

func TestScanStopsEarly(t *testing.T) {
	tt := openTable(t, []string{"SPO"})
	require.NoError(t, tt.BulkLoad(sample()))

	var seen int
	err := tt.Indexes()[0].Scan(tup(0, 0, 0), func(types.Tuple) bool {
		seen++
		return seen < 4
	})
	require.NoError(t, err)
	assert.Equal(t, 4, seen)

	nodes, records := tt.Indexes()[0].Tree().Managers()
	assert.Equal(t, 0, records.OpenIterators())
	assert.Equal(t, 0, records.Checkouts())
	assert.Equal(t, 0, nodes.Checkouts())
}

func TestQuads(t *testing.T) {
	tt := openTable(t, QuadOrders)
	require.Equal(t, 4, tt.Arity())

	_, err := tt.Add(tup(1, 2, 3, 4))
	require.NoError(t, err)
	_, err = tt.Add(tup(1, 5, 3, 4))
	require.NoError(t, err)

	got, err := tt.Find(tup(0, 0, 3, 4))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "triples-POSG", tt.BestIndex(tup(0, 0, 3, 4)).Name())
	assert.Equal(t, "triples-GPOS", tt.BestIndex(tup(1, 0, 3, 0)).Name())
	assert.Equal(t, "triples-GSPO", tt.BestIndex(tup(1, 2, 0, 0)).Name())
}

func TestValues(t *testing.T) {
	tt := openTable(t, TripleOrders)
	require.NoError(t, tt.BulkLoad(sample()))

	subjects, err := tt.Values(tup(0, 11, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, subjects.ToArray())

	objects, err := tt.Values(tup(3, 0, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{310, 311, 312}, objects.ToArray())

	_, err = tt.Values(tup(0, 0, 0), 3)
	assert.Error(t, err)
}
