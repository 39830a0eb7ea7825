package bplus

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"QuadDB/storage_engine/access/recordpage"
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 128

var (
	keyOnly   = record.MustFactory(4, 0)
	withValue = record.MustFactory(4, 4)
)

func key(f record.Factory, k uint32) record.Record {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, k)
	var v []byte
	if f.HasValue() {
		v = make([]byte, f.ValueLength())
		binary.BigEndian.PutUint32(v, k*10)
	}
	return f.MustCreate(b, v)
}

func keysOf(recs []record.Record) []uint32 {
	out := make([]uint32, len(recs))
	for i, r := range recs {
		out[i] = binary.BigEndian.Uint32(r.Key())
	}
	return out
}

func managers(t *testing.T) (*blockmanager.Mem, *blockmanager.Mem) {
	t.Helper()
	nodes, err := blockmanager.NewMem("test.idn", testBlockSize)
	require.NoError(t, err)
	records, err := blockmanager.NewMem("test.dat", testBlockSize)
	require.NoError(t, err)
	return nodes, records
}

func makeTree(t *testing.T, order int, f record.Factory) *BPlusTree {
	t.Helper()
	nodes, records := managers(t)
	p, err := NewParams(order, f, testBlockSize)
	require.NoError(t, err)
	tree, err := Create(nodes, records, p)
	require.NoError(t, err)
	return tree
}

func scan(t *testing.T, tree *BPlusTree) []uint32 {
	t.Helper()
	it, err := tree.Iterator()
	require.NoError(t, err)
	recs, err := recordpage.Collect(it)
	require.NoError(t, err)
	return keysOf(recs)
}

func assertQuiet(t *testing.T, tree *BPlusTree) {
	t.Helper()
	nodes, records := tree.Managers()
	assert.Equal(t, 0, nodes.Checkouts(), "node checkouts")
	assert.Equal(t, 0, records.Checkouts(), "record checkouts")
	assert.Equal(t, 0, records.OpenIterators(), "open iterators")
}

func TestConcreteScenario(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()

	for _, k := range []uint32{5, 3, 8, 1, 9, 2, 7} {
		require.NoError(t, tree.Add(key(keyOnly, k)))
		require.NoError(t, tree.Check())
	}
	assert.Equal(t, []uint32{1, 2, 3, 5, 7, 8, 9}, scan(t, tree))

	for _, k := range []uint32{5, 1} {
		ok, err := tree.Delete(key(keyOnly, k))
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, tree.Check())
	}
	assert.Equal(t, []uint32{2, 3, 7, 8, 9}, scan(t, tree))

	size, err := tree.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assertQuiet(t, tree)
}

func TestSplitShape(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()

	for _, k := range []uint32{5, 3, 8, 1} {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}
	// [1 3 5 8] splits into [1 3] | 5 | [5 8]
	m, err := tree.readMeta()
	require.NoError(t, err)
	require.Equal(t, 1, m.height)
	root, err := tree.fetchNode(m.root)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5}, keysOf(root.keys))
	left, err := tree.fetchLeaf(root.children[0])
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, keysOf(left.recs))
	assert.Equal(t, types.Ref(root.children[1]), left.link)
}

func TestRangeBounds(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()
	for k := uint32(1); k <= 5; k++ {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}

	from, to := key(keyOnly, 2), key(keyOnly, 4)
	it, err := tree.IteratorRange(&from, &to)
	require.NoError(t, err)
	recs, err := recordpage.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, keysOf(recs))

	it, err = tree.IteratorRange(&to, &from)
	require.NoError(t, err)
	recs, err = recordpage.Collect(it)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assertQuiet(t, tree)
}

func TestEmptyTree(t *testing.T) {
	tree := makeTree(t, 4, keyOnly)
	defer tree.Close()

	_, ok, err := tree.Find(key(keyOnly, 1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, scan(t, tree))
	size, err := tree.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	ok, err = tree.Delete(key(keyOnly, 1))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tree.Check())
}

func TestDuplicateAndUpdate(t *testing.T) {
	tree := makeTree(t, 3, withValue)
	defer tree.Close()

	require.NoError(t, tree.Add(key(withValue, 7)))
	err := tree.Add(key(withValue, 7))
	assert.True(t, dberrors.IsDuplicateKey(err))

	replacement := withValue.MustCreate(key(withValue, 7).Key(), []byte{0, 0, 0, 1})
	replaced, err := tree.Update(replacement)
	require.NoError(t, err)
	assert.True(t, replaced)

	got, ok, err := tree.Find(key(withValue, 7))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 1}, got.Value())

	replaced, err = tree.Update(key(withValue, 8))
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, []uint32{7, 8}, scan(t, tree))

	assert.Error(t, tree.Add(key(keyOnly, 9)), "wrong record shape")
}

func TestRandomizedAddDelete(t *testing.T) {
	for _, order := range []int{3, 4, 5, 8} {
		t.Run("order"+string(rune('0'+order)), func(t *testing.T) {
			tree := makeTree(t, order, withValue)
			defer tree.Close()
			rng := rand.New(rand.NewSource(int64(order)))
			ref := map[uint32]bool{}

			for step := 0; step < 600; step++ {
				k := uint32(rng.Intn(200))
				if rng.Intn(3) > 0 {
					err := tree.Add(key(withValue, k))
					if ref[k] {
						require.True(t, dberrors.IsDuplicateKey(err))
					} else {
						require.NoError(t, err)
					}
					ref[k] = true
				} else {
					ok, err := tree.Delete(key(withValue, k))
					require.NoError(t, err)
					require.Equal(t, ref[k], ok)
					delete(ref, k)
				}
				if step%25 == 0 {
					require.NoError(t, tree.Check(), "step %d", step)
				}
			}
			require.NoError(t, tree.Check())

			want := make([]uint32, 0, len(ref))
			for k := range ref {
				want = append(want, k)
			}
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			assert.Equal(t, want, scan(t, tree))

			for k := uint32(0); k < 200; k++ {
				got, ok, err := tree.Find(key(withValue, k))
				require.NoError(t, err)
				require.Equal(t, ref[k], ok, "key %d", k)
				if ok {
					assert.True(t, record.Equal(key(withValue, k), got))
				}
			}

			// drain completely; the root must end as an empty record page
			for k := range ref {
				_, err := tree.Delete(key(withValue, k))
				require.NoError(t, err)
			}
			require.NoError(t, tree.Check())
			h, err := tree.Height()
			require.NoError(t, err)
			assert.Equal(t, 0, h)
			assertQuiet(t, tree)
		})
	}
}

func TestAddDeleteInverse(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()
	for k := uint32(0); k < 60; k += 2 {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}
	before := scan(t, tree)

	for _, k := range []uint32{1, 29, 59, 100} {
		require.NoError(t, tree.Add(key(keyOnly, k)))
		require.NoError(t, tree.Check())
		ok, err := tree.Delete(key(keyOnly, k))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tree.Check())
		assert.Equal(t, before, scan(t, tree))
	}
}

func sortedRecs(f record.Factory, n int) []record.Record {
	out := make([]record.Record, n)
	for i := range out {
		out[i] = key(f, uint32(i*3+1))
	}
	return out
}

func TestRewriterRoundTrip(t *testing.T) {
	for _, order := range []int{3, 4, 5, 7} {
		var sizes []int
		for k := 0; k <= 7; k++ {
			sizes = append(sizes, order*k, order*k+1)
		}
		sizes = append(sizes, order*order*order+order-1)

		for _, n := range sizes {
			nodes, records := managers(t)
			p, err := NewParams(order, withValue, testBlockSize)
			require.NoError(t, err)
			input := sortedRecs(withValue, n)

			tree, err := Build(nodes, records, p, NewSliceSource(input))
			require.NoError(t, err, "order %d n %d", order, n)
			require.NoError(t, tree.Check(), "order %d n %d", order, n)

			got := scan(t, tree)
			if n == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, keysOf(input), got, "order %d n %d", order, n)
			}
			size, err := tree.Size()
			require.NoError(t, err)
			assert.Equal(t, int64(n), size)
			assertQuiet(t, tree)

			// the built tree stays usable incrementally
			require.NoError(t, tree.Add(key(withValue, 0)))
			require.NoError(t, tree.Check())
			require.NoError(t, tree.Close())
		}
	}
}

func TestRewriterPacksFullPages(t *testing.T) {
	nodes, records := managers(t)
	p, err := NewParams(4, keyOnly, testBlockSize)
	require.NoError(t, err)
	tree, err := Build(nodes, records, p, NewSliceSource(sortedRecs(keyOnly, 13)))
	require.NoError(t, err)
	defer tree.Close()

	// 13 records at order 4: 4 4 | 5 split as 2 3
	m, err := tree.readMeta()
	require.NoError(t, err)
	_, leaves, err := tree.collectBlocks(m)
	require.NoError(t, err)
	var counts []int
	for _, id := range leaves {
		l, err := tree.fetchLeaf(id)
		require.NoError(t, err)
		counts = append(counts, len(l.recs))
	}
	assert.Equal(t, []int{4, 4, 2, 3}, counts)
}

func TestRewriterRejectsBadInput(t *testing.T) {
	p, err := NewParams(3, keyOnly, testBlockSize)
	require.NoError(t, err)

	nodes, records := managers(t)
	unsorted := []record.Record{key(keyOnly, 2), key(keyOnly, 1)}
	_, err = Build(nodes, records, p, NewSliceSource(unsorted))
	assert.ErrorIs(t, err, dberrors.ErrUnsortedInput)

	nodes, records = managers(t)
	dup := []record.Record{key(keyOnly, 2), key(keyOnly, 2)}
	_, err = Build(nodes, records, p, NewSliceSource(dup))
	assert.True(t, dberrors.IsDuplicateKey(err))
}

func TestCompact(t *testing.T) {
	tree := makeTree(t, 3, withValue)
	defer tree.Close()
	for k := uint32(0); k < 300; k++ {
		require.NoError(t, tree.Add(key(withValue, k)))
	}
	for k := uint32(0); k < 300; k += 3 {
		_, err := tree.Delete(key(withValue, k))
		require.NoError(t, err)
	}
	before := scan(t, tree)
	fp, err := tree.Fingerprint()
	require.NoError(t, err)
	statsBefore, err := tree.Stats()
	require.NoError(t, err)

	require.NoError(t, tree.Compact())
	require.NoError(t, tree.Check())
	assert.Equal(t, before, scan(t, tree))
	after, err := tree.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, after)

	stats, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, statsBefore.Records, stats.Records)
	assert.LessOrEqual(t, stats.Leaves, statsBefore.Leaves)
	assertQuiet(t, tree)

	// old pages were freed: everything allocated is reachable
	nodes, records := tree.Managers()
	assert.Equal(t, stats.Leaves, countValid(records))
	assert.Equal(t, stats.Branches+1, countValid(nodes))
}

func countValid(mgr blockmanager.BlockManager) int {
	n := 0
	for id := types.BlockID(0); id < 1000; id++ {
		if mgr.Valid(id) {
			n++
		}
	}
	return n
}

func TestCompactRefusesOpenIterator(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	for k := uint32(0); k < 10; k++ {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}
	it, err := tree.Iterator()
	require.NoError(t, err)

	var got error
	func() {
		defer dberrors.Recover(&got)
		_ = tree.Compact()
	}()
	assert.True(t, dberrors.IsConsistency(got))

	require.NoError(t, it.Close())
	require.NoError(t, tree.Compact())
	require.NoError(t, tree.Close())
}

func TestRebuild(t *testing.T) {
	tree := makeTree(t, 3, withValue)
	defer tree.Close()
	for k := uint32(0); k < 50; k++ {
		require.NoError(t, tree.Add(key(withValue, k)))
	}

	p, err := NewParams(5, withValue, testBlockSize)
	require.NoError(t, err)
	input := sortedRecs(withValue, 60)
	require.NoError(t, tree.Rebuild(p, NewSliceSource(input)))
	assert.Equal(t, 5, tree.Params().Order)
	require.NoError(t, tree.Check())
	assert.Equal(t, keysOf(input), scan(t, tree))

	stats, err := tree.Stats()
	require.NoError(t, err)
	nodes, records := tree.Managers()
	assert.Equal(t, stats.Leaves, countValid(records))
	assert.Equal(t, stats.Branches+1, countValid(nodes))

	// a failed rebuild keeps the tree and its shape
	wide, err := NewParams(6, withValue, testBlockSize)
	require.NoError(t, err)
	unsorted := []record.Record{key(withValue, 9), key(withValue, 8)}
	err = tree.Rebuild(wide, NewSliceSource(unsorted))
	assert.ErrorIs(t, err, dberrors.ErrUnsortedInput)
	assert.Equal(t, p, tree.Params())
	require.NoError(t, tree.Check())
	assert.Equal(t, keysOf(input), scan(t, tree))

	again, err := Open(nodes, records)
	require.NoError(t, err)
	assert.Equal(t, p, again.Params())
	assertQuiet(t, tree)
}

func TestOpenExistingTree(t *testing.T) {
	nodes, records := managers(t)
	p, err := NewParams(5, withValue, testBlockSize)
	require.NoError(t, err)
	tree, err := Create(nodes, records, p)
	require.NoError(t, err)
	for k := uint32(0); k < 40; k++ {
		require.NoError(t, tree.Add(key(withValue, k)))
	}

	again, err := Open(nodes, records)
	require.NoError(t, err)
	assert.Equal(t, p, again.Params())
	got, ok, err := again.Find(key(withValue, 33))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, record.Equal(key(withValue, 33), got))

	// a second Create on a used node manager is refused
	_, err = Create(nodes, records, p)
	assert.Error(t, err)
}

func TestNewParams(t *testing.T) {
	p, err := NewParams(0, keyOnly, testBlockSize)
	require.NoError(t, err)
	// branch: 8 + (o-1)*4 + o*4 <= 128 gives 15; leaf holds 30
	assert.Equal(t, 15, p.Order)
	assert.Equal(t, 8, p.MinEntries())

	_, err = NewParams(2, keyOnly, testBlockSize)
	assert.True(t, dberrors.IsCapacity(err))
	_, err = NewParams(16, keyOnly, testBlockSize)
	assert.True(t, dberrors.IsCapacity(err))
	_, err = NewParams(0, record.MustFactory(60, 60), testBlockSize)
	assert.True(t, dberrors.IsCapacity(err))
}

func TestBranchCodec(t *testing.T) {
	p := Params{Order: 4, KeyLength: 4}
	n := &Node{
		id:           9,
		leafChildren: true,
		keys:         []record.Record{key(keyOnly, 10), key(keyOnly, 20)},
		children:     []types.BlockID{3, 4, 5},
	}
	data := make([]byte, branchLength(p))
	SerializeNode(n, p, data)

	assert.Equal(t, []byte{0, 0, 0, 2, 0, 0, 0, 1}, data[:branchHeaderLength])
	assert.Equal(t, []byte{0, 0, 0, 3}, data[childrenOffset(p):childrenOffset(p)+4])

	got, err := DeserializeNode(9, p, keyOnly, data)
	require.NoError(t, err)
	assert.Equal(t, n.leafChildren, got.leafChildren)
	assert.Equal(t, []uint32{10, 20}, keysOf(got.keys))
	assert.Equal(t, n.children, got.children)

	data[branchKindOffset+3] = 7
	_, err = DeserializeNode(9, p, keyOnly, data)
	assert.True(t, dberrors.IsConsistency(err))
}

func TestCheckDetectsDisorder(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()
	for k := uint32(1); k <= 9; k++ {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}
	m, err := tree.readMeta()
	require.NoError(t, err)
	_, leaves, err := tree.collectBlocks(m)
	require.NoError(t, err)

	// overwrite the second page so it repeats a key of the first
	l, err := tree.fetchLeaf(leaves[1])
	require.NoError(t, err)
	l.recs[0] = key(keyOnly, 1)
	require.NoError(t, tree.writeLeaf(l))

	err = tree.Check()
	require.Error(t, err)
	assert.True(t, dberrors.IsConsistency(err))
	assertQuiet(t, tree)
}

func TestCheckDetectsSharedPage(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()
	for k := uint32(1); k <= 9; k++ {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}
	m, err := tree.readMeta()
	require.NoError(t, err)
	require.Greater(t, m.height, 0)

	n, err := tree.fetchNode(m.root)
	require.NoError(t, err)
	for !n.leafChildren {
		n, err = tree.fetchNode(n.children[0])
		require.NoError(t, err)
	}
	n.children[1] = n.children[0]
	require.NoError(t, tree.writeNode(n))

	err = tree.Check()
	require.Error(t, err)
	assert.True(t, dberrors.IsConsistency(err))
	assert.Contains(t, err.Error(), "reachable twice")
}

func TestDumpAndStats(t *testing.T) {
	tree := makeTree(t, 3, keyOnly)
	defer tree.Close()
	for k := uint32(1); k <= 7; k++ {
		require.NoError(t, tree.Add(key(keyOnly, k)))
	}
	var buf bytes.Buffer
	require.NoError(t, tree.Dump(&buf))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Tree test.dat: order=3"))
	assert.Contains(t, out, "Level 0:")
	assert.Contains(t, out, "[00000007]")

	stats, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Records)
	assert.Contains(t, stats.String(), "records=7")
}
