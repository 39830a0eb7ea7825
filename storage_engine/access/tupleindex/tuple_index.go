package tupleindex

import (
	"bytes"
	"encoding/binary"

	bplus "QuadDB/storage_engine/access/indexfile_manager/bplustree"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/pkg/errors"
)

// TupleIndex stores tuples of one arity as key-only records in one column
// order. Node ids are written big-endian so byte order is numeric order.
type TupleIndex struct {
	name    string
	cols    ColumnMap
	tree    *bplus.BPlusTree
	factory record.Factory
}

// FactoryFor is the record shape of a tuple index of the given arity.
func FactoryFor(arity int) record.Factory {
	return record.MustFactory(arity*types.NodeIDSize, 0)
}

func NewTupleIndex(name string, cols ColumnMap, tree *bplus.BPlusTree) (*TupleIndex, error) {
	want := FactoryFor(cols.Len())
	got := tree.Factory()
	if got.KeyLength() != want.KeyLength() || got.ValueLength() != 0 {
		return nil, errors.Errorf("index %s: tree records are %d+%d bytes, tuples of %d need %d+0",
			name, got.KeyLength(), got.ValueLength(), cols.Len(), want.KeyLength())
	}
	return &TupleIndex{name: name, cols: cols, tree: tree, factory: want}, nil
}

func (x *TupleIndex) Name() string {
	return x.name
}

func (x *TupleIndex) ColumnMap() ColumnMap {
	return x.cols
}

func (x *TupleIndex) Tree() *bplus.BPlusTree {
	return x.tree
}

// encode builds the record of t, given in primary order.
func (x *TupleIndex) encode(t types.Tuple) record.Record {
	return x.encodeIndexOrder(x.cols.Map(t))
}

func (x *TupleIndex) encodeIndexOrder(t types.Tuple) record.Record {
	key := make([]byte, len(t)*types.NodeIDSize)
	for i, n := range t {
		binary.BigEndian.PutUint64(key[i*types.NodeIDSize:], uint64(n))
	}
	return x.factory.MustCreate(key, nil)
}

// decode returns the primary-order tuple of r.
func (x *TupleIndex) decode(r record.Record) types.Tuple {
	key := r.Key()
	t := make(types.Tuple, x.cols.Len())
	for i := range t {
		t[i] = types.NodeID(binary.BigEndian.Uint64(key[i*types.NodeIDSize:]))
	}
	return x.cols.Unmap(t)
}

func (x *TupleIndex) checkTuple(t types.Tuple, pattern bool) error {
	if t.Len() != x.cols.Len() {
		return errors.Errorf("index %s: tuple %s has %d columns, want %d", x.name, t, t.Len(), x.cols.Len())
	}
	if !pattern && t.IsPattern() {
		return errors.Errorf("index %s: tuple %s has an unbound column", x.name, t)
	}
	return nil
}

// Add stores t. It reports false if t was already present.
func (x *TupleIndex) Add(t types.Tuple) (bool, error) {
	if err := x.checkTuple(t, false); err != nil {
		return false, err
	}
	err := x.tree.Add(x.encode(t))
	if dberrors.IsDuplicateKey(err) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes t. It reports false if t was not present.
func (x *TupleIndex) Delete(t types.Tuple) (bool, error) {
	if err := x.checkTuple(t, false); err != nil {
		return false, err
	}
	return x.tree.Delete(x.encode(t))
}

func (x *TupleIndex) Contains(t types.Tuple) (bool, error) {
	if err := x.checkTuple(t, false); err != nil {
		return false, err
	}
	return x.tree.Contains(x.encode(t))
}

// Weight is the number of leading index columns bound in pattern: how much
// of a scan this index can narrow to a key range.
func (x *TupleIndex) Weight(pattern types.Tuple) int {
	mapped := x.cols.Map(pattern)
	n := 0
	for n < len(mapped) && mapped[n] != types.AnyNode {
		n++
	}
	return n
}

// Scan calls fn for every tuple matching pattern (AnyNode = any), in index
// order, until fn returns false. Bound leading columns become a key range;
// the remaining bound columns are filtered.
func (x *TupleIndex) Scan(pattern types.Tuple, fn func(types.Tuple) bool) error {
	if err := x.checkTuple(pattern, true); err != nil {
		return err
	}
	prefix := x.Weight(pattern)
	if prefix == x.cols.Len() {
		ok, err := x.tree.Contains(x.encode(pattern))
		if err != nil || !ok {
			return err
		}
		fn(pattern.Clone())
		return nil
	}

	var from, to *record.Record
	if prefix > 0 {
		mapped := x.cols.Map(pattern)
		lo := make(types.Tuple, len(mapped))
		copy(lo, mapped[:prefix])
		r := x.encodeIndexOrder(lo)
		from = &r
		if hi, ok := successor(r.Key()[:prefix*types.NodeIDSize]); ok {
			key := make([]byte, x.factory.KeyLength())
			copy(key, hi)
			hr := x.factory.MustCreate(key, nil)
			to = &hr
		}
	}

	it, err := x.tree.IteratorRange(from, to)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		t := x.decode(it.Record())
		if !matches(pattern, t) {
			continue
		}
		if !fn(t) {
			return nil
		}
	}
	return it.Err()
}

// Find collects the tuples matching pattern.
func (x *TupleIndex) Find(pattern types.Tuple) ([]types.Tuple, error) {
	var out []types.Tuple
	err := x.Scan(pattern, func(t types.Tuple) bool {
		out = append(out, t)
		return true
	})
	return out, err
}

// Values returns the distinct ids in primary column col of the tuples
// matching pattern.
func (x *TupleIndex) Values(pattern types.Tuple, col int) (*roaring64.Bitmap, error) {
	if col < 0 || col >= x.cols.Len() {
		return nil, errors.Errorf("index %s: column %d out of range", x.name, col)
	}
	out := roaring64.New()
	err := x.Scan(pattern, func(t types.Tuple) bool {
		out.Add(uint64(t[col]))
		return true
	})
	return out, err
}

func (x *TupleIndex) All() ([]types.Tuple, error) {
	return x.Find(make(types.Tuple, x.cols.Len()))
}

func (x *TupleIndex) Size() (int64, error) {
	return x.tree.Size()
}

// records returns every tuple of ts as a sorted, duplicate-free record list.
func (x *TupleIndex) records(ts []types.Tuple) ([]record.Record, error) {
	recs := make([]record.Record, 0, len(ts))
	for _, t := range ts {
		if err := x.checkTuple(t, false); err != nil {
			return nil, err
		}
		recs = append(recs, x.encode(t))
	}
	sortRecords(recs)
	out := recs[:0]
	for i, r := range recs {
		if i > 0 && bytes.Equal(recs[i-1].Key(), r.Key()) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func matches(pattern, t types.Tuple) bool {
	for i, n := range pattern {
		if n != types.AnyNode && n != t[i] {
			return false
		}
	}
	return true
}

// successor is the smallest byte string greater than every string with the
// given prefix; false if the prefix is all 0xFF.
func successor(prefix []byte) ([]byte, bool) {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out[:i+1], true
		}
	}
	return nil, false
}
