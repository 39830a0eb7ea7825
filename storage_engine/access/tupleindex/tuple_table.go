package tupleindex

import (
	"slices"

	indexfile "QuadDB/storage_engine/access/indexfile_manager"
	bplus "QuadDB/storage_engine/access/indexfile_manager/bplustree"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Standard column orders.
var (
	TripleOrders = []string{"SPO", "POS", "OSP"}
	QuadOrders   = []string{"GSPO", "GPOS", "GOSP", "SPOG", "POSG", "OSPG"}
)

// TupleTable keeps several indexes of the same tuples in step. The first
// index is the primary one: it decides whether a tuple is new.
type TupleTable struct {
	name    string
	ifm     *indexfile.IndexFileManager
	order   int
	indexes []*TupleIndex
	logger  *zap.Logger
}

// IndexName is the file name of one index of a table, e.g. "quads-POSG".
func IndexName(table, order string) string {
	return table + "-" + order
}

// Open opens, or creates, the indexes of table in ifm. orders[0] is the
// primary column order. order is the B+Tree order, 0 for the largest that fits.
func Open(ifm *indexfile.IndexFileManager, table string, orders []string, order int, logger *zap.Logger) (*TupleTable, error) {
	if len(orders) == 0 {
		return nil, errors.Errorf("table %s: no index orders", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	primary := orders[0]
	p, err := bplus.NewParams(order, FactoryFor(len(primary)), ifm.Options().BlockSize)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", table)
	}

	tt := &TupleTable{name: table, ifm: ifm, order: p.Order, logger: logger.Named("tuples").With(zap.String("table", table))}
	for _, o := range orders {
		cols, err := NewColumnMap(primary, o)
		if err != nil {
			return nil, err
		}
		tree, err := ifm.GetOrCreateIndex(IndexName(table, o), p)
		if err != nil {
			return nil, err
		}
		x, err := NewTupleIndex(IndexName(table, o), cols, tree)
		if err != nil {
			return nil, err
		}
		tt.indexes = append(tt.indexes, x)
	}
	return tt, nil
}

func (tt *TupleTable) Name() string {
	return tt.name
}

func (tt *TupleTable) Arity() int {
	return tt.indexes[0].cols.Len()
}

func (tt *TupleTable) Indexes() []*TupleIndex {
	return tt.indexes
}

// Add stores t in every index. It reports false if t was already present.
func (tt *TupleTable) Add(t types.Tuple) (bool, error) {
	added, err := tt.indexes[0].Add(t)
	if err != nil || !added {
		return false, err
	}
	for _, x := range tt.indexes[1:] {
		ok, err := x.Add(t)
		if err != nil {
			return true, errors.Wrapf(err, "index %s", x.name)
		}
		if !ok {
			dberrors.Fatalf(types.NoBlock, nil, "tuple %s new in %s but present in %s", t, tt.indexes[0].name, x.name)
		}
	}
	return true, nil
}

// Delete removes t from every index. It reports false if t was absent.
func (tt *TupleTable) Delete(t types.Tuple) (bool, error) {
	deleted, err := tt.indexes[0].Delete(t)
	if err != nil || !deleted {
		return false, err
	}
	for _, x := range tt.indexes[1:] {
		ok, err := x.Delete(t)
		if err != nil {
			return true, errors.Wrapf(err, "index %s", x.name)
		}
		if !ok {
			dberrors.Fatalf(types.NoBlock, nil, "tuple %s deleted from %s but missing in %s", t, tt.indexes[0].name, x.name)
		}
	}
	return true, nil
}

func (tt *TupleTable) Contains(t types.Tuple) (bool, error) {
	return tt.indexes[0].Contains(t)
}

// BestIndex picks the index that turns most of pattern into a key range.
// Ties go to the earlier index.
func (tt *TupleTable) BestIndex(pattern types.Tuple) *TupleIndex {
	best, weight := tt.indexes[0], -1
	for _, x := range tt.indexes {
		if w := x.Weight(pattern); w > weight {
			best, weight = x, w
		}
	}
	return best
}

// Find returns the tuples matching pattern, in the order of the index used.
func (tt *TupleTable) Find(pattern types.Tuple) ([]types.Tuple, error) {
	x := tt.BestIndex(pattern)
	tt.logger.Debug("find", zap.Stringer("pattern", pattern), zap.String("index", x.name))
	return x.Find(pattern)
}

// Values returns the distinct ids in column col (primary order) of the tuples
// matching pattern.
func (tt *TupleTable) Values(pattern types.Tuple, col int) (*roaring64.Bitmap, error) {
	return tt.BestIndex(pattern).Values(pattern, col)
}

func (tt *TupleTable) Size() (int64, error) {
	return tt.indexes[0].Size()
}

// BulkLoad replaces the content of the table with ts. Each index is rebuilt
// with the rewriter from its own sorted copy of the tuples; repeated tuples
// are stored once.
func (tt *TupleTable) BulkLoad(ts []types.Tuple) error {
	for i, x := range tt.indexes {
		recs, err := x.records(ts)
		if err != nil {
			return err
		}
		tree, err := tt.ifm.BulkLoad(x.name, x.tree.Params(), bplus.NewSliceSource(recs))
		if err != nil {
			return errors.Wrapf(err, "bulk load %s", x.name)
		}
		tt.indexes[i].tree = tree
		tt.logger.Info("loaded index", zap.String("index", x.name), zap.Int("tuples", len(recs)))
	}
	return nil
}

// Check audits every index tree and that all indexes hold the same number
// of tuples.
func (tt *TupleTable) Check() error {
	var want int64 = -1
	for _, x := range tt.indexes {
		if err := x.tree.Check(); err != nil {
			return errors.Wrapf(err, "index %s", x.name)
		}
		n, err := x.Size()
		if err != nil {
			return err
		}
		if want >= 0 && n != want {
			return dberrors.Inconsistent(types.NoBlock, nil, "index %s holds %d tuples, %s holds %d", x.name, n, tt.indexes[0].name, want)
		}
		want = n
	}
	return nil
}

// Compact rewrites every index tree.
func (tt *TupleTable) Compact() error {
	for _, x := range tt.indexes {
		if err := x.tree.Compact(); err != nil {
			return errors.Wrapf(err, "index %s", x.name)
		}
	}
	return nil
}

// Close closes the table's indexes in ifm.
func (tt *TupleTable) Close() error {
	var err error
	for _, x := range tt.indexes {
		err = multierr.Append(err, tt.ifm.CloseIndex(x.name))
	}
	return err
}

func sortRecords(recs []record.Record) {
	slices.SortFunc(recs, record.Compare)
}
