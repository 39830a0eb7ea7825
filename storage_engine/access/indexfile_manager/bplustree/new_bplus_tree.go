package bplus

import (
	"QuadDB/storage_engine/access/recordpage"
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func newTree(nodes, records blockmanager.BlockManager, p Params, opts []Option) *BPlusTree {
	t := &BPlusTree{
		nodes:   nodes,
		records: records,
		logger:  zap.NewNop(),
	}
	t.setParams(p)
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("bplus").With(zap.String("index", records.Label()))
	return t
}

// Create formats a new, empty tree. nodes must not have allocated any block
// yet: block 0 becomes the tree meta.
func Create(nodes, records blockmanager.BlockManager, p Params, opts ...Option) (*BPlusTree, error) {
	if err := p.checkFits(nodes.BlockSize(), records.BlockSize()); err != nil {
		return nil, err
	}
	t := newTree(nodes, records, p, opts)

	if err := t.reserveMeta(); err != nil {
		return nil, err
	}
	root, err := t.newLeaf()
	if err != nil {
		return nil, err
	}
	if err := t.writeLeaf(root); err != nil {
		return nil, err
	}
	if err := t.writeMeta(meta{root: root.id, params: p}); err != nil {
		return nil, err
	}
	t.logger.Debug("new tree", zap.Int("order", p.Order), zap.Int64("root", int64(root.id)))
	return t, nil
}

func (t *BPlusTree) setParams(p Params) {
	f := p.Factory()
	t.params, t.factory, t.keys = p, f, f.KeyFactory()
}

func (t *BPlusTree) reserveMeta() error {
	blk, err := t.nodes.Allocate(types.BlockTypeMeta)
	if err != nil {
		return errors.Wrap(err, "reserve tree meta")
	}
	t.nodes.Release(blk)
	if blk.ID != metaBlock {
		return errors.Errorf("%s: node manager already in use, meta landed in block %d", t.nodes.Label(), blk.ID)
	}
	return nil
}

// Open attaches to a tree previously made by Create or Build. The shape is
// taken from the stored meta.
func Open(nodes, records blockmanager.BlockManager, opts ...Option) (*BPlusTree, error) {
	blk, err := nodes.GetRead(metaBlock)
	if err != nil {
		return nil, errors.Wrap(err, "open tree")
	}
	m, err := decodeMeta(blk.Data)
	nodes.Release(blk)
	if err != nil {
		return nil, err
	}
	if err := m.params.checkFits(nodes.BlockSize(), records.BlockSize()); err != nil {
		return nil, err
	}
	t := newTree(nodes, records, m.params, opts)
	t.logger.Debug("loaded tree", zap.Int64("root", int64(m.root)), zap.Int("height", m.height))
	return t, nil
}

// Iterator scans the whole tree in key order.
func (t *BPlusTree) Iterator() (*recordpage.RangeIterator, error) {
	return t.IteratorRange(nil, nil)
}

// Sync flushes both managers.
func (t *BPlusTree) Sync() error {
	if err := t.nodes.Sync(); err != nil {
		return err
	}
	return t.records.Sync()
}

// Close refuses to run with open iterators, then closes both managers.
func (t *BPlusTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodes.CheckQuiescent("close")
	t.records.CheckQuiescent("close")
	if err := t.nodes.Close(); err != nil {
		return errors.Wrap(err, "close node manager")
	}
	return errors.Wrap(t.records.Close(), "close record manager")
}

// Managers exposes the node and record managers.
func (t *BPlusTree) Managers() (nodes, records blockmanager.BlockManager) {
	return t.nodes, t.records
}
