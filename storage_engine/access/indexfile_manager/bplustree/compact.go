package bplus

import (
	"QuadDB/storage_engine/access/recordpage"
	"QuadDB/types"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Compact rewrites the live tree into freshly packed pages, publishes the new
// root in the meta block and then frees every page of the old tree. Running
// it with iterators open is a consistency violation.
func (t *BPlusTree) Compact() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodes.CheckQuiescent("compact")
	t.records.CheckQuiescent("compact")

	old, err := t.readMeta()
	if err != nil {
		return err
	}
	first, _, err := t.findLeaf(old, nil)
	if err != nil {
		return err
	}
	it, err := recordpage.NewRangeIterator(t.records, t.factory, types.Ref(first), nil, nil)
	if err != nil {
		return err
	}
	err = t.replace(old, t.params, it)
	it.Close()
	return errors.Wrap(err, "compact")
}

// Rebuild replaces the content of the tree with the sorted records of src,
// laid out with p. A failed build leaves the old tree and its params in
// place; the pages it had written stay allocated but unreachable.
func (t *BPlusTree) Rebuild(p Params, src Source) error {
	if err := p.checkFits(t.nodes.BlockSize(), t.records.BlockSize()); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodes.CheckQuiescent("rebuild")
	t.records.CheckQuiescent("rebuild")

	old, err := t.readMeta()
	if err != nil {
		return err
	}
	return t.replace(old, p, src)
}

// replace builds src into new pages, syncs them, then points the meta block
// at the new root. The meta write is the only step that makes the new tree
// visible. Pages of old are freed afterwards.
func (t *BPlusTree) replace(old meta, p Params, src Source) error {
	branches, leaves, err := t.collectBlocks(old)
	if err != nil {
		return err
	}

	prev := t.params
	t.setParams(p)
	m, err := t.build(src)
	if err == nil {
		err = t.Sync()
	}
	if err == nil {
		err = t.writeMeta(m)
	}
	if err != nil {
		t.setParams(prev)
		return err
	}
	if err := t.nodes.Sync(); err != nil {
		return err
	}

	for _, id := range branches {
		if err := t.freeNode(id); err != nil {
			return err
		}
	}
	for _, id := range leaves {
		if err := t.freeLeaf(id); err != nil {
			return err
		}
	}
	t.logger.Info("replaced tree",
		zap.Int("old_branches", len(branches)),
		zap.Int("old_leaves", len(leaves)),
		zap.Int64("root", int64(m.root)),
		zap.Int("height", m.height),
		zap.Int("order", p.Order))
	return nil
}

// collectBlocks lists every branch and record page of the tree under m.
func (t *BPlusTree) collectBlocks(m meta) (branches, leaves []types.BlockID, err error) {
	if m.height == 0 {
		return nil, []types.BlockID{m.root}, nil
	}
	level := []types.BlockID{m.root}
	for depth := 0; depth < m.height; depth++ {
		var next []types.BlockID
		for _, id := range level {
			n, err := t.fetchNode(id)
			if err != nil {
				return nil, nil, err
			}
			branches = append(branches, id)
			next = append(next, n.children...)
		}
		level = next
	}
	return branches, level, nil
}
