package bplus

import (
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"go.uber.org/zap"
)

// splitInternal splits a branch holding order+1 children. The key at the
// floor median moves up; the left page keeps the keys before it.
func (t *BPlusTree) splitInternal(m meta, n *Node, path []frame) error {
	mid := len(n.keys) / 2
	promote := n.keys[mid]

	right, err := t.newNode(n.leafChildren)
	if err != nil {
		return err
	}
	right.keys = append([]record.Record(nil), n.keys[mid+1:]...)
	right.children = append([]types.BlockID(nil), n.children[mid+1:]...)
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	if err := t.writeNode(right); err != nil {
		return err
	}
	if err := t.writeNode(n); err != nil {
		return err
	}
	t.logger.Debug("split branch", zap.Int64("left", int64(n.id)), zap.Int64("right", int64(right.id)))
	return t.insertIntoParent(m, path, promote, n.id, right.id)
}

// insertIntoParent adds separator key with right child rightID next to
// leftID in the last branch of path, splitting upward as needed.
func (t *BPlusTree) insertIntoParent(m meta, path []frame, key record.Record, leftID, rightID types.BlockID) error {
	if len(path) == 0 {
		return t.newRoot(m, key, leftID, rightID)
	}
	f := path[len(path)-1]
	n := f.node
	n.keys = insert(n.keys, f.idx, key)
	n.children = insert(n.children, f.idx+1, rightID)
	if len(n.children) <= t.params.Order {
		return t.writeNode(n)
	}
	return t.splitInternal(m, n, path[:len(path)-1])
}

// newRoot grows the tree by one level.
func (t *BPlusTree) newRoot(m meta, key record.Record, leftID, rightID types.BlockID) error {
	root, err := t.newNode(m.height == 0)
	if err != nil {
		return err
	}
	root.keys = []record.Record{key}
	root.children = []types.BlockID{leftID, rightID}
	if err := t.writeNode(root); err != nil {
		return err
	}
	m.root = root.id
	m.height++
	t.logger.Debug("new root", zap.Int64("root", int64(root.id)), zap.Int("height", m.height))
	return t.writeMeta(m)
}
