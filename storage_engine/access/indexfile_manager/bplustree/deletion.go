package bplus

import (
	"QuadDB/storage_engine/record"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

/*
Rebalancing after a page drops below MinEntries, first option that applies:

	1. borrow the last entry of the left sibling
	2. borrow the first entry of the right sibling
	3. merge the page into its left sibling
	4. merge the right sibling into the page

Siblings are only taken under the same parent. A merge removes one separator
from the parent, which may underflow in turn. A root branch left with a
single child is replaced by that child.
*/

// Delete removes the record with rec's key. It reports false if there was none.
func (t *BPlusTree) Delete(rec record.Record) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.readMeta()
	if err != nil {
		return false, err
	}
	id, path, err := t.findLeaf(m, rec.Key())
	if err != nil {
		return false, errors.Wrap(err, "deletion: find leaf")
	}
	l, err := t.fetchLeaf(id)
	if err != nil {
		return false, err
	}
	i, found := searchRecords(l.recs, rec.Key())
	if !found {
		return false, nil
	}
	l.recs = remove(l.recs, i)

	if len(path) == 0 || len(l.recs) >= t.params.MinEntries() {
		return true, t.writeLeaf(l)
	}
	return true, t.rebalanceLeaf(m, l, path)
}

func (t *BPlusTree) rebalanceLeaf(m meta, l *leaf, path []frame) error {
	f := path[len(path)-1]
	parent, i := f.node, f.idx
	minEntries := t.params.MinEntries()

	var left, right *leaf
	var err error

	// ── Try borrow from left sibling ──────────────────────────────────────────
	if i > 0 {
		if left, err = t.fetchLeaf(parent.children[i-1]); err != nil {
			return err
		}
		if len(left.recs) > minEntries {
			last := left.recs[len(left.recs)-1]
			left.recs = left.recs[:len(left.recs)-1]
			l.recs = insert(l.recs, 0, last)
			parent.keys[i-1] = record.ToKey(l.recs[0])
			return t.writeAll(nil, parent, left, l)
		}
	}

	// ── Try borrow from right sibling ─────────────────────────────────────────
	if i < len(parent.children)-1 {
		if right, err = t.fetchLeaf(parent.children[i+1]); err != nil {
			return err
		}
		if len(right.recs) > minEntries {
			l.recs = append(l.recs, right.recs[0])
			right.recs = right.recs[1:]
			parent.keys[i] = record.ToKey(right.recs[0])
			return t.writeAll(nil, parent, l, right)
		}
	}

	// ── Merge ─────────────────────────────────────────────────────────────────
	if left != nil {
		left.recs = append(left.recs, l.recs...)
		left.link = l.link
		if err := t.writeLeaf(left); err != nil {
			return err
		}
		if err := t.freeLeaf(l.id); err != nil {
			return err
		}
		parent.keys = remove(parent.keys, i-1)
		parent.children = remove(parent.children, i)
	} else {
		l.recs = append(l.recs, right.recs...)
		l.link = right.link
		if err := t.writeLeaf(l); err != nil {
			return err
		}
		if err := t.freeLeaf(right.id); err != nil {
			return err
		}
		parent.keys = remove(parent.keys, i)
		parent.children = remove(parent.children, i+1)
	}
	t.logger.Debug("merged leaves", zap.Int64("parent", int64(parent.id)))
	return t.branchShrunk(m, parent, path[:len(path)-1])
}

// branchShrunk stores n after it lost a child, rebalancing or collapsing the
// root as needed. path holds n's ancestors.
func (t *BPlusTree) branchShrunk(m meta, n *Node, path []frame) error {
	if len(path) == 0 {
		if len(n.children) > 1 {
			return t.writeNode(n)
		}
		m.root = n.children[0]
		m.height--
		if err := t.writeMeta(m); err != nil {
			return err
		}
		t.logger.Debug("root collapsed", zap.Int64("root", int64(m.root)), zap.Int("height", m.height))
		return t.freeNode(n.id)
	}
	if len(n.children) >= t.params.MinEntries() {
		return t.writeNode(n)
	}
	return t.rebalanceBranch(m, n, path)
}

func (t *BPlusTree) rebalanceBranch(m meta, n *Node, path []frame) error {
	f := path[len(path)-1]
	parent, i := f.node, f.idx
	minEntries := t.params.MinEntries()

	var left, right *Node
	var err error

	// ── Try borrow from left sibling ──────────────────────────────────────────
	if i > 0 {
		if left, err = t.fetchNode(parent.children[i-1]); err != nil {
			return err
		}
		if len(left.children) > minEntries {
			// rotate through the parent
			lastKey := left.keys[len(left.keys)-1]
			lastChild := left.children[len(left.children)-1]
			left.keys = left.keys[:len(left.keys)-1]
			left.children = left.children[:len(left.children)-1]

			n.keys = insert(n.keys, 0, parent.keys[i-1])
			n.children = insert(n.children, 0, lastChild)
			parent.keys[i-1] = lastKey
			return t.writeAll([]*Node{left, n, parent}, nil)
		}
	}

	// ── Try borrow from right sibling ─────────────────────────────────────────
	if i < len(parent.children)-1 {
		if right, err = t.fetchNode(parent.children[i+1]); err != nil {
			return err
		}
		if len(right.children) > minEntries {
			n.keys = append(n.keys, parent.keys[i])
			n.children = append(n.children, right.children[0])
			parent.keys[i] = right.keys[0]
			right.keys = right.keys[1:]
			right.children = right.children[1:]
			return t.writeAll([]*Node{n, right, parent}, nil)
		}
	}

	// ── Merge ─────────────────────────────────────────────────────────────────
	if left != nil {
		left.keys = append(left.keys, parent.keys[i-1])
		left.keys = append(left.keys, n.keys...)
		left.children = append(left.children, n.children...)
		if err := t.writeNode(left); err != nil {
			return err
		}
		if err := t.freeNode(n.id); err != nil {
			return err
		}
		parent.keys = remove(parent.keys, i-1)
		parent.children = remove(parent.children, i)
	} else {
		n.keys = append(n.keys, parent.keys[i])
		n.keys = append(n.keys, right.keys...)
		n.children = append(n.children, right.children...)
		if err := t.writeNode(n); err != nil {
			return err
		}
		if err := t.freeNode(right.id); err != nil {
			return err
		}
		parent.keys = remove(parent.keys, i)
		parent.children = remove(parent.children, i+1)
	}
	t.logger.Debug("merged branches", zap.Int64("parent", int64(parent.id)))
	return t.branchShrunk(m, parent, path[:len(path)-1])
}

// writeAll stores record pages, then branches, then parent if given.
func (t *BPlusTree) writeAll(nodes []*Node, parent *Node, leaves ...*leaf) error {
	for _, l := range leaves {
		if err := t.writeLeaf(l); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if err := t.writeNode(n); err != nil {
			return err
		}
	}
	if parent != nil {
		return t.writeNode(parent)
	}
	return nil
}
