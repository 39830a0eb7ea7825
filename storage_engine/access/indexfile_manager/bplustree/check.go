package bplus

import (
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"

	"github.com/RoaringBitmap/roaring/v2"
)

// Check audits the whole tree: key order inside and across pages, separator
// bounds, occupancy, uniform leaf depth, pages reachable more than once and
// the record page chain. It returns
// the first violation as a *dberrors.StorageConsistencyError.
func (t *BPlusTree) Check() (err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	defer dberrors.Recover(&err)

	m, err := t.readMeta()
	if err != nil {
		return err
	}
	if m.params != t.params {
		return dberrors.Inconsistent(types.Ref(metaBlock), nil, "stored params %+v differ from open params %+v", m.params, t.params)
	}
	c := &checker{t: t, height: m.height, seenNodes: roaring.New(), seenLeaves: roaring.New()}
	if err := c.walk(m.root, 0, nil, nil); err != nil {
		return err
	}
	return c.checkChain()
}

type checker struct {
	t      *BPlusTree
	height int
	leaves []types.BlockID // in key order

	seenNodes  *roaring.Bitmap
	seenLeaves *roaring.Bitmap
}

// walk checks the subtree at id, whose keys must lie in [lo, hi).
func (c *checker) walk(id types.BlockID, depth int, lo, hi *record.Record) error {
	p := c.t.params
	ref := types.Ref(id)
	isRoot := depth == 0

	seen := c.seenNodes
	if depth == c.height {
		seen = c.seenLeaves
	}
	if !seen.CheckedAdd(uint32(id)) {
		return dberrors.Inconsistent(ref, nil, "page reachable twice")
	}

	if depth == c.height {
		l, err := c.t.fetchLeaf(id)
		if err != nil {
			return err
		}
		n := len(l.recs)
		if n > p.Order || (!isRoot && n < p.MinEntries()) {
			return dberrors.Inconsistent(ref, nil, "record page holds %d records, allowed %d..%d", n, p.MinEntries(), p.Order)
		}
		if err := checkKeys(ref, l.recs, lo, hi, true); err != nil {
			return err
		}
		c.leaves = append(c.leaves, id)
		return nil
	}

	node, err := c.t.fetchNode(id)
	if err != nil {
		return err
	}
	if node.leafChildren != (depth == c.height-1) {
		return dberrors.Inconsistent(ref, nil, "branch at depth %d of %d has wrong child kind", depth, c.height)
	}
	n := len(node.children)
	switch {
	case n > p.Order:
		return dberrors.Inconsistent(ref, nil, "branch has %d children, order is %d", n, p.Order)
	case isRoot && n < 2:
		return dberrors.Inconsistent(ref, nil, "root branch has %d children", n)
	case !isRoot && n < p.MinEntries():
		return dberrors.Inconsistent(ref, nil, "branch has %d children, minimum is %d", n, p.MinEntries())
	}
	if err := checkKeys(ref, node.keys, lo, hi, false); err != nil {
		return err
	}
	for i, child := range node.children {
		clo, chi := lo, hi
		if i > 0 {
			clo = &node.keys[i-1]
		}
		if i < len(node.keys) {
			chi = &node.keys[i]
		}
		if err := c.walk(child, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}

// checkKeys: strictly increasing and inside [lo, hi). A separator may not
// equal lo, as that would leave an empty key range.
func checkKeys(ref types.BlockRef, recs []record.Record, lo, hi *record.Record, leaf bool) error {
	for i, r := range recs {
		if i > 0 && record.Compare(recs[i-1], r) >= 0 {
			return dberrors.Inconsistent(ref, r.Key(), "keys out of order at %d", i)
		}
		if lo != nil {
			c := record.Compare(r, *lo)
			if c < 0 || (!leaf && c == 0) {
				return dberrors.Inconsistent(ref, r.Key(), "key below separator %s", *lo)
			}
		}
		if hi != nil && record.Compare(r, *hi) >= 0 {
			return dberrors.Inconsistent(ref, r.Key(), "key not below separator %s", *hi)
		}
	}
	return nil
}

// checkChain follows the record page links from the leftmost page and
// expects exactly the pages found by the walk, in the same order.
func (c *checker) checkChain() error {
	var prev record.Record
	ref := types.Ref(c.leaves[0])
	for i, want := range c.leaves {
		id, ok := ref.Get()
		if !ok {
			return dberrors.Inconsistent(types.Ref(c.leaves[i-1]), nil, "chain ends after %d of %d pages", i, len(c.leaves))
		}
		if id != want {
			return dberrors.Inconsistent(ref, nil, "chain reaches page %d where page %d was expected", id, want)
		}
		l, err := c.t.fetchLeaf(id)
		if err != nil {
			return err
		}
		if len(l.recs) > 0 {
			if !prev.IsZero() && record.Compare(prev, l.recs[0]) >= 0 {
				return dberrors.Inconsistent(ref, l.recs[0].Key(), "page starts at or below the previous page's last key")
			}
			prev = l.recs[len(l.recs)-1]
		}
		ref = l.link
	}
	if !ref.IsNone() {
		return dberrors.Inconsistent(ref, nil, "chain continues past the last page")
	}
	return nil
}
